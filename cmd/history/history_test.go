package history

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capturectl/capturectl/internal/datastore"
)

func TestPrint_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Print(&out, nil))
	assert.Equal(t, "No recordings\n", out.String())
}

func TestPrint(t *testing.T) {
	started := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	stopped := started.Add(90 * time.Second)

	var out bytes.Buffer
	require.NoError(t, Print(&out, []datastore.Recording{
		{RecordingID: "b", StartedAt: started.Add(time.Hour), OutputPath: "/videos", Outcome: datastore.OutcomeRecording},
		{RecordingID: "a", StartedAt: started, StoppedAt: &stopped, OutputPath: "/videos", Outcome: datastore.OutcomeFailed, Error: "signal timeout"},
	}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "b "))
	assert.Contains(t, lines[1], " - ")
	assert.Contains(t, lines[2], "1m30s")
	assert.Contains(t, lines[2], "failed (signal timeout)")
}
