package buildinfo

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Version(t *testing.T) {
	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{name: "nil context", ctx: nil, want: UnknownValue},
		{name: "empty version", ctx: NewContext("", "2026-01-01"), want: UnknownValue},
		{name: "valid version", ctx: NewContext("1.0.0", "2026-01-01"), want: "1.0.0"},
		{name: "prerelease", ctx: NewContext("1.0.0-beta.1", "2026-01-01"), want: "1.0.0-beta.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ctx.GetVersion())
		})
	}
}

func TestContext_BuildDate(t *testing.T) {
	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{name: "nil context", ctx: nil, want: UnknownValue},
		{name: "empty date", ctx: NewContext("1.0.0", ""), want: UnknownValue},
		{name: "valid date", ctx: NewContext("1.0.0", "2026-01-01T12:00:00Z"), want: "2026-01-01T12:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ctx.GetBuildDate())
		})
	}
}

func TestContext_InstanceID(t *testing.T) {
	a := NewContext("1.0.0", "")
	b := NewContext("1.0.0", "")

	_, err := uuid.Parse(a.GetInstanceID())
	require.NoError(t, err)
	assert.NotEqual(t, a.GetInstanceID(), b.GetInstanceID())

	var nilCtx *Context
	assert.Equal(t, UnknownValue, nilCtx.GetInstanceID())
}

func TestContext_DerivedNames(t *testing.T) {
	c := &Context{Version: "2.1.0", BuildDate: "2026-03-04", InstanceID: "abc"}

	assert.Equal(t, "capturectl@2.1.0", c.Release())
	assert.Equal(t, "capturectl-abc", c.Channel())
	assert.Equal(t, "2.1.0 (built 2026-03-04)", c.String())

	var _ BuildInfo = c
}
