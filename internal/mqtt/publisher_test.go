package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
	"github.com/capturectl/capturectl/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type published struct {
	topic   string
	payload []byte
	retain  bool
}

type fakeClient struct {
	mu       sync.Mutex
	messages []published
	err      error
	notify   chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{notify: make(chan struct{}, 64)}
}

func (f *fakeClient) Connect(context.Context) error { return nil }
func (f *fakeClient) IsConnected() bool             { return true }
func (f *fakeClient) Disconnect()                   {}

func (f *fakeClient) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.messages = append(f.messages, published{topic: topic, payload: payload, retain: retain})
	}
	f.notify <- struct{}{}
	return f.err
}

func (f *fakeClient) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for publish %d", i+1)
		}
	}
}

func (f *fakeClient) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

func TestNewStateMessage(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	msg := NewStateMessage(session.Transition{
		From:        session.Idle,
		To:          session.Recording,
		RecordingID: "rec-1",
		At:          at,
	})
	assert.Equal(t, "recording", msg.State)
	assert.Equal(t, "idle", msg.Previous)
	assert.True(t, msg.OnAir)
	assert.Equal(t, "rec-1", msg.RecordingID)
	assert.Equal(t, time.UTC, msg.At.Location())
	assert.Empty(t, msg.Error)

	failed := NewStateMessage(session.Transition{
		From: session.Stopping,
		To:   session.Idle,
		Err:  errors.NewStd("signal mismatch"),
	})
	assert.False(t, failed.OnAir)
	assert.Equal(t, "signal mismatch", failed.Error)
}

func TestStatePublisherPublishesTransitions(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	p := NewStatePublisher(fc, Config{Topic: "studio/a", Retain: true}, logger.NewDiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.OnTransition(session.Transition{From: session.Idle, To: session.Recording, RecordingID: "r1"})
	p.OnTransition(session.Transition{From: session.Recording, To: session.Stopping, RecordingID: "r1"})
	fc.wait(t, 2)

	cancel()
	require.NoError(t, <-done)

	msgs := fc.snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, "studio/a", msgs[0].topic)
	assert.True(t, msgs[0].retain)

	var first StateMessage
	require.NoError(t, json.Unmarshal(msgs[0].payload, &first))
	assert.Equal(t, "recording", first.State)
	assert.Equal(t, "r1", first.RecordingID)

	var second StateMessage
	require.NoError(t, json.Unmarshal(msgs[1].payload, &second))
	assert.Equal(t, "stopping", second.State)
}

func TestStatePublisherDefaultTopic(t *testing.T) {
	t.Parallel()
	p := NewStatePublisher(newFakeClient(), Config{}, logger.NewDiscardLogger())
	assert.Equal(t, DefaultTopic, p.topic)
}

func TestStatePublisherReplacesOldestWhenFull(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	p := NewStatePublisher(fc, Config{}, logger.NewDiscardLogger())

	// Run is not started, so the queue fills up.
	for i := 0; i < queueSize+3; i++ {
		p.OnTransition(session.Transition{From: session.Idle, To: session.Recording, RecordingID: string(rune('a' + i))})
	}
	require.Len(t, p.queue, queueSize)

	oldest := <-p.queue
	assert.Equal(t, string(rune('a'+3)), oldest.RecordingID)
}

func TestStatePublisherSurvivesPublishErrors(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	fc.err = errors.NewStd("broker gone")
	p := NewStatePublisher(fc, Config{}, logger.NewDiscardLogger())

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	p.OnTransition(session.Transition{From: session.Idle, To: session.Recording})
	p.OnTransition(session.Transition{From: session.Recording, To: session.Stopping})
	fc.wait(t, 2)

	p.Close()
	require.NoError(t, <-done)
	assert.Empty(t, fc.snapshot())

	// Transitions after Close are ignored without blocking.
	p.OnTransition(session.Transition{From: session.Stopping, To: session.Idle})
}

func TestClientRejectsInvalidBroker(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{Broker: "://nope"}, nil, logger.NewDiscardLogger())
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.False(t, c.IsConnected())
}

func TestClientPublishWhileDisconnected(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{Broker: "tcp://127.0.0.1:1883"}, nil, logger.NewDiscardLogger())
	err := c.Publish(context.Background(), "t", []byte("x"), false)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
}

func TestClientConnectCooldown(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{Broker: "://nope", ReconnectCooldown: time.Hour}, nil, logger.NewDiscardLogger())
	require.Error(t, c.Connect(context.Background()))

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
}
