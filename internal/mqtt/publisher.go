package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/capturectl/capturectl/internal/logger"
	"github.com/capturectl/capturectl/internal/session"
)

// queueSize bounds the number of state messages waiting for the broker.
const queueSize = 16

// StateMessage is the payload published on every session transition.
type StateMessage struct {
	State       string    `json:"state"`
	Previous    string    `json:"previous"`
	OnAir       bool      `json:"onAir"`
	RecordingID string    `json:"recordingId,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// NewStateMessage converts a session transition into its wire form.
func NewStateMessage(t session.Transition) StateMessage {
	msg := StateMessage{
		State:       t.To.String(),
		Previous:    t.From.String(),
		OnAir:       t.To == session.Recording,
		RecordingID: t.RecordingID,
		At:          t.At.UTC(),
	}
	if t.Err != nil {
		msg.Error = t.Err.Error()
	}
	return msg
}

// StatePublisher forwards session transitions to the broker. Transitions
// are queued so the session never blocks on the network; when the queue is
// full the oldest pending message is replaced.
type StatePublisher struct {
	client Client
	topic  string
	retain bool
	log    logger.Logger

	queue     chan StateMessage
	closeOnce sync.Once
	done      chan struct{}
}

// NewStatePublisher creates a publisher for cfg.Topic.
func NewStatePublisher(c Client, cfg Config, log logger.Logger) *StatePublisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	if log == nil {
		log = logger.Global().Module("mqtt")
	}
	return &StatePublisher{
		client: c,
		topic:  topic,
		retain: cfg.Retain,
		log:    log,
		queue:  make(chan StateMessage, queueSize),
		done:   make(chan struct{}),
	}
}

// OnTransition implements session.Observer.
func (p *StatePublisher) OnTransition(t session.Transition) {
	msg := NewStateMessage(t)
	for {
		select {
		case <-p.done:
			return
		case p.queue <- msg:
			return
		default:
		}
		select {
		case dropped := <-p.queue:
			p.log.Debug("dropping stale state message", logger.String("state", dropped.State))
		default:
		}
	}
}

// Run publishes queued messages until ctx is cancelled or Close is called.
func (p *StatePublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.done:
			return nil
		case msg := <-p.queue:
			p.publish(ctx, msg)
		}
	}
}

// Close stops Run. Pending messages are discarded.
func (p *StatePublisher) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *StatePublisher) publish(ctx context.Context, msg StateMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("failed to encode state message", logger.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.topic, payload, p.retain); err != nil {
		p.log.Warn("failed to publish state",
			logger.String("topic", p.topic),
			logger.String("state", msg.State),
			logger.Error(err))
		return
	}
	p.log.Debug("published state",
		logger.String("topic", p.topic),
		logger.String("state", msg.State))
}
