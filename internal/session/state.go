package session

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a Session.
type State int32

const (
	Uninitialized State = iota
	Configuring
	Idle
	Recording
	Stopping
	ShutDown
)

var stateNames = [...]string{
	Uninitialized: "uninitialized",
	Configuring:   "configuring",
	Idle:          "idle",
	Recording:     "recording",
	Stopping:      "stopping",
	ShutDown:      "shutdown",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// MarshalText renders the state name in JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// canInitialize reports whether Initialize does real work from s.
func (s State) canInitialize() bool {
	return s == Uninitialized || s == ShutDown
}

// Transition describes one state change. A failed start is reported as an
// Idle to Idle transition carrying the error.
type Transition struct {
	From        State     `json:"from"`
	To          State     `json:"to"`
	RecordingID string    `json:"recordingId,omitempty"`
	Err         error     `json:"-"`
	At          time.Time `json:"at"`
}

// Observer is notified of every transition. Observers run synchronously on
// the goroutine of the session operation and must not call back into the
// Session.
type Observer interface {
	OnTransition(Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Transition)

func (f ObserverFunc) OnTransition(t Transition) { f(t) }
