package datastore

import (
	"time"

	"github.com/capturectl/capturectl/internal/logger"
	"github.com/capturectl/capturectl/internal/session"
)

// History records session transitions as recording rows.
type History struct {
	store      Interface
	outputPath string
	format     string
	log        logger.Logger
	now        func() time.Time
}

// NewHistory creates a session observer writing to store.
func NewHistory(store Interface, outputPath, format string, log logger.Logger) *History {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	return &History{
		store:      store,
		outputPath: outputPath,
		format:     format,
		log:        log,
		now:        time.Now,
	}
}

// OnTransition implements session.Observer. Database failures are logged.
func (h *History) OnTransition(t session.Transition) {
	at := t.At
	if at.IsZero() {
		at = h.now()
	}

	var err error
	switch {
	case t.To == session.Recording:
		err = h.store.SaveRecording(&Recording{
			RecordingID: t.RecordingID,
			StartedAt:   at,
			OutputPath:  h.outputPath,
			Format:      h.format,
			Outcome:     OutcomeRecording,
		})
	case t.From == session.Idle && t.To == session.Idle && t.Err != nil:
		err = h.store.SaveRecording(&Recording{
			StartedAt:  at,
			StoppedAt:  &at,
			OutputPath: h.outputPath,
			Format:     h.format,
			Outcome:    OutcomeStartFailed,
			Error:      t.Err.Error(),
		})
	case t.From == session.Stopping && t.RecordingID != "":
		outcome, msg := OutcomeCompleted, ""
		if t.Err != nil {
			outcome, msg = OutcomeFailed, t.Err.Error()
		}
		err = h.store.FinishRecording(t.RecordingID, at, outcome, msg)
	case t.From == session.Recording && t.To == session.ShutDown && t.RecordingID != "":
		err = h.store.FinishRecording(t.RecordingID, at, OutcomeInterrupted, "")
	default:
		return
	}

	if err != nil {
		h.log.Warn("failed to record history",
			logger.String("from", t.From.String()),
			logger.String("to", t.To.String()),
			logger.String("recording_id", t.RecordingID),
			logger.Error(err))
	}
}
