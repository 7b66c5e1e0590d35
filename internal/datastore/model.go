package datastore

import "time"

// Outcome describes how a recording ended.
type Outcome string

const (
	OutcomeRecording   Outcome = "recording"
	OutcomeCompleted   Outcome = "completed"
	OutcomeFailed      Outcome = "failed"
	OutcomeStartFailed Outcome = "start_failed"
	OutcomeInterrupted Outcome = "interrupted"
)

// Recording is one row of recording history.
type Recording struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	RecordingID string     `gorm:"size:36;index" json:"recordingId"`
	StartedAt   time.Time  `gorm:"index" json:"startedAt"`
	StoppedAt   *time.Time `json:"stoppedAt,omitempty"`
	OutputPath  string     `json:"outputPath"`
	Format      string     `gorm:"size:16" json:"format"`
	Outcome     Outcome    `gorm:"size:16;index" json:"outcome"`
	Error       string     `json:"error,omitempty"`
}

// Duration returns the recording length, or zero while still open.
func (r *Recording) Duration() time.Duration {
	if r.StoppedAt == nil {
		return 0
	}
	return r.StoppedAt.Sub(r.StartedAt)
}
