package storage

import "time"

// Recorder receives operational events. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	ObserveOperation(op string, err error)
	ObservePasswordChange(result string, duration time.Duration, reEncrypted int)
	ObserveRecovery(action string)
}

// Recovery actions reported to ObserveRecovery.
const (
	RecoveryJournalCommitted = "journal_committed"
	RecoveryJournalDiscarded = "journal_discarded"
	RecoveryStageCleared     = "stage_cleared"
)

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error)                   {}
func (nopRecorder) ObservePasswordChange(string, time.Duration, int) {}
func (nopRecorder) ObserveRecovery(string)                           {}
