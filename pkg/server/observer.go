package server

import "time"

// Outcome is the result of a UIDL request that did not fail with an
// error status.
type Outcome int

const (
	// OutcomeCompleted means a UIDL response was written.
	OutcomeCompleted Outcome = iota

	// OutcomeCriticalFailure means a critical notification was written
	// instead.
	OutcomeCriticalFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCriticalFailure:
		return "critical_failure"
	default:
		return "unknown"
	}
}

// Observer receives measurements from communication managers. It is
// implemented by the Prometheus observer in pkg/middleware.
type Observer interface {
	// ObserveUIDL is called once per UIDL request. result is an Outcome
	// string or the catalogue code of the error.
	ObserveUIDL(result string, changes, paints int, d time.Duration)

	// ObserveUpload is called once per upload request. result is "ok" or
	// the catalogue code of the error.
	ObserveUpload(result string, d time.Duration)

	// ObserveCritical is called for every critical notification.
	ObserveCritical(code string)
}

// NopObserver discards all measurements.
type NopObserver struct{}

func (NopObserver) ObserveUIDL(string, int, int, time.Duration) {}
func (NopObserver) ObserveUpload(string, time.Duration)         {}
func (NopObserver) ObserveCritical(string)                      {}
