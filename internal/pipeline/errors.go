package pipeline

import (
	"errors"
	"fmt"

	"github.com/sells-group/signal-hunter/internal/model"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindInvalidConfiguration    ErrorKind = "invalid_configuration"
	KindProviderUnavailable     ErrorKind = "provider_unavailable"
	KindSearchFailure           ErrorKind = "search_failure"
	KindExtractionFailure       ErrorKind = "extraction_failure"
	KindEvidenceFetchFailure    ErrorKind = "evidence_fetch_failure"
	KindSignalEvaluationFailure ErrorKind = "signal_evaluation_failure"
	KindStorageFailure          ErrorKind = "storage_failure"
	KindSinkFailure             ErrorKind = "sink_failure"
)

// Fatal reports whether an error of this kind aborts the run.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindInvalidConfiguration, KindProviderUnavailable, KindStorageFailure:
		return true
	}
	return false
}

// Error is a pipeline failure tied to one unit of work: a query, a domain,
// a signal, or the run itself.
type Error struct {
	Kind ErrorKind
	Unit string
	Err  error
}

func (e *Error) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("pipeline: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("pipeline: %s [%s]: %v", e.Kind, e.Unit, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, unit string, err error) *Error {
	return &Error{Kind: kind, Unit: unit, Err: err}
}

// UnitError converts e for the run's error list.
func (e *Error) UnitError() model.UnitError {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return model.UnitError{Kind: string(e.Kind), Unit: e.Unit, Message: msg}
}

// IsFatal reports whether err carries a run-fatal ErrorKind.
func IsFatal(err error) bool {
	return KindOf(err).Fatal()
}

// KindOf extracts the ErrorKind from err, or "" when err is not a pipeline error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
