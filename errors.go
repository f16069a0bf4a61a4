package linkray

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure for the caller. Every outward-facing
// error carries exactly one Kind; raw upstream detail stays in logs.
type Kind string

const (
	KindInvalidURL        Kind = "invalid_url"
	KindFetchTimeout      Kind = "fetch_timeout"
	KindFetchFailed       Kind = "fetch_failed"
	KindNoContent         Kind = "no_content"
	KindAIAnalysisFailed  Kind = "ai_analysis_failed"
	KindPersistenceFailed Kind = "persistence_failed"
	KindUnauthenticated   Kind = "unauthenticated"
	KindInternal          Kind = "internal"
)

// Error is a classified pipeline error. Message is safe to return to the
// caller; Err holds the wrapped upstream cause for logging.
type Error struct {
	Kind    Kind
	Message string
	Status  int // upstream HTTP status for fetch failures, 0 otherwise
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, or KindInternal when err carries
// no classification.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message of err, or a generic fallback
// for unclassified errors.
func MessageOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return "an unexpected error occurred"
}
