package synth

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can tell bad setup from bad input
// from an engine that could not produce audio.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindAnalysis
	KindSynthesis
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAnalysis:
		return "analysis"
	case KindSynthesis:
		return "synthesis"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. A *Error matches the sentinel of its kind.
var (
	ErrConfiguration = errors.New("invalid configuration")
	ErrAnalysis      = errors.New("text analysis failed")
	ErrSynthesis     = errors.New("speech synthesis failed")
)

// Error is returned by Session and Pool operations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	case ErrAnalysis:
		return e.Kind == KindAnalysis
	case ErrSynthesis:
		return e.Kind == KindSynthesis
	}
	return false
}

// KindOf reports the kind of err, or KindUnknown if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
