package analysis

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a model failure.
type ErrorKind string

const (
	KindRateLimited     ErrorKind = "RATE_LIMIT"
	KindOverloaded      ErrorKind = "OVERLOADED"
	KindAPI             ErrorKind = "API_ERROR"
	KindInvalidResponse ErrorKind = "INVALID_RESPONSE"
	KindInvalidJSON     ErrorKind = "INVALID_JSON"
)

// ModelError is a classified failure from the model endpoint or from
// parsing its output. Every kind degrades the chunk to synthetic failures.
type ModelError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ModelError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ModelError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a model rate-limit error.
func IsRateLimited(err error) bool { return hasKind(err, KindRateLimited) }

// IsOverloaded reports whether err is a model overload error.
func IsOverloaded(err error) bool { return hasKind(err, KindOverloaded) }

func hasKind(err error, kind ErrorKind) bool {
	var me *ModelError
	return errors.As(err, &me) && me.Kind == kind
}
