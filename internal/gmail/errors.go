package gmail

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError indicates the API refused the request for quota reasons.
// The enclosing operation may be retried later; it is not retried here.
type RateLimitedError struct {
	Op         Operation
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited (retry after %s)", e.Op, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Op)
}

// FetchFailedError indicates a non-2xx response or a transport failure
// (StatusCode 0).
type FetchFailedError struct {
	Op         Operation
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchFailedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s: request failed (%d): %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: request failed (%d)", e.Op, e.StatusCode)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is, or wraps, a RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// IsFetchFailed reports whether err is, or wraps, a FetchFailedError.
func IsFetchFailed(err error) bool {
	var ff *FetchFailedError
	return errors.As(err, &ff)
}
