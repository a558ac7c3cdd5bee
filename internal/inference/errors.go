package inference

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrModelNotFound = errors.New("inference: model not registered")
	ErrNoBackend     = errors.New("inference: no backend for model")
	ErrBackendStatus = errors.New("inference: backend returned error status")
	ErrBadResponse   = errors.New("inference: malformed backend response")
	ErrBackendPanic  = errors.New("inference: backend panicked")
)

// ThrottleError — бэкенд попросил подождать (HTTP 429 / RESOURCE_EXHAUSTED).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
