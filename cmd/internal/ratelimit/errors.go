package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited is returned when a budget is exhausted.
var ErrRateLimited = errors.New("rate limited")

// RateLimitError carries retry metadata for a denied operation.
type RateLimitError struct {
	Op         Op
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	if e.RetryAfter <= 0 {
		return fmt.Sprintf("%s: %s", ErrRateLimited.Error(), e.Op)
	}
	return fmt.Sprintf("%s: %s: retry after %s", ErrRateLimited.Error(), e.Op, e.RetryAfter)
}

func (e RateLimitError) Unwrap() error { return ErrRateLimited }
