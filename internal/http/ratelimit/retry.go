package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"
)

// ErrRetriesExhausted is matched by RetryError via errors.Is
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryError represents an error when all retry attempts are exhausted
type RetryError struct {
	Attempts   int
	LastStatus int
	LastError  error
}

func (e *RetryError) Error() string {
	msg := "gave up after " + strconv.Itoa(e.Attempts) + " attempts"
	if e.LastStatus != 0 {
		msg += " (HTTP " + strconv.Itoa(e.LastStatus) + ")"
	}
	if e.LastError != nil {
		msg += ": " + e.LastError.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrRetriesExhausted) true for any RetryError
func (e *RetryError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

func (e *RetryError) Unwrap() error {
	return e.LastError
}

// IsRetryableStatus checks if an HTTP status code is retryable
// Retryable: 429, 5xx
func IsRetryableStatus(status int) bool {
	return status == 429 || (status >= 500 && status < 600)
}

// IsSuccessStatus reports a 2xx status
func IsSuccessStatus(status int) bool {
	return status >= 200 && status < 300
}

// Backoff returns unit * factor^attempt, attempt counted from zero
func Backoff(factor float64, attempt int, unit time.Duration) time.Duration {
	return time.Duration(float64(unit) * math.Pow(factor, float64(attempt)))
}

// Sleep blocks for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
