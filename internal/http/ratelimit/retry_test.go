package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{599, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsRetryableStatus(tt.status), "status %d", tt.status)
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(1.5, 0, time.Second))
	assert.Equal(t, 1500*time.Millisecond, Backoff(1.5, 1, time.Second))
	assert.Equal(t, 2250*time.Millisecond, Backoff(1.5, 2, time.Second))
	assert.Equal(t, 40*time.Millisecond, Backoff(2, 2, 10*time.Millisecond))
}

func TestRetryError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &RetryError{Attempts: 3, LastStatus: 503, LastError: cause}

	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "gave up after 3 attempts (HTTP 503): connection refused", err.Error())
}

func TestSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
