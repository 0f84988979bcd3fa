package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, nil, func(int) error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoRetriesUntilAttemptsExhausted(t *testing.T) {
	attempts := 0
	transient := errors.New("transient")
	err := Do(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2},
		func(error) bool { return true },
		func(int) error {
			attempts++
			return transient
		})

	require.Error(t, err)
	assert.True(t, errors.Is(err, transient))
	assert.Equal(t, 3, attempts)
}

func TestDoStopsImmediatelyOnNonRetryableError(t *testing.T) {
	attempts := 0
	permanent := errors.New("permanent")
	err := Do(context.Background(), Config{MaxAttempts: 5, InitialDelay: time.Millisecond},
		func(error) bool { return false },
		func(int) error {
			attempts++
			return permanent
		})

	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, attempts)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Do(ctx, Config{MaxAttempts: 5, InitialDelay: time.Millisecond}, nil, func(int) error {
		attempts++
		return errors.New("boom")
	})

	assert.Error(t, err)
	assert.Equal(t, 0, attempts)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := NewBackoff(Config{InitialDelay: 10 * time.Millisecond, MaxDelay: 35 * time.Millisecond, BackoffFactor: 2})

	assert.Equal(t, 10*time.Millisecond, b.Next())
	assert.Equal(t, 20*time.Millisecond, b.Next())
	assert.Equal(t, 35*time.Millisecond, b.Next()) // capped
	assert.Equal(t, 35*time.Millisecond, b.Next())
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(Config{InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2})
	b.Next()
	b.Next()
	b.Reset()
	assert.Equal(t, 10*time.Millisecond, b.Next())
}
