// Package retry implements exponential backoff with jitter for operations
// that fail transiently (storage I/O, sheep restarts).
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Config controls the backoff schedule.
type Config struct {
	MaxAttempts    int // total attempts, including the first
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	JitterFraction float64 // 0.0-1.0, the delay is varied by up to ± this fraction
}

// DefaultStorageConfig matches spec.md §4.3: 3 attempts, 250ms base, factor 2, ±20% jitter.
func DefaultStorageConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   250 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		BackoffFactor:  2.0,
		JitterFraction: 0.2,
	}
}

// Classifier tells the retry loop whether an error is worth retrying.
type Classifier func(err error) bool

// Do runs fn, retrying per cfg while classify(err) is true. The last error is
// returned if all attempts are exhausted. fn is always called at least once.
func Do(ctx context.Context, cfg Config, classify Classifier, fn func(attempt int) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if classify != nil && !classify(err) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		wait := jittered(delay, cfg.JitterFraction)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("exhausted %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// Backoff tracks an open-ended doubling delay, used where there is no fixed
// attempt count (e.g. restarting a crashed sheep for as long as it keeps
// crashing). Reset returns the schedule to InitialDelay.
type Backoff struct {
	cfg     Config
	current time.Duration
}

// NewBackoff builds a Backoff from cfg, ignoring cfg.MaxAttempts.
func NewBackoff(cfg Config) *Backoff {
	return &Backoff{cfg: cfg, current: cfg.InitialDelay}
}

// Next returns the delay to wait before the next attempt and advances the schedule.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current = time.Duration(float64(b.current) * b.cfg.BackoffFactor)
	if b.current > b.cfg.MaxDelay {
		b.current = b.cfg.MaxDelay
	}
	return d
}

// Reset returns the schedule to its initial delay.
func (b *Backoff) Reset() {
	b.current = b.cfg.InitialDelay
}

func jittered(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	if fraction > 1 {
		fraction = 1
	}
	// +/- fraction around d, matching spec.md's "±20% jitter" phrasing.
	spread := float64(d) * fraction
	offset := (rand.Float64()*2 - 1) * spread
	result := time.Duration(float64(d) + offset)
	if result < 0 {
		result = 0
	}
	return result
}
