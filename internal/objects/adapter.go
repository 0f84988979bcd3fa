package objects

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/mild-blue/shepherd/internal/metrics"
	"github.com/mild-blue/shepherd/internal/retry"
)

// GetWithRetry wraps Store.Get with the exponential-backoff-with-jitter
// policy from spec.md §4.3, retrying only transient failures. reg may be nil.
func GetWithRetry(ctx context.Context, reg *metrics.Registry, store Store, bucket, key string) ([]byte, error) {
	start := time.Now()
	var body io.ReadCloser
	err := retry.Do(ctx, retry.DefaultStorageConfig(), Transient, func(attempt int) error {
		if attempt > 0 && reg != nil {
			reg.StorageRetries.WithLabelValues("get").Inc()
		}
		b, err := store.Get(ctx, bucket, key)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	observeStorageOp(reg, "get", start, err)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// PutWithRetry wraps Store.Put with the same retry policy. reg may be nil.
func PutWithRetry(ctx context.Context, reg *metrics.Registry, store Store, bucket, key string, data []byte) error {
	start := time.Now()
	err := retry.Do(ctx, retry.DefaultStorageConfig(), Transient, func(attempt int) error {
		if attempt > 0 && reg != nil {
			reg.StorageRetries.WithLabelValues("put").Inc()
		}
		return store.Put(ctx, bucket, key, bytes.NewReader(data))
	})
	observeStorageOp(reg, "put", start, err)
	return err
}

func observeStorageOp(reg *metrics.Registry, op string, start time.Time, err error) {
	if reg == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	reg.StorageOpDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}
