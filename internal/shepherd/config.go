package shepherd

import "time"

// Config holds the scheduler's tunables (spec.md §5, §6).
type Config struct {
	// QueueCapacity bounds each sheep's FIFO channel (default 1024).
	QueueCapacity int
	// HandshakeTimeout records the configured sheep handshake timeout
	// (default 30s). The scheduler does not read it; the bound Start applies
	// comes from each sheep's own sheep.Config.HandshakeTimeout.
	HandshakeTimeout time.Duration
	// StorageTimeout records the configured storage-operation timeout
	// (default 60s). The scheduler does not apply it: storage calls are
	// bounded only by the worker loop's context.
	StorageTimeout time.Duration
	// RestartInitialDelay and RestartMaxDelay seed the crash-restart backoff
	// schedule (1s doubling to a 30s cap, per spec.md §4.5 step 6).
	RestartInitialDelay time.Duration
	RestartMaxDelay     time.Duration
}

// DefaultConfig returns the scheduler defaults named in spec.md.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:       1024,
		HandshakeTimeout:    30 * time.Second,
		StorageTimeout:      60 * time.Second,
		RestartInitialDelay: 1 * time.Second,
		RestartMaxDelay:     30 * time.Second,
	}
}
