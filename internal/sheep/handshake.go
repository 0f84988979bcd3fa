package sheep

import (
	"context"
	"fmt"
	"time"
)

// defaultHandshakeTimeout is used when a Config leaves HandshakeTimeout
// unset (zero), so a sheep launched outside the scheduler's usual wiring
// still gets a bounded wait.
const defaultHandshakeTimeout = 30 * time.Second

// awaitHandshake blocks until cfg.Socket reports a connected sheep, ctx is
// cancelled, or cfg.HandshakeTimeout elapses, implementing the Starting ->
// Ready / Starting -> Failed transition spec.md §4.2 describes. A sheep
// launched without a Socket configured (e.g. in a unit test) is considered
// handshaken immediately.
func awaitHandshake(ctx context.Context, cfg Config) error {
	if cfg.Socket == nil {
		return nil
	}
	if cfg.Socket.Connected() {
		return nil
	}

	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cfg.Socket.Connected() {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("%w: handshake: %v", ErrConfiguration, ctx.Err())
		}
	}
}
