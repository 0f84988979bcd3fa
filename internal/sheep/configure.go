package sheep

import "context"

// configure implements the shared Configure semantics for both variants
// (spec.md §4.2 Reconfiguration): a no-op if the sheep is already Ready (or
// Busy) with the same model; otherwise stop whatever is running, then start
// fresh with the new model pinned.
func configure(ctx context.Context, s Sheep, model Model) error {
	if loaded, ok := s.Loaded(); ok && loaded == model && s.Running() {
		return nil
	}

	if s.State() != StateIdle {
		if err := s.Stop(ctx); err != nil {
			return err
		}
	}

	if b, ok := s.(interface{ setLoaded(Model) }); ok {
		b.setLoaded(model)
	}

	return s.Start(ctx)
}
