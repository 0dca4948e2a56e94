// Package lifecycle defines the subsystem drain contract shared by every
// background loop in the core (lease ticker, reconciler, durable event
// log writer).
package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// Drainable represents a subsystem that can be gracefully stopped.
type Drainable interface {
	// Drain gracefully stops the subsystem. The context carries a
	// deadline; implementations should respect it.
	Drain(ctx context.Context) error
	// Name returns the subsystem name for logging.
	Name() string
}

// DrainAll drains multiple subsystems in order with a per-subsystem
// timeout, collecting (rather than short-circuiting on) errors.
func DrainAll(ctx context.Context, timeout time.Duration, subsystems ...Drainable) []error {
	var errs []error
	for _, s := range subsystems {
		subCtx, cancel := context.WithTimeout(ctx, timeout)
		if err := s.Drain(subCtx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
		cancel()
	}
	return errs
}
