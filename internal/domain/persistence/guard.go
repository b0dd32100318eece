package persistence

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/lifescope/internal/infrastructure/resilience"
)

// GuardedUnit runs commits through a circuit breaker shared by every unit on
// the same store. While the breaker is open SaveChanges fails fast and the
// pending changes stay staged.
type GuardedUnit struct {
	unit    UnitOfWork
	breaker *resilience.Breaker
}

// Guard wraps unit with breaker
func Guard(unit UnitOfWork, breaker *resilience.Breaker) *GuardedUnit {
	return &GuardedUnit{unit: unit, breaker: breaker}
}

// Unwrap returns the guarded unit
func (g *GuardedUnit) Unwrap() UnitOfWork { return g.unit }

// SaveChanges commits through the breaker
func (g *GuardedUnit) SaveChanges(ctx context.Context) (int, error) {
	var n int
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = g.unit.SaveChanges(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", g.breaker.Name(), err)
	}
	return n, nil
}

// Rollback is not guarded so pending changes can always be discarded.
func (g *GuardedUnit) Rollback(ctx context.Context) error {
	return g.unit.Rollback(ctx)
}
