package hotswap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Reinjector reruns injection on instances that already live in a context.
type Reinjector struct {
	logger *zap.Logger
}

func NewReinjector(logger *zap.Logger) *Reinjector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reinjector{logger: logger}
}

// Reinject re-resolves the injection points of the instance of b held by c.
// The instance keeps its identity and its own state. A missing instance or an
// inactive context is not an error.
func (r *Reinjector) Reinject(ctx context.Context, sf SessionFactory, c Context, b *Bean) error {
	if !c.Active() {
		r.logger.Debug("context not active", zap.String("context", c.ID()), zap.String("bean", b.ID()))
		return nil
	}
	instance, ok, err := c.Get(b)
	if err != nil {
		if errors.Is(err, ErrNotActive) {
			r.logger.Debug("context expired", zap.String("context", c.ID()), zap.String("bean", b.ID()))
			return nil
		}
		return fmt.Errorf("lookup %s in context %s: %w", b.ID(), c.ID(), err)
	}
	if !ok || instance == nil {
		return nil
	}

	session := sf.NewInjectionSession(WithActiveContext(ctx, c), b)
	defer session.Release()
	if err := b.Producer().Inject(instance, session); err != nil {
		return fmt.Errorf("reinject %s in context %s: %w", b.ID(), c.ID(), err)
	}
	r.logger.Info("bean injection points reinjected",
		zap.String("bean", b.ID()), zap.String("class", b.Class().ID.String()), zap.String("context", c.ID()))
	return nil
}
