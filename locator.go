package hotswap

import (
	"errors"
	"iter"

	"go.uber.org/zap"
)

// Locator enumerates the live contexts of a scope.
type Locator struct {
	logger    *zap.Logger
	trackable map[Scope]struct{}
}

func NewLocator(logger *zap.Logger, trackable ...Scope) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Locator{
		logger:    logger,
		trackable: make(map[Scope]struct{}, len(trackable)),
	}
	for _, s := range trackable {
		l.trackable[s] = struct{}{}
	}
	return l
}

// Trackable reports whether scope is backed by a tracked collection.
func (l *Locator) Trackable(scope Scope) bool {
	_, ok := l.trackable[scope]
	return ok
}

// Find yields the contexts of scope as they are when the sequence is ranged
// over. A single well-known context wins; a trackable scope is walked through
// its tracker, activating each instance for the duration of its yield;
// otherwise every registered context of the scope is yielded. A scope with no
// context yields nothing.
func (l *Locator) Find(src ContextSource, scope Scope) iter.Seq[Context] {
	return func(yield func(Context) bool) {
		if src == nil {
			return
		}
		if ctx, ok := src.SingleContext(scope); ok && ctx != nil {
			yield(ctx)
			return
		}
		if l.Trackable(scope) {
			if tracked, ok := src.Tracked(scope); ok && tracked != nil {
				l.walkTracked(tracked, scope, yield)
				return
			}
			l.logger.Debug("no tracker for trackable scope", zap.String("scope", string(scope)))
		}
		for _, ctx := range src.Contexts(scope) {
			if ctx == nil {
				continue
			}
			if !yield(ctx) {
				return
			}
		}
	}
}

func (l *Locator) walkTracked(tracked TrackedContexts, scope Scope, yield func(Context) bool) {
	for _, key := range tracked.Keys() {
		if !l.visitTracked(tracked, scope, key, yield) {
			return
		}
	}
}

// visitTracked activates one tracked instance and always deactivates it again,
// also when the consumer stops early or panics.
func (l *Locator) visitTracked(tracked TrackedContexts, scope Scope, key string, yield func(Context) bool) bool {
	ctx, err := tracked.Activate(key)
	if err != nil {
		if errors.Is(err, ErrNotActive) || errors.Is(err, ErrNotFound) {
			l.logger.Debug("tracked context gone", zap.String("scope", string(scope)), zap.String("key", key))
		} else {
			l.logger.Warn("tracked context activation failed",
				zap.String("scope", string(scope)), zap.String("key", key), zap.Error(err))
		}
		return true
	}
	defer func() {
		if err := tracked.Deactivate(key); err != nil {
			l.logger.Warn("tracked context deactivation failed",
				zap.String("scope", string(scope)), zap.String("key", key), zap.Error(err))
		}
	}()
	return yield(ctx)
}
