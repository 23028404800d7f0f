package hotswap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Result describes what one reconciliation did, by bean id.
type Result struct {
	Class       ClassID
	Strategy    ReloadStrategy
	Defined     []string
	Reinjected  []string
	Invalidated []string
	Skipped     []string
	Failed      []string
}

func (r *Result) record(beanID string, action Action, err error) {
	if err != nil {
		r.Failed = append(r.Failed, beanID)
		return
	}
	switch action {
	case ActionDefine:
		r.Defined = append(r.Defined, beanID)
	case ActionReinject:
		r.Reinjected = append(r.Reinjected, beanID)
	case ActionInvalidate:
		r.Invalidated = append(r.Invalidated, beanID)
	default:
		r.Skipped = append(r.Skipped, beanID)
	}
}

type change struct {
	class          Class
	strategy       ReloadStrategy
	oldFingerprint string
	newFingerprint string
}

// beanReconciler is the per-kind reconciliation of one bean.
type beanReconciler interface {
	reconcile(ctx context.Context, e *Engine, reg Registry, b *Bean, ch change) (Action, error)
}

func reconcilerFor(kind BeanKind) beanReconciler {
	switch kind {
	case KindManaged:
		return managedReconciler{}
	case KindSession:
		return sessionReconciler{}
	default:
		return unsupportedReconciler{}
	}
}

type managedReconciler struct{}

func (managedReconciler) reconcile(ctx context.Context, e *Engine, reg Registry, b *Bean, ch change) (Action, error) {
	if err := e.definer.Refresh(ctx, reg, b, ch.class); err != nil {
		return ActionSkip, err
	}
	action := e.decide(b.Scope(), ch)
	switch action {
	case ActionInvalidate:
		return action, e.invalidate(ctx, reg, b)
	case ActionReinject:
		return action, e.reinject(ctx, reg, b)
	}
	e.logger.Debug("transient bean left to expire", zap.String("bean", b.ID()), zap.String("scope", string(b.Scope())))
	return ActionSkip, nil
}

// Session beans keep their conversational state, so they are reinjected even
// when the class changed.
type sessionReconciler struct{}

func (sessionReconciler) reconcile(ctx context.Context, e *Engine, reg Registry, b *Bean, ch change) (Action, error) {
	if err := e.definer.Refresh(ctx, reg, b, ch.class); err != nil {
		return ActionSkip, err
	}
	if e.skipTransient && !b.Scope().Reinjectable() {
		return ActionSkip, nil
	}
	return ActionReinject, e.reinject(ctx, reg, b)
}

type unsupportedReconciler struct{}

func (unsupportedReconciler) reconcile(_ context.Context, _ *Engine, _ Registry, b *Bean, _ change) (Action, error) {
	return ActionSkip, fmt.Errorf("%s: %w", b, ErrUnsupportedBean)
}

// Engine reconciles the beans of a redefined class.
type Engine struct {
	logger     *zap.Logger
	comparator *Comparator
	locator    *Locator
	reinjector *Reinjector
	definer    *Definer
	classes    *ClassTable
	locks      classLocks

	skipTransient bool
}

func NewEngine(cfg Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	comparator, err := NewComparator(cfg.FingerprintCacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		logger:     logger,
		comparator: comparator,
		locator:    NewLocator(logger, cfg.trackableScopes()...),
		reinjector: NewReinjector(logger),
		definer:    NewDefiner(logger),
		classes:    NewClassTable(),

		skipTransient: cfg.SkipTransientScopes,
	}, nil
}

func (e *Engine) Comparator() *Comparator {
	return e.comparator
}

func (e *Engine) Locator() *Locator {
	return e.locator
}

func (e *Engine) Classes() *ClassTable {
	return e.classes
}

// Reconcile brings the live instances of class in reg in line with its new
// definition. Reconciliations of the same class never overlap. A failure of
// one bean or one context is logged and does not stop the others.
func (e *Engine) Reconcile(ctx context.Context, reg Registry, class Class, strategy ReloadStrategy, oldFingerprint string) Result {
	res := Result{Class: class.ID, Strategy: strategy}
	if reg == nil {
		e.logger.Error("reconcile without registry", zap.String("class", class.ID.String()))
		res.Failed = append(res.Failed, class.ID.String())
		return res
	}

	unlock := e.locks.lock(class.ID)
	defer unlock()

	if oldFingerprint == emptyString {
		oldFingerprint, _ = e.classes.Fingerprint(class.ID, strategy)
	}
	ch := change{
		class:          class,
		strategy:       strategy,
		oldFingerprint: oldFingerprint,
		newFingerprint: e.comparator.Fingerprint(class, strategy),
	}

	beans := reg.BeansForClass(class.ID)
	if len(beans) == 0 {
		e.define(ctx, reg, class, &res)
	} else {
		for _, b := range beans {
			action, err := e.reconcileBean(ctx, reg, b, ch)
			if err != nil {
				e.logFailure(b, action, err)
			}
			res.record(b.ID(), action, err)
		}
		e.logger.Debug("bean reloaded", zap.String("class", class.ID.String()), zap.Stringer("strategy", strategy))
	}

	// A failed pass keeps the old fingerprint so that a retry decides the same way.
	if len(res.Failed) == 0 {
		e.classes.Record(class.ID, strategy, ch.newFingerprint)
	}
	return res
}

func (e *Engine) decide(scope Scope, ch change) Action {
	if e.skipTransient {
		return DecideForScope(scope, ch.strategy, ch.oldFingerprint, ch.newFingerprint, true)
	}
	return Decide(ch.strategy, ch.oldFingerprint, ch.newFingerprint, true)
}

func (e *Engine) define(ctx context.Context, reg Registry, class Class, res *Result) {
	b, err := e.definer.Define(ctx, reg, class)
	switch {
	case errors.Is(err, ErrNotManagedBean):
		e.logger.Warn("bean not defined", zap.String("class", class.ID.String()), zap.Error(err))
		res.Skipped = append(res.Skipped, class.ID.String())
	case err != nil:
		e.logger.Error("bean definition failed", zap.String("class", class.ID.String()), zap.Error(err))
		res.Failed = append(res.Failed, class.ID.String())
	default:
		res.record(b.ID(), ActionDefine, nil)
	}
}

func (e *Engine) reconcileBean(ctx context.Context, reg Registry, b *Bean, ch change) (action Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return b.variant.reconcile(ctx, e, reg, b, ch)
}

func (e *Engine) logFailure(b *Bean, action Action, err error) {
	if errors.Is(err, ErrUnsupportedBean) {
		e.logger.Warn("bean reloading not implemented", zap.String("bean", b.ID()), zap.Stringer("kind", b.Kind()))
		return
	}
	e.logger.Error("bean reconciliation failed", zap.Error(ReconcileError{BeanID: b.ID(), Action: action, Err: err}))
}

// invalidate schedules b for recreation in every context of its scope.
// Contexts without deferred reload support get an in-place reinjection instead.
func (e *Engine) invalidate(ctx context.Context, reg Registry, b *Bean) error {
	return e.eachContext(reg, b, func(c Context) error {
		if AddToReloadSet(c, b) {
			e.logger.Debug("bean added to reload set", zap.String("bean", b.ID()), zap.String("context", c.ID()))
			return nil
		}
		e.logger.Debug("context cannot defer reload, reinjecting", zap.String("bean", b.ID()), zap.String("context", c.ID()))
		return e.reinjector.Reinject(ctx, reg, c, b)
	})
}

func (e *Engine) reinject(ctx context.Context, reg Registry, b *Bean) error {
	return e.eachContext(reg, b, func(c Context) error {
		return e.reinjector.Reinject(ctx, reg, c, b)
	})
}

func (e *Engine) eachContext(reg Registry, b *Bean, fn func(Context) error) error {
	var errs []error
	visited := 0
	for c := range e.locator.Find(reg, b.Scope()) {
		visited++
		if err := isolate(func() error { return fn(c) }); err != nil {
			e.logger.Warn("context failed to reload",
				zap.String("bean", b.ID()), zap.String("context", c.ID()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if visited == 0 {
		e.logger.Debug("no contexts for bean", zap.String("bean", b.ID()), zap.String("scope", string(b.Scope())))
	}
	return errors.Join(errs...)
}

func isolate(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
