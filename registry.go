package hotswap

import "context"

// Context holds the live instances of one lifetime scope. Contexts belong to
// the container; the engine only reads them and marks pending work.
type Context interface {
	ID() string
	Scope() Scope
	Active() bool
	// Get returns the existing instance of b without creating one.
	// It fails with ErrNotActive when the context has expired.
	Get(b *Bean) (instance any, ok bool, err error)
}

// Reloadable is implemented by contexts that support deferred invalidation.
type Reloadable interface {
	// AddToReloadSet schedules b for recreation on next access and reports
	// whether the context accepted it.
	AddToReloadSet(b *Bean) bool
}

// TrackedContexts is a collection of concurrently live context instances of
// one scope, such as one context per session. Each instance is visited by
// activating it, reading it, and deactivating it again.
type TrackedContexts interface {
	Keys() []string
	Activate(key string) (Context, error)
	Deactivate(key string) error
}

// ContextSource exposes the live contexts of a container.
type ContextSource interface {
	// SingleContext returns the one well-known context of a scope, if the
	// container has exactly one.
	SingleContext(scope Scope) (Context, bool)
	Contexts(scope Scope) []Context
	Tracked(scope Scope) (TrackedContexts, bool)
}

// SessionFactory creates injection sessions for reinjection passes.
type SessionFactory interface {
	NewInjectionSession(ctx context.Context, b *Bean) InjectionSession
}

// Registry is the bean registry of one archive.
type Registry interface {
	ContextSource
	SessionFactory
	BeansForClass(id ClassID) []*Bean
	AddBean(b *Bean) error
	BuildMetadata(ctx context.Context, class Class) (Metadata, error)
	NewProducer(ctx context.Context, class Class, md Metadata) (Producer, error)
}
