package container

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Station-Manager/hotswap"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// scopedContext stores the live instances of one scope instance. It is active
// while its activation count is positive. Beans added to its reload set are
// evicted the next time the context is accessed.
type scopedContext struct {
	id          string
	scope       hotswap.Scope
	logger      *zap.Logger
	activations atomic.Int32
	destroyed   atomic.Bool

	mu      sync.RWMutex
	store   map[*hotswap.Bean]any
	reloads hotswap.ReloadSet
	sf      singleflight.Group
}

func newScopedContext(id string, s hotswap.Scope, logger *zap.Logger) *scopedContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &scopedContext{
		id:     id,
		scope:  s,
		logger: logger,
		store:  make(map[*hotswap.Bean]any),
	}
}

func (c *scopedContext) ID() string {
	return c.id
}

func (c *scopedContext) Scope() hotswap.Scope {
	return c.scope
}

func (c *scopedContext) Active() bool {
	return !c.destroyed.Load() && c.activations.Load() > 0
}

func (c *scopedContext) activate() {
	c.activations.Add(1)
}

func (c *scopedContext) deactivate() {
	c.activations.Add(-1)
}

// Get returns the existing instance of b after draining pending reloads.
func (c *scopedContext) Get(b *hotswap.Bean) (any, bool, error) {
	if !c.Active() {
		return nil, false, fmt.Errorf("%s: %w", c.id, hotswap.ErrNotActive)
	}
	c.drain()
	c.mu.RLock()
	defer c.mu.RUnlock()
	instance, ok := c.store[b]
	return instance, ok, nil
}

func (c *scopedContext) AddToReloadSet(b *hotswap.Bean) bool {
	if c.destroyed.Load() {
		return false
	}
	if c.reloads.Add(b) {
		c.logger.Debug("bean scheduled for reload", zap.String("context", c.id), zap.String("bean", b.ID()))
	}
	return true
}

// getOrCreate returns the instance of b, creating it once even under
// concurrent access.
func (c *scopedContext) getOrCreate(b *hotswap.Bean, create func() (any, error)) (any, error) {
	instance, ok, err := c.Get(b)
	if err != nil {
		return nil, err
	}
	if ok {
		return instance, nil
	}
	v, err, _ := c.sf.Do(b.ID(), func() (any, error) {
		c.mu.RLock()
		cached, ok := c.store[b]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
		created, err := create()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.store[b] = created
		c.mu.Unlock()
		return created, nil
	})
	return v, err
}

// drain evicts every bean pending reload so that the next lookup recreates it.
func (c *scopedContext) drain() {
	pending := c.reloads.Drain()
	if len(pending) == 0 {
		return
	}
	evicted := make([]any, 0, len(pending))
	c.mu.Lock()
	for _, b := range pending {
		if instance, ok := c.store[b]; ok {
			delete(c.store, b)
			evicted = append(evicted, instance)
		}
	}
	c.mu.Unlock()
	for _, instance := range evicted {
		dispose(instance, c.logger)
	}
	c.logger.Debug("reload set drained", zap.String("context", c.id), zap.Int("beans", len(pending)), zap.Int("evicted", len(evicted)))
}

// destroy marks the context as ended and disposes every instance it holds.
func (c *scopedContext) destroy() {
	if c.destroyed.Swap(true) {
		return
	}
	c.reloads.Drain()
	c.mu.Lock()
	instances := make([]any, 0, len(c.store))
	for _, instance := range c.store {
		instances = append(instances, instance)
	}
	c.store = make(map[*hotswap.Bean]any)
	c.mu.Unlock()
	for _, instance := range instances {
		dispose(instance, c.logger)
	}
}

// sessionTracker tracks the session contexts of a container. It lets the
// reconciliation engine visit every live session one at a time.
type sessionTracker struct {
	mu       sync.RWMutex
	sessions map[string]*scopedContext
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{sessions: make(map[string]*scopedContext)}
}

func (t *sessionTracker) add(id string, ctx *scopedContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[id] = ctx
}

func (t *sessionTracker) remove(id string) (*scopedContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx, ok := t.sessions[id]
	delete(t.sessions, id)
	return ctx, ok
}

func (t *sessionTracker) get(id string) (*scopedContext, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ctx, ok := t.sessions[id]
	return ctx, ok
}

func (t *sessionTracker) contexts() []hotswap.Context {
	keys := t.Keys()
	out := make([]hotswap.Context, 0, len(keys))
	for _, key := range keys {
		if ctx, ok := t.get(key); ok {
			out = append(out, ctx)
		}
	}
	return out
}

func (t *sessionTracker) Keys() []string {
	t.mu.RLock()
	keys := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		keys = append(keys, id)
	}
	t.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (t *sessionTracker) Activate(key string) (hotswap.Context, error) {
	ctx, ok := t.get(key)
	if !ok || ctx.destroyed.Load() {
		return nil, fmt.Errorf("session %s: %w", key, hotswap.ErrNotFound)
	}
	ctx.activate()
	return ctx, nil
}

func (t *sessionTracker) Deactivate(key string) error {
	ctx, ok := t.get(key)
	if !ok {
		return fmt.Errorf("session %s: %w", key, hotswap.ErrNotFound)
	}
	ctx.deactivate()
	return nil
}
