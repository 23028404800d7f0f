package container

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Station-Manager/hotswap"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Container is a bean registry with application, request, session and
// dependent scopes. It is the registry the hotswap engine reconciles: classes
// are loaded through its TypeLoader, and every live context can be visited.
type Container struct {
	loader *TypeLoader
	logger *zap.Logger

	buildLock sync.Mutex
	// Protects access to beans, byClass and instances.
	regMu sync.RWMutex
	// Indicates whether the container has been built/finalized.
	built atomic.Bool

	// beans stores all registered beans mapped by their unique lower-case identifiers.
	// This is the source of truth for all beans.
	beans   map[string]*hotswap.Bean
	byClass map[hotswap.ClassID][]*hotswap.Bean

	// instances holds literal instances registered via RegisterInstance or
	// sourced from the literal provider.
	instances map[string]any

	literalProvider atomic.Pointer[LiteralProvider]

	app      *scopedContext
	ctxMu    sync.RWMutex
	requests map[string]*Request
	sessions *sessionTracker
}

// New creates a container that loads its classes through loader.
func New(loader *TypeLoader, logger *zap.Logger) *Container {
	if loader == nil {
		loader = NewTypeLoader(applicationContextID)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{
		loader:    loader,
		logger:    logger,
		beans:     make(map[string]*hotswap.Bean),
		byClass:   make(map[hotswap.ClassID][]*hotswap.Bean),
		instances: make(map[string]any),
		requests:  make(map[string]*Request),
		sessions:  newSessionTracker(),
	}
	c.app = newScopedContext(applicationContextID, hotswap.ScopeApplication, logger)
	c.app.activate()
	return c
}

func (c *Container) Loader() *TypeLoader {
	return c.loader
}

// Register registers a bean for the class named className in the container's loader.
// The 'beanID' parameter is case-insensitive; it is matched against the
// lower-cased `di.inject` tag of the receiving bean.
//
// This method only supports registering structs and pointers to structs; simple types (e.g., string)
// must be registered as instances using RegisterInstance.
func (c *Container) Register(beanID, className string) error {
	if beanID == emptyString {
		return ErrBeanIdParamIsEmpty
	}
	if className == emptyString {
		return ErrClassNameParamIsEmpty
	}
	if c.built.Load() {
		return ErrRegistrationClosed
	}

	beanID = strings.ToLower(beanID)

	class, err := hotswap.LoadClass(c.loader, className)
	if err != nil {
		return err
	}
	if class.StructType() == nil {
		return ErrBeanTypeNotSupported
	}

	ctx := context.Background()
	md, err := c.BuildMetadata(ctx, class)
	if err != nil {
		return fmt.Errorf("bean '%s': %w", beanID, err)
	}
	p, err := c.NewProducer(ctx, class, md)
	if err != nil {
		return err
	}
	return c.AddBean(hotswap.NewBean(beanID, class, md, p))
}

// RegisterInstance registers a concrete instance under beanID.
// The instance is treated as a singleton. Struct instances are normalized to pointers.
// Instances are outside class reconciliation: redefining their type has no effect on them.
func (c *Container) RegisterInstance(beanID string, instance any) error {
	if beanID == emptyString {
		return ErrBeanIdParamIsEmpty
	}
	if instance == nil {
		return ErrBeanParamIsNil
	}
	if c.built.Load() {
		return ErrRegistrationClosed
	}

	beanID = strings.ToLower(beanID) // Enforce lower-case bean identifiers

	// Normalize struct instances to pointers for consistent type comparisons and injection behavior.
	// This ensures pointer-typed fields can be injected even if the user registered a struct value.
	if beanType := reflect.TypeOf(instance); beanType.Kind() == reflect.Struct {
		ptr := reflect.New(beanType)
		ptr.Elem().Set(reflect.ValueOf(instance))
		instance = ptr.Interface()
	}

	c.regMu.Lock()
	defer c.regMu.Unlock()
	if _, ok := c.beans[beanID]; ok {
		return fmt.Errorf("bean '%s': %w", beanID, hotswap.ErrDuplicateBean)
	}
	c.instances[beanID] = instance
	return nil
}

// Build finalizes the container by verifying all required dependencies are registered,
// instantiating application scoped beans, and injecting dependencies.
//
// If the container has already been built, this method is a no-op.
func (c *Container) Build() (err error) {
	c.buildLock.Lock()
	defer c.buildLock.Unlock()

	// Idempotent: if already built, nothing to do.
	if c.built.Load() {
		return nil
	}
	defer func() {
		// Mark as built only on successful completion.
		if err == nil {
			c.built.Store(true)
		}
	}()

	order, err := c.dependencyOrder()
	if err != nil {
		return err
	}

	// Registered instances get their tagged fields injected once.
	s := c.newSession(context.Background(), nil, nil)
	defer s.Release()
	for _, id := range c.instanceIDs() {
		instance, _ := c.instance(id)
		rv := reflect.ValueOf(instance)
		if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
			continue
		}
		if err = c.injectInto(rv.Elem(), s, id); err != nil {
			return err
		}
	}

	// Dependencies come first in order, so initializers run after the beans they depend on.
	for _, id := range order {
		b, ok := c.bean(id)
		if !ok || b.Scope() != hotswap.ScopeApplication {
			continue
		}
		if _, err = s.resolve(id, b.Class().Type); err != nil {
			return err
		}
	}
	return nil
}

// dependencyOrder checks that every required dependency is registered with a
// compatible type, and returns bean ids ordered so that dependencies precede
// their receivers.
func (c *Container) dependencyOrder() ([]string, error) {
	c.regMu.RLock()
	defer c.regMu.RUnlock()

	ids := make([]string, 0, len(c.beans))
	for id := range c.beans {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lp := c.loadLiteralProvider()
	visited := make(map[string]bool) // fully processed
	onPath := make(map[string]bool)  // nodes in the current recursion stack
	path := make([]string, 0, 16)    // ordered path for clear errors
	order := make([]string, 0, len(ids))

	var visit func(id string) error
	visit = func(id string) error {
		if onPath[id] {
			return fmt.Errorf("dependency cycle detected: %s%s%s", strings.Join(path, pathSep), pathSep, id)
		}
		if visited[id] {
			return nil
		}
		b := c.beans[id]
		onPath[id] = true
		path = append(path, id)

		for _, point := range injectionPoints(b.Class().Type) {
			var registeredType reflect.Type
			if dep, ok := c.beans[point.id]; ok {
				registeredType = dep.Class().Type
			} else if inst, ok := c.instances[point.id]; ok {
				registeredType = reflect.TypeOf(inst)
			} else if point.typ.Kind() == reflect.String && lp != nil {
				// Defer resolution to injection; skip strict precheck for this dependency.
				continue
			} else {
				return fmt.Errorf("bean `%s` is required but not registered", point.id)
			}
			if !compatible(point.typ, registeredType) {
				return fmt.Errorf("bean '%s' type mismatch: required %v, registered %v", point.id, point.typ, registeredType)
			}
			if _, ok := c.beans[point.id]; ok {
				if err := visit(point.id); err != nil {
					return err
				}
			}
		}

		onPath[id] = false
		path = path[:len(path)-1]
		visited[id] = true
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func compatible(requiredType, registeredType reflect.Type) bool {
	switch requiredType.Kind() {
	case reflect.Ptr:
		// Require pointer to struct of exactly the same underlying type
		return registeredType.Kind() == reflect.Ptr && registeredType.Elem() == requiredType.Elem()
	case reflect.Interface:
		// allow concrete (typically pointer-to-struct) that implements the interface
		return registeredType.Implements(requiredType)
	default:
		// Simple types (e.g., string) must match exactly
		return registeredType == requiredType
	}
}

// Resolve returns a bean instance by its ID or panics if it cannot be resolved.
// Prefer ResolveSafe in production code to handle errors gracefully.
func (c *Container) Resolve(beanID string) any {
	v, err := c.ResolveSafe(beanID)
	if err != nil {
		panic(err)
	}
	return v
}

// ResolveSafe returns a bean instance by its ID.
// It ensures the container is built before resolving and returns an error on failure.
// Request and session scoped beans can only be resolved through a Request.
func (c *Container) ResolveSafe(beanID string) (any, error) {
	return c.resolveIn(beanID, nil, nil)
}

func (c *Container) resolveIn(beanID string, request, sess *scopedContext) (any, error) {
	if beanID == emptyString {
		return nil, ErrBeanIdParamIsEmpty
	}

	// Ensure the container is built before resolving.
	if !c.built.Load() {
		if err := c.Build(); err != nil {
			return nil, err
		}
	}

	s := c.newSession(context.Background(), request, sess)
	defer s.Release()
	return s.resolve(beanID, nil)
}

// Resolver resolves beans by id.
type Resolver interface {
	ResolveSafe(beanID string) (any, error)
}

// ResolveAs returns a bean instance by its ID and casts it to type T.
// It ensures the container is built before resolving and returns an error on failure.
func ResolveAs[T any](r Resolver, beanID string) (T, error) {
	v, err := r.ResolveSafe(beanID)
	if err != nil {
		var zero T
		return zero, err
	}
	x, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("bean '%s' is not of requested type", beanID)
	}
	return x, nil
}

func (c *Container) bean(id string) (*hotswap.Bean, bool) {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	b, ok := c.beans[id]
	return b, ok
}

func (c *Container) instance(id string) (any, bool) {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	v, ok := c.instances[id]
	return v, ok
}

func (c *Container) storeInstance(id string, v any) {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	if _, ok := c.instances[id]; !ok {
		c.instances[id] = v
	}
}

func (c *Container) instanceIDs() []string {
	c.regMu.RLock()
	ids := make([]string, 0, len(c.instances))
	for id := range c.instances {
		ids = append(ids, id)
	}
	c.regMu.RUnlock()
	sort.Strings(ids)
	return ids
}

// instanceOf returns the contextual instance of b, creating it when the
// context holds none. Dependent beans get a new instance every time.
func (c *Container) instanceOf(s *session, b *hotswap.Bean) (any, error) {
	produce := func() (any, error) {
		return b.Producer().Produce(s)
	}
	if b.Scope() == hotswap.ScopeDependent {
		return produce()
	}
	ctx, err := s.contextFor(b.Scope())
	if err != nil {
		return nil, fmt.Errorf("bean '%s': %w", b.ID(), err)
	}
	return ctx.getOrCreate(b, produce)
}

// OpenSession starts a new session and returns its id. The session context is
// active only while a request bound to it is in progress.
func (c *Container) OpenSession() string {
	id := sessionContextPrefix + uuid.NewString()
	c.sessions.add(id, newScopedContext(id, hotswap.ScopeSession, c.logger))
	c.logger.Debug("session opened", zap.String("session", id))
	return id
}

// CloseSession ends the session and disposes its instances.
func (c *Container) CloseSession(id string) error {
	ctx, ok := c.sessions.remove(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	ctx.destroy()
	c.logger.Debug("session closed", zap.String("session", id))
	return nil
}

// Request is one unit of work. It activates its own request context and, when
// bound to a session, that session's context until End is called.
type Request struct {
	c       *Container
	ctx     *scopedContext
	session *scopedContext
	ended   atomic.Bool
}

// BeginRequest starts a request bound to sessionID, or to no session when
// sessionID is empty.
func (c *Container) BeginRequest(sessionID string) (*Request, error) {
	if !c.built.Load() {
		if err := c.Build(); err != nil {
			return nil, err
		}
	}
	r := &Request{c: c}
	if sessionID != emptyString {
		sess, ok := c.sessions.get(sessionID)
		if !ok || sess.destroyed.Load() {
			return nil, fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
		}
		sess.activate()
		r.session = sess
	}
	id := requestContextPrefix + uuid.NewString()
	r.ctx = newScopedContext(id, hotswap.ScopeRequest, c.logger)
	r.ctx.activate()

	c.ctxMu.Lock()
	c.requests[id] = r
	c.ctxMu.Unlock()
	return r, nil
}

func (r *Request) ID() string {
	return r.ctx.id
}

func (r *Request) Resolve(beanID string) any {
	v, err := r.ResolveSafe(beanID)
	if err != nil {
		panic(err)
	}
	return v
}

func (r *Request) ResolveSafe(beanID string) (any, error) {
	if r.ended.Load() {
		return nil, ErrRequestEnded
	}
	return r.c.resolveIn(beanID, r.ctx, r.session)
}

// End deactivates the request and its session binding and disposes the
// request's instances.
func (r *Request) End() {
	if r.ended.Swap(true) {
		return
	}
	r.c.ctxMu.Lock()
	delete(r.c.requests, r.ctx.id)
	r.c.ctxMu.Unlock()

	r.ctx.deactivate()
	r.ctx.destroy()
	if r.session != nil {
		r.session.deactivate()
	}
}

// SingleContext returns the application context.
func (c *Container) SingleContext(scope hotswap.Scope) (hotswap.Context, bool) {
	if scope == hotswap.ScopeApplication {
		return c.app, true
	}
	return nil, false
}

func (c *Container) Contexts(scope hotswap.Scope) []hotswap.Context {
	switch scope {
	case hotswap.ScopeApplication:
		return []hotswap.Context{c.app}
	case hotswap.ScopeRequest:
		c.ctxMu.RLock()
		out := make([]hotswap.Context, 0, len(c.requests))
		for _, r := range c.requests {
			out = append(out, r.ctx)
		}
		c.ctxMu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
		return out
	case hotswap.ScopeSession:
		return c.sessions.contexts()
	default:
		return nil
	}
}

func (c *Container) Tracked(scope hotswap.Scope) (hotswap.TrackedContexts, bool) {
	if scope == hotswap.ScopeSession {
		return c.sessions, true
	}
	return nil, false
}

func (c *Container) BeansForClass(id hotswap.ClassID) []*hotswap.Bean {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	return slices.Clone(c.byClass[id])
}

// AddBean registers b. Beans may be added after Build; the engine does so
// when a redefinition introduces a new class.
func (c *Container) AddBean(b *hotswap.Bean) error {
	if b == nil {
		return ErrBeanParamIsNil
	}
	c.regMu.Lock()
	defer c.regMu.Unlock()
	if _, ok := c.beans[b.ID()]; ok {
		return fmt.Errorf("bean '%s': %w", b.ID(), hotswap.ErrDuplicateBean)
	}
	if _, ok := c.instances[b.ID()]; ok {
		return fmt.Errorf("bean '%s': %w", b.ID(), hotswap.ErrDuplicateBean)
	}
	c.beans[b.ID()] = b
	classID := b.Class().ID
	c.byClass[classID] = append(c.byClass[classID], b)
	return nil
}

// BuildMetadata reads bean metadata from the tags of blank fields:
//
//	type Cart struct {
//		_ struct{} `di.scope:"session" di.expose:"CartView"`
//	}
//
// Exposed interface names are loaded through the loader bound to ctx, falling
// back to the container's own loader.
func (c *Container) BuildMetadata(ctx context.Context, class hotswap.Class) (hotswap.Metadata, error) {
	st := class.StructType()
	if st == nil {
		return hotswap.Metadata{}, fmt.Errorf("%s: %w", class.ID, ErrBeanTypeNotSupported)
	}
	ptrType := reflect.PointerTo(st)
	md := hotswap.Metadata{
		Types: []reflect.Type{ptrType},
		Scope: hotswap.ScopeApplication,
		Kind:  hotswap.KindManaged,
	}

	var loader hotswap.ClassLoader = c.loader
	if l, ok := hotswap.LoaderFromContext(ctx); ok {
		loader = l
	}

	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if field.Name != blankField {
			continue
		}
		if v, ok := field.Tag.Lookup(string(scopeTag)); ok {
			md.Scope = hotswap.Scope(strings.ToLower(v))
		}
		if v, ok := field.Tag.Lookup(string(nameTag)); ok {
			md.Name = v
		}
		if v, ok := field.Tag.Lookup(string(qualifierTag)); ok {
			md.Qualifiers = append(md.Qualifiers, splitList(v)...)
		}
		if v, ok := field.Tag.Lookup(string(kindTag)); ok {
			switch strings.ToLower(v) {
			case emptyString, "managed":
				md.Kind = hotswap.KindManaged
			case kindSession:
				md.Kind = hotswap.KindSession
			default:
				md.Kind = hotswap.KindUnsupported
			}
		}
		if v, ok := field.Tag.Lookup(string(exposeTag)); ok {
			for _, name := range splitList(v) {
				t, err := loader.LoadClass(name)
				if err != nil {
					return hotswap.Metadata{}, err
				}
				if t.Kind() != reflect.Interface || !ptrType.Implements(t) {
					return hotswap.Metadata{}, fmt.Errorf("%s does not implement exposed type %s: %w", class.ID, name, ErrBeanTypeNotSupported)
				}
				md.Types = append(md.Types, t)
				md.Classes = append(md.Classes, hotswap.ClassID{Loader: loader.Name(), Name: name})
			}
		}
	}

	switch md.Scope {
	case hotswap.ScopeApplication, hotswap.ScopeRequest, hotswap.ScopeSession, hotswap.ScopeDependent:
	default:
		return hotswap.Metadata{}, fmt.Errorf("%s: scope '%s': %w", class.ID, md.Scope, ErrScopeNotSupported)
	}
	return md, nil
}

func splitList(v string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != emptyString {
			out = append(out, part)
		}
	}
	return out
}

func (c *Container) NewProducer(_ context.Context, class hotswap.Class, _ hotswap.Metadata) (hotswap.Producer, error) {
	if class.StructType() == nil {
		return nil, fmt.Errorf("%s: %w", class.ID, ErrBeanTypeNotSupported)
	}
	return &producer{c: c, class: class}, nil
}

// NewInjectionSession returns a session for reinjecting b. Request and session
// scoped dependencies resolve against the context bound with
// hotswap.WithActiveContext.
func (c *Container) NewInjectionSession(ctx context.Context, b *hotswap.Bean) hotswap.InjectionSession {
	s := c.newSession(ctx, nil, nil)
	if active, ok := hotswap.ActiveContextFrom(ctx); ok {
		if sc, ok := active.(*scopedContext); ok {
			switch sc.scope {
			case hotswap.ScopeRequest:
				s.request = sc
				c.ctxMu.RLock()
				if r, ok := c.requests[sc.id]; ok {
					s.sessions = r.session
				}
				c.ctxMu.RUnlock()
			case hotswap.ScopeSession:
				s.sessions = sc
			}
		}
	}
	if b != nil {
		s.chain = append(s.chain, b.ID())
	}
	return s
}
