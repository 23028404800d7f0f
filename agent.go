package hotswap

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ReloadRequest describes one class-change event.
type ReloadRequest struct {
	// Loader becomes the active loader while the class is reconciled.
	Loader         ClassLoader
	ClassName      string
	OldFingerprint string
	Strategy       string
	ArchivePath    string
}

// ProxyRequest asks for regeneration of the proxies exposing a redefined class.
type ProxyRequest struct {
	Loader       ClassLoader
	ArchivePath  string
	Proxies      *ProxyTable
	ClassName    string
	OldSignature string
}

// ArchiveDescriptor describes a deployment archive at boot time.
type ArchiveDescriptor struct {
	ID            string
	DescriptorURL string
	Registry      Registry
	Excludes      []string
}

// Agent is the entry point used by the class-change delivery mechanism.
// None of its entry points return errors: failures are logged and the
// container is left as it was.
type Agent struct {
	cfg      Config
	logger   *zap.Logger
	engine   *Engine
	archives *ArchiveRegistry

	running   atomic.Int32
	announced atomic.Bool

	mu        sync.RWMutex
	listeners []func(*ArchiveRegistration)
	loaders   map[string]ClassLoader
}

func NewAgent(cfg Config, logger *zap.Logger) (*Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine, err := NewEngine(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Agent{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		archives: NewArchiveRegistry(),
		loaders:  make(map[string]ClassLoader),
	}, nil
}

func (a *Agent) Engine() *Engine {
	return a.engine
}

func (a *Agent) Archives() *ArchiveRegistry {
	return a.archives
}

// InProgress reports whether a reload is running or has been announced.
func (a *Agent) InProgress() bool {
	return a.announced.Load() || a.running.Load() > 0
}

// MarkInProgress announces a reload that will be delivered asynchronously.
// The announcement is taken over by the next ReloadBean.
func (a *Agent) MarkInProgress() {
	a.announced.Store(true)
}

// OnArchiveRegistered adds a listener called once per newly registered archive.
func (a *Agent) OnArchiveRegistered(fn func(*ArchiveRegistration)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// RegisterArchive registers an archive so that change events for its path can
// be routed to its registry. It reports whether the archive was registered by
// this call. Archives without a descriptor location, of an unaccepted kind, or
// with a path that is already registered are ignored.
func (a *Agent) RegisterArchive(loader ClassLoader, desc ArchiveDescriptor, kind string) (registered bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("register archive panicked", zap.String("archive", desc.ID), zap.Any("panic", r))
			registered = false
		}
	}()

	archiveKind := ArchiveKind(strings.ToUpper(kind))
	if desc.DescriptorURL == emptyString || !a.cfg.acceptsArchiveKind(archiveKind) {
		a.logger.Debug("archive not registered", zap.String("archive", desc.ID), zap.String("kind", kind))
		return false
	}
	path, ok := ArchivePath(desc.DescriptorURL, a.cfg.descriptorRules())
	if !ok {
		a.logger.Warn("unable to watch archive", zap.String("archive", desc.ID), zap.String("descriptor", desc.DescriptorURL))
		return false
	}
	if desc.Registry == nil {
		a.logger.Error("archive has no registry", zap.String("archive", desc.ID), zap.String("path", path))
		return false
	}

	reg := &ArchiveRegistration{
		Path:     path,
		ID:       desc.ID,
		Kind:     archiveKind,
		Registry: desc.Registry,
		Loader:   loader,
		Excludes: append([]string(nil), desc.Excludes...),
	}
	if !a.archives.Register(reg) {
		a.logger.Debug("archive already registered", zap.String("archive", desc.ID), zap.String("path", path))
		return false
	}
	a.logger.Debug("archive registered", zap.String("archive", desc.ID), zap.String("path", path))

	a.mu.Lock()
	if loader != nil {
		a.loaders[loader.Name()] = loader
	}
	listeners := append(([]func(*ArchiveRegistration))(nil), a.listeners...)
	a.mu.Unlock()
	for _, fn := range listeners {
		if err := isolate(func() error { fn(reg); return nil }); err != nil {
			a.logger.Error("archive listener failed", zap.String("archive", desc.ID), zap.String("path", path), zap.Error(err))
		}
	}
	return true
}

// ReloadBean reconciles the beans of a redefined class. InProgress reports
// true until the last concurrent ReloadBean returns, on every exit path.
func (a *Agent) ReloadBean(ctx context.Context, req ReloadRequest) (res Result) {
	a.running.Add(1)
	a.announced.Store(false)
	defer a.running.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("reload bean panicked", zap.String("class", req.ClassName), zap.Any("panic", r))
		}
	}()

	arch, ok := a.archives.Resolve(req.ArchivePath)
	if !ok {
		a.logger.Error("archive path is not associated with any registry",
			zap.String("path", req.ArchivePath), zap.Error(ErrArchiveNotFound))
		return res
	}
	if arch.Excluded(req.ClassName) {
		a.logger.Debug("class excluded from reloading", zap.String("class", req.ClassName), zap.String("path", arch.Path))
		return res
	}

	strategy := a.strategy(req.Strategy)
	class, err := LoadClass(a.classLoader(arch, req.Loader), req.ClassName)
	if err != nil {
		a.logger.Error("bean class not found", zap.String("class", req.ClassName), zap.Error(err))
		return res
	}

	if req.Loader != nil {
		ctx = WithLoader(ctx, req.Loader)
	}
	return a.engine.Reconcile(ctx, arch.Registry, class, strategy, req.OldFingerprint)
}

// RecreateProxy regenerates the proxies of every registered bean exposing the
// redefined class, provided its proxy signature changed. It returns the number
// of regenerated proxies.
func (a *Agent) RecreateProxy(ctx context.Context, req ProxyRequest) (regenerated int) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("recreate proxy panicked", zap.String("class", req.ClassName), zap.Any("panic", r))
		}
	}()

	arch, ok := a.archives.Resolve(req.ArchivePath)
	if !ok {
		a.logger.Error("archive path is not associated with any registry",
			zap.String("path", req.ArchivePath), zap.Error(ErrArchiveNotFound))
		return 0
	}
	class, err := LoadClass(a.classLoader(arch, req.Loader), req.ClassName)
	if err != nil {
		a.logger.Error("proxy class not found", zap.String("class", req.ClassName), zap.Error(err))
		return 0
	}
	if req.OldSignature == emptyString || req.Proxies == nil {
		return 0
	}
	signature := a.engine.comparator.ProxyFingerprint(class)
	if signature == emptyString || signature == req.OldSignature {
		return 0
	}

	req.Proxies.each(func(b *Bean, f ProxyFactory) {
		if f == nil || !exposesClass(b, class.ID) {
			return
		}
		beanCtx := ctx
		if loader := a.loaderNamed(b.Class().ID.Loader, req.Loader); loader != nil {
			beanCtx = WithLoader(ctx, loader)
		}
		a.logger.Info("recreate proxy class", zap.String("class", class.ID.String()), zap.String("bean", b.ID()))
		if err := isolate(func() error { return f.RegenerateProxy(beanCtx, class) }); err != nil {
			a.logger.Error("proxy regeneration failed", zap.String("bean", b.ID()), zap.Error(err))
			return
		}
		regenerated++
	})
	return regenerated
}

// exposesClass matches by class identity; the Go type changes on every redefinition.
func exposesClass(b *Bean, id ClassID) bool {
	return b.Class().ID == id || b.Metadata().ExposesClass(id)
}

func (a *Agent) strategy(name string) ReloadStrategy {
	if name == emptyString {
		return a.cfg.DefaultStrategy()
	}
	s, ok := LookupReloadStrategy(name)
	if !ok {
		a.logger.Warn("unknown reload strategy, using NEVER", zap.String("strategy", name))
	}
	return s
}

// classLoader prefers the loader of the archive: it can differ from the
// application loader for nested deployments.
func (a *Agent) classLoader(arch *ArchiveRegistration, fallback ClassLoader) ClassLoader {
	if arch.Loader != nil {
		return arch.Loader
	}
	return fallback
}

func (a *Agent) loaderNamed(name string, fallback ClassLoader) ClassLoader {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if l, ok := a.loaders[name]; ok {
		return l
	}
	return fallback
}
