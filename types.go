package hotswap

import (
	"context"
	"reflect"
	"strings"
)

// ReloadStrategy governs which fingerprint comparison turns a redefinition
// into an invalidation instead of an in-place reinjection.
type ReloadStrategy uint8

const (
	StrategyNever ReloadStrategy = iota
	StrategyClassChange
	StrategyMethodFieldSignatureChange
	StrategyFieldSignatureChange
)

var strategyNames = [...]string{
	StrategyNever:                      "NEVER",
	StrategyClassChange:                "CLASS_CHANGE",
	StrategyMethodFieldSignatureChange: "METHOD_FIELD_SIGNATURE_CHANGE",
	StrategyFieldSignatureChange:       "FIELD_SIGNATURE_CHANGE",
}

func (s ReloadStrategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return "UNKNOWN"
}

// SignatureBased reports whether the strategy compares fingerprints.
func (s ReloadStrategy) SignatureBased() bool {
	return s == StrategyMethodFieldSignatureChange || s == StrategyFieldSignatureChange
}

// LookupReloadStrategy resolves a strategy by its name, case-insensitively.
func LookupReloadStrategy(name string) (ReloadStrategy, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range strategyNames {
		if n == name {
			return ReloadStrategy(i), true
		}
	}
	return StrategyNever, false
}

// ParseReloadStrategy resolves a strategy by its name. Unknown names fall back to NEVER.
func ParseReloadStrategy(name string) ReloadStrategy {
	s, _ := LookupReloadStrategy(name)
	return s
}

// Action is the reconciliation outcome for one bean.
type Action uint8

const (
	ActionSkip Action = iota
	ActionReinject
	ActionInvalidate
	ActionDefine
)

func (a Action) String() string {
	switch a {
	case ActionReinject:
		return "REINJECT"
	case ActionInvalidate:
		return "INVALIDATE"
	case ActionDefine:
		return "DEFINE"
	default:
		return "SKIP"
	}
}

// Scope names the lifetime of a bean's instances.
type Scope string

const (
	ScopeApplication Scope = "application"
	ScopeRequest     Scope = "request"
	ScopeSession     Scope = "session"
	ScopeDependent   Scope = "dependent"
)

// Reinjectable reports whether live instances of the scope are worth reconciling.
// Request and dependent instances are transient and get replaced naturally.
func (s Scope) Reinjectable() bool {
	return s != ScopeRequest && s != ScopeDependent
}

// ClassID identifies a class: its name within the loader that defined it.
type ClassID struct {
	Loader string `json:"loader" yaml:"loader"`
	Name   string `json:"name" yaml:"name"`
}

func (id ClassID) String() string {
	return id.Loader + ":" + id.Name
}

// Class is the current definition of a managed class.
type Class struct {
	ID   ClassID
	Type reflect.Type
}

// StructType returns the struct type behind the class, or nil when it has none.
func (c Class) StructType() reflect.Type {
	t := c.Type
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

// ClassLoader resolves class names to their current definitions.
type ClassLoader interface {
	Name() string
	LoadClass(name string) (reflect.Type, error)
}

// LoadClass loads name through loader and wraps the result as a Class.
func LoadClass(loader ClassLoader, name string) (Class, error) {
	if loader == nil {
		return Class{}, ClassNotFoundError{Name: name}
	}
	t, err := loader.LoadClass(name)
	if err != nil {
		return Class{}, err
	}
	if t == nil {
		return Class{}, ClassNotFoundError{Loader: loader.Name(), Name: name}
	}
	return Class{ID: ClassID{Loader: loader.Name(), Name: name}, Type: t}, nil
}

type loaderContextKey struct{}

// WithLoader binds loader as the active class loader for work done under ctx.
func WithLoader(ctx context.Context, loader ClassLoader) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loaderContextKey{}, loader)
}

// LoaderFromContext returns the active class loader bound to ctx, if any.
func LoaderFromContext(ctx context.Context) (ClassLoader, bool) {
	if ctx == nil {
		return nil, false
	}
	l, ok := ctx.Value(loaderContextKey{}).(ClassLoader)
	return l, ok && l != nil
}

type activeContextKey struct{}

// WithActiveContext binds c as the context an injection pass runs in, so that
// dependencies of the same scope resolve against it.
func WithActiveContext(ctx context.Context, c Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, activeContextKey{}, c)
}

// ActiveContextFrom returns the context bound by WithActiveContext, if any.
func ActiveContextFrom(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(activeContextKey{}).(Context)
	return c, ok && c != nil
}
