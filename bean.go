package hotswap

import (
	"fmt"
	"reflect"
	"slices"
	"sync/atomic"
)

// BeanKind selects how a bean is reconciled.
type BeanKind uint8

const (
	KindManaged BeanKind = iota
	KindSession
	KindUnsupported
)

func (k BeanKind) String() string {
	switch k {
	case KindManaged:
		return "managed"
	case KindSession:
		return "session"
	default:
		return "unsupported"
	}
}

// Metadata is the structural description of a bean derived from its class.
type Metadata struct {
	Types []reflect.Type
	// Classes names the exposed classes by identity. Unlike Types it stays
	// valid when one of those classes is redefined.
	Classes    []ClassID
	Qualifiers []string
	Scope      Scope
	Name       string
	Kind       BeanKind
}

// Exposes reports whether t is one of the bean types.
func (m Metadata) Exposes(t reflect.Type) bool {
	if t == nil {
		return false
	}
	for _, exposed := range m.Types {
		if exposed == t {
			return true
		}
	}
	return false
}

// ExposesClass reports whether the class id is one of the exposed classes.
func (m Metadata) ExposesClass(id ClassID) bool {
	return slices.Contains(m.Classes, id)
}

func (m Metadata) clone() Metadata {
	m.Types = slices.Clone(m.Types)
	m.Classes = slices.Clone(m.Classes)
	m.Qualifiers = slices.Clone(m.Qualifiers)
	return m
}

// InjectionSession is the resolution state of one injection pass.
type InjectionSession interface {
	Release()
}

// Producer creates instances of a bean and injects their dependencies.
type Producer interface {
	Produce(s InjectionSession) (any, error)
	Inject(instance any, s InjectionSession) error
}

type beanState struct {
	class    Class
	metadata Metadata
	producer Producer
}

// Bean is a registered instantiation contract for a class. Its pointer is its
// identity: refreshing a bean updates the same object so that every holder
// observes the new metadata.
type Bean struct {
	id      string
	kind    BeanKind
	variant beanReconciler
	state   atomic.Pointer[beanState]
}

// NewBean creates a bean. The kind fixes the reconciliation variant for the
// lifetime of the bean.
func NewBean(id string, class Class, md Metadata, producer Producer) *Bean {
	b := &Bean{
		id:      id,
		kind:    md.Kind,
		variant: reconcilerFor(md.Kind),
	}
	b.state.Store(&beanState{class: class, metadata: md.clone(), producer: producer})
	return b
}

func (b *Bean) ID() string {
	return b.id
}

func (b *Bean) Kind() BeanKind {
	return b.kind
}

func (b *Bean) Class() Class {
	return b.state.Load().class
}

// Metadata returns a copy of the current metadata.
func (b *Bean) Metadata() Metadata {
	return b.state.Load().metadata.clone()
}

func (b *Bean) Scope() Scope {
	return b.state.Load().metadata.Scope
}

func (b *Bean) Producer() Producer {
	return b.state.Load().producer
}

func (b *Bean) String() string {
	st := b.state.Load()
	return fmt.Sprintf("%s[%s %s %s]", b.id, b.kind, st.metadata.Scope, st.class.ID)
}

// refresh swaps class, metadata and producer in one store; readers see either
// the old state or the new one.
func (b *Bean) refresh(class Class, md Metadata, producer Producer) {
	md.Kind = b.kind
	b.state.Store(&beanState{class: class, metadata: md.clone(), producer: producer})
}
