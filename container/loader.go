package container

import (
	"reflect"
	"sync"

	"github.com/Station-Manager/hotswap"
)

// TypeLoader is a class loader over Go types. Defining a class name again
// redefines the class: later loads return the new type.
type TypeLoader struct {
	name     string
	mu       sync.RWMutex
	types    map[string]reflect.Type
	versions map[string]int
}

func NewTypeLoader(name string) *TypeLoader {
	return &TypeLoader{
		name:     name,
		types:    make(map[string]reflect.Type),
		versions: make(map[string]int),
	}
}

func (l *TypeLoader) Name() string {
	return l.name
}

// Define (re)defines className as t. Struct types are normalized to
// pointer-to-struct; interface types are kept as they are.
func (l *TypeLoader) Define(className string, t reflect.Type) error {
	if className == emptyString {
		return ErrClassNameParamIsEmpty
	}
	if t == nil {
		return ErrBeanTypeParamIsNil
	}
	switch t.Kind() {
	case reflect.Struct:
		t = reflect.PointerTo(t)
	case reflect.Ptr:
		if t.Elem().Kind() != reflect.Struct {
			return ErrBeanTypeNotSupported
		}
	case reflect.Interface:
	default:
		return ErrBeanTypeNotSupported
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.types[className] = t
	l.versions[className]++
	return nil
}

func (l *TypeLoader) LoadClass(className string) (reflect.Type, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.types[className]
	if !ok {
		return nil, hotswap.ClassNotFoundError{Loader: l.name, Name: className}
	}
	return t, nil
}

// Version returns how many times className has been defined.
func (l *TypeLoader) Version(className string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.versions[className]
}
