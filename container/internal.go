package container

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/Station-Manager/hotswap"
	"go.uber.org/zap"
)

type injectionPoint struct {
	index int
	id    string
	typ   reflect.Type
}

// injectionPoints analyzes the provided type for fields tagged with `di.inject`.
// Only exported fields are considered, otherwise it requires the use of unsafe pointers.
// Handles pointer-to-struct, string and interface fields; other kinds are ignored.
func injectionPoints(beanType reflect.Type) []injectionPoint {
	if beanType.Kind() == reflect.Ptr {
		beanType = beanType.Elem()
	}
	if beanType.Kind() != reflect.Struct {
		return nil
	}

	points := make([]injectionPoint, 0)
	for i := 0; i < beanType.NumField(); i++ {
		field := beanType.Field(i)
		tagName, exists := field.Tag.Lookup(string(inject))
		if !exists || !field.IsExported() {
			continue
		}
		tagName = strings.ToLower(tagName) // Enforce lower-case tag names

		switch {
		case field.Type.Kind() == reflect.Ptr && field.Type.Elem().Kind() == reflect.Struct,
			field.Type.Kind() == reflect.String,
			field.Type.Kind() == reflect.Interface:
			points = append(points, injectionPoint{index: i, id: tagName, typ: field.Type})
		}
	}
	return points
}

// session is the resolution state of one injection pass: the contexts bound
// for request and session scoped dependencies, and the chain of bean ids being
// resolved for cycle detection.
type session struct {
	c        *Container
	ctx      context.Context
	request  *scopedContext
	sessions *scopedContext
	chain    []string
}

func (c *Container) newSession(ctx context.Context, request, sess *scopedContext) *session {
	if ctx == nil {
		ctx = context.Background()
	}
	return &session{c: c, ctx: ctx, request: request, sessions: sess}
}

func (s *session) Release() {
	s.chain = nil
}

func (s *session) contextFor(sc hotswap.Scope) (*scopedContext, error) {
	var ctx *scopedContext
	switch sc {
	case hotswap.ScopeApplication:
		ctx = s.c.app
	case hotswap.ScopeRequest:
		ctx = s.request
	case hotswap.ScopeSession:
		ctx = s.sessions
	default:
		return nil, fmt.Errorf("scope '%s': %w", sc, ErrScopeNotSupported)
	}
	if ctx == nil {
		return nil, fmt.Errorf("no %s context: %w", sc, hotswap.ErrNotActive)
	}
	return ctx, nil
}

// resolve returns the dependency registered under id. Beans take precedence
// over registered instances; the literal provider is the last resort for
// string dependencies.
func (s *session) resolve(id string, targetType reflect.Type) (any, error) {
	id = strings.ToLower(id)
	for _, seen := range s.chain {
		if seen == id {
			return nil, fmt.Errorf("dependency cycle detected: %s%s%s", strings.Join(s.chain, pathSep), pathSep, id)
		}
	}

	if b, ok := s.c.bean(id); ok {
		s.chain = append(s.chain, id)
		defer func() { s.chain = s.chain[:len(s.chain)-1] }()
		return s.c.instanceOf(s, b)
	}
	if v, ok := s.c.instance(id); ok {
		return v, nil
	}
	if targetType != nil && targetType.Kind() == reflect.String {
		if lp := s.c.loadLiteralProvider(); lp != nil {
			val, found, err := lp(id, targetType)
			if err != nil {
				return nil, fmt.Errorf("literal provider error for '%s': %w", id, err)
			}
			if found {
				// Cache the literal so later injections see the same value.
				s.c.storeInstance(id, val)
				return val, nil
			}
		}
	}
	return nil, fmt.Errorf("dependency bean '%s' not found", id)
}

// producer creates and injects instances of one class.
type producer struct {
	c     *Container
	class hotswap.Class
}

func (p *producer) Produce(is hotswap.InjectionSession) (any, error) {
	s, ok := is.(*session)
	if !ok {
		return nil, ErrForeignSession
	}
	structType := p.class.StructType()
	if structType == nil {
		return nil, fmt.Errorf("produce %s: %w", p.class.ID, ErrBeanTypeNotSupported)
	}
	instance := reflect.New(structType).Interface()
	if err := p.inject(instance, s); err != nil {
		return nil, err
	}
	if initr, ok := instance.(Initializer); ok {
		if err := initr.Initialize(); err != nil {
			return nil, fmt.Errorf("initializer for class '%s' failed: %w", p.class.ID, err)
		}
	}
	return instance, nil
}

func (p *producer) Inject(instance any, is hotswap.InjectionSession) error {
	s, ok := is.(*session)
	if !ok {
		return ErrForeignSession
	}
	return p.inject(instance, s)
}

// inject resolves the injection points of the instance's own type, which is
// the old type for instances created before a redefinition.
func (p *producer) inject(instance any, s *session) error {
	rv := reflect.ValueOf(instance)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("inject: receiver of class '%s' is not a pointer to struct", p.class.ID)
	}
	return s.c.injectInto(rv.Elem(), s, p.class.ID.String())
}

func (c *Container) injectInto(rv reflect.Value, s *session, receiver string) error {
	for _, point := range injectionPoints(rv.Type()) {
		fv := rv.Field(point.index)
		if !fv.CanSet() {
			continue
		}
		dep, err := s.resolve(point.id, point.typ)
		if err != nil {
			return fmt.Errorf("inject '%s' into '%s': %w", point.id, receiver, err)
		}
		if !assign(fv, dep) {
			// Incompatible types; leave the field untouched (explicit tag ensures we don't match by type alone).
			c.logger.Debug("dependency type does not fit field",
				zap.String("receiver", receiver), zap.String("dependency", point.id),
				zap.Stringer("field", fv.Type()), zap.String("got", fmt.Sprintf("%T", dep)))
		}
	}
	return nil
}

// assign sets fv to dep, normalizing pointer/value combinations.
func assign(fv reflect.Value, dep any) bool {
	if dep == nil {
		return false
	}
	depVal := reflect.ValueOf(dep)
	depType := depVal.Type()
	fieldType := fv.Type()

	switch {
	// Exact type match, including basic types like string and exact pointer types
	case fieldType == depType:
		fv.Set(depVal)
	// field is interface, dependency implements it
	case fieldType.Kind() == reflect.Interface:
		if !depType.Implements(fieldType) {
			return false
		}
		fv.Set(depVal)
	// field: *T, dep: T
	case fieldType.Kind() == reflect.Ptr && depType.Kind() == reflect.Struct && fieldType.Elem() == depType:
		ptr := reflect.New(depType)
		ptr.Elem().Set(depVal)
		fv.Set(ptr)
	// field: T, dep: *T
	case fieldType.Kind() == reflect.Struct && depType.Kind() == reflect.Ptr && depType.Elem() == fieldType:
		fv.Set(depVal.Elem())
	default:
		return false
	}
	return true
}
