package hotswap

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

type fingerprintKey struct {
	t        reflect.Type
	strategy ReloadStrategy
	proxy    bool
}

// Comparator computes structural fingerprints of classes. Unexported methods
// are invisible to it, so reordering or editing them never changes a
// fingerprint; field order does not matter either.
type Comparator struct {
	cache *lru.Cache[fingerprintKey, string]
}

func NewComparator(cacheSize int) (*Comparator, error) {
	if cacheSize <= 0 {
		cacheSize = defaultFingerprintCacheSize
	}
	cache, err := lru.New[fingerprintKey, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("new comparator: %w", err)
	}
	return &Comparator{cache: cache}, nil
}

// Fingerprint returns the fingerprint of class under strategy. NEVER yields an
// empty fingerprint for every class.
func (c *Comparator) Fingerprint(class Class, strategy ReloadStrategy) string {
	if strategy == StrategyNever || class.Type == nil {
		return emptyString
	}
	return c.cached(fingerprintKey{t: class.Type, strategy: strategy}, func() string {
		return fingerprint(class.Type, strategy)
	})
}

// ProxyFingerprint covers only what a proxy of the class depends on: its
// exported method set.
func (c *Comparator) ProxyFingerprint(class Class) string {
	if class.Type == nil {
		return emptyString
	}
	return c.cached(fingerprintKey{t: class.Type, proxy: true}, func() string {
		var b strings.Builder
		writeHeader(&b, class.Type)
		writeMethods(&b, class.Type)
		return digest(b.String())
	})
}

// Changed reports whether two fingerprints differ in a way that matters under strategy.
func (c *Comparator) Changed(strategy ReloadStrategy, oldFingerprint, newFingerprint string) bool {
	return fingerprintChanged(strategy, oldFingerprint, newFingerprint)
}

func (c *Comparator) cached(key fingerprintKey, compute func() string) string {
	if v, ok := c.cache.Get(key); ok {
		return v
	}
	v := compute()
	c.cache.Add(key, v)
	return v
}

func fingerprintChanged(strategy ReloadStrategy, oldFingerprint, newFingerprint string) bool {
	switch {
	case strategy == StrategyNever:
		return false
	case strategy == StrategyClassChange:
		return true
	default:
		return newFingerprint != emptyString && newFingerprint != oldFingerprint
	}
}

func fingerprint(t reflect.Type, strategy ReloadStrategy) string {
	var b strings.Builder
	writeHeader(&b, t)
	writeFields(&b, t)
	switch strategy {
	case StrategyMethodFieldSignatureChange:
		writeMethods(&b, t)
	case StrategyClassChange:
		writeMethods(&b, t)
		writeIdentity(&b, t)
	}
	return digest(b.String())
}

// The Go type name is left out: a redefinition is a new type registered under
// the same class name, and only its structure is compared.
func writeHeader(b *strings.Builder, t reflect.Type) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	fmt.Fprintf(b, "kind %s\n", t.Kind())
}

func writeIdentity(b *strings.Builder, t reflect.Type) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	fmt.Fprintf(b, "type %s.%s size %d\n", t.PkgPath(), t.Name(), t.Size())
}

func writeFields(b *strings.Builder, t reflect.Type) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	lines := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		lines = append(lines, fmt.Sprintf("field %s %s %q embedded=%t", f.Name, f.Type, f.Tag, f.Anonymous))
	}
	sort.Strings(lines)
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// writeMethods records the exported method set. Methods on pointer receivers
// are included for struct classes; reflect sorts methods by name.
func writeMethods(b *strings.Builder, t reflect.Type) {
	if t.Kind() == reflect.Struct {
		t = reflect.PointerTo(t)
	}
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		mt := m.Type
		if t.Kind() != reflect.Interface {
			// drop the receiver
			mt = methodSignature(mt)
		}
		fmt.Fprintf(b, "method %s %s\n", m.Name, mt)
	}
}

func methodSignature(fn reflect.Type) reflect.Type {
	in := make([]reflect.Type, 0, fn.NumIn())
	for i := 1; i < fn.NumIn(); i++ {
		in = append(in, fn.In(i))
	}
	out := make([]reflect.Type, 0, fn.NumOut())
	for i := 0; i < fn.NumOut(); i++ {
		out = append(out, fn.Out(i))
	}
	return reflect.FuncOf(in, out, fn.IsVariadic())
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
