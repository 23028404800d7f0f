package hotswap

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// ProxyFactory regenerates the proxy class of a bean.
type ProxyFactory interface {
	RegenerateProxy(ctx context.Context, class Class) error
}

// ProxyTable holds the proxy factories registered per bean.
type ProxyTable struct {
	mu           sync.Mutex
	entries      map[*Bean]ProxyFactory
	order        []*Bean
	regenerating atomic.Int32
}

func NewProxyTable() *ProxyTable {
	return &ProxyTable{entries: make(map[*Bean]ProxyFactory)}
}

func (t *ProxyTable) Register(b *Bean, f ProxyFactory) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[b]; !exists {
		t.order = append(t.order, b)
	}
	t.entries[b] = f
}

func (t *ProxyTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Regenerating reports whether a proxy regeneration pass is running.
func (t *ProxyTable) Regenerating() bool {
	return t.regenerating.Load() > 0
}

// each runs fn for every entry registered when the pass starts. The table is
// not locked while fn runs, so a factory may register proxies.
func (t *ProxyTable) each(fn func(b *Bean, f ProxyFactory)) bool {
	t.mu.Lock()
	order := slices.Clone(t.order)
	entries := maps.Clone(t.entries)
	t.mu.Unlock()
	if len(order) == 0 {
		return false
	}

	t.regenerating.Add(1)
	defer t.regenerating.Add(-1)
	for _, b := range order {
		fn(b, entries[b])
	}
	return true
}
