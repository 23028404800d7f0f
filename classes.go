package hotswap

import "sync"

// ClassTable remembers the last fingerprint seen per class and strategy, so a
// change event that carries no previous fingerprint can still be compared.
type ClassTable struct {
	mu           sync.RWMutex
	fingerprints map[ClassID]map[ReloadStrategy]string
}

func NewClassTable() *ClassTable {
	return &ClassTable{fingerprints: make(map[ClassID]map[ReloadStrategy]string)}
}

func (t *ClassTable) Record(id ClassID, strategy ReloadStrategy, fingerprint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byStrategy, ok := t.fingerprints[id]
	if !ok {
		byStrategy = make(map[ReloadStrategy]string)
		t.fingerprints[id] = byStrategy
	}
	byStrategy[strategy] = fingerprint
}

func (t *ClassTable) Fingerprint(id ClassID, strategy ReloadStrategy) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fp, ok := t.fingerprints[id][strategy]
	return fp, ok
}

// classLocks serialises reconciliation per class while letting different
// classes proceed concurrently.
type classLocks struct {
	mu    sync.Mutex
	locks map[ClassID]*classLock
}

type classLock struct {
	sync.Mutex
	refs int
}

func (l *classLocks) lock(id ClassID) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[ClassID]*classLock)
	}
	cl, ok := l.locks[id]
	if !ok {
		cl = &classLock{}
		l.locks[id] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.Lock()
	return func() {
		cl.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
