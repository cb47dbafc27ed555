package reconcile

import (
	"sync"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/model"
)

// keyLock serializes work on the same (date, normalized title) key while
// letting different keys proceed in parallel.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyEntry)}
}

func identityKey(date model.Date, title string) string {
	return date.String() + "|" + title
}

// Lock blocks until key is free and returns its release function.
func (k *keyLock) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
