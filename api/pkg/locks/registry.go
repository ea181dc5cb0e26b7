// Package locks provides named advisory locks keyed by arbitrary resource
// strings. All shared read-modify-write spans (name resolution, worktree
// creation, reconciliation, diff sequencing) serialize through here so
// that lock scope matches exactly the contended resource instead of a
// process-wide mutex.
package locks

import (
	"fmt"
	"sync"
)

// Registry hands out one mutex per key. Entries are reference counted and
// removed once the last holder releases, so the map stays bounded by the
// number of keys currently in use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Lock acquires the named lock, blocking until it is available, and
// returns the release function. The caller must invoke the release
// exactly once, typically via defer.
func (r *Registry) Lock(key string) func() {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			r.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(r.entries, key)
			}
			r.mu.Unlock()
		})
	}
}

// TryLock acquires the named lock only if it is immediately available.
// It returns the release function and true, or nil and false if another
// holder has the lock.
func (r *Registry) TryLock(key string) (func(), bool) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	e.refs++
	r.mu.Unlock()

	if !e.mu.TryLock() {
		r.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			r.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(r.entries, key)
			}
			r.mu.Unlock()
		})
	}, true
}

// Do runs fn while holding the named lock.
func (r *Registry) Do(key string, fn func() error) error {
	unlock := r.Lock(key)
	defer unlock()
	return fn()
}

// Lock key constructors. Keys scope to exactly the contended resource:
// session creation is serialized globally (the uniqueness protocol spans
// the store and the filesystem), everything else is per-resource.

const SessionCreationKey = "session-creation"

func WorkspaceKey(path string) string {
	return fmt.Sprintf("workspace:%s", path)
}

func SessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}
