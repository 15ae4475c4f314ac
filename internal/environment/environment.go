// Package environment provides the per-Worker keyed store exposed to Tasks
// executing within one child process.
package environment

import (
	"sync"
	"time"
)

// New creates an empty Environment.
func New() *Environment {
	return &Environment{entries: make(map[string]entry)}
}

// Environment is a keyed store, local to one child Worker process,
// persistent across that Worker's tasks and never visible to the parent
// except through a Task's Run. Not transactional; a single Worker runs its
// tasks concurrently but the Environment itself serializes access with a
// mutex rather than relying on single-threaded cooperative scheduling (Go
// has goroutines, not an event loop).
type Environment struct {
	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	value    interface{}
	deadline time.Time // zero value means no TTL
}

func (e entry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// Get retrieves the value stored under key. ok is false if the key was
// never set or its entry has expired; expiry is lazy and the expired entry
// is removed as a side effect of this access.
func (e *Environment) Get(key string) (value interface{}, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.entries[key]
	if !ok {
		return nil, false
	}
	if v.expired(time.Now()) {
		delete(e.entries, key)
		return nil, false
	}
	return v.value, true
}

// Set stores value under key. A zero ttl means the entry never expires.
func (e *Environment) Set(key string, value interface{}, ttl time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var deadline time.Time
	if ttl > 0 {
		deadline = time.Now().Add(ttl)
	}
	e.entries[key] = entry{value: value, deadline: deadline}
}

// Delete removes key, if present.
func (e *Environment) Delete(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.entries, key)
}

// Clear removes every entry.
func (e *Environment) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.entries = make(map[string]entry)
}

// Size returns the number of entries currently stored, including any that
// have expired but have not yet been accessed (and so not yet lazily
// removed).
func (e *Environment) Size() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.entries)
}
