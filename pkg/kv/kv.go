// Package kv abstracts the distributed key value store that holds the
// nova-solaris desired state (instances, flavors, hosts, jobs). Backends
// register themselves by URL scheme; callers pick one with New.
package kv

import (
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Value is stored data plus the store's modification index, used for
// compare-and-swap updates.
type Value struct {
	Data  []byte
	Index uint64
}

// EventType describes what a watch event represents.
type EventType int

// Watch event types
const (
	None EventType = iota
	Get
	Create
	Delete
	Update
)

func (t EventType) String() string {
	switch t {
	case Get:
		return "Get"
	case Create:
		return "Create"
	case Delete:
		return "Delete"
	case Update:
		return "Update"
	}
	return "None"
}

// Event is a single change reported by a watch.
type Event struct {
	Key  string
	Type EventType
	Value
}

func (e Event) GoString() string {
	return fmt.Sprintf("{Key:%s, Type:%s, Index:%d, Value:%s}", e.Key, e.Type, e.Index, string(e.Data))
}

var backends = struct {
	sync.RWMutex
	constructors map[string]func(string) (KV, error)
}{
	constructors: map[string]func(string) (KV, error){},
}

// Register is called from a backend's init to make its scheme usable with
// New. Registering the same scheme twice panics.
func Register(scheme string, fn func(string) (KV, error)) {
	backends.Lock()
	defer backends.Unlock()

	if _, dup := backends.constructors[scheme]; dup {
		panic("kv: Register called twice for " + scheme)
	}
	backends.constructors[scheme] = fn
}

// New returns a KV for the given address. The URL scheme selects the
// backend. The generic http and https schemes go to the first registered
// backend that accepts them.
func New(addr string) (KV, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	backends.RLock()
	defer backends.RUnlock()

	if fn := backends.constructors[u.Scheme]; fn != nil {
		return fn(addr)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unknown kv store %s (forgotten import?)", u.Scheme)
	}

	for _, fn := range backends.constructors {
		store, err := fn(addr)
		if err != nil {
			return nil, err
		}
		if store != nil {
			return store, nil
		}
	}
	return nil, fmt.Errorf("no kv store registered for %s", addr)
}

// KV is the interface for key value store interaction
type KV interface {
	Delete(string, bool) error
	Get(string) (Value, error)
	GetAll(string) (map[string]Value, error)
	Keys(string) ([]string, error)
	Set(string, string) error

	// Update sets key=value only if the key has not changed since
	// Value.Index, creating it when Index is 0. It returns the new index.
	Update(string, Value) (uint64, error)
	// Remove deletes key only if it has not changed since index
	Remove(string, uint64) error

	// IsKeyNotFound reports whether err means the key does not exist
	IsKeyNotFound(error) bool

	Watch(string, uint64, chan struct{}) (chan Event, chan error, error)

	// TTL sets a key that expires after the duration, used for liveness
	TTL(string, time.Duration) error
}
