// Package lock implements a distributed lock on the kv store using CAS
// semantics. The lock value carries an expiry so a crashed holder does not
// wedge everyone else; holders must Refresh within the ttl.
package lock

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/guillermomolina/nova-solaris/pkg/kv"
)

var (
	// ErrKeyNotFound signifies an attempt to operate on a non-existent lock
	ErrKeyNotFound = errors.New("key not found")
	// ErrLockNotHeld signifies an attempt to operate on a released/lost lock
	ErrLockNotHeld = errors.New("lock not held")
)

// Lock is a lock on a kv key
type Lock struct {
	kv    kv.KV
	key   string
	value string
	ttl   time.Duration
	index uint64
	held  bool
}

type payload struct {
	Holder  string    `json:"holder"`
	Expires time.Time `json:"expires"`
}

func encode(value string, ttl time.Duration) ([]byte, error) {
	return json.Marshal(payload{
		Holder:  value,
		Expires: time.Now().Add(ttl),
	})
}

func acquire(store kv.KV, key, value string, ttl time.Duration) (uint64, error) {
	data, err := encode(value, ttl)
	if err != nil {
		return 0, err
	}
	return store.Update(key, kv.Value{Data: data, Index: 0})
}

// steal removes an expired lock key so it can be acquired. A CAS failure
// means someone else got there first, which is fine.
func steal(store kv.KV, key string) error {
	v, err := store.Get(key)
	if err != nil {
		if store.IsKeyNotFound(err) {
			return nil
		}
		return err
	}

	var p payload
	if err := json.Unmarshal(v.Data, &p); err != nil {
		return err
	}
	if time.Now().Before(p.Expires) {
		return nil
	}

	if err := store.Remove(key, v.Index); err != nil && !store.IsKeyNotFound(err) {
		return err
	}
	return nil
}

// Acquire will attempt to acquire the lock, if blocking is set to true it
// will wait forever to do so. Setting blocking to false would be the
// equivalent of a fictional TryAcquire, an immediate return if locking
// fails.
func Acquire(store kv.KV, key, value string, ttl time.Duration, blocking bool) (*Lock, error) {
	for {
		if err := steal(store, key); err != nil {
			return nil, err
		}

		index, err := acquire(store, key, value, ttl)
		if err == nil {
			return &Lock{
				kv:    store,
				key:   key,
				value: value,
				ttl:   ttl,
				index: index,
				held:  true,
			}, nil
		}
		if !blocking {
			return nil, err
		}

		if err := waitForChange(store, key, ttl); err != nil {
			return nil, err
		}
	}
}

// waitForChange blocks until the lock key changes or the ttl elapses. The
// timeout bounds the wait so an expired lock gets stolen even with no
// further kv traffic.
func waitForChange(store kv.KV, key string, ttl time.Duration) error {
	stop := make(chan struct{})
	defer close(stop)

	events, errs, err := store.Watch(key, 0, stop)
	if err != nil {
		return err
	}

	timeout := time.NewTimer(ttl)
	defer timeout.Stop()

	select {
	case <-events:
	case err := <-errs:
		return err
	case <-timeout.C:
	}
	return nil
}

// Refresh will refresh the lock. An error is returned if the lock was lost
func (l *Lock) Refresh() error {
	if !l.held {
		return ErrLockNotHeld
	}

	data, err := encode(l.value, l.ttl)
	if err != nil {
		return err
	}

	index, err := l.kv.Update(l.key, kv.Value{Data: data, Index: l.index})
	if err != nil {
		if l.kv.IsKeyNotFound(err) {
			err = ErrKeyNotFound
		}
		l.held = false
		return err
	}
	l.index = index
	return nil
}

// Release will release the lock and delete the key
func (l *Lock) Release() error {
	if !l.held {
		return ErrLockNotHeld
	}
	err := l.kv.Remove(l.key, l.index)
	if err != nil && l.kv.IsKeyNotFound(err) {
		err = ErrKeyNotFound
	}
	l.held = false
	return err
}
