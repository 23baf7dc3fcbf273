// Package watcher multiplexes kv prefix watches into a single stream with
// an iterator style API.
package watcher

import (
	"errors"
	"sync"

	"github.com/guillermomolina/nova-solaris/pkg/kv"
)

// ErrPrefixNotWatched is returned when removing a prefix that was never added
var ErrPrefixNotWatched = errors.New("prefix is not being watched")

// ErrStopped is returned when adding a prefix to a closed watcher
var ErrStopped = errors.New("watcher has been stopped")

// Watcher watches a set of kv prefixes and presents their events one at a
// time through Next/Event.
type Watcher struct {
	kv     kv.KV
	events chan kv.Event
	errors chan error
	done   chan struct{}
	err    error
	event  kv.Event

	mu       sync.Mutex // mu protects the following two vars
	isClosed bool
	prefixes map[string]chan struct{}
}

// New creates a Watcher on the given store
func New(store kv.KV) (*Watcher, error) {
	if store == nil {
		return nil, errors.New("kv store required")
	}
	w := &Watcher{
		kv:       store,
		events:   make(chan kv.Event),
		errors:   make(chan error),
		done:     make(chan struct{}),
		prefixes: map[string]chan struct{}{},
	}
	return w, nil
}

// Add begins watching a prefix. Adding a prefix twice is a no-op.
func (w *Watcher) Add(prefix string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isClosed {
		return ErrStopped
	}

	if _, ok := w.prefixes[prefix]; ok {
		return nil
	}

	stop := make(chan struct{})
	events, errs, err := w.kv.Watch(prefix, 0, stop)
	if err != nil {
		return err
	}

	w.prefixes[prefix] = stop
	go w.watch(events, errs, stop)
	return nil
}

// Next blocks until an event or error arrives, or the watcher is closed.
// It returns true when an event is ready to read with Event, false when an
// error occurred or the watcher was closed; Err distinguishes the two.
func (w *Watcher) Next() bool {
	select {
	case event := <-w.events:
		w.event = event
		return true
	case err := <-w.errors:
		w.err = err
		return false
	case <-w.done:
		return false
	}
}

// Event returns the event from the last successful Next
func (w *Watcher) Event() kv.Event {
	return w.event
}

// Err returns the error from the last failed Next
func (w *Watcher) Err() error {
	return w.err
}

// Remove stops watching a prefix
func (w *Watcher) Remove(prefix string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	stop, ok := w.prefixes[prefix]
	if !ok {
		return ErrPrefixNotWatched
	}

	close(stop)
	delete(w.prefixes, prefix)
	return nil
}

// Close stops watching all prefixes and unblocks any pending Next
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isClosed {
		return nil
	}
	w.isClosed = true
	close(w.done)

	for prefix, stop := range w.prefixes {
		close(stop)
		delete(w.prefixes, prefix)
	}

	return nil
}

func (w *Watcher) watch(events chan kv.Event, errs chan error, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			select {
			case w.events <- event:
			case <-stop:
				return
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-stop:
				return
			}
		}
	}
}
