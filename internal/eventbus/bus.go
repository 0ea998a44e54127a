// Package eventbus is the in-process registry that fans decoded realtime
// messages out to the listeners that currently care about them.
//
// Listeners run synchronously on the emitting goroutine in registration
// order. A panicking listener is recovered and logged; the remaining
// listeners still run and the emitter never sees the panic.
package eventbus

import (
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/voltpark/realtime/internal/protocol"
)

// Event is a single delivery to a listener. Data is passed through by
// reference, never copied.
type Event struct {
	Kind protocol.Kind
	Data any
}

// Listener receives events.
//
// Listeners registered with On are identified by value, so registering the
// same pointer twice for one kind is a no-op. Use OnFunc for closures.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a function to Listener. Function values cannot be
// compared, so a ListenerFunc passed to On is always a new registration and
// can only be removed through the returned unsubscribe func.
type ListenerFunc func(Event)

func (f ListenerFunc) HandleEvent(e Event) { f(e) }

// Bus maps event kinds to ordered listener sets.
type Bus struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[protocol.Kind][]*entry
}

type entry struct {
	listener   Listener
	comparable bool
	active     atomic.Bool
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[protocol.Kind][]*entry),
	}
}

// On registers l for kind and returns a func that removes exactly that
// registration. The returned func is safe to call more than once.
func (b *Bus) On(kind protocol.Kind, l Listener) (unsubscribe func()) {
	if l == nil {
		return func() {}
	}

	comparable := reflect.TypeOf(l).Comparable()

	b.mu.Lock()
	defer b.mu.Unlock()

	if comparable {
		for _, e := range b.subs[kind] {
			if e.comparable && sameListener(e.listener, l) {
				return b.unsubscriber(kind, e)
			}
		}
	}
	e := &entry{listener: l, comparable: comparable}
	e.active.Store(true)
	b.subs[kind] = append(b.subs[kind], e)

	return b.unsubscriber(kind, e)
}

// OnFunc registers fn for kind. Each call is a distinct registration.
func (b *Bus) OnFunc(kind protocol.Kind, fn func(Event)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return b.On(kind, ListenerFunc(fn))
}

// Off removes l from kind. It is a no-op when l is not registered.
func (b *Bus) Off(kind protocol.Kind, l Listener) {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.subs[kind] {
		if e.comparable && sameListener(e.listener, l) {
			b.removeLocked(kind, e)
			return
		}
	}
}

// Emit delivers data to every listener registered for kind at the time of
// the call. Listeners removed while the emit is in progress are skipped.
// Emitting a kind nobody listens to is a no-op.
func (b *Bus) Emit(kind protocol.Kind, data any) {
	b.mu.Lock()
	entries := b.subs[kind]
	snapshot := make([]*entry, len(entries))
	copy(snapshot, entries)
	b.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	ev := Event{Kind: kind, Data: data}
	for _, e := range snapshot {
		if !e.active.Load() {
			continue
		}
		b.invoke(e.listener, ev)
	}
}

// RemoveAllListeners clears the given kinds, or the whole bus when called
// without arguments.
func (b *Bus) RemoveAllListeners(kinds ...protocol.Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(kinds) == 0 {
		for kind, entries := range b.subs {
			deactivate(entries)
			delete(b.subs, kind)
		}
		return
	}

	for _, kind := range kinds {
		deactivate(b.subs[kind])
		delete(b.subs, kind)
	}
}

// ListenerCount returns the number of listeners registered for kind.
func (b *Bus) ListenerCount(kind protocol.Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[kind])
}

// Kinds returns the number of kinds with at least one listener.
func (b *Bus) Kinds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) unsubscriber(kind protocol.Kind, e *entry) func() {
	return func() {
		b.mu.Lock()
		b.removeLocked(kind, e)
		b.mu.Unlock()
	}
}

// removeLocked drops e from kind and deletes the kind once it is empty.
// Must be called with mu held.
func (b *Bus) removeLocked(kind protocol.Kind, e *entry) {
	if !e.active.Swap(false) {
		return
	}

	entries := b.subs[kind]
	for i, cur := range entries {
		if cur != e {
			continue
		}
		next := slices.Delete(entries, i, i+1)
		if len(next) == 0 {
			delete(b.subs, kind)
		} else {
			b.subs[kind] = next
		}
		return
	}
}

func (b *Bus) invoke(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked",
				"kind", ev.Kind,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	l.HandleEvent(ev)
}

// sameListener reports whether a and b are the same registration. A struct
// type can be comparable while holding an interface field whose dynamic value
// is not; == panics on those and they count as distinct.
func sameListener(a, b Listener) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func deactivate(entries []*entry) {
	for _, e := range entries {
		e.active.Store(false)
	}
}
