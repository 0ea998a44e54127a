package eventbus

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltpark/realtime/internal/protocol"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func quietBus() *Bus {
	return New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func TestEmit_InsertionOrder(t *testing.T) {
	b := quietBus()

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		b.OnFunc(protocol.KindParkingUpdate, func(Event) { order = append(order, i) })
	}

	b.Emit(protocol.KindParkingUpdate, nil)

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEmit_PassesSameReference(t *testing.T) {
	b := quietBus()
	payload := &protocol.ParkingUpdate{ParkingLotID: 7}

	var got any
	b.OnFunc(protocol.KindParkingUpdate, func(e Event) { got = e.Data })
	b.Emit(protocol.KindParkingUpdate, payload)

	assert.Same(t, payload, got)
}

func TestEmit_NoSubscribers(t *testing.T) {
	b := quietBus()

	assert.NotPanics(t, func() { b.Emit(protocol.KindNotification, "x") })
	assert.Equal(t, 0, b.Kinds())
}

func TestEmit_PanicIsolation(t *testing.T) {
	var logs bytes.Buffer
	b := New(slog.New(slog.NewTextHandler(&logs, nil)))

	first, last := &recorder{}, &recorder{}
	b.On(protocol.KindParkingUpdate, first)
	b.OnFunc(protocol.KindParkingUpdate, func(Event) { panic("listener exploded") })
	b.On(protocol.KindParkingUpdate, last)

	require.NotPanics(t, func() { b.Emit(protocol.KindParkingUpdate, 1) })

	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, last.count())
	assert.Contains(t, logs.String(), "event listener panicked")
	assert.Contains(t, logs.String(), "listener exploded")
}

func TestOn_SetSemantics(t *testing.T) {
	b := quietBus()
	r := &recorder{}

	b.On(protocol.KindNotification, r)
	b.On(protocol.KindNotification, r)

	assert.Equal(t, 1, b.ListenerCount(protocol.KindNotification))

	b.Emit(protocol.KindNotification, nil)
	assert.Equal(t, 1, r.count())
}

func TestOn_SameListenerDifferentKinds(t *testing.T) {
	b := quietBus()
	r := &recorder{}

	b.On(protocol.KindParkingUpdate, r)
	b.On(protocol.KindChargingSessionUpdate, r)
	b.Off(protocol.KindParkingUpdate, r)

	b.Emit(protocol.KindParkingUpdate, nil)
	b.Emit(protocol.KindChargingSessionUpdate, nil)

	assert.Equal(t, 1, r.count())
}

// taggedListener is a comparable type whose tag may hold an uncomparable value.
type taggedListener struct {
	tag any
	rec *recorder
}

func (l taggedListener) HandleEvent(e Event) { l.rec.HandleEvent(e) }

func TestOn_UncomparableDynamicValue(t *testing.T) {
	b := quietBus()
	r := &recorder{}
	first := taggedListener{tag: []int{1}, rec: r}
	second := taggedListener{tag: []int{2}, rec: r}

	require.NotPanics(t, func() {
		b.On(protocol.KindParkingUpdate, first)
		b.On(protocol.KindParkingUpdate, second)
	})
	assert.Equal(t, 2, b.ListenerCount(protocol.KindParkingUpdate))

	require.NotPanics(t, func() {
		b.Off(protocol.KindParkingUpdate, first)
	})
	assert.Equal(t, 2, b.ListenerCount(protocol.KindParkingUpdate))

	b.Emit(protocol.KindParkingUpdate, nil)
	assert.Equal(t, 2, r.count())

	b.OnFunc(protocol.KindNotification, func(Event) {})
	assert.Equal(t, 1, b.ListenerCount(protocol.KindNotification))
}

func TestUnsubscribe_Precision(t *testing.T) {
	b := quietBus()
	target, sibling, other := &recorder{}, &recorder{}, &recorder{}

	unsubscribe := b.On(protocol.KindParkingUpdate, target)
	b.On(protocol.KindParkingUpdate, sibling)
	b.On(protocol.KindMarketplaceTransaction, other)

	unsubscribe()

	b.Emit(protocol.KindParkingUpdate, nil)
	b.Emit(protocol.KindMarketplaceTransaction, nil)

	assert.Equal(t, 0, target.count())
	assert.Equal(t, 1, sibling.count())
	assert.Equal(t, 1, other.count())
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	b := quietBus()
	r := &recorder{}

	unsubscribe := b.On(protocol.KindNotification, r)
	unsubscribe()
	assert.NotPanics(t, unsubscribe)

	// A stale unsubscribe must not remove a later registration.
	b.On(protocol.KindNotification, r)
	unsubscribe()
	assert.Equal(t, 1, b.ListenerCount(protocol.KindNotification))
}

func TestUnsubscribe_FuncListeners(t *testing.T) {
	b := quietBus()

	calls := 0
	fn := func(Event) { calls++ }
	unsubA := b.OnFunc(protocol.KindNotification, fn)
	b.OnFunc(protocol.KindNotification, fn)
	require.Equal(t, 2, b.ListenerCount(protocol.KindNotification))

	unsubA()
	b.Emit(protocol.KindNotification, nil)

	assert.Equal(t, 1, calls)
}

func TestOff_CleansUpEmptyKinds(t *testing.T) {
	b := quietBus()
	r := &recorder{}

	b.On(protocol.KindParkingUpdate, r)
	require.Equal(t, 1, b.Kinds())

	b.Off(protocol.KindParkingUpdate, r)
	assert.Equal(t, 0, b.Kinds())
	assert.Equal(t, 0, b.ListenerCount(protocol.KindParkingUpdate))
}

func TestOff_NeverRegistered(t *testing.T) {
	b := quietBus()

	assert.NotPanics(t, func() {
		b.Off(protocol.KindParkingUpdate, &recorder{})
		b.Off(protocol.KindParkingUpdate, nil)
		b.Off(protocol.KindParkingUpdate, ListenerFunc(func(Event) {}))
	})
	assert.Equal(t, 0, b.Kinds())
}

func TestEmit_SelfUnsubscribe(t *testing.T) {
	b := quietBus()

	calls := 0
	var unsubscribe func()
	unsubscribe = b.OnFunc(protocol.KindNotification, func(Event) {
		calls++
		unsubscribe()
	})
	after := &recorder{}
	b.On(protocol.KindNotification, after)

	b.Emit(protocol.KindNotification, nil)
	b.Emit(protocol.KindNotification, nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, after.count())
}

func TestEmit_UnsubscribeLaterListenerDuringDispatch(t *testing.T) {
	b := quietBus()
	victim := &recorder{}

	b.OnFunc(protocol.KindNotification, func(Event) { b.Off(protocol.KindNotification, victim) })
	b.On(protocol.KindNotification, victim)

	b.Emit(protocol.KindNotification, nil)

	assert.Equal(t, 0, victim.count())
}

func TestEmit_SubscribeDuringDispatch(t *testing.T) {
	b := quietBus()
	late := &recorder{}

	b.OnFunc(protocol.KindNotification, func(Event) { b.On(protocol.KindNotification, late) })

	b.Emit(protocol.KindNotification, nil)
	assert.Equal(t, 0, late.count(), "listener added mid-dispatch waits for the next emit")

	b.Emit(protocol.KindNotification, nil)
	assert.Equal(t, 1, late.count())
}

func TestRemoveAllListeners(t *testing.T) {
	b := quietBus()
	parking, charging := &recorder{}, &recorder{}
	b.On(protocol.KindParkingUpdate, parking)
	b.On(protocol.KindChargingSessionUpdate, charging)

	b.RemoveAllListeners(protocol.KindParkingUpdate)
	b.Emit(protocol.KindParkingUpdate, nil)
	b.Emit(protocol.KindChargingSessionUpdate, nil)
	assert.Equal(t, 0, parking.count())
	assert.Equal(t, 1, charging.count())

	b.RemoveAllListeners()
	b.Emit(protocol.KindChargingSessionUpdate, nil)
	assert.Equal(t, 1, charging.count())
	assert.Equal(t, 0, b.Kinds())
}

func TestNilListeners(t *testing.T) {
	b := quietBus()

	assert.NotPanics(t, func() {
		b.On(protocol.KindNotification, nil)()
		b.OnFunc(protocol.KindNotification, nil)()
	})
	assert.Equal(t, 0, b.Kinds())
}

func TestConcurrentSubscribeAndEmit(t *testing.T) {
	b := quietBus()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsubscribe := b.On(protocol.KindParkingUpdate, &recorder{})
			unsubscribe()
		}()
		go func() {
			defer wg.Done()
			b.Emit(protocol.KindParkingUpdate, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, b.ListenerCount(protocol.KindParkingUpdate))
}
