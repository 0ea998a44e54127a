package feeds

import (
	"sync"

	"github.com/voltpark/realtime/internal/eventbus"
	"github.com/voltpark/realtime/internal/protocol"
)

// Status mirrors the connected flag from connected and disconnected events.
type Status struct {
	mu        sync.Mutex
	connected bool
	onChange  func(bool)
	cancel    []func()
}

// NewStatus starts tracking bus. initial is the state at the time of the
// call, usually Manager.IsConnected(). onChange may be nil.
func NewStatus(bus *eventbus.Bus, initial bool, onChange func(connected bool)) *Status {
	s := &Status{connected: initial, onChange: onChange}
	s.cancel = []func(){
		bus.OnFunc(protocol.KindConnected, func(eventbus.Event) { s.set(true) }),
		bus.OnFunc(protocol.KindDisconnected, func(eventbus.Event) { s.set(false) }),
	}
	return s
}

// Connected reports the last observed state.
func (s *Status) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close stops tracking.
func (s *Status) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	for _, fn := range cancel {
		fn()
	}
}

func (s *Status) set(connected bool) {
	s.mu.Lock()
	changed := s.connected != connected
	s.connected = connected
	s.mu.Unlock()

	if changed && s.onChange != nil {
		s.onChange(connected)
	}
}
