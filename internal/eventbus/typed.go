package eventbus

import "github.com/voltpark/realtime/internal/protocol"

// Subscribe registers fn for kind and only calls it when the event payload
// has type T. Payloads of any other type are ignored, so a listener for
// *protocol.ParkingUpdate never sees a raw frame that failed to decode.
func Subscribe[T any](b *Bus, kind protocol.Kind, fn func(T)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return b.OnFunc(kind, func(e Event) {
		if v, ok := e.Data.(T); ok {
			fn(v)
		}
	})
}
