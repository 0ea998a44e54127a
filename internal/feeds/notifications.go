package feeds

import (
	"slices"
	"sync"

	"github.com/voltpark/realtime/internal/eventbus"
	"github.com/voltpark/realtime/internal/protocol"
)

// NotificationCenter keeps the notifications received for the current user,
// newest first.
type NotificationCenter struct {
	mu       sync.Mutex
	items    []*protocol.Notification
	onNotify func(*protocol.Notification)
	cancel   func()
}

// NewNotificationCenter listens for notification events on bus. onNotify,
// if set, runs after each notification is stored.
func NewNotificationCenter(bus *eventbus.Bus, onNotify func(*protocol.Notification)) *NotificationCenter {
	nc := &NotificationCenter{onNotify: onNotify}
	nc.cancel = eventbus.Subscribe(bus, protocol.KindNotification, nc.add)
	return nc
}

// Notifications returns a copy of the stored notifications, newest first.
func (nc *NotificationCenter) Notifications() []*protocol.Notification {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return slices.Clone(nc.items)
}

// Len returns the number of stored notifications.
func (nc *NotificationCenter) Len() int {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return len(nc.items)
}

// Clear drops every stored notification.
func (nc *NotificationCenter) Clear() {
	nc.mu.Lock()
	nc.items = nil
	nc.mu.Unlock()
}

// Remove drops the notification at index i. Out of range is a no-op.
func (nc *NotificationCenter) Remove(i int) {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	if i < 0 || i >= len(nc.items) {
		return
	}
	nc.items = slices.Delete(nc.items, i, i+1)
}

// Close stops listening. Stored notifications are kept.
func (nc *NotificationCenter) Close() {
	nc.cancel()
}

func (nc *NotificationCenter) add(n *protocol.Notification) {
	nc.mu.Lock()
	nc.items = slices.Insert(nc.items, 0, n)
	nc.mu.Unlock()

	if nc.onNotify != nil {
		nc.onNotify(n)
	}
}
