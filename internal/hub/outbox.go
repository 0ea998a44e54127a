package hub

import (
	"sync"
)

// outbox is a client's queue of encoded frames waiting for the write pump.
// It is a ring buffer that doubles once it is 70% full, up to limit frames.
// A push that would exceed limit fails so the hub can drop the slow client.
type outbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames [][]byte
	head   int
	tail   int
	count  int
	limit  int
	closed bool
}

func newOutbox(capacity, limit int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	if limit < capacity {
		limit = capacity
	}
	o := &outbox{
		frames: make([][]byte, capacity),
		limit:  limit,
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// push queues frame. It returns false if the outbox is closed or full.
func (o *outbox) push(frame []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.count >= o.limit {
		return false
	}

	threshold := max(len(o.frames)*70/100, 1)
	if o.count+1 >= threshold && len(o.frames) < o.limit {
		o.grow()
	}
	if o.count == len(o.frames) {
		return false
	}

	o.frames[o.tail] = frame
	o.tail = (o.tail + 1) % len(o.frames)
	o.count++

	o.cond.Signal()
	return true
}

// pop blocks until a frame is queued or the outbox is closed and empty.
func (o *outbox) pop() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for o.count == 0 && !o.closed {
		o.cond.Wait()
	}
	if o.count == 0 {
		return nil, false
	}
	return o.takeLocked(), true
}

// drain removes up to n queued frames without blocking.
func (o *outbox) drain(n int) [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()

	if n <= 0 || n > o.count {
		n = o.count
	}
	if n == 0 {
		return nil
	}

	out := make([][]byte, n)
	for i := range out {
		out[i] = o.takeLocked()
	}
	return out
}

// close rejects further pushes. Queued frames can still be popped.
func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	o.cond.Broadcast()
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

func (o *outbox) capacity() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}

func (o *outbox) takeLocked() []byte {
	frame := o.frames[o.head]
	o.frames[o.head] = nil
	o.head = (o.head + 1) % len(o.frames)
	o.count--
	return frame
}

// grow doubles capacity, capped at limit. Must be called with mu held.
func (o *outbox) grow() {
	size := min(len(o.frames)*2, o.limit)
	next := make([][]byte, size)

	if o.count > 0 {
		if o.head < o.tail {
			copy(next, o.frames[o.head:o.tail])
		} else {
			n := copy(next, o.frames[o.head:])
			copy(next[n:], o.frames[:o.tail])
		}
	}

	o.frames = next
	o.head = 0
	o.tail = o.count
}
