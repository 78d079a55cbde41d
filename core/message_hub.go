package core

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// MessageHub is the inbox of one worker. Any goroutine may Deliver; only
// the owning worker drains.
//
// Messages from one sender are drained in the order that sender delivered
// them. No order is promised across senders beyond arrival at the lock.
//
// Go routes OS signals to an ordinary goroutine (os/signal), so Deliver
// may take a mutex and allocate even when called for a signal.
type MessageHub struct {
	mu       sync.Mutex
	queue    *queue.Queue
	closed   bool
	refusing bool
	source   EventSource

	delivered atomic.Uint64
}

func newMessageHub(source EventSource) *MessageHub {
	return &MessageHub{
		queue:  queue.New(),
		source: source,
	}
}

// Deliver queues msg and wakes the owning worker. Once the worker is
// shutting down only its own resume requests are still admitted; what was
// queued before keeps draining.
func (h *MessageHub) Deliver(msg Message) error {
	if msg == nil {
		return nil
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrWorkerStopped
	}
	if _, internal := msg.(loopMessage); h.refusing && !internal {
		h.mu.Unlock()
		return ErrWorkerShuttingDown
	}
	h.queue.Add(msg)
	h.mu.Unlock()
	h.delivered.Add(1)

	if err := h.source.Wake(); err != nil && err != ErrEventSourceClosed {
		return err
	}
	return nil
}

// stopAccepting refuses application messages from now on.
func (h *MessageHub) stopAccepting() {
	h.mu.Lock()
	h.refusing = true
	h.mu.Unlock()
}

// drain appends every queued message to buf in arrival order.
func (h *MessageHub) drain(buf []Message) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.queue.Length() > 0 {
		buf = append(buf, h.queue.Remove().(Message))
	}
	return buf
}

// closeIfEmpty refuses further deliveries if nothing is queued. It reports
// false, leaving the hub open, when messages are still waiting.
func (h *MessageHub) closeIfEmpty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.queue.Length() > 0 {
		return false
	}
	h.closed = true
	return true
}

// Len returns the number of undelivered messages.
func (h *MessageHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queue.Length()
}

// Delivered returns how many messages were accepted so far.
func (h *MessageHub) Delivered() uint64 {
	return h.delivered.Load()
}
