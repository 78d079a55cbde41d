package core

import (
	"container/heap"
	"context"
	"time"
)

// TimerToken identifies a timer registered with a TimerHandler.
type TimerToken struct {
	deadline  time.Time
	interval  time.Duration // 0 for one-shot timers
	fn        func(ctx context.Context)
	seq       uint64
	index     int // for heap interface, -1 when not queued
	cancelled bool
}

// Periodic reports whether the timer re-arms after firing.
func (t *TimerToken) Periodic() bool { return t.interval > 0 }

// Cancelled reports whether CancelTimer has been called for the timer.
func (t *TimerToken) Cancelled() bool { return t.cancelled }

// timerHeap implements heap.Interface
type timerHeap []*TimerToken

func (h timerHeap) Len() int { return len(h) }

// Less orders by deadline; equal deadlines fire in registration order.
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	n := len(*h)
	item := x.(*TimerToken)
	item.index = n
	*h = append(*h, item)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h timerHeap) peek() *TimerToken {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// TimerHandler keeps the deferred and periodic callbacks of one worker.
//
// It has no goroutine and no lock of its own: the owning worker asks it
// for the next deadline before waiting on its event source and collects
// due timers on every pump. Only the owning worker may touch it.
type TimerHandler struct {
	pq      timerHeap
	nextSeq uint64
	now     func() time.Time
}

// NewTimerHandler creates an empty TimerHandler.
func NewTimerHandler() *TimerHandler {
	th := &TimerHandler{
		pq:  make(timerHeap, 0),
		now: time.Now,
	}
	heap.Init(&th.pq)
	return th
}

// AddTimer registers fn to fire once after delay.
func (th *TimerHandler) AddTimer(delay time.Duration, fn func(ctx context.Context)) *TimerToken {
	return th.add(delay, 0, fn)
}

// AddPeriodicTimer registers fn to fire every interval until cancelled.
// Intervals below one millisecond are raised to one millisecond.
func (th *TimerHandler) AddPeriodicTimer(interval time.Duration, fn func(ctx context.Context)) *TimerToken {
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return th.add(interval, interval, fn)
}

func (th *TimerHandler) add(delay, interval time.Duration, fn func(ctx context.Context)) *TimerToken {
	if delay < 0 {
		delay = 0
	}
	tok := &TimerToken{
		deadline: th.now().Add(delay),
		interval: interval,
		fn:       fn,
		seq:      th.nextSeq,
	}
	th.nextSeq++
	heap.Push(&th.pq, tok)
	return tok
}

// CancelTimer removes the timer. It reports false if the timer had already
// fired (one-shot) or been cancelled.
func (th *TimerHandler) CancelTimer(tok *TimerToken) bool {
	if tok == nil || tok.cancelled {
		return false
	}
	tok.cancelled = true
	if tok.index < 0 || tok.index >= len(th.pq) || th.pq[tok.index] != tok {
		return false
	}
	heap.Remove(&th.pq, tok.index)
	return true
}

// NextTimeout returns how long until the earliest timer is due.
// ok is false when no timer is registered.
func (th *TimerHandler) NextTimeout(now time.Time) (d time.Duration, ok bool) {
	item := th.pq.peek()
	if item == nil {
		return 0, false
	}
	if !item.deadline.After(now) {
		return 0, true
	}
	return item.deadline.Sub(now), true
}

// Due pops every timer whose deadline is not after now and returns them in
// firing order. Periodic timers are re-armed before being returned, so a
// callback may cancel its own timer.
func (th *TimerHandler) Due(now time.Time) []*TimerToken {
	var expired []*TimerToken
	for th.pq.Len() > 0 {
		item := th.pq.peek()
		if item.deadline.After(now) {
			break
		}
		heap.Pop(&th.pq)
		expired = append(expired, item)
	}

	for _, item := range expired {
		if item.interval > 0 {
			next := item.deadline.Add(item.interval)
			if !next.After(now) {
				// Fell behind; skip the missed ticks instead of bursting.
				next = now.Add(item.interval)
			}
			item.deadline = next
			item.seq = th.nextSeq
			th.nextSeq++
			heap.Push(&th.pq, item)
		}
	}
	return expired
}

// Len returns the number of registered timers.
func (th *TimerHandler) Len() int {
	return len(th.pq)
}
