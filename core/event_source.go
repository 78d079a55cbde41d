package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Event source kinds accepted by Config.EventSource.
const (
	EventSourceDefault = ""
	EventSourceEpoll   = "epoll"
	EventSourceChannel = "channel"
)

// EventSource is the readiness-notification mechanism a worker's reactor
// loop blocks on.
type EventSource interface {
	// Wait blocks until woken, until an I/O readiness callback ran, or
	// until timeout elapses. A negative timeout waits forever; zero polls.
	Wait(timeout time.Duration) error

	// Wake makes the current or next Wait return. Wakes coalesce. Safe to
	// call from any goroutine.
	Wake() error

	// Close releases the source. Wait and Wake return ErrEventSourceClosed
	// afterwards.
	Close() error
}

// NewEventSource builds the event source named by kind.
func NewEventSource(kind string) (EventSource, error) {
	switch kind {
	case EventSourceChannel:
		return NewChannelEventSource(), nil
	case EventSourceDefault, EventSourceEpoll:
		return newPlatformEventSource(kind)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventSource, kind)
	}
}

// =============================================================================
// ChannelEventSource: portable wake-only source
// =============================================================================

// ChannelEventSource wakes through a buffered channel of capacity one.
// It carries no descriptor readiness and works on every platform.
type ChannelEventSource struct {
	wakeup chan struct{}
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

// NewChannelEventSource creates a ChannelEventSource.
func NewChannelEventSource() *ChannelEventSource {
	return &ChannelEventSource{
		wakeup: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *ChannelEventSource) Wait(timeout time.Duration) error {
	if s.closed.Load() {
		return ErrEventSourceClosed
	}
	switch {
	case timeout < 0:
		select {
		case <-s.wakeup:
		case <-s.done:
			return ErrEventSourceClosed
		}
	case timeout == 0:
		select {
		case <-s.wakeup:
		default:
		}
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-s.wakeup:
		case <-timer.C:
		case <-s.done:
			return ErrEventSourceClosed
		}
	}
	return nil
}

func (s *ChannelEventSource) Wake() error {
	if s.closed.Load() {
		return ErrEventSourceClosed
	}
	select {
	case s.wakeup <- struct{}{}:
	default:
		// A wake is already pending
	}
	return nil
}

func (s *ChannelEventSource) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
	return nil
}
