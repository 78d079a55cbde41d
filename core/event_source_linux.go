//go:build linux

package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// FDEvents is a readiness bit set reported to FDCallback.
type FDEvents uint32

const (
	FDReadable FDEvents = 1 << iota
	FDWritable
	FDError
)

// FDCallback runs on the reactor thread when a registered descriptor is ready.
type FDCallback func(fd int, events FDEvents)

const maxEpollEvents = 128

// EpollEventSource is an epoll instance with an eventfd used for wakes.
// Descriptors registered with Register have their callbacks invoked from
// Wait, on the thread that called Wait.
type EpollEventSource struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent

	cbMu      sync.Mutex
	callbacks map[int]FDCallback

	// closeMu keeps Wake from writing to a descriptor Close released.
	closeMu sync.RWMutex
	closed  bool
}

func newPlatformEventSource(kind string) (EventSource, error) {
	return NewEpollEventSource()
}

// NewEpollEventSource creates the epoll instance and its wake descriptor.
func NewEpollEventSource() (*EpollEventSource, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wakefd: %w", err)
	}
	return &EpollEventSource{
		epfd:      epfd,
		wakefd:    wakefd,
		events:    make([]unix.EpollEvent, maxEpollEvents),
		callbacks: make(map[int]FDCallback),
	}, nil
}

// Register adds fd to the interest set.
func (s *EpollEventSource) Register(fd int, events FDEvents, cb FDCallback) error {
	var ev unix.EpollEvent
	if events&FDReadable != 0 {
		ev.Events |= unix.EPOLLIN
	}
	if events&FDWritable != 0 {
		ev.Events |= unix.EPOLLOUT
	}
	ev.Fd = int32(fd)

	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	s.callbacks[fd] = cb
	return nil
}

// Unregister removes fd from the interest set.
func (s *EpollEventSource) Unregister(fd int) error {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	delete(s.callbacks, fd)
	return nil
}

func (s *EpollEventSource) Wait(timeout time.Duration) error {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}

	n, err := unix.EpollWait(s.epfd, s.events, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		if errors.Is(err, unix.EBADF) {
			return ErrEventSourceClosed
		}
		return fmt.Errorf("epoll wait: %w", err)
	}

	for i := 0; i < n; i++ {
		ev := s.events[i]
		fd := int(ev.Fd)
		if fd == s.wakefd {
			s.drainWake()
			continue
		}

		s.cbMu.Lock()
		cb := s.callbacks[fd]
		s.cbMu.Unlock()
		if cb == nil {
			continue
		}

		var ready FDEvents
		if ev.Events&unix.EPOLLIN != 0 {
			ready |= FDReadable
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			ready |= FDWritable
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			ready |= FDError
		}
		cb(fd, ready)
	}
	return nil
}

func (s *EpollEventSource) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(s.wakefd, buf[:]); err != nil {
			return
		}
	}
}

func (s *EpollEventSource) Wake() error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return ErrEventSourceClosed
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(s.wakefd, buf[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (s *EpollEventSource) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := unix.Close(s.wakefd)
	if cerr := unix.Close(s.epfd); err == nil {
		err = cerr
	}
	return err
}
