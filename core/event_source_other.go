//go:build !linux

package core

import "fmt"

func newPlatformEventSource(kind string) (EventSource, error) {
	if kind == EventSourceEpoll {
		return nil, fmt.Errorf("%w: %q is linux-only", ErrUnknownEventSource, kind)
	}
	return NewChannelEventSource(), nil
}
