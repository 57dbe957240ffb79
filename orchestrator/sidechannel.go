package orchestrator

import (
	"context"
	"time"
)

// SideChannel carries the public choice of the other, interactive side of a
// local match. It is advisory: readers never wait past their timeout and a
// choice nobody reads is replaced by the next one.
type SideChannel struct {
	ch chan string
}

func NewSideChannel() *SideChannel {
	return &SideChannel{ch: make(chan string, 1)}
}

// Publish replaces any unread choice. It never blocks.
func (s *SideChannel) Publish(choice string) {
	for {
		select {
		case s.ch <- choice:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Await returns the next published choice, or false after timeout.
func (s *SideChannel) Await(ctx context.Context, timeout time.Duration) (string, bool) {
	if s == nil || timeout <= 0 {
		return "", false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c := <-s.ch:
		return c, true
	case <-timer.C:
	case <-ctx.Done():
	}
	return "", false
}
