// Package livesync keeps the client's view of the backend live: it follows
// identity changes, resolves the signed-in user's record, streams their
// inspections, prunes expired ones and ties all of it to screen lifecycle.
//
// Every subscribe-shaped call returns an owned *Subscription. Holders release
// it with Unsubscribe; there is no package-level listener state.
package livesync

import (
	"sync"
	"sync/atomic"
)

// Subscription is a handle to something live. Unsubscribe is idempotent and
// safe for concurrent use; a nil *Subscription is a valid no-op handle.
//
// Once Unsubscribe returns no new callback starts, but one already running on
// another goroutine may still finish. Unsubscribe does not wait for it, so a
// callback may release its own subscription. Holders that need a hard cut
// tag their callbacks with a generation of their own, as Pipeline does.
type Subscription struct {
	once    sync.Once
	closed  atomic.Bool
	release func()
}

func newSubscription(release func()) *Subscription {
	return &Subscription{release: release}
}

// Noop returns a handle with nothing behind it.
func Noop() *Subscription {
	return newSubscription(nil)
}

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.closed.Store(true)
		if s.release != nil {
			s.release()
		}
	})
}

// Closed reports whether Unsubscribe has been called.
func (s *Subscription) Closed() bool {
	if s == nil {
		return true
	}
	return s.closed.Load()
}
