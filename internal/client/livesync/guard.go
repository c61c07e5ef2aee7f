package livesync

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
)

// LifecycleGuard binds a subscription to a screen: Focus opens it, Blur
// releases it, and repeated events in the same direction are no-ops.
type LifecycleGuard struct {
	name      string
	subscribe func() *Subscription
	exit      func(code int)
	log       logging.Logger

	// opMu serializes Focus, Blur and Unmount; subscribe runs under it.
	opMu sync.Mutex

	mu        sync.Mutex
	sub       *Subscription
	unmounted bool
	opened    int
}

// NewLifecycleGuard guards the subscription produced by subscribe. exit is
// called by HandleBack on a root screen; nil disables it.
func NewLifecycleGuard(name string, subscribe func() *Subscription, exit func(int), l logging.Logger) *LifecycleGuard {
	if l == nil {
		l = logging.Nop{}
	}
	return &LifecycleGuard{
		name:      name,
		subscribe: subscribe,
		exit:      exit,
		log:       l.With("module", "lifecycle_guard", "screen", name),
	}
}

// Focus subscribes unless a subscription is already live or the screen is
// unmounted. It reports whether a new subscription was opened.
func (g *LifecycleGuard) Focus() bool {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	g.mu.Lock()
	skip := g.unmounted || (g.sub != nil && !g.sub.Closed())
	g.mu.Unlock()
	if skip {
		return false
	}

	sub := g.subscribe()

	g.mu.Lock()
	g.sub = sub
	g.opened++
	g.mu.Unlock()

	g.log.Debug(context.Background(), "focused")
	return true
}

// Blur releases the live subscription. It reports whether one was released.
func (g *LifecycleGuard) Blur() bool {
	g.opMu.Lock()
	defer g.opMu.Unlock()
	return g.release()
}

// Unmount releases the subscription for good; later Focus calls are ignored.
func (g *LifecycleGuard) Unmount() {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	g.release()
	g.mu.Lock()
	g.unmounted = true
	g.mu.Unlock()
	g.log.Debug(context.Background(), "unmounted")
}

func (g *LifecycleGuard) release() bool {
	g.mu.Lock()
	sub := g.sub
	g.sub = nil
	g.mu.Unlock()

	if sub == nil {
		return false
	}
	sub.Unsubscribe()
	g.log.Debug(context.Background(), "blurred")
	return true
}

// Live reports whether the guarded subscription is open.
func (g *LifecycleGuard) Live() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sub != nil && !g.sub.Closed()
}

// Opened counts subscriptions opened over the guard's lifetime.
func (g *LifecycleGuard) Opened() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opened
}

// HandleBack handles hardware back. On a root screen it ends the process
// instead of navigating and returns true; elsewhere it returns false and the
// caller navigates as usual.
func (g *LifecycleGuard) HandleBack(atRoot bool) bool {
	if !atRoot {
		return false
	}
	g.Unmount()
	g.log.Info(context.Background(), "back at root screen, exiting")
	if g.exit != nil {
		g.exit(0)
	}
	return true
}
