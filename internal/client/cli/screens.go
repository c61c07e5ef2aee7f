package cli

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/livesync"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
)

type screen string

const (
	screenOnboarding  screen = "onboarding"
	screenSignUp      screen = "signup"
	screenLogin       screen = "login"
	screenReset       screen = "reset"
	screenHome        screen = "home"
	screenHistory     screen = "history"
	screenDetails     screen = "details"
	screenProfile     screen = "profile"
	screenEditProfile screen = "editprofile"
)

// root screens start a new stack; back on them exits.
func (s screen) root() bool {
	return s == screenOnboarding || s == screenHome
}

// live screens render the signed-in user's data and hold a pipeline
// subscription while focused.
func (s screen) live() bool {
	switch s {
	case screenHome, screenHistory, screenDetails, screenProfile, screenEditProfile:
		return true
	}
	return false
}

// navigator is the screen stack. Each screen gets one LifecycleGuard; the
// screen being left is blurred before the next one is focused, so at most one
// screen holds a subscription at a time.
type navigator struct {
	subscribe func(screen) *livesync.Subscription
	log       logging.Logger

	mu     sync.Mutex
	stack  []screen
	guards map[screen]*livesync.LifecycleGuard
	exited bool
}

func newNavigator(subscribe func(screen) *livesync.Subscription, l logging.Logger) *navigator {
	return &navigator{
		subscribe: subscribe,
		log:       l.With("module", "navigator"),
		guards:    make(map[screen]*livesync.LifecycleGuard),
	}
}

// guard must be called with n.mu held.
func (n *navigator) guard(s screen) *livesync.LifecycleGuard {
	g, ok := n.guards[s]
	if !ok {
		g = livesync.NewLifecycleGuard(string(s), func() *livesync.Subscription {
			return n.subscribe(s)
		}, func(int) {
			// HandleBack runs under n.mu.
			n.exited = true
		}, n.log)
		n.guards[s] = g
	}
	return g
}

func (n *navigator) top() screen {
	if len(n.stack) == 0 {
		return ""
	}
	return n.stack[len(n.stack)-1]
}

// open shows s. A root screen replaces the whole stack, any other screen is
// pushed. Opening the screen already on top only refocuses it.
func (n *navigator) open(s screen) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.top() == s {
		n.guard(s).Focus()
		return
	}
	if top := n.top(); top != "" {
		n.guard(top).Blur()
	}
	if s.root() {
		n.stack = n.stack[:0]
	}
	n.stack = append(n.stack, s)
	n.guard(s).Focus()
	n.log.Debug(context.Background(), "screen opened", "screen", string(s), "depth", len(n.stack))
}

// back pops the current screen and focuses the one below. On a root screen,
// or with nothing below, it reports true: the client should exit.
func (n *navigator) back() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	top := n.top()
	if len(n.stack) <= 1 {
		if top == "" {
			top = screenOnboarding
		}
		n.guard(top).HandleBack(true)
		return n.exited
	}
	n.guard(top).Blur()
	n.stack = n.stack[:len(n.stack)-1]
	n.guard(n.top()).Focus()
	return false
}

func (n *navigator) current() screen {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.top()
}

func (n *navigator) unmountAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, g := range n.guards {
		g.Unmount()
	}
}

// viewBox holds the latest pipeline view and wakes waiters on every change.
type viewBox struct {
	mu      sync.Mutex
	view    livesync.View
	changed chan struct{}
}

func newViewBox() *viewBox {
	return &viewBox{changed: make(chan struct{})}
}

func (b *viewBox) set(v livesync.View) {
	b.mu.Lock()
	b.view = v
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()
}

func (b *viewBox) get() livesync.View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view
}

// wait returns the latest view as soon as ready accepts it, or whatever view
// is current once timeout passes or ctx is done. ok reports which.
func (b *viewBox) wait(ctx context.Context, timeout time.Duration, ready func(livesync.View) bool) (livesync.View, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		v, changed := b.view, b.changed
		b.mu.Unlock()

		if ready(v) {
			return v, true
		}
		select {
		case <-changed:
		case <-deadline.C:
			return b.get(), false
		case <-ctx.Done():
			return b.get(), false
		}
	}
}

func (a *App) subscriptionFor(s screen) *livesync.Subscription {
	if !s.live() {
		return livesync.Noop()
	}
	return a.pipeline.Start(a.ctx)
}

func dataLive(v livesync.View) bool {
	return v.State == livesync.StateDataLive
}

// awaitData waits for the focused screen's first live snapshot. When it does
// not arrive in time the screen renders what it has.
func (a *App) awaitData(ctx context.Context) livesync.View {
	v, ok := a.views.wait(ctx, a.config.FirstSnapshotWait, dataLive)
	if !ok {
		a.log.Debug(ctx, "first snapshot did not arrive in time", "state", v.State.String())
	}
	return v
}
