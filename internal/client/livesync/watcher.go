package livesync

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/vehiclecheck/internal/identity"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
)

// SessionWatcher turns identity-provider notifications into a single
// callback and tears down the dependent record subscription on every
// transition, before the callback runs.
type SessionWatcher struct {
	provider identity.Provider
	log      logging.Logger

	// transitionMu serializes transitions: the teardown of one finishes
	// before the next callback can open a new subscription.
	transitionMu sync.Mutex

	stateMu   sync.Mutex
	watch     *Subscription
	nested    *Subscription
	last      *identity.Identity
	delivered bool
	closed    bool
}

func NewSessionWatcher(p identity.Provider, l logging.Logger) *SessionWatcher {
	if l == nil {
		l = logging.Nop{}
	}
	return &SessionWatcher{provider: p, log: l.With("module", "session_watcher")}
}

// Watch registers one provider listener. onChange receives the current
// identity right away and then every distinct identity, nil meaning signed
// out. A second Watch replaces the first. onChange must not sign in or out
// synchronously.
func (w *SessionWatcher) Watch(onChange func(*identity.Identity)) *Subscription {
	w.stateMu.Lock()
	prev := w.watch
	w.stateMu.Unlock()
	prev.Unsubscribe()

	w.stateMu.Lock()
	w.closed = false
	w.delivered = false
	w.last = nil
	w.stateMu.Unlock()

	// The provider may call back before OnIdentityChange returns, so the
	// release func is wired through a variable.
	var providerUnsub func()
	var providerMu sync.Mutex
	released := false

	sub := newSubscription(func() {
		w.stateMu.Lock()
		w.closed = true
		nested := w.nested
		w.nested = nil
		w.stateMu.Unlock()

		providerMu.Lock()
		released = true
		unsub := providerUnsub
		providerMu.Unlock()
		if unsub != nil {
			unsub()
		}
		nested.Unsubscribe()
	})

	w.stateMu.Lock()
	w.watch = sub
	w.stateMu.Unlock()

	unsub := w.provider.OnIdentityChange(func(id *identity.Identity) {
		w.transition(sub, id, onChange)
	})

	providerMu.Lock()
	providerUnsub = unsub
	late := released
	providerMu.Unlock()
	if late {
		unsub()
	}

	return sub
}

// Attach hands the watcher a back-reference to the record subscription that
// depends on the current identity. The watcher does not own it: it only
// releases it on the next transition or when the watch ends.
func (w *SessionWatcher) Attach(sub *Subscription) {
	w.stateMu.Lock()
	if w.closed || w.watch == nil {
		w.stateMu.Unlock()
		sub.Unsubscribe()
		return
	}
	prev := w.nested
	w.nested = sub
	w.stateMu.Unlock()

	if prev != sub {
		prev.Unsubscribe()
	}
}

// Current returns the last identity delivered to onChange.
func (w *SessionWatcher) Current() *identity.Identity {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if w.last == nil {
		return nil
	}
	c := *w.last
	return &c
}

func (w *SessionWatcher) transition(watch *Subscription, id *identity.Identity, onChange func(*identity.Identity)) {
	w.transitionMu.Lock()
	defer w.transitionMu.Unlock()

	w.stateMu.Lock()
	if w.closed || w.watch != watch || watch.Closed() {
		w.stateMu.Unlock()
		return
	}
	if w.delivered && identity.Same(w.last, id) {
		w.stateMu.Unlock()
		return
	}
	nested := w.nested
	w.nested = nil
	w.last = id
	w.delivered = true
	w.stateMu.Unlock()

	nested.Unsubscribe()

	ctx := context.Background()
	if id == nil {
		w.log.Info(ctx, "identity cleared")
	} else {
		w.log.Info(ctx, "identity changed", "user_id", id.UserID)
	}
	onChange(id)
}
