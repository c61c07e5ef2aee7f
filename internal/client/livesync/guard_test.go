package livesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSubscriber struct {
	opened   int
	released int
}

func (f *fakeSubscriber) subscribe() *Subscription {
	f.opened++
	return newSubscription(func() { f.released++ })
}

func TestLifecycleGuard_FocusBlurDebounced(t *testing.T) {
	f := &fakeSubscriber{}
	g := NewLifecycleGuard("history", f.subscribe, nil, nil)

	assert.True(t, g.Focus())
	assert.False(t, g.Focus())
	assert.False(t, g.Focus())
	assert.True(t, g.Live())
	assert.Equal(t, 1, f.opened)

	assert.True(t, g.Blur())
	assert.False(t, g.Blur())
	assert.False(t, g.Live())
	assert.Equal(t, 1, f.released)

	assert.True(t, g.Focus())
	assert.True(t, g.Blur())
	assert.Equal(t, 2, f.opened)
	assert.Equal(t, 2, f.released)
	assert.Equal(t, 2, g.Opened())
}

func TestLifecycleGuard_RefocusAfterExternalRelease(t *testing.T) {
	f := &fakeSubscriber{}
	var last *Subscription
	g := NewLifecycleGuard("home", func() *Subscription {
		last = f.subscribe()
		return last
	}, nil, nil)

	g.Focus()
	last.Unsubscribe()

	assert.False(t, g.Live())
	assert.True(t, g.Focus(), "a subscription released elsewhere does not block the next focus")
	assert.Equal(t, 2, f.opened)
}

func TestLifecycleGuard_Unmount(t *testing.T) {
	f := &fakeSubscriber{}
	g := NewLifecycleGuard("profile", f.subscribe, nil, nil)

	g.Focus()
	g.Unmount()
	g.Unmount()

	assert.Equal(t, 1, f.released)
	assert.False(t, g.Focus())
	assert.Equal(t, 1, f.opened)
}

func TestLifecycleGuard_HandleBack(t *testing.T) {
	f := &fakeSubscriber{}
	code := -1
	g := NewLifecycleGuard("home", f.subscribe, func(c int) { code = c }, nil)
	g.Focus()

	assert.False(t, g.HandleBack(false))
	assert.Equal(t, -1, code)
	assert.True(t, g.Live())

	assert.True(t, g.HandleBack(true))
	assert.Equal(t, 0, code)
	assert.False(t, g.Live())
	assert.Equal(t, 1, f.released)
}
