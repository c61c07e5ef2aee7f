package identity

import (
	"sort"
	"sync"
)

// Broadcaster keeps the current identity and fans changes out to listeners.
// Deliveries are serialized: a listener sees changes in the order Set was
// called. Listeners may unsubscribe from inside a callback but must not
// subscribe.
type Broadcaster struct {
	deliverMu sync.Mutex

	mu        sync.Mutex
	current   *Identity
	next      int
	listeners map[int]func(*Identity)
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[int]func(*Identity))}
}

func (b *Broadcaster) Current() *Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return clone(b.current)
}

// Set records id as current and notifies every listener.
func (b *Broadcaster) Set(id *Identity) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	b.current = clone(id)
	keys := make([]int, 0, len(b.listeners))
	for k := range b.listeners {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	fns := make([]func(*Identity), 0, len(keys))
	for _, k := range keys {
		fns = append(fns, b.listeners[k])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(clone(id))
	}
}

// Subscribe registers fn and immediately calls it with the current identity.
func (b *Broadcaster) Subscribe(fn func(*Identity)) func() {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	b.next++
	key := b.next
	b.listeners[key] = fn
	cur := clone(b.current)
	b.mu.Unlock()

	fn(cur)

	return func() {
		b.mu.Lock()
		delete(b.listeners, key)
		b.mu.Unlock()
	}
}

// Listeners returns the number of registered listeners.
func (b *Broadcaster) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func clone(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
