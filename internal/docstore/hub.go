package docstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
)

// Runner executes a one-off query against the backing storage.
type Runner func(ctx context.Context, q Query) ([]Document, error)

// Hub turns a storage without native change streams into one with live
// queries. Writers call Notify after each change; the hub re-runs the
// affected queries and pushes a snapshot to every watcher whose result
// changed.
//
// Each watcher has its own delivery goroutine, so snapshots reach a
// subscriber in emission order and a slow subscriber does not block others.
type Hub struct {
	run Runner
	log logging.Logger
	now func() time.Time

	// notifyMu serializes re-evaluation so snapshots are enqueued in the
	// same order the writes were applied.
	notifyMu sync.Mutex

	mu       sync.Mutex
	next     uint64
	watchers map[uint64]*watcher
}

func NewHub(run Runner, log logging.Logger) *Hub {
	if log == nil {
		log = logging.Nop{}
	}
	return &Hub{
		run:      run,
		log:      log.With("module", "docstore_hub"),
		now:      time.Now,
		watchers: make(map[uint64]*watcher),
	}
}

type watcher struct {
	q          Query
	onSnapshot func(Snapshot)
	onError    func(error)

	active atomic.Bool
	done   chan struct{}
	signal chan struct{}

	mu      sync.Mutex
	queue   []Snapshot
	last    []Document
	errored bool
}

// Subscribe evaluates q once, queues the initial snapshot and keeps q live.
func (h *Hub) Subscribe(ctx context.Context, q Query, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error) {
	// Holding notifyMu keeps a concurrent write from slipping in between the
	// initial evaluation and registration.
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	docs, err := h.run(ctx, q)
	if err != nil {
		return nil, err
	}

	w := &watcher{
		q:          q,
		onSnapshot: onSnapshot,
		onError:    onError,
		done:       make(chan struct{}),
		signal:     make(chan struct{}, 1),
		last:       docs,
	}
	w.active.Store(true)
	w.push(Snapshot{Docs: docs, ReadAt: h.now()})

	h.mu.Lock()
	h.next++
	id := h.next
	h.watchers[id] = w
	h.mu.Unlock()

	go w.loop()

	return func() {
		w.stop()
		h.mu.Lock()
		delete(h.watchers, id)
		h.mu.Unlock()
	}, nil
}

// Notify re-evaluates every live query on collection.
func (h *Hub) Notify(ctx context.Context, collection string) {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	for _, w := range h.watching(collection) {
		if !w.active.Load() {
			continue
		}
		docs, err := h.run(ctx, w.q)
		if err != nil {
			h.log.Warn(ctx, "live query refresh failed", "collection", collection, "error", err)
			w.fail(err)
			continue
		}
		w.mu.Lock()
		changed := !SameDocs(w.last, docs)
		if changed {
			w.last = docs
		}
		w.mu.Unlock()
		if changed {
			w.push(Snapshot{Docs: docs, ReadAt: h.now()})
		}
	}
}

// Active returns the number of live subscriptions.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

// Close stops every live subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	ws := h.watchers
	h.watchers = make(map[uint64]*watcher)
	h.mu.Unlock()

	for _, w := range ws {
		w.stop()
	}
}

func (h *Hub) watching(collection string) []*watcher {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*watcher, 0, len(h.watchers))
	for _, w := range h.watchers {
		if w.q.Collection == collection {
			out = append(out, w)
		}
	}
	return out
}

func (w *watcher) stop() {
	if w.active.CompareAndSwap(true, false) {
		close(w.done)
	}
}

func (w *watcher) push(s Snapshot) {
	w.mu.Lock()
	w.queue = append(w.queue, s)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) fail(err error) {
	w.mu.Lock()
	first := !w.errored
	w.errored = true
	w.mu.Unlock()

	if first && w.onError != nil && w.active.Load() {
		w.onError(err)
	}
}

func (w *watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case <-w.signal:
		}

		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, s := range batch {
			if !w.active.Load() {
				return
			}
			w.onSnapshot(s)
		}
	}
}
