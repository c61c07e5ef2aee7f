// Package memory is an in-process docstore.Store. The server uses it as the
// "memory" backend and tests use it as a stand-in for the hosted database.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
)

// Operation names accepted by FailOn.
const (
	OpGet       = "get"
	OpQuery     = "query"
	OpSubscribe = "subscribe"
	OpAdd       = "add"
	OpSet       = "set"
	OpUpdate    = "update"
	OpDelete    = "delete"
)

type Option func(*Store)

// WithClock replaces time.Now as the source of server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTimestampDelay keeps ServerTimestamp fields nil for d after a write,
// the way a hosted backend reports them before the write is acknowledged.
func WithTimestampDelay(d time.Duration) Option {
	return func(s *Store) { s.tsDelay = d }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

type pendingStamp struct {
	collection string
	id         string
	fields     []string
	timer      *time.Timer
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	failures    map[string]error
	pending     map[*pendingStamp]struct{}

	now     func() time.Time
	tsDelay time.Duration
	log     logging.Logger
	hub     *docstore.Hub
}

var _ docstore.Store = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]map[string]any),
		failures:    make(map[string]error),
		pending:     make(map[*pendingStamp]struct{}),
		now:         time.Now,
		log:         logging.Nop{},
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("module", "docstore_memory")
	s.hub = docstore.NewHub(s.run, s.log)
	return s
}

// FailOn makes every subsequent op on collection return err. An empty
// collection matches all collections; a nil err clears the failure.
func (s *Store) FailOn(op, collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := op + "/" + collection
	if err == nil {
		delete(s.failures, key)
		return
	}
	s.failures[key] = err
}

func (s *Store) failure(op, collection string) error {
	if err, ok := s.failures[op+"/"+collection]; ok {
		return err
	}
	return s.failures[op+"/"]
}

// ActiveSubscriptions reports how many live queries are currently open.
func (s *Store) ActiveSubscriptions() int {
	return s.hub.Active()
}

// Close stops every live query and pending timestamp.
func (s *Store) Close() {
	s.mu.Lock()
	for p := range s.pending {
		p.timer.Stop()
	}
	s.pending = make(map[*pendingStamp]struct{})
	s.mu.Unlock()

	s.hub.Close()
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure(OpGet, collection); err != nil {
		return docstore.Document{}, err
	}
	data, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return docstore.Document{ID: id, Data: docstore.CloneData(data)}, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.RLock()
	err := s.failure(OpQuery, q.Collection)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return s.run(ctx, q)
}

func (s *Store) run(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]docstore.Document, 0, len(s.collections[q.Collection]))
	for id, data := range s.collections[q.Collection] {
		docs = append(docs, docstore.Document{ID: id, Data: docstore.CloneData(data)})
	}
	return docstore.Apply(q, docs), nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, onSnapshot func(docstore.Snapshot), onError func(error)) (docstore.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	err := s.failure(OpSubscribe, q.Collection)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, q, onSnapshot, onError)
}

func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.write(ctx, OpAdd, collection, id, data, false); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	return s.write(ctx, OpSet, collection, id, data, false)
}

func (s *Store) Update(ctx context.Context, collection, id string, data map[string]any) error {
	return s.write(ctx, OpUpdate, collection, id, data, true)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	if err := s.failure(OpDelete, collection); err != nil {
		s.mu.Unlock()
		return err
	}
	_, existed := s.collections[collection][id]
	delete(s.collections[collection], id)
	s.mu.Unlock()

	if existed {
		s.hub.Notify(ctx, collection)
	}
	return nil
}

func (s *Store) write(ctx context.Context, op, collection, id string, data map[string]any, merge bool) error {
	s.mu.Lock()
	if err := s.failure(op, collection); err != nil {
		s.mu.Unlock()
		return err
	}

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]map[string]any)
		s.collections[collection] = docs
	}

	current, exists := docs[id]
	if merge && !exists {
		s.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}

	resolved, stamped := docstore.ResolveTimestamps(data, s.now())
	if s.tsDelay > 0 {
		for _, f := range stamped {
			resolved[f] = nil
		}
	}

	if merge {
		next := docstore.CloneData(current)
		for k, v := range resolved {
			next[k] = v
		}
		docs[id] = next
	} else {
		docs[id] = resolved
	}

	if s.tsDelay > 0 && len(stamped) > 0 {
		s.schedule(collection, id, stamped)
	}
	s.mu.Unlock()

	s.hub.Notify(ctx, collection)
	return nil
}

// schedule must be called with s.mu held.
func (s *Store) schedule(collection, id string, fields []string) {
	p := &pendingStamp{collection: collection, id: id, fields: fields}
	p.timer = time.AfterFunc(s.tsDelay, func() { s.resolve(p) })
	s.pending[p] = struct{}{}
}

func (s *Store) resolve(p *pendingStamp) {
	s.mu.Lock()
	if _, ok := s.pending[p]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, p)

	data, ok := s.collections[p.collection][p.id]
	if ok {
		now := s.now()
		for _, f := range p.fields {
			if data[f] == nil {
				data[f] = now
			}
		}
	}
	s.mu.Unlock()

	if ok {
		s.hub.Notify(context.Background(), p.collection)
	}
}

// ResolvePending resolves every outstanding server timestamp right away.
func (s *Store) ResolvePending() {
	s.mu.Lock()
	list := make([]*pendingStamp, 0, len(s.pending))
	for p := range s.pending {
		p.timer.Stop()
		list = append(list, p)
	}
	s.mu.Unlock()

	for _, p := range list {
		s.resolve(p)
	}
}
