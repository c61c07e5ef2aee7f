package livesync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
	"github.com/dmitrijs2005/vehiclecheck/internal/common"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore/memory"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

var testNow = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

type credSource struct {
	mu sync.Mutex
	c  *models.Credentials
}

func (s *credSource) Load(context.Context) *models.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	c := *s.c
	return &c
}

func (s *credSource) set(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if email == "" {
		s.c = nil
		return
	}
	s.c = &models.Credentials{Email: email, Secret: "secret1"}
}

// countingStore records how often each read path is used.
type countingStore struct {
	docstore.Store
	gets, queries, subscribes atomic.Int32
}

func (c *countingStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	c.gets.Add(1)
	return c.Store.Get(ctx, collection, id)
}

func (c *countingStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	c.queries.Add(1)
	return c.Store.Query(ctx, q)
}

func (c *countingStore) Subscribe(ctx context.Context, q docstore.Query, on func(docstore.Snapshot), onErr func(error)) (docstore.Unsubscribe, error) {
	c.subscribes.Add(1)
	return c.Store.Subscribe(ctx, q, on, onErr)
}

// heldStore opens live queries that deliver only when the test says so.
type heldStore struct {
	docstore.Store
	mu         sync.Mutex
	onSnapshot func(docstore.Snapshot)
}

func (h *heldStore) Subscribe(_ context.Context, _ docstore.Query, on func(docstore.Snapshot), _ func(error)) (docstore.Unsubscribe, error) {
	h.mu.Lock()
	h.onSnapshot = on
	h.mu.Unlock()
	return func() {}, nil
}

// emit plays a snapshot the backend had already sent.
func (h *heldStore) emit(docs ...docstore.Document) {
	h.mu.Lock()
	on := h.onSnapshot
	h.mu.Unlock()
	on(docstore.Snapshot{Docs: docs, ReadAt: testNow})
}

func newStore(t *testing.T, opts ...memory.Option) *memory.Store {
	t.Helper()
	s := memory.New(append([]memory.Option{memory.WithClock(func() time.Time { return testNow })}, opts...)...)
	t.Cleanup(s.Close)
	return s
}

func putUser(t *testing.T, s docstore.Store, id, name, email string) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), common.CollectionUsers, id, map[string]any{
		models.FieldName:      name,
		models.FieldEmail:     email,
		models.FieldImage:     nil,
		models.FieldCreatedAt: testNow.AddDate(0, -6, 0),
	}))
}

func putInspection(t *testing.T, s docstore.Store, id, userID string, created any, checks ...string) {
	t.Helper()
	data := map[string]any{
		models.FieldUserID:       userID,
		models.FieldRegistration: "ABC-1234",
		models.FieldComments:     "",
		models.FieldCreatedAt:    created,
	}
	fields := []string{models.FieldBrakes, models.FieldLights, models.FieldSeatBelt, models.FieldHandBrake}
	for i, c := range checks {
		data[fields[i]] = c
	}
	require.NoError(t, s.Set(context.Background(), common.CollectionInspections, id, data))
}

// latest collects callback values and hands back the most recent one.
type latest[T any] struct {
	mu    sync.Mutex
	calls int
	last  T
	all   []T
}

func (l *latest[T]) put(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.last = v
	l.all = append(l.all, v)
}

func (l *latest[T]) get() (T, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.calls
}

func (l *latest[T]) count() int {
	_, n := l.get()
	return n
}
