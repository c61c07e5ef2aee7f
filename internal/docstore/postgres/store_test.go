package postgres

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
)

const (
	getQ    = `^SELECT data FROM documents WHERE collection = \$1 AND id = \$2$`
	queryQ  = `^SELECT id, data FROM documents WHERE collection = \$1 AND data @> \$2::jsonb$`
	upsertQ = `^INSERT INTO documents \(collection, id, data\) VALUES \(\$1, \$2, \$3::jsonb\) ON CONFLICT`
	updateQ = `^UPDATE documents SET data = data \|\| \$3::jsonb, updated_at = now\(\) WHERE collection = \$1 AND id = \$2$`
	deleteQ = `^DELETE FROM documents WHERE collection = \$1 AND id = \$2$`
)

var testNow = time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC)

// jsonArg matches a jsonb argument by content, ignoring formatting.
type jsonArg struct{ want string }

func (a jsonArg) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	var got, want any
	if json.Unmarshal(b, &got) != nil || json.Unmarshal([]byte(a.want), &want) != nil {
		return false
	}
	return reflect.DeepEqual(got, want)
}

type fakeFeed struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakeFeed) Publish(_ context.Context, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, collection)
	return f.err
}

func (f *fakeFeed) Listen(ctx context.Context, fn func(string)) error {
	fn("inspections")
	<-ctx.Done()
	return nil
}

func newStore(t *testing.T, opts ...Option) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db, append([]Option{WithClock(func() time.Time { return testNow })}, opts...)...)
	t.Cleanup(s.Close)
	return s, mock
}

func TestGet(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectQuery(getQ).WithArgs("Users", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"name":"Sophia","image":null,"createdAt":{"$time":"2025-09-11T08:00:00Z"}}`)))
	mock.ExpectQuery(getQ).WithArgs("Users", "u2").WillReturnRows(sqlmock.NewRows([]string{"data"}))

	doc, err := s.Get(context.Background(), "Users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.ID)
	assert.Equal(t, "Sophia", doc.String("name"))
	assert.Nil(t, doc.Data["image"])
	require.NotNil(t, doc.Time("createdAt"))
	assert.Equal(t, time.Date(2025, 9, 11, 8, 0, 0, 0, time.UTC), *doc.Time("createdAt"))

	_, err = s.Get(context.Background(), "Users", "u2")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestQuery_FiltersInSQLAndOrdersInProcess(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectQuery(queryQ).
		WithArgs("inspections", jsonArg{`{"userId":"u1"}`}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).
			AddRow("a", []byte(`{"userId":"u1","createdAt":{"$time":"2025-09-02T00:00:00Z"}}`)).
			AddRow("b", []byte(`{"userId":"u1","createdAt":{"$time":"2025-09-11T00:00:00Z"}}`)).
			AddRow("c", []byte(`{"userId":"u1","createdAt":{"$time":"2025-10-01T00:00:00Z"}}`)))

	docs, err := s.Query(context.Background(), docstore.Query{
		Collection: "inspections",
		Filters:    []docstore.Filter{docstore.Where("userId", "u1")},
		OrderBy:    []docstore.Order{{Field: "createdAt", Direction: docstore.Desc}},
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)
}

func TestQuery_DocumentIDFilterStaysInProcess(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectQuery(queryQ).
		WithArgs("Users", jsonArg{`{}`}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).
			AddRow("u1", []byte(`{}`)).
			AddRow("u2", []byte(`{}`)))

	docs, err := s.Query(context.Background(), docstore.Query{
		Collection: "Users",
		Filters:    []docstore.Filter{docstore.Where(docstore.FieldDocumentID, "u2")},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "u2", docs[0].ID)
}

func TestSet_ResolvesServerTimestampAndPublishes(t *testing.T) {
	feed := &fakeFeed{}
	s, mock := newStore(t, WithFeed(feed))

	mock.ExpectExec(upsertQ).
		WithArgs("inspections", "i1", jsonArg{`{"userId":"u1","createdAt":{"$time":"2025-10-15T12:00:00Z"}}`}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Set(context.Background(), "inspections", "i1", map[string]any{
		"userId":    "u1",
		"createdAt": docstore.ServerTimestamp,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"inspections"}, feed.published)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSet_FeedFailureIsNotAWriteFailure(t *testing.T) {
	s, mock := newStore(t, WithFeed(&fakeFeed{err: errors.New("redis down")}))
	mock.ExpectExec(upsertQ).WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, s.Set(context.Background(), "Users", "u1", map[string]any{"name": "x"}))
}

func TestAdd_GeneratesID(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectExec(upsertQ).WithArgs("inspections", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := s.Add(context.Background(), "inspections", map[string]any{"registration": "ABC"})
	require.NoError(t, err)
	assert.Len(t, id, 36)
}

func TestUpdate(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectExec(updateQ).WithArgs("Users", "u1", jsonArg{`{"name":"Sophie"}`}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateQ).WithArgs("Users", "u404", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Update(context.Background(), "Users", "u1", map[string]any{"name": "Sophie"}))
	assert.ErrorIs(t, s.Update(context.Background(), "Users", "u404", map[string]any{"name": "x"}), docstore.ErrNotFound)
}

func TestDelete(t *testing.T) {
	feed := &fakeFeed{}
	s, mock := newStore(t, WithFeed(feed))

	mock.ExpectExec(deleteQ).WithArgs("Users", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteQ).WithArgs("Users", "u1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(deleteQ).WithArgs("Users", "u1").WillReturnError(errors.New("db down"))

	require.NoError(t, s.Delete(context.Background(), "Users", "u1"))
	require.NoError(t, s.Delete(context.Background(), "Users", "u1"), "missing is fine")
	assert.Error(t, s.Delete(context.Background(), "Users", "u1"))
	assert.Equal(t, []string{"Users"}, feed.published, "only real deletes are published")
}

func TestSubscribe_PushesAfterWrite(t *testing.T) {
	s, mock := newStore(t)
	q := docstore.Query{Collection: "Users", Filters: []docstore.Filter{docstore.Where("email", "s@x.io")}}

	mock.ExpectQuery(queryQ).WillReturnRows(sqlmock.NewRows([]string{"id", "data"}))
	mock.ExpectExec(upsertQ).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(queryQ).WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).
		AddRow("u1", []byte(`{"email":"s@x.io"}`)))

	var (
		mu    sync.Mutex
		sizes []int
	)
	unsub, err := s.Subscribe(context.Background(), q, func(snap docstore.Snapshot) {
		mu.Lock()
		sizes = append(sizes, len(snap.Docs))
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, s.Set(context.Background(), "Users", "u1", map[string]any{"email": "s@x.io"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reflect.DeepEqual(sizes, []int{0, 1})
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListen_RemoteChangeRefreshesQueries(t *testing.T) {
	s, mock := newStore(t, WithFeed(&fakeFeed{}))
	q := docstore.Query{Collection: "inspections"}

	mock.ExpectQuery(queryQ).WillReturnRows(sqlmock.NewRows([]string{"id", "data"}))
	mock.ExpectQuery(queryQ).WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).AddRow("i1", []byte(`{}`)))

	got := make(chan int, 4)
	unsub, err := s.Subscribe(context.Background(), q, func(snap docstore.Snapshot) { got <- len(snap.Docs) }, nil)
	require.NoError(t, err)
	defer unsub()
	assert.Equal(t, 0, <-got)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Listen(ctx) }()

	select {
	case n := <-got:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after remote change")
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestListen_WithoutFeed(t *testing.T) {
	s, _ := newStore(t)
	assert.NoError(t, s.Listen(context.Background()))
}

func TestParseMessage(t *testing.T) {
	origin, coll, ok := parseMessage(formatMessage("o1", "Users"))
	assert.True(t, ok)
	assert.Equal(t, "o1", origin)
	assert.Equal(t, "Users", coll)

	for _, bad := range []string{"", "nobar", "|Users", "o1|"} {
		_, _, ok := parseMessage(bad)
		assert.False(t, ok, bad)
	}
}
