// Package postgres keeps documents in a single jsonb table and turns it into
// a live store with docstore.Hub. With a ChangeFeed configured, writes made on
// one server instance refresh live queries on every other instance too.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
	"github.com/dmitrijs2005/vehiclecheck/internal/wire"
)

type Store struct {
	db   *sql.DB
	hub  *docstore.Hub
	feed ChangeFeed
	log  logging.Logger
	now  func() time.Time
}

type Option func(*Store)

// WithFeed publishes every write to feed; Listen applies remote ones.
func WithFeed(feed ChangeFeed) Option {
	return func(s *Store) { s.feed = feed }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, log: logging.Nop{}, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("module", "docstore_postgres")
	s.hub = docstore.NewHub(s.query, s.log)
	return s
}

var _ docstore.Store = (*Store)(nil)

// Listen applies change notifications from other instances until ctx ends.
// Without a feed it returns immediately.
func (s *Store) Listen(ctx context.Context) error {
	if s.feed == nil {
		return nil
	}
	return s.feed.Listen(ctx, func(collection string) {
		s.hub.Notify(ctx, collection)
	})
}

// Close stops all live queries. The database handle stays open.
func (s *Store) Close() {
	s.hub.Close()
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	query :=
		`SELECT data FROM documents
		 WHERE collection = $1 AND id = $2`

	var raw []byte
	if err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, fmt.Errorf("db error: %w", err)
	}
	data, err := decode(raw)
	if err != nil {
		return docstore.Document{}, err
	}
	return docstore.Document{ID: id, Data: data}, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	return s.query(ctx, q)
}

// query narrows rows with jsonb containment and leaves ordering and limits to
// docstore.Apply, since tagged timestamps do not sort in SQL.
func (s *Store) query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	match := make(map[string]any, len(q.Filters))
	for _, f := range q.Filters {
		if f.Field == docstore.FieldDocumentID {
			continue
		}
		match[f.Field] = f.Value
	}
	filter, err := encode(match)
	if err != nil {
		return nil, err
	}

	query :=
		`SELECT id, data FROM documents
		 WHERE collection = $1 AND data @> $2::jsonb`

	rows, err := s.db.QueryContext(ctx, query, q.Collection, filter)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		data, err := decode(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, docstore.Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return docstore.Apply(q, docs), nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, onSnapshot func(docstore.Snapshot), onError func(error)) (docstore.Unsubscribe, error) {
	return s.hub.Subscribe(ctx, q, onSnapshot, onError)
}

func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	resolved, _ := docstore.ResolveTimestamps(data, s.now())
	raw, err := encode(resolved)
	if err != nil {
		return err
	}

	query :=
		`INSERT INTO documents (collection, id, data)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

	if _, err := s.db.ExecContext(ctx, query, collection, id, raw); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	s.changed(ctx, collection)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, data map[string]any) error {
	resolved, _ := docstore.ResolveTimestamps(data, s.now())
	raw, err := encode(resolved)
	if err != nil {
		return err
	}

	query :=
		`UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		 WHERE collection = $1 AND id = $2`

	res, err := s.db.ExecContext(ctx, query, collection, id, raw)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	s.changed(ctx, collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	query :=
		`DELETE FROM documents
		 WHERE collection = $1 AND id = $2`

	res, err := s.db.ExecContext(ctx, query, collection, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.changed(ctx, collection)
	}
	return nil
}

func (s *Store) changed(ctx context.Context, collection string) {
	s.hub.Notify(ctx, collection)
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, collection); err != nil {
		s.log.Warn(ctx, "publish change", "collection", collection, "error", err)
	}
}

func encode(data map[string]any) ([]byte, error) {
	st, err := wire.EncodeData(data)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(st)
}

func decode(raw []byte) (map[string]any, error) {
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return wire.DecodeData(st), nil
}
