// Package firestore adapts a Cloud Firestore database to docstore.Store, so
// the backend can sit in front of the same hosted database the mobile app
// was originally built on.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
)

type Store struct {
	client *firestore.Client
	log    logging.Logger
}

// New connects to projectID with application default credentials.
func New(ctx context.Context, projectID string, l logging.Logger) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Store{client: client, log: l.With("module", "docstore_firestore")}, nil
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return docstore.Document{}, mapError(err)
	}
	return toDocument(snap), nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	snaps, err := s.query(q).Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	return toDocuments(snaps), nil
}

// Subscribe waits for the first snapshot so setup errors surface here, then
// streams the rest from a goroutine until unsubscribed.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query, onSnapshot func(docstore.Snapshot), onError func(error)) (docstore.Unsubscribe, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	it := s.query(q).Snapshots(streamCtx)

	first, err := it.Next()
	if err != nil {
		it.Stop()
		cancel()
		return nil, mapError(err)
	}
	initial, err := toSnapshot(first)
	if err != nil {
		it.Stop()
		cancel()
		return nil, mapError(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		onSnapshot(initial)
		for {
			qs, err := it.Next()
			if err != nil {
				if streamCtx.Err() == nil && !errors.Is(err, iterator.Done) && onError != nil {
					s.log.Warn(streamCtx, "snapshot stream ended", "collection", q.Collection, "error", err)
					onError(mapError(err))
				}
				return
			}
			snap, err := toSnapshot(qs)
			if err != nil {
				if onError != nil {
					onError(mapError(err))
				}
				return
			}
			onSnapshot(snap)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			it.Stop()
		})
	}, nil
}

func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, toFirestoreData(data))
	if err != nil {
		return "", mapError(err)
	}
	return ref.ID, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	_, err := s.client.Collection(collection).Doc(id).Set(ctx, toFirestoreData(data))
	return mapError(err)
}

func (s *Store) Update(ctx context.Context, collection, id string, data map[string]any) error {
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, toUpdates(data))
	return mapError(err)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx)
	return mapError(err)
}

func (s *Store) query(q docstore.Query) firestore.Query {
	coll := s.client.Collection(q.Collection)
	fq := coll.Query
	for _, f := range q.Filters {
		if f.Field == docstore.FieldDocumentID {
			id, _ := f.Value.(string)
			fq = fq.Where(firestore.DocumentID, string(f.Op), coll.Doc(id))
			continue
		}
		fq = fq.Where(f.Field, string(f.Op), toFirestoreValue(f.Value))
	}
	for _, o := range q.OrderBy {
		fq = fq.OrderBy(o.Field, direction(o.Direction))
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

func toSnapshot(qs *firestore.QuerySnapshot) (docstore.Snapshot, error) {
	snaps, err := qs.Documents.GetAll()
	if err != nil {
		return docstore.Snapshot{}, err
	}
	return docstore.Snapshot{Docs: toDocuments(snaps), ReadAt: qs.ReadTime}, nil
}

func toDocuments(snaps []*firestore.DocumentSnapshot) []docstore.Document {
	out := make([]docstore.Document, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, toDocument(s))
	}
	return out
}

func toDocument(snap *firestore.DocumentSnapshot) docstore.Document {
	return docstore.Document{ID: snap.Ref.ID, Data: fromFirestoreData(snap.Data())}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return docstore.ErrNotFound
	}
	return fmt.Errorf("firestore: %w", err)
}
