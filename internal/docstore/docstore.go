// Package docstore describes the hosted document database the app is built
// on: collections of schemaless documents, equality queries with ordering,
// point reads, writes and live query subscriptions.
//
// Backends live in subpackages (memory, postgres, firestore); the gRPC client
// in internal/client/client implements the same interface remotely.
package docstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("document not found")

type serverTimestamp struct{}

// ServerTimestamp, used as a field value on write, asks the backend to store
// its own clock reading. Until the backend resolves it readers may observe a
// nil value for the field.
var ServerTimestamp any = serverTimestamp{}

func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Document is a single record. Data values are strings, bools, numbers,
// time.Time, nil, or nested maps/slices of those.
type Document struct {
	ID   string
	Data map[string]any
}

// String returns the field as a string, or "" if missing or not a string.
func (d Document) String(field string) string {
	s, _ := d.Data[field].(string)
	return s
}

// StringPtr returns nil when the field is missing, nil or not a string.
func (d Document) StringPtr(field string) *string {
	s, ok := d.Data[field].(string)
	if !ok {
		return nil
	}
	return &s
}

// Time returns the field as a time, or nil when absent or still pending.
func (d Document) Time(field string) *time.Time {
	switch v := d.Data[field].(type) {
	case time.Time:
		return &v
	case *time.Time:
		return v
	default:
		return nil
	}
}

type Op string

const OpEqual Op = "=="

type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

type Order struct {
	Field     string
	Direction Direction
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    []Order
	// Limit caps the result size; zero means unlimited.
	Limit int
}

// Snapshot is the full result of a live query at one point in time.
type Snapshot struct {
	Docs   []Document
	ReadAt time.Time
}

// Unsubscribe stops a live query. It is safe to call more than once.
type Unsubscribe func()

type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)

	// Subscribe runs q and then keeps it live: onSnapshot receives the initial
	// result and a new snapshot after every change affecting it, in the order
	// the backend emits them. ctx only bounds the setup; the subscription
	// lives until the returned Unsubscribe is called.
	Subscribe(ctx context.Context, q Query, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error)

	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	Set(ctx context.Context, collection, id string, data map[string]any) error
	// Update merges data into an existing document; ErrNotFound if missing.
	Update(ctx context.Context, collection, id string, data map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}
