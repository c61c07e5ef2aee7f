package livesync

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
	"github.com/dmitrijs2005/vehiclecheck/internal/common"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore/memory"
	"github.com/dmitrijs2005/vehiclecheck/internal/identity"
)

func TestUserRecordSync_NoStoredEmail(t *testing.T) {
	store := newStore(t)
	cs := &countingStore{Store: store}
	creds := &credSource{}
	s := NewUserRecordSync(cs, creds, nil, nil)

	got := &latest[*models.UserRecord]{}
	sub := s.Subscribe(context.Background(), nil, got.put)
	defer sub.Unsubscribe()

	rec, n := got.get()
	assert.Equal(t, 1, n, "nil is delivered synchronously")
	assert.Nil(t, rec)
	assert.Zero(t, cs.subscribes.Load())
}

func TestUserRecordSync_ZeroMatches(t *testing.T) {
	store := newStore(t)
	creds := &credSource{}
	creds.set("ghost@example.com")
	s := NewUserRecordSync(store, creds, nil, nil)

	got := &latest[*models.UserRecord]{}
	sub := s.Subscribe(context.Background(), nil, got.put)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return got.count() == 1 }, waitFor, tick)
	rec, _ := got.get()
	assert.Nil(t, rec)
}

func TestUserRecordSync_DeliversEveryUpdate(t *testing.T) {
	store := newStore(t)
	putUser(t, store, "u1", "Sophia", "sophia@example.com")
	creds := &credSource{}
	creds.set("sophia@example.com")
	s := NewUserRecordSync(store, creds, nil, nil)
	ctx := context.Background()

	got := &latest[*models.UserRecord]{}
	sub := s.Subscribe(ctx, &identity.Identity{UserID: "u1", Email: "sophia@example.com"}, got.put)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return got.count() == 1 }, waitFor, tick)
	rec, _ := got.get()
	require.NotNil(t, rec)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "Sophia", rec.Name)
	assert.Nil(t, rec.Image)
	require.NotNil(t, rec.CreatedAt)

	// An update to a field nobody displays still produces a callback.
	require.NoError(t, store.Update(ctx, common.CollectionUsers, "u1", map[string]any{"lastSeen": "today"}))
	require.Eventually(t, func() bool { return got.count() == 2 }, waitFor, tick)

	require.NoError(t, store.Update(ctx, common.CollectionUsers, "u1", map[string]any{models.FieldName: "Sophie"}))
	require.Eventually(t, func() bool {
		rec, _ := got.get()
		return rec != nil && rec.Name == "Sophie"
	}, waitFor, tick)

	require.NoError(t, store.Delete(ctx, common.CollectionUsers, "u1"))
	require.Eventually(t, func() bool {
		rec, n := got.get()
		return n == 4 && rec == nil
	}, waitFor, tick)
}

func TestUserRecordSync_SeveralMatchesIsNil(t *testing.T) {
	store := newStore(t)
	putUser(t, store, "u1", "A", "dup@example.com")
	putUser(t, store, "u2", "B", "dup@example.com")
	creds := &credSource{}
	creds.set("dup@example.com")
	s := NewUserRecordSync(store, creds, nil, nil)

	got := &latest[*models.UserRecord]{}
	sub := s.Subscribe(context.Background(), nil, got.put)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return got.count() == 1 }, waitFor, tick)
	rec, _ := got.get()
	assert.Nil(t, rec)
}

func TestUserRecordSync_StaleEmailForAnotherAccount(t *testing.T) {
	store := newStore(t)
	putUser(t, store, "other", "Other", "shared@example.com")
	creds := &credSource{}
	creds.set("shared@example.com")
	s := NewUserRecordSync(store, creds, nil, nil)

	got := &latest[*models.UserRecord]{}
	sub := s.Subscribe(context.Background(), &identity.Identity{UserID: "me"}, got.put)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return got.count() == 1 }, waitFor, tick)
	rec, _ := got.get()
	assert.Nil(t, rec)
}

func TestUserRecordSync_IdempotentResubscribe(t *testing.T) {
	store := newStore(t)
	putUser(t, store, "u1", "Sophia", "sophia@example.com")
	creds := &credSource{}
	creds.set("sophia@example.com")
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := NewUserRecordSync(store, creds, nil, m)
	ctx := context.Background()

	first := &latest[*models.UserRecord]{}
	second := &latest[*models.UserRecord]{}

	subA := s.Subscribe(ctx, nil, first.put)
	subB := s.Subscribe(ctx, nil, second.put)

	assert.Equal(t, 1, store.ActiveSubscriptions())
	assert.True(t, subA.Closed())
	assert.False(t, subB.Closed())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveSubscriptions.WithLabelValues(KindUser)))

	require.Eventually(t, func() bool { return second.count() == 1 }, waitFor, tick)

	// Only the live subscription sees later updates.
	before := first.count()
	require.NoError(t, store.Update(ctx, common.CollectionUsers, "u1", map[string]any{models.FieldName: "Sophie"}))
	require.Eventually(t, func() bool { return second.count() == 2 }, waitFor, tick)
	assert.Equal(t, before, first.count())

	subA.Unsubscribe()
	assert.Equal(t, 1, store.ActiveSubscriptions(), "releasing a replaced handle leaves the live one alone")

	s.Unsubscribe()
	assert.Equal(t, 0, store.ActiveSubscriptions())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LiveSubscriptions.WithLabelValues(KindUser)))
}

func TestUserRecordSync_SubscribeFailureIsNil(t *testing.T) {
	store := newStore(t)
	store.FailOn(memory.OpSubscribe, common.CollectionUsers, assert.AnError)
	creds := &credSource{}
	creds.set("sophia@example.com")
	s := NewUserRecordSync(store, creds, nil, nil)

	got := &latest[*models.UserRecord]{}
	sub := s.Subscribe(context.Background(), nil, got.put)
	defer sub.Unsubscribe()

	rec, n := got.get()
	assert.Equal(t, 1, n)
	assert.Nil(t, rec)
	assert.Equal(t, 0, store.ActiveSubscriptions())
}

func TestUserRecordSync_LateSnapshotAfterUnsubscribeIsDropped(t *testing.T) {
	store := &heldStore{Store: newStore(t)}
	creds := &credSource{}
	creds.set("sophia@example.com")
	m := NewMetrics(nil)
	s := NewUserRecordSync(store, creds, nil, m)

	got := &latest[*models.UserRecord]{}
	sub := s.Subscribe(context.Background(), nil, got.put)
	store.emit(docstore.Document{ID: "u1", Data: map[string]any{models.FieldEmail: "sophia@example.com"}})
	require.Equal(t, 1, got.count())

	sub.Unsubscribe()
	store.emit(docstore.Document{ID: "u1", Data: map[string]any{models.FieldEmail: "sophia@example.com"}})

	assert.Equal(t, 1, got.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleCallbacks.WithLabelValues(KindUser)))
}
