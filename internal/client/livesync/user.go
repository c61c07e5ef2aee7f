package livesync

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
	"github.com/dmitrijs2005/vehiclecheck/internal/common"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/identity"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
)

// CredentialSource yields the locally stored session, or nil.
type CredentialSource interface {
	Load(ctx context.Context) *models.Credentials
}

// UserRecordSync keeps one live query on the signed-in user's record. The
// record is found by the email in the local credential store, so the user is
// known before the identity provider finishes its handshake.
type UserRecordSync struct {
	store   docstore.Store
	creds   CredentialSource
	log     logging.Logger
	metrics *Metrics

	// subscribeMu serializes Subscribe so at most one remote query exists.
	subscribeMu sync.Mutex

	mu      sync.Mutex
	gen     uint64
	current *Subscription
}

func NewUserRecordSync(store docstore.Store, creds CredentialSource, l logging.Logger, m *Metrics) *UserRecordSync {
	if l == nil {
		l = logging.Nop{}
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	return &UserRecordSync{
		store:   store,
		creds:   creds,
		log:     l.With("module", "user_sync"),
		metrics: m,
	}
}

// Subscribe releases any previous subscription, then calls callback with the
// user record on every snapshot, or with nil when the stored email is absent
// or does not resolve to exactly one record. id may be nil; when it carries a
// user id, a record with a different id is reported as nil.
func (s *UserRecordSync) Subscribe(ctx context.Context, id *identity.Identity, callback func(*models.UserRecord)) *Subscription {
	s.subscribeMu.Lock()

	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	prev.Unsubscribe()

	creds := s.creds.Load(ctx)
	if creds == nil || creds.Email == "" {
		s.log.Info(ctx, "no email stored, user unresolved")
		s.subscribeMu.Unlock()
		s.deliver(gen, nil, callback)
		return Noop()
	}

	q := docstore.Query{
		Collection: common.CollectionUsers,
		Filters:    []docstore.Filter{docstore.Where(models.FieldEmail, creds.Email)},
	}

	onSnapshot := func(snap docstore.Snapshot) {
		s.deliver(gen, s.resolve(ctx, id, creds.Email, snap.Docs), callback)
	}
	onError := func(err error) {
		s.log.Warn(ctx, "user subscription failed", "error", err)
		s.deliver(gen, nil, callback)
	}

	unsub, err := s.store.Subscribe(ctx, q, onSnapshot, onError)
	if err != nil {
		s.log.Warn(ctx, "open user subscription", "email", creds.Email, "error", err)
		s.subscribeMu.Unlock()
		s.deliver(gen, nil, callback)
		return Noop()
	}

	s.metrics.LiveSubscriptions.WithLabelValues(KindUser).Inc()
	sub := newSubscription(func() {
		s.mu.Lock()
		if s.gen == gen {
			s.gen++
			s.current = nil
		}
		s.mu.Unlock()
		unsub()
		s.metrics.LiveSubscriptions.WithLabelValues(KindUser).Dec()
	})

	s.mu.Lock()
	s.current = sub
	s.mu.Unlock()
	s.subscribeMu.Unlock()

	return sub
}

// Unsubscribe releases the current subscription, if any.
func (s *UserRecordSync) Unsubscribe() {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	cur.Unsubscribe()
}

func (s *UserRecordSync) resolve(ctx context.Context, id *identity.Identity, email string, docs []docstore.Document) *models.UserRecord {
	switch {
	case len(docs) == 0:
		s.log.Info(ctx, "no user record for stored email", "email", email)
		return nil
	case len(docs) > 1:
		s.log.Warn(ctx, "stored email matches several user records", "email", email, "count", len(docs))
		return nil
	}

	rec := decodeUser(docs[0])
	if id != nil && id.UserID != "" && id.UserID != rec.UserID {
		s.log.Warn(ctx, "stored email resolves to another account",
			"email", email, "identity", id.UserID, "record", rec.UserID)
		return nil
	}
	return &rec
}

// deliver drops values from a released generation. The check happens before
// the callback runs; see Subscription for what that leaves open.
func (s *UserRecordSync) deliver(gen uint64, rec *models.UserRecord, callback func(*models.UserRecord)) {
	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()

	if stale {
		s.metrics.StaleCallbacks.WithLabelValues(KindUser).Inc()
		return
	}
	s.metrics.Snapshots.WithLabelValues(KindUser).Inc()
	callback(rec)
}
