package livesync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
	"github.com/dmitrijs2005/vehiclecheck/internal/common"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
	"github.com/dmitrijs2005/vehiclecheck/internal/timex"
)

// DefaultRetentionMonths is how long inspections are kept.
const DefaultRetentionMonths = 2

type InspectionOption func(*InspectionRecordSync)

// WithRetentionMonths sets the retention window; values below 1 are ignored.
func WithRetentionMonths(n int) InspectionOption {
	return func(s *InspectionRecordSync) {
		if n > 0 {
			s.retentionMonths = n
		}
	}
}

func WithClock(now func() time.Time) InspectionOption {
	return func(s *InspectionRecordSync) { s.now = now }
}

// InspectionRecordSync streams the inspections of one user, newest first,
// and prunes the ones that fell out of the retention window.
type InspectionRecordSync struct {
	store   docstore.Store
	log     logging.Logger
	metrics *Metrics

	now             func() time.Time
	retentionMonths int

	subscribeMu sync.Mutex

	mu      sync.Mutex
	gen     uint64
	current *Subscription

	pruning sync.WaitGroup
}

func NewInspectionRecordSync(store docstore.Store, l logging.Logger, m *Metrics, opts ...InspectionOption) *InspectionRecordSync {
	if l == nil {
		l = logging.Nop{}
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	s := &InspectionRecordSync{
		store:           store,
		log:             l.With("module", "inspection_sync"),
		metrics:         m,
		now:             time.Now,
		retentionMonths: DefaultRetentionMonths,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe releases any previous subscription and opens a new one for
// userID. Each call also starts a one-off retention scan whose deletions show
// up through later snapshots. An empty userID issues no query at all. When the
// live query cannot be opened or fails later, callback gets a nil slice.
func (s *InspectionRecordSync) Subscribe(ctx context.Context, userID string, callback func([]models.InspectionRecord)) *Subscription {
	s.subscribeMu.Lock()

	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	prev.Unsubscribe()

	if userID == "" {
		s.log.Debug(ctx, "no user id, inspections not subscribed")
		s.subscribeMu.Unlock()
		return Noop()
	}

	s.logRetentionWindow(ctx, userID)

	s.pruning.Add(1)
	go func() {
		defer s.pruning.Done()
		s.prune(context.WithoutCancel(ctx), userID)
	}()

	q := docstore.Query{
		Collection: common.CollectionInspections,
		Filters:    []docstore.Filter{docstore.Where(models.FieldUserID, userID)},
		OrderBy:    []docstore.Order{{Field: models.FieldCreatedAt, Direction: docstore.Desc}},
	}

	onSnapshot := func(snap docstore.Snapshot) {
		s.deliver(gen, decodeInspections(snap.Docs), callback)
	}
	onError := func(err error) {
		s.log.Warn(ctx, "inspection subscription failed", "user_id", userID, "error", err)
		s.deliver(gen, nil, callback)
	}

	unsub, err := s.store.Subscribe(ctx, q, onSnapshot, onError)
	if err != nil {
		s.log.Warn(ctx, "open inspection subscription", "user_id", userID, "error", err)
		s.subscribeMu.Unlock()
		s.deliver(gen, nil, callback)
		return Noop()
	}

	s.metrics.LiveSubscriptions.WithLabelValues(KindInspections).Inc()
	sub := newSubscription(func() {
		s.mu.Lock()
		if s.gen == gen {
			s.gen++
			s.current = nil
		}
		s.mu.Unlock()
		unsub()
		s.metrics.LiveSubscriptions.WithLabelValues(KindInspections).Dec()
	})

	s.mu.Lock()
	s.current = sub
	s.mu.Unlock()
	s.subscribeMu.Unlock()

	return sub
}

// Unsubscribe releases the current subscription, if any.
func (s *InspectionRecordSync) Unsubscribe() {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	cur.Unsubscribe()
}

// WaitPruned blocks until every retention scan started so far has finished.
func (s *InspectionRecordSync) WaitPruned() {
	s.pruning.Wait()
}

// Cutoff is the creation time before which records are deleted.
func (s *InspectionRecordSync) Cutoff() time.Time {
	return timex.AddMonths(s.now(), -s.retentionMonths)
}

// logRetentionWindow reads the owner's createdAt once. The point read is
// informational: pruning works off the current time.
func (s *InspectionRecordSync) logRetentionWindow(ctx context.Context, userID string) {
	doc, err := s.store.Get(ctx, common.CollectionUsers, userID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			s.log.Debug(ctx, "user record not found for retention window", "user_id", userID)
			return
		}
		s.log.Warn(ctx, "read user for retention window", "user_id", userID, "error", err)
		return
	}
	created := doc.Time(models.FieldCreatedAt)
	if created == nil {
		return
	}
	s.log.Debug(ctx, "retention window",
		"user_id", userID,
		"account_created", created.Format(time.RFC3339),
		"first_expiry", timex.AddMonths(*created, s.retentionMonths).Format(time.RFC3339))
}

func (s *InspectionRecordSync) prune(ctx context.Context, userID string) {
	cutoff := s.Cutoff()

	docs, err := s.store.Query(ctx, docstore.Query{
		Collection: common.CollectionInspections,
		Filters:    []docstore.Filter{docstore.Where(models.FieldUserID, userID)},
	})
	if err != nil {
		s.log.Warn(ctx, "retention scan failed", "user_id", userID, "error", err)
		return
	}

	for _, d := range docs {
		created := d.Time(models.FieldCreatedAt)
		if created == nil || !created.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, common.CollectionInspections, d.ID); err != nil {
			s.metrics.RetentionFailures.Inc()
			s.log.Warn(ctx, "delete expired inspection", "id", d.ID, "error", err)
			continue
		}
		s.metrics.RetentionDeletes.Inc()
		s.log.Info(ctx, "deleted expired inspection", "id", d.ID, "created_at", created.Format(time.RFC3339))
	}
}

// deliver drops values from a released generation. The check happens before
// the callback runs; see Subscription for what that leaves open.
func (s *InspectionRecordSync) deliver(gen uint64, records []models.InspectionRecord, callback func([]models.InspectionRecord)) {
	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()

	if stale {
		s.metrics.StaleCallbacks.WithLabelValues(KindInspections).Inc()
		return
	}
	s.metrics.Snapshots.WithLabelValues(KindInspections).Inc()
	callback(records)
}
