package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
	"github.com/dmitrijs2005/vehiclecheck/internal/client/session"
	"github.com/dmitrijs2005/vehiclecheck/internal/common"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/identity"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
	"github.com/dmitrijs2005/vehiclecheck/internal/notify"
)

var ErrNoStoredSession = errors.New("no stored session to reauthenticate with")

// AccountService deletes the signed-in account.
//
// Deletion touches two collections and the identity provider, none of which
// share a transaction. It runs as a sequence of steps; when a step fails the
// documents already deleted are written back, so a failure never leaves an
// identity without its profile or a profile without its identity.
type AccountService interface {
	Delete(ctx context.Context) error
}

type accountService struct {
	provider identity.Provider
	store    docstore.Store
	creds    *session.CredentialStore
	notifier notify.Notifier
	log      logging.Logger
}

func NewAccountService(p identity.Provider, store docstore.Store, creds *session.CredentialStore, n notify.Notifier, l logging.Logger) AccountService {
	return &accountService{
		provider: p,
		store:    store,
		creds:    creds,
		notifier: n,
		log:      l.With("module", "account_service"),
	}
}

type snapshotDoc struct {
	collection string
	id         string
	data       map[string]any
}

func (s *accountService) Delete(ctx context.Context) error {
	id := s.provider.Current()
	if id == nil {
		s.notifier.Notify(notify.Error("Delete Failed", "Please sign in first."))
		return identity.ErrNoSession
	}
	c := s.creds.Load(ctx)
	if c == nil {
		s.notifier.Notify(notify.Error("Delete Failed", "Please sign in again to delete your account."))
		return ErrNoStoredSession
	}

	if err := s.provider.Reauthenticate(ctx, id, c.Secret); err != nil {
		s.log.Info(ctx, "reauthenticate before delete", "user_id", id.UserID, "error", err)
		s.notifier.Notify(notify.Error("Delete Failed", err.Error()))
		return fmt.Errorf("reauthenticate: %w", err)
	}

	snapshot, err := s.snapshot(ctx, id)
	if err != nil {
		s.log.Error(ctx, "snapshot account data", "user_id", id.UserID, "error", err)
		s.notifier.Notify(notify.Error("Delete Failed", "Could not read your data. Nothing was deleted."))
		return fmt.Errorf("snapshot: %w", err)
	}

	deleted := make([]snapshotDoc, 0, len(snapshot))
	for _, d := range snapshot {
		if err := s.store.Delete(ctx, d.collection, d.id); err != nil {
			s.log.Error(ctx, "delete document", "collection", d.collection, "id", d.id, "error", err)
			s.restore(ctx, deleted)
			s.notifier.Notify(notify.Error("Delete Failed", "Your data could not be deleted. Nothing was changed."))
			return fmt.Errorf("delete %s/%s: %w", d.collection, d.id, err)
		}
		deleted = append(deleted, d)
	}
	s.log.Info(ctx, "account documents deleted", "user_id", id.UserID, "count", len(deleted))

	if err := s.provider.DeleteIdentity(ctx, id); err != nil {
		s.log.Error(ctx, "delete identity", "user_id", id.UserID, "error", err)
		s.restore(ctx, deleted)
		s.notifier.Notify(notify.Error("Delete Failed", "Your account could not be deleted. Your data was restored."))
		return fmt.Errorf("delete identity: %w", err)
	}

	// Nothing stored locally outlives the account.
	s.creds.Wipe(ctx)
	s.log.Info(ctx, "account deleted", "user_id", id.UserID)
	s.notifier.Notify(notify.Success("Account Deleted", "Your account has been deleted successfully."))
	return nil
}

// snapshot collects every document owned by the account: inspections first,
// then the user document and any duplicates sharing its email.
func (s *accountService) snapshot(ctx context.Context, id *identity.Identity) ([]snapshotDoc, error) {
	var out []snapshotDoc

	inspections, err := s.store.Query(ctx, docstore.Query{
		Collection: common.CollectionInspections,
		Filters:    []docstore.Filter{docstore.Where(models.FieldUserID, id.UserID)},
	})
	if err != nil {
		return nil, err
	}
	for _, d := range inspections {
		out = append(out, snapshotDoc{collection: common.CollectionInspections, id: d.ID, data: d.Data})
	}

	seen := make(map[string]bool)
	user, err := s.store.Get(ctx, common.CollectionUsers, id.UserID)
	switch {
	case err == nil:
		out = append(out, snapshotDoc{collection: common.CollectionUsers, id: user.ID, data: user.Data})
		seen[user.ID] = true
	case !errors.Is(err, docstore.ErrNotFound):
		return nil, err
	}

	if id.Email != "" {
		dups, err := s.store.Query(ctx, docstore.Query{
			Collection: common.CollectionUsers,
			Filters:    []docstore.Filter{docstore.Where(models.FieldEmail, id.Email)},
		})
		if err != nil {
			return nil, err
		}
		for _, d := range dups {
			if seen[d.ID] {
				continue
			}
			out = append(out, snapshotDoc{collection: common.CollectionUsers, id: d.ID, data: d.Data})
		}
	}
	return out, nil
}

// restore writes deleted documents back, logging each failure.
func (s *accountService) restore(ctx context.Context, docs []snapshotDoc) {
	ctx = context.WithoutCancel(ctx)
	for _, d := range docs {
		if err := s.store.Set(ctx, d.collection, d.id, d.data); err != nil {
			s.log.Error(ctx, "restore document", "collection", d.collection, "id", d.id, "error", err)
			continue
		}
		s.log.Info(ctx, "restored document", "collection", d.collection, "id", d.id)
	}
}
