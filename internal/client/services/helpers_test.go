package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/vehiclecheck/internal/client/session"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore/memory"
	"github.com/dmitrijs2005/vehiclecheck/internal/identity"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
	"github.com/dmitrijs2005/vehiclecheck/internal/notify"

	_ "modernc.org/sqlite"
)

type fixture struct {
	provider *identity.Memory
	store    *memory.Store
	creds    *session.CredentialStore
	meta     metadata.Repository
	notes    *notify.Recorder
	log      logging.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL)`)
	require.NoError(t, err)

	store := memory.New()
	t.Cleanup(store.Close)

	meta := metadata.NewSQLiteRepository(db)
	return &fixture{
		provider: identity.NewMemory(),
		store:    store,
		creds:    session.NewCredentialStore(meta, nil),
		meta:     meta,
		notes:    &notify.Recorder{},
		log:      logging.Nop{},
	}
}

func (f *fixture) auth() AuthService {
	return NewAuthService(f.provider, f.store, f.creds, f.notes, f.log)
}

// signedUp creates an account through the auth service and returns its id.
func (f *fixture) signedUp(t *testing.T, name, email string) *identity.Identity {
	t.Helper()
	id, err := f.auth().SignUp(context.Background(), name, email, "secret1")
	require.NoError(t, err)
	return id
}
