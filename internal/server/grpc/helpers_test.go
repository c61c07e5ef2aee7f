package grpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vehiclecheck/internal/docstore/memory"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/accounts"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/auth"
)

const testSecret = "test-secret"

// fakeAccounts returns canned results and records the user ids it was asked
// about.
type fakeAccounts struct {
	session *accounts.Session
	err     error

	reauthUser string
	deleted    string
	resetEmail string
}

func (f *fakeAccounts) SignUp(context.Context, string, string) (*accounts.Session, error) {
	return f.session, f.err
}

func (f *fakeAccounts) SignIn(context.Context, string, string) (*accounts.Session, error) {
	return f.session, f.err
}

func (f *fakeAccounts) RefreshToken(context.Context, string) (*accounts.Session, error) {
	return f.session, f.err
}

func (f *fakeAccounts) Reauthenticate(_ context.Context, userID, _ string) error {
	f.reauthUser = userID
	return f.err
}

func (f *fakeAccounts) Delete(_ context.Context, userID string) error {
	f.deleted = userID
	return f.err
}

func (f *fakeAccounts) RequestPasswordReset(_ context.Context, email string) error {
	f.resetEmail = email
	return f.err
}

func (f *fakeAccounts) ResetPassword(context.Context, string, string) error {
	return f.err
}

type fakeUploader struct {
	name string
	data []byte
	url  string
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, name string, data []byte) (string, error) {
	f.name, f.data = name, data
	return f.url, f.err
}

func newTestServer(t *testing.T) (*Server, *fakeAccounts, *memory.Store) {
	t.Helper()
	store := memory.New()
	t.Cleanup(store.Close)
	fa := &fakeAccounts{}
	return NewServer("127.0.0.1:0", logging.Nop{}, fa, store, nil, testSecret, nil), fa, store
}

// asUser returns a context carrying verified claims, as the interceptor
// would leave it.
func asUser(userID, email string) context.Context {
	return context.WithValue(context.Background(), claimsKey, &auth.Claims{UserID: userID, Email: email})
}

func seed(t *testing.T, store *memory.Store, coll, id string, data map[string]any) {
	t.Helper()
	require.NoError(t, store.Set(context.Background(), coll, id, data))
}

var _ accounts.Service = (*fakeAccounts)(nil)
