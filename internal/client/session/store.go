// Package session persists the signed-in user's credentials on the device.
// The store, not the identity provider, decides who is logged in on a cold
// start.
package session

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
	"github.com/dmitrijs2005/vehiclecheck/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
)

const (
	KeyCredentials = "userCredentials"
	KeyLoggedOut   = "isLoggedOut"
)

// CredentialStore never returns errors: a failed read means "no session" and
// a failed write is logged.
type CredentialStore struct {
	repo metadata.Repository
	log  logging.Logger
}

func NewCredentialStore(repo metadata.Repository, l logging.Logger) *CredentialStore {
	if l == nil {
		l = logging.Nop{}
	}
	return &CredentialStore{repo: repo, log: l.With("module", "credential_store")}
}

func (s *CredentialStore) Save(ctx context.Context, c models.Credentials) {
	b, err := json.Marshal(c)
	if err != nil {
		s.log.Error(ctx, "encode credentials", "error", err)
		return
	}
	if err := s.repo.Set(ctx, KeyCredentials, b); err != nil {
		s.log.Error(ctx, "save credentials", "error", err)
	}
}

// Load returns nil when nothing is stored or the stored value is unreadable.
func (s *CredentialStore) Load(ctx context.Context) *models.Credentials {
	b, err := s.repo.Get(ctx, KeyCredentials)
	if err != nil {
		s.log.Warn(ctx, "load credentials", "error", err)
		return nil
	}
	if b == nil {
		return nil
	}

	var c models.Credentials
	if err := json.Unmarshal(b, &c); err != nil {
		s.log.Warn(ctx, "decode credentials", "error", err)
		return nil
	}
	if c.Email == "" {
		return nil
	}
	return &c
}

func (s *CredentialStore) Clear(ctx context.Context) {
	if err := s.repo.Delete(ctx, KeyCredentials); err != nil {
		s.log.Error(ctx, "clear credentials", "error", err)
	}
}

// MarkSignedOut records whether the user signed out on purpose, which turns
// off auto-resume on the next start.
func (s *CredentialStore) MarkSignedOut(ctx context.Context, v bool) {
	if err := s.repo.Set(ctx, KeyLoggedOut, []byte(strconv.FormatBool(v))); err != nil {
		s.log.Error(ctx, "save sign-out flag", "error", err)
	}
}

func (s *CredentialStore) SignedOut(ctx context.Context) bool {
	b, err := s.repo.Get(ctx, KeyLoggedOut)
	if err != nil {
		s.log.Warn(ctx, "load sign-out flag", "error", err)
		return false
	}
	v, _ := strconv.ParseBool(string(b))
	return v
}

// Wipe drops every locally stored key.
func (s *CredentialStore) Wipe(ctx context.Context) {
	if err := s.repo.Clear(ctx); err != nil {
		s.log.Error(ctx, "wipe local store", "error", err)
	}
}
