// Package services contains the client's application services: the flows
// behind each screen's buttons. They talk to the identity provider and the
// document store, keep the local session in step and report outcomes
// through the notifier.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
	"github.com/dmitrijs2005/vehiclecheck/internal/client/session"
	"github.com/dmitrijs2005/vehiclecheck/internal/common"
	"github.com/dmitrijs2005/vehiclecheck/internal/docstore"
	"github.com/dmitrijs2005/vehiclecheck/internal/identity"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
	"github.com/dmitrijs2005/vehiclecheck/internal/notify"
)

// AuthService defines the authentication flows of the onboarding screens.
//
// Contract:
//   - SignIn: authenticate and persist the session locally.
//   - SignUp: create the identity and its Users document, then persist.
//   - SignOut: forget the session and turn off auto-resume.
//   - Resume: on a cold start, sign in silently with the stored session
//     unless the user signed out on purpose. Returns (nil, nil) when there
//     is nothing to resume.
//   - ResetPassword: send a reset link if the email belongs to an account.
//
// Failures are reported through the notifier and returned.
type AuthService interface {
	SignIn(ctx context.Context, email, secret string) (*identity.Identity, error)
	SignUp(ctx context.Context, name, email, secret string) (*identity.Identity, error)
	SignOut(ctx context.Context) error
	Resume(ctx context.Context) (*identity.Identity, error)
	ResetPassword(ctx context.Context, email string) error
}

type signInInput struct {
	Email  string `validate:"required,email"`
	Secret string `validate:"required,min=6"`
}

type signUpInput struct {
	Name   string `validate:"required,max=100"`
	Email  string `validate:"required,email"`
	Secret string `validate:"required,min=6"`
}

type resetInput struct {
	Email string `validate:"required,email"`
}

type authService struct {
	provider identity.Provider
	store    docstore.Store
	creds    *session.CredentialStore
	notifier notify.Notifier
	log      logging.Logger
}

func NewAuthService(p identity.Provider, store docstore.Store, creds *session.CredentialStore, n notify.Notifier, l logging.Logger) AuthService {
	return &authService{
		provider: p,
		store:    store,
		creds:    creds,
		notifier: n,
		log:      l.With("module", "auth_service"),
	}
}

// SignIn stores the credentials before the provider announces the new
// identity, so listeners resolving the user by stored email see the right
// one. On failure the previous session is put back.
func (a *authService) SignIn(ctx context.Context, email, secret string) (*identity.Identity, error) {
	in := signInInput{Email: strings.TrimSpace(email), Secret: secret}
	if err := validateInput(in); err != nil {
		a.notifier.Notify(notify.Error("Sign In Failed", userMessage(err)))
		return nil, err
	}

	restore := a.swapCredentials(ctx, models.Credentials{Email: in.Email, Secret: in.Secret})

	id, err := a.provider.SignIn(ctx, in.Email, in.Secret)
	if err != nil {
		restore()
		a.log.Info(ctx, "sign in failed", "email", in.Email, "error", err)
		a.notifier.Notify(notify.Error("Sign In Failed", err.Error()))
		return nil, err
	}

	a.creds.MarkSignedOut(ctx, false)
	a.notifier.Notify(notify.Success("Welcome Back!", "Signed In successfully"))
	return id, nil
}

func (a *authService) SignUp(ctx context.Context, name, email, secret string) (*identity.Identity, error) {
	in := signUpInput{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email), Secret: secret}
	if err := validateInput(in); err != nil {
		a.notifier.Notify(notify.Error("Sign Up Failed", userMessage(err)))
		return nil, err
	}

	restore := a.swapCredentials(ctx, models.Credentials{Email: in.Email, Secret: in.Secret})

	id, err := a.provider.SignUp(ctx, in.Email, in.Secret)
	if err != nil {
		restore()
		a.log.Info(ctx, "sign up failed", "email", in.Email, "error", err)
		a.notifier.Notify(notify.Error("Sign Up Failed", err.Error()))
		return nil, err
	}

	err = a.store.Set(ctx, common.CollectionUsers, id.UserID, map[string]any{
		models.FieldName:      in.Name,
		models.FieldEmail:     id.Email,
		models.FieldImage:     nil,
		models.FieldCreatedAt: docstore.ServerTimestamp,
	})
	if err != nil {
		a.log.Error(ctx, "create user record", "user_id", id.UserID, "error", err)
		if derr := a.provider.DeleteIdentity(ctx, id); derr != nil {
			a.log.Error(ctx, "roll back identity after failed sign up", "user_id", id.UserID, "error", derr)
		}
		restore()
		a.notifier.Notify(notify.Error("Sign Up Failed", "Could not create your profile. Please try again."))
		return nil, fmt.Errorf("create user record: %w", err)
	}

	a.creds.MarkSignedOut(ctx, false)
	a.notifier.Notify(notify.Success("Account Created", "Welcome, "+in.Name+"!"))
	return id, nil
}

func (a *authService) SignOut(ctx context.Context) error {
	a.creds.Clear(ctx)
	a.creds.MarkSignedOut(ctx, true)

	if err := a.provider.SignOut(ctx); err != nil {
		a.log.Warn(ctx, "provider sign out", "error", err)
		a.notifier.Notify(notify.Error("Sign Out Failed", err.Error()))
		return err
	}

	a.notifier.Notify(notify.Success("Signed Out", "You have been signed out successfully."))
	return nil
}

func (a *authService) Resume(ctx context.Context) (*identity.Identity, error) {
	if a.creds.SignedOut(ctx) {
		return nil, nil
	}
	c := a.creds.Load(ctx)
	if c == nil {
		return nil, nil
	}

	id, err := a.provider.SignIn(ctx, c.Email, c.Secret)
	if err != nil {
		a.log.Warn(ctx, "resume session", "email", c.Email, "error", err)
		if isAuthError(err) {
			// The stored secret no longer works; keep the user on onboarding.
			a.creds.Clear(ctx)
		}
		return nil, err
	}
	a.log.Info(ctx, "session resumed", "user_id", id.UserID)
	return id, nil
}

func (a *authService) ResetPassword(ctx context.Context, email string) error {
	in := resetInput{Email: strings.TrimSpace(email)}
	if err := validateInput(in); err != nil {
		a.notifier.Notify(notify.Error("Reset Failed", userMessage(err)))
		return err
	}

	// A backend that refuses signed-out reads checks the email itself and
	// answers common.ErrorNotFound from SendPasswordReset.
	docs, err := a.store.Query(ctx, docstore.Query{
		Collection: common.CollectionUsers,
		Filters:    []docstore.Filter{docstore.Where(models.FieldEmail, in.Email)},
		Limit:      1,
	})
	switch {
	case err != nil && !isAuthError(err):
		a.log.Warn(ctx, "look up account for reset", "error", err)
		a.notifier.Notify(notify.Error("Reset Failed", "Please try again later."))
		return err
	case err == nil && len(docs) == 0:
		a.notifier.Notify(notify.Error("Not Found", "No account found with this email."))
		return common.ErrorNotFound
	}

	if err := a.provider.SendPasswordReset(ctx, in.Email); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			a.notifier.Notify(notify.Error("Not Found", "No account found with this email."))
			return err
		}
		a.log.Warn(ctx, "send password reset", "error", err)
		a.notifier.Notify(notify.Error("Reset Failed", err.Error()))
		return err
	}

	a.notifier.Notify(notify.Success("Email Sent",
		"A password reset link has been sent to your email. If you don't see it in your inbox, please check your spam or junk folder."))
	return nil
}

// swapCredentials saves c and returns a func that puts the previous session
// back.
func (a *authService) swapCredentials(ctx context.Context, c models.Credentials) func() {
	prev := a.creds.Load(ctx)
	a.creds.Save(ctx, c)
	return func() {
		if prev == nil {
			a.creds.Clear(ctx)
			return
		}
		a.creds.Save(ctx, *prev)
	}
}

// isAuthError reports whether err is a credential problem rather than an
// outage.
func isAuthError(err error) bool {
	return errors.Is(err, identity.ErrInvalidCredentials) ||
		errors.Is(err, common.ErrorUnauthorized) ||
		errors.Is(err, identity.ErrNoSession)
}
