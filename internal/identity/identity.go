// Package identity describes the identity provider the client signs in
// against and the listener fan-out shared by its implementations.
package identity

import (
	"context"
	"errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailInUse         = errors.New("email already in use")
	ErrNoSession          = errors.New("no signed-in user")
)

// Identity is the provider's view of a signed-in user.
type Identity struct {
	UserID string
	Email  string
}

// Same reports whether a and b refer to the same user. Two nil identities
// are the same.
func Same(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UserID == b.UserID
}

type Provider interface {
	SignIn(ctx context.Context, email, secret string) (*Identity, error)
	SignUp(ctx context.Context, email, secret string) (*Identity, error)
	SignOut(ctx context.Context) error

	// OnIdentityChange calls fn with the current identity right away and then
	// on every change until the returned func is called.
	OnIdentityChange(fn func(*Identity)) (unsubscribe func())

	Reauthenticate(ctx context.Context, id *Identity, secret string) error
	DeleteIdentity(ctx context.Context, id *Identity) error
	SendPasswordReset(ctx context.Context, email string) error

	// Current returns the signed-in identity or nil.
	Current() *Identity
}
