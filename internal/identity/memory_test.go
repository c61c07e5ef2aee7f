package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SignUpSignInSignOut(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var seen []*Identity
	unsub := m.OnIdentityChange(func(id *Identity) { seen = append(seen, id) })
	defer unsub()

	id, err := m.SignUp(ctx, " Sophia@Example.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "sophia@example.com", id.Email)
	assert.NotEmpty(t, id.UserID)

	_, err = m.SignUp(ctx, "sophia@example.com", "other1")
	assert.ErrorIs(t, err, ErrEmailInUse)

	require.NoError(t, m.SignOut(ctx))
	assert.Nil(t, m.Current())

	_, err = m.SignIn(ctx, "sophia@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	again, err := m.SignIn(ctx, "sophia@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, id.UserID, again.UserID)

	require.Len(t, seen, 4)
	assert.Nil(t, seen[0])
	assert.Equal(t, id.UserID, seen[1].UserID)
	assert.Nil(t, seen[2])
	assert.Equal(t, id.UserID, seen[3].UserID)
}

func TestMemory_ReauthenticateAndDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.SignUp(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	assert.ErrorIs(t, m.Reauthenticate(ctx, id, "bad"), ErrInvalidCredentials)
	assert.ErrorIs(t, m.Reauthenticate(ctx, nil, "secret1"), ErrNoSession)
	require.NoError(t, m.Reauthenticate(ctx, id, "secret1"))

	boom := errors.New("backend down")
	m.FailOn(OpDeleteIdentity, boom)
	assert.ErrorIs(t, m.DeleteIdentity(ctx, id), boom)
	assert.NotNil(t, m.Current())

	m.FailOn(OpDeleteIdentity, nil)
	require.NoError(t, m.DeleteIdentity(ctx, id))
	assert.Nil(t, m.Current())

	_, err = m.SignIn(ctx, "a@b.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMemory_SendPasswordReset(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.SendPasswordReset(context.Background(), "A@B.com"))
	assert.Equal(t, []string{"a@b.com"}, m.ResetRequests())
}
