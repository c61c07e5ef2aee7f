package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Operation names accepted by Memory.FailOn.
const (
	OpSignIn         = "signin"
	OpSignUp         = "signup"
	OpReauthenticate = "reauthenticate"
	OpDeleteIdentity = "delete"
	OpPasswordReset  = "reset"
)

type memoryAccount struct {
	id   string
	hash []byte
}

// Memory is an in-process Provider used by the offline client and tests.
type Memory struct {
	*Broadcaster

	mu       sync.Mutex
	accounts map[string]memoryAccount
	resets   []string
	failures map[string]error
}

var _ Provider = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		Broadcaster: NewBroadcaster(),
		accounts:    make(map[string]memoryAccount),
		failures:    make(map[string]error),
	}
}

// FailOn makes op return err until cleared with a nil err.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// ResetRequests lists the emails a password reset was sent to.
func (m *Memory) ResetRequests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.resets...)
}

func (m *Memory) SignUp(_ context.Context, email, secret string) (*Identity, error) {
	email = normalize(email)

	m.mu.Lock()
	if err := m.failures[OpSignUp]; err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if _, ok := m.accounts[email]; ok {
		m.mu.Unlock()
		return nil, ErrEmailInUse
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	acc := memoryAccount{id: uuid.NewString(), hash: hash}
	m.accounts[email] = acc
	m.mu.Unlock()

	id := &Identity{UserID: acc.id, Email: email}
	m.Set(id)
	return id, nil
}

func (m *Memory) SignIn(_ context.Context, email, secret string) (*Identity, error) {
	email = normalize(email)

	m.mu.Lock()
	if err := m.failures[OpSignIn]; err != nil {
		m.mu.Unlock()
		return nil, err
	}
	acc, ok := m.accounts[email]
	m.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(secret)) != nil {
		return nil, ErrInvalidCredentials
	}

	id := &Identity{UserID: acc.id, Email: email}
	m.Set(id)
	return id, nil
}

func (m *Memory) SignOut(context.Context) error {
	m.Set(nil)
	return nil
}

func (m *Memory) OnIdentityChange(fn func(*Identity)) func() {
	return m.Subscribe(fn)
}

func (m *Memory) Reauthenticate(_ context.Context, id *Identity, secret string) error {
	if id == nil {
		return ErrNoSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[OpReauthenticate]; err != nil {
		return err
	}
	acc, ok := m.accounts[normalize(id.Email)]
	if !ok || acc.id != id.UserID || bcrypt.CompareHashAndPassword(acc.hash, []byte(secret)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (m *Memory) DeleteIdentity(_ context.Context, id *Identity) error {
	if id == nil {
		return ErrNoSession
	}

	m.mu.Lock()
	if err := m.failures[OpDeleteIdentity]; err != nil {
		m.mu.Unlock()
		return err
	}
	delete(m.accounts, normalize(id.Email))
	m.mu.Unlock()

	if Same(m.Current(), id) {
		m.Set(nil)
	}
	return nil
}

func (m *Memory) SendPasswordReset(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[OpPasswordReset]; err != nil {
		return err
	}
	m.resets = append(m.resets, normalize(email))
	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
