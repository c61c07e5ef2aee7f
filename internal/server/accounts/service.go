// Package accounts implements the backend's identity provider: sign-up and
// sign-in with bcrypt-hashed secrets, JWT access tokens, rotating refresh
// tokens stored in PostgreSQL, reauthentication, account deletion and
// password reset.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/vehiclecheck/internal/common"
	"github.com/dmitrijs2005/vehiclecheck/internal/dbx"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/auth"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/config"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/models"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/repositories/repomanager"
)

// MinSecretLength is the shortest secret SignUp and ResetPassword accept.
const MinSecretLength = 6

// Session is what a successful sign-in hands back to the client.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
}

// Mailer delivers password reset tokens.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer writes reset tokens to the log instead of sending mail.
type LogMailer struct {
	Log logging.Logger
}

func (m LogMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	m.Log.Info(ctx, "password reset requested", "email", email, "token", token)
	return nil
}

type Service interface {
	SignUp(ctx context.Context, email, secret string) (*Session, error)
	SignIn(ctx context.Context, email, secret string) (*Session, error)
	// RefreshToken rotates refreshToken and returns a new session. Expired
	// tokens yield common.ErrRefreshTokenExpired.
	RefreshToken(ctx context.Context, refreshToken string) (*Session, error)
	// Reauthenticate checks secret against the account; common.ErrorUnauthorized
	// when it does not match.
	Reauthenticate(ctx context.Context, userID, secret string) error
	Delete(ctx context.Context, userID string) error
	// RequestPasswordReset mails a reset token; common.ErrorNotFound when no
	// account uses email.
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, secret string) error
}

type service struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	mailer                       Mailer
	log                          logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	resetTokenValidityDuration   time.Duration
	bcryptCost                   int
	now                          func() time.Time
}

// Option customizes the service.
type Option func(*service)

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *service) { s.bcryptCost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func NewService(db *sql.DB, m repomanager.RepositoryManager, mailer Mailer, cfg *config.Config, l logging.Logger, opts ...Option) Service {
	s := &service{
		db:                           db,
		repomanager:                  m,
		mailer:                       mailer,
		log:                          l.With("module", "accounts"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		resetTokenValidityDuration:   cfg.ResetTokenValidityDuration,
		bcryptCost:                   bcrypt.DefaultCost,
		now:                          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("%w: secret must be at least %d characters", common.ErrorValidation, MinSecretLength)
	}
	return nil
}

func (s *service) SignUp(ctx context.Context, email, secret string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", common.ErrorValidation)
	}
	if err := validSecret(secret); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		return nil, common.ErrorInternal
	}

	var sess *Session
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.repomanager.Accounts(tx).Create(ctx, &models.Account{Email: email, SecretHash: hash})
		if err != nil {
			return err
		}
		sess, err = s.newSession(ctx, a, tx)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		s.log.Error(ctx, "sign up", "error", err)
		return nil, common.ErrorInternal
	}

	s.log.Info(ctx, "account created", "user_id", sess.UserID)
	return sess, nil
}

func (s *service) SignIn(ctx context.Context, email, secret string) (*Session, error) {
	a, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		s.log.Error(ctx, "sign in lookup", "error", err)
		return nil, common.ErrorInternal
	}
	if !checkSecret(a.SecretHash, secret) {
		return nil, common.ErrorUnauthorized
	}
	return s.newSession(ctx, a, s.db)
}

func (s *service) RefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expires.Before(s.now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var sess *Session
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		a, err := s.repomanager.Accounts(tx).GetByID(ctx, token.UserID)
		if err != nil {
			return err
		}
		sess, err = s.newSession(ctx, a, tx)
		return err
	}); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	return sess, nil
}

func (s *service) Reauthenticate(ctx context.Context, userID, secret string) error {
	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return common.ErrorInternal
	}
	if !checkSecret(a.SecretHash, secret) {
		return common.ErrorUnauthorized
	}
	return nil
}

func (s *service) Delete(ctx context.Context, userID string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, userID); err != nil {
			return err
		}
		return s.repomanager.Accounts(tx).Delete(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		s.log.Error(ctx, "delete account", "user_id", userID, "error", err)
		return common.ErrorInternal
	}
	s.log.Info(ctx, "account deleted", "user_id", userID)
	return nil
}

func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	a, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return common.ErrorInternal
	}

	token, err := common.MakeRandHexString(32)
	if err != nil {
		return common.ErrorInternal
	}
	if err := s.repomanager.ResetTokens(s.db).Create(ctx, a.ID, token, s.resetTokenValidityDuration); err != nil {
		s.log.Error(ctx, "store reset token", "user_id", a.ID, "error", err)
		return common.ErrorInternal
	}
	if err := s.mailer.SendPasswordReset(ctx, a.Email, token); err != nil {
		s.log.Error(ctx, "send reset mail", "user_id", a.ID, "error", err)
		return common.ErrorInternal
	}
	return nil
}

func (s *service) ResetPassword(ctx context.Context, token, secret string) error {
	if err := validSecret(secret); err != nil {
		return err
	}

	rt, err := s.repomanager.ResetTokens(s.db).Find(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return common.ErrorInternal
	}
	if rt.Expires.Before(s.now()) {
		return common.ErrResetTokenExpired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		return common.ErrorInternal
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Accounts(tx).UpdateSecret(ctx, rt.UserID, hash); err != nil {
			return err
		}
		if err := s.repomanager.ResetTokens(tx).Delete(ctx, token); err != nil {
			return err
		}
		// Sessions opened with the old secret end here.
		return s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, rt.UserID)
	})
}

// --- helpers below ---

func checkSecret(hash []byte, secret string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}

func (s *service) newSession(ctx context.Context, a *models.Account, tx dbx.DBTX) (*Session, error) {
	access, err := auth.GenerateToken(a.ID, a.Email, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, a.ID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &Session{UserID: a.ID, Email: a.Email, AccessToken: access, RefreshToken: refresh}, nil
}
