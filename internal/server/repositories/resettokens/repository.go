// Package resettokens stores one-time password reset tokens.
package resettokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vehiclecheck/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID, token string, validity time.Duration) error
	// Find returns common.ErrorNotFound for unknown tokens.
	Find(ctx context.Context, token string) (*models.ResetToken, error)
	Delete(ctx context.Context, token string) error
}
