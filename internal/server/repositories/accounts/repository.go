// Package accounts declares and implements persistence for sign-in accounts.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/vehiclecheck/internal/server/models"
)

type Repository interface {
	// Create inserts the account and fills in its ID. A taken email yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, a *models.Account) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	UpdateSecret(ctx context.Context, id string, secretHash []byte) error
	// Delete removes the account; its tokens go with it.
	Delete(ctx context.Context, id string) error
}
