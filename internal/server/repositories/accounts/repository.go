// Package accounts declares the account repository contract and its
// PostgreSQL implementation.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/adminvault/internal/server/models"
)

type Repository interface {
	// Create inserts account and fills its CreatedAt. A taken email
	// (case-insensitive) yields common.ErrorAlreadyExists.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	// GetByEmail returns common.ErrorNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
}
