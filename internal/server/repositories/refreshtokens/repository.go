// Package refreshtokens declares the refresh token repository contract and
// its PostgreSQL implementation.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/adminvault/internal/server/models"
)

type Repository interface {
	// Create stores token for accountID, expiring at now+validity.
	Create(ctx context.Context, accountID, token string, validity time.Duration) error
	// Find returns common.ErrorNotFound when token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)
	// Consume deletes token and returns the deleted row, so a token can be
	// exchanged at most once even under concurrent use.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)
	// Delete is a no-op for an absent token.
	Delete(ctx context.Context, token string) error
	// DeleteExpired removes tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
