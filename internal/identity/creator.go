package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/adminvault/internal/logging"
)

var (
	ErrSameContext      = errors.New("creator requires a provider distinct from the primary one")
	ErrPrimaryDisturbed = errors.New("primary session changed during account creation")
)

// Creator provisions new accounts without touching the operator's own
// session. It owns the isolated provider; nothing else should sign in
// through it.
type Creator struct {
	primary  Provider
	isolated Provider
	logger   logging.Logger
}

func NewCreator(primary, isolated Provider, logger logging.Logger) (*Creator, error) {
	if primary == nil || isolated == nil {
		return nil, errors.New("creator requires two providers")
	}
	if primary == isolated {
		return nil, ErrSameContext
	}
	return &Creator{
		primary:  primary,
		isolated: isolated,
		logger:   logger.With("module", "identity_creator"),
	}, nil
}

// CreateIdentity registers email/password on the isolated provider and
// signs that provider out again. The caller writes the new identity's
// record with its own session key.
func (c *Creator) CreateIdentity(ctx context.Context, email, password string) (*Identity, error) {
	before := c.primary.Current()

	id, err := c.isolated.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	if err := c.isolated.SignOut(ctx); err != nil {
		c.logger.Warn(ctx, "failed to sign out isolated provider", "error", err)
	}

	if !Same(before, c.primary.Current()) {
		c.logger.Error(ctx, "primary identity changed while creating account", "uid", id.UID)
		return id, ErrPrimaryDisturbed
	}

	c.logger.Info(ctx, "identity created", "uid", id.UID)
	return id, nil
}
