package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/adminvault/internal/admin"
	"github.com/dmitrijs2005/adminvault/internal/client/config"
	"github.com/dmitrijs2005/adminvault/internal/client/storage"
	"github.com/dmitrijs2005/adminvault/internal/clock"
	"github.com/dmitrijs2005/adminvault/internal/guard"
	"github.com/dmitrijs2005/adminvault/internal/identity"
	"github.com/dmitrijs2005/adminvault/internal/logging"
	"github.com/dmitrijs2005/adminvault/internal/records"
	"github.com/dmitrijs2005/adminvault/internal/records/memory"
	"github.com/dmitrijs2005/adminvault/internal/records/postgres"
	"github.com/dmitrijs2005/adminvault/internal/records/s3store"
	"github.com/dmitrijs2005/adminvault/internal/session"
	"github.com/dmitrijs2005/adminvault/internal/vault"
)

const (
	primaryContext  = "primary"
	isolatedContext = "provisioning"

	reachabilityInterval = 30 * time.Second
)

// Console owns every long-lived dependency of the console process.
type Console struct {
	cfg      *config.Config
	logger   logging.Logger
	app      *App
	manager  *session.Manager
	primary  *identity.GRPCProvider
	isolated *identity.GRPCProvider
	closers  []io.Closer
}

// NewConsole opens local storage and the records backend, dials the
// identity daemon twice (the operator's context and the provisioning
// context) and assembles the session and admin services.
func NewConsole(ctx context.Context, cfg *config.Config, in io.Reader, out, logOut io.Writer) (*Console, error) {
	logger := logging.NewText(logOut, cfg.LogLevel)
	c := &Console{cfg: cfg, logger: logger}

	ok := false
	defer func() {
		if !ok {
			_ = c.Close()
		}
	}()

	local, err := storage.Open(ctx, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, local)
	kv := storage.NewMetadataRepository(local)

	clk := clock.Real()
	store, err := c.openRecords(ctx, clk)
	if err != nil {
		return nil, err
	}

	c.primary, err = identity.DialProvider(primaryContext, cfg.IdentityEndpoint, kv, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.primary)

	// the provisioning context never outlives the process
	c.isolated, err = identity.DialProvider(isolatedContext, cfg.ProvisioningEndpoint(), nil, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.isolated)

	creator, err := identity.NewCreator(c.primary, c.isolated, logger)
	if err != nil {
		return nil, err
	}

	c.manager = session.New(c.primary, vault.New(), guard.New(kv, clk, logger), store, clk, logger)
	c.app = NewApp(c.manager, admin.New(c.manager, store, creator, logger), in, out, logger)

	ok = true
	return c, nil
}

func (c *Console) openRecords(ctx context.Context, clk clock.Clock) (records.Store, error) {
	switch c.cfg.StoreBackend {
	case config.BackendMemory:
		c.logger.Warn(ctx, "using in-memory records store; nothing is persisted")
		return memory.New(clk), nil

	case config.BackendPostgres:
		octx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()

		db, err := postgres.Open(octx, c.cfg.RecordsDSN)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, db)
		if err := postgres.RunMigrations(octx, db); err != nil {
			return nil, fmt.Errorf("migrate records db: %w", err)
		}
		return postgres.New(db), nil

	case config.BackendS3:
		return s3store.New(ctx, s3store.Config{
			Bucket:       c.cfg.S3.Bucket,
			Region:       c.cfg.S3.Region,
			BaseEndpoint: c.cfg.S3.BaseEndpoint,
			AccessKey:    c.cfg.S3.AccessKey,
			SecretKey:    c.cfg.S3.SecretKey,
		}, clk)

	default:
		return nil, fmt.Errorf("unknown records backend %q", c.cfg.StoreBackend)
	}
}

// Run restores a persisted sign-in, then serves the REPL until the user
// exits or ctx is cancelled.
func (c *Console) Run(ctx context.Context) {
	c.manager.Start()

	rctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	id, err := c.primary.Restore(rctx)
	cancel()
	switch {
	case err != nil:
		c.logger.Warn(ctx, "could not restore previous session", "error", err)
	case id != nil:
		printlnFn("Restored session for", id.Email, "- run 'unlock' to continue")
	}

	wctx, stop := context.WithCancel(ctx)
	defer stop()
	go c.app.WatchReachability(wctx, c.primary, reachabilityInterval)

	c.app.Run(ctx)
}

// Close stops the session and releases connections in reverse order.
func (c *Console) Close() error {
	if c.manager != nil {
		c.manager.Close()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
