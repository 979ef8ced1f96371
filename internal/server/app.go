// Package server wires the identity daemon together: it opens the accounts
// database, applies migrations, serves the identity API over gRPC and
// periodically purges expired refresh tokens.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/adminvault/internal/logging"
	"github.com/dmitrijs2005/adminvault/internal/server/config"
	"github.com/dmitrijs2005/adminvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/adminvault/internal/server/services"

	gs "github.com/dmitrijs2005/adminvault/internal/server/grpc"
)

// PurgeInterval is how often expired refresh tokens are removed.
const PurgeInterval = time.Hour

type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	accounts purger
	server   *gs.GRPCServer
}

// NewApp connects to the database and prepares the server. Logs go to out
// as JSON.
func NewApp(ctx context.Context, cfg *config.Config, out io.Writer) (*App, error) {
	logger := logging.NewJSON(out, cfg.LogLevel)

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	return newApp(cfg, logger, db, rm)
}

func newApp(cfg *config.Config, logger logging.Logger, db *sql.DB, rm repomanager.RepositoryManager) (*App, error) {
	accounts, err := services.NewAccountService(db, rm, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	srv := gs.NewGRPCServer(cfg.EndpointAddrGRPC, logger, accounts, cfg.SecretKey, cfg.RateLimit, cfg.RateBurst)

	return &App{config: cfg, logger: logger, db: db, accounts: accounts, server: srv}, nil
}

func (app *App) purgeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.accounts.PurgeExpired(ctx)
			if err != nil {
				app.logger.Warn(ctx, "refresh token purge failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired refresh tokens purged", "count", n)
			}
		}
	}
}

// Run serves until ctx is cancelled or the server fails, then closes the
// database.
func (app *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.logger.Info(ctx, "Starting app...")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.purgeLoop(ctx, PurgeInterval)
	}()

	err := app.server.Run(ctx)
	if err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
	}

	cancel()
	wg.Wait()

	if cerr := app.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	app.logger.Info(context.Background(), "Stopped")
	return err
}
