// Package storage is the console's durable local state: a small sqlite
// database holding the login guard counters and the persisted identity
// session. Nothing secret beyond the refresh token is stored here; the
// session key never is.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/adminvault/internal/client/storage/migrations"
	"github.com/dmitrijs2005/adminvault/internal/filex"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "console.db"

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetTableName("goose_db_version")
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Open creates dataDir if needed, opens the database inside it and
// migrates it.
func Open(ctx context.Context, dataDir string) (*sql.DB, error) {
	dir, err := filex.EnsureDataDir(dataDir)
	if err != nil {
		return nil, err
	}
	return OpenDSN(ctx, filepath.Join(dir, FileName))
}

// OpenDSN opens and migrates the sqlite database at dsn.
func OpenDSN(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open client db: %w", err)
	}
	// single writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate client db: %w", err)
	}
	return db, nil
}
