// Package postgres stores identity records and audit entries in PostgreSQL
// through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/adminvault/internal/dbx"
	"github.com/dmitrijs2005/adminvault/internal/records"
	"github.com/dmitrijs2005/adminvault/internal/records/postgres/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const identityColumns = `id, email_hash, is_locked, is_archived, email_encrypted, role_encrypted,
permissions_encrypted, is_locked_encrypted, is_archived_encrypted, created_by_encrypted,
last_login_encrypted, failed_attempts_encrypted, created_at`

const auditColumns = `id, action_encrypted, details_encrypted, performed_by_encrypted, logged_at`

type Store struct {
	db dbx.DBTX
}

func New(db dbx.DBTX) *Store {
	return &Store{db: db}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open records db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping records db: %w", err)
	}
	return db, nil
}

// RunMigrations applies the embedded schema. It keeps its own goose version
// table so the records schema can share a database with other services.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetTableName("records_goose_db_version")
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*records.IdentityRecord, error) {
	rec := &records.IdentityRecord{}
	err := row.Scan(
		&rec.ID, &rec.EmailHash, &rec.IsLocked, &rec.IsArchived,
		&rec.EmailEncrypted, &rec.RoleEncrypted, &rec.PermissionsEncrypted,
		&rec.IsLockedEncrypted, &rec.IsArchivedEncrypted, &rec.CreatedByEncrypted,
		&rec.LastLoginEncrypted, &rec.FailedAttemptsEncrypted, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) GetIdentity(ctx context.Context, id string) (*records.IdentityRecord, error) {
	query := `SELECT ` + identityColumns + ` FROM identity_records WHERE id = $1`

	rec, err := scanIdentity(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, records.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (s *Store) PutIdentity(ctx context.Context, rec *records.IdentityRecord) (*records.IdentityRecord, error) {
	query :=
		`INSERT INTO identity_records (id, email_hash, is_locked, is_archived, email_encrypted, role_encrypted,
			permissions_encrypted, is_locked_encrypted, is_archived_encrypted, created_by_encrypted,
			last_login_encrypted, failed_attempts_encrypted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
			email_hash = EXCLUDED.email_hash,
			is_locked = EXCLUDED.is_locked,
			is_archived = EXCLUDED.is_archived,
			email_encrypted = EXCLUDED.email_encrypted,
			role_encrypted = EXCLUDED.role_encrypted,
			permissions_encrypted = EXCLUDED.permissions_encrypted,
			is_locked_encrypted = EXCLUDED.is_locked_encrypted,
			is_archived_encrypted = EXCLUDED.is_archived_encrypted,
			created_by_encrypted = EXCLUDED.created_by_encrypted,
			last_login_encrypted = EXCLUDED.last_login_encrypted,
			failed_attempts_encrypted = EXCLUDED.failed_attempts_encrypted
		 RETURNING created_at`

	stored := *rec
	err := s.db.QueryRowContext(ctx, query,
		rec.ID, rec.EmailHash, rec.IsLocked, rec.IsArchived, rec.EmailEncrypted, rec.RoleEncrypted,
		rec.PermissionsEncrypted, rec.IsLockedEncrypted, rec.IsArchivedEncrypted, rec.CreatedByEncrypted,
		rec.LastLoginEncrypted, rec.FailedAttemptsEncrypted,
	).Scan(&stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &stored, nil
}

func (s *Store) UpdateIdentity(ctx context.Context, id string, u records.RecordUpdate) error {
	if u.Empty() {
		return nil
	}

	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.IsLocked != nil {
		add("is_locked", *u.IsLocked)
	}
	if u.IsArchived != nil {
		add("is_archived", *u.IsArchived)
	}
	if u.RoleEncrypted != nil {
		add("role_encrypted", *u.RoleEncrypted)
	}
	if u.PermissionsEncrypted != nil {
		add("permissions_encrypted", *u.PermissionsEncrypted)
	}
	if u.IsLockedEncrypted != nil {
		add("is_locked_encrypted", *u.IsLockedEncrypted)
	}
	if u.IsArchivedEncrypted != nil {
		add("is_archived_encrypted", *u.IsArchivedEncrypted)
	}
	if u.LastLoginEncrypted != nil {
		add("last_login_encrypted", *u.LastLoginEncrypted)
	}
	if u.FailedAttemptsEncrypted != nil {
		add("failed_attempts_encrypted", *u.FailedAttemptsEncrypted)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE identity_records SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return records.ErrNotFound
	}
	return nil
}

func (s *Store) ListIdentities(ctx context.Context) ([]records.IdentityRecord, error) {
	query := `SELECT ` + identityColumns + ` FROM identity_records ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []records.IdentityRecord
	for rows.Next() {
		rec, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (s *Store) FindByEmailHash(ctx context.Context, hash string) (*records.IdentityRecord, error) {
	query := `SELECT ` + identityColumns + ` FROM identity_records WHERE email_hash = $1 LIMIT 1`

	rec, err := scanIdentity(s.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, records.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (s *Store) AppendAudit(ctx context.Context, e *records.AuditEntry) (*records.AuditEntry, error) {
	query :=
		`INSERT INTO audit_entries (id, action_encrypted, details_encrypted, performed_by_encrypted)
		 VALUES ($1, $2, $3, $4)
		 RETURNING logged_at`

	stored := *e
	stored.ID = records.NewAuditID(time.Now())

	err := s.db.QueryRowContext(ctx, query,
		stored.ID, e.ActionEncrypted, e.DetailsEncrypted, e.PerformedByEncrypted,
	).Scan(&stored.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &stored, nil
}

func (s *Store) ListAudit(ctx context.Context, q records.AuditQuery) (records.AuditPage, error) {
	limit := q.Size()

	var rows *sql.Rows
	var err error
	if q.Before == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+auditColumns+` FROM audit_entries
			 ORDER BY logged_at DESC, id DESC
			 LIMIT $1`, limit+1)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+auditColumns+` FROM audit_entries
			 WHERE (logged_at, id) < (SELECT logged_at, id FROM audit_entries WHERE id = $1)
			 ORDER BY logged_at DESC, id DESC
			 LIMIT $2`, q.Before, limit+1)
	}
	if err != nil {
		return records.AuditPage{}, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var page records.AuditPage
	for rows.Next() {
		var e records.AuditEntry
		if err := rows.Scan(&e.ID, &e.ActionEncrypted, &e.DetailsEncrypted, &e.PerformedByEncrypted, &e.Timestamp); err != nil {
			return records.AuditPage{}, fmt.Errorf("db error: %w", err)
		}
		page.Entries = append(page.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return records.AuditPage{}, fmt.Errorf("db error: %w", err)
	}

	if len(page.Entries) > limit {
		page.Entries = page.Entries[:limit]
		page.NextCursor = page.Entries[limit-1].ID
	}
	return page, nil
}
