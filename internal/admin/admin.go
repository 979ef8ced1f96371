// Package admin implements user administration on top of a resolved
// session: listing and provisioning accounts, editing roles, archiving,
// unlocking, and reading the audit log. Every read and write goes through
// the operator's session key.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/adminvault/internal/common"
	"github.com/dmitrijs2005/adminvault/internal/cryptox"
	"github.com/dmitrijs2005/adminvault/internal/identity"
	"github.com/dmitrijs2005/adminvault/internal/logging"
	"github.com/dmitrijs2005/adminvault/internal/records"
	"github.com/dmitrijs2005/adminvault/internal/session"
)

// ActivityPageSize is the number of audit entries per ActivityLog page.
const ActivityPageSize = 10

var (
	ErrForbidden    = errors.New("operation not permitted for your role")
	ErrNotUnlocked  = errors.New("session is not unlocked")
	ErrInvalidRole  = errors.New("role must be admin or user")
	ErrInvalidEmail = errors.New("invalid email address")
)

// Session is the part of session.Manager the service needs.
type Session interface {
	State() session.State
	WithKey(fn func(key string) error) error
}

// IdentityCreator provisions accounts without touching the operator's
// own identity.
type IdentityCreator interface {
	CreateIdentity(ctx context.Context, email, password string) (*identity.Identity, error)
}

type Service struct {
	session Session
	store   records.Store
	creator IdentityCreator
	logger  logging.Logger
}

func New(sess Session, store records.Store, creator IdentityCreator, logger logging.Logger) *Service {
	return &Service{
		session: sess,
		store:   store,
		creator: creator,
		logger:  logger.With("module", "admin"),
	}
}

// User is the decrypted view of an identity record. Fields that could not
// be decrypted are left empty or nil.
type User struct {
	ID             string
	Email          string
	Role           *records.Role
	Permissions    *records.Permissions
	Locked         bool
	Archived       bool
	CreatedAt      time.Time
	CreatedBy      string
	LastLogin      string
	FailedAttempts int
}

type NewUser struct {
	Email       string
	Password    string
	Role        records.Role
	Permissions records.Permissions
}

type Activity struct {
	ID          string
	Action      string
	Details     string
	PerformedBy string
	Timestamp   time.Time
}

type ActivityPage struct {
	Entries []Activity
	// Next is passed back to ActivityLog for the following page; empty on
	// the last page.
	Next string
}

func decryptUser(rec *records.IdentityRecord, key string) User {
	u := User{
		ID:             rec.ID,
		Email:          cryptox.Decrypt[string](rec.EmailEncrypted, key).Or(""),
		Locked:         cryptox.Decrypt[bool](rec.IsLockedEncrypted, key).Or(false) || rec.IsLocked,
		Archived:       cryptox.Decrypt[bool](rec.IsArchivedEncrypted, key).Or(false) || rec.IsArchived,
		CreatedAt:      rec.CreatedAt,
		CreatedBy:      cryptox.Decrypt[string](rec.CreatedByEncrypted, key).Or(""),
		LastLogin:      cryptox.Decrypt[string](rec.LastLoginEncrypted, key).Or(""),
		FailedAttempts: cryptox.Decrypt[int](rec.FailedAttemptsEncrypted, key).Or(0),
	}
	if role, ok := cryptox.Decrypt[records.Role](rec.RoleEncrypted, key).Get(); ok && role.Valid() {
		u.Role = &role
	}
	if perms, ok := cryptox.Decrypt[records.Permissions](rec.PermissionsEncrypted, key).Get(); ok {
		u.Permissions = &perms
	}
	return u
}

// ListUsers returns every identity record, decrypted with the session key,
// and how many of them are locked.
func (s *Service) ListUsers(ctx context.Context) ([]User, int, error) {
	if err := s.authorize(actView, nil); err != nil {
		return nil, 0, err
	}

	var (
		users  []User
		locked int
	)
	err := s.session.WithKey(func(key string) error {
		recs, err := s.store.ListIdentities(ctx)
		if err != nil {
			return fmt.Errorf("list identities: %w", err)
		}
		users = make([]User, 0, len(recs))
		for i := range recs {
			u := decryptUser(&recs[i], key)
			if u.Locked {
				locked++
			}
			users = append(users, u)
		}
		return nil
	})
	if err != nil {
		return nil, 0, mapKeyErr(err)
	}
	return users, locked, nil
}

// CreateUser provisions a new account through the isolated identity
// context and writes its record with the operator's key.
func (s *Service) CreateUser(ctx context.Context, nu NewUser) (*User, error) {
	email := strings.TrimSpace(nu.Email)
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if nu.Role != records.RoleAdmin && nu.Role != records.RoleUser {
		return nil, ErrInvalidRole
	}
	if err := s.authorize(actCreate, &nu.Role); err != nil {
		return nil, err
	}
	operator := s.operatorEmail()

	var created *User
	err := s.session.WithKey(func(key string) error {
		id, err := s.creator.CreateIdentity(ctx, email, nu.Password)
		if id == nil {
			return err
		}
		disturbed := err

		perms := normalizePermissions(nu.Role, nu.Permissions)
		rec := &records.IdentityRecord{ID: id.UID, EmailHash: cryptox.EmailHash(email)}
		if err := sealAll(key,
			field{&rec.EmailEncrypted, email},
			field{&rec.RoleEncrypted, nu.Role},
			field{&rec.PermissionsEncrypted, perms},
			field{&rec.CreatedByEncrypted, operator},
			field{&rec.IsLockedEncrypted, false},
			field{&rec.IsArchivedEncrypted, false},
			field{&rec.FailedAttemptsEncrypted, 0},
		); err != nil {
			return err
		}

		stored, err := s.store.PutIdentity(ctx, rec)
		if err != nil {
			s.logger.Error(ctx, "account created without identity record", "uid", id.UID, "error", err)
			return fmt.Errorf("write identity record: %w", err)
		}
		u := decryptUser(stored, key)
		created = &u

		s.audit(ctx, key, operator, common.ActionCreateUser, "Created user "+email)
		return disturbed
	})
	if err != nil {
		return created, mapKeyErr(err)
	}
	return created, nil
}

// EditUser replaces the role and permissions of record id.
func (s *Service) EditUser(ctx context.Context, id string, role records.Role, perms records.Permissions) error {
	if role != records.RoleAdmin && role != records.RoleUser {
		return ErrInvalidRole
	}
	return s.mutate(ctx, id, func(key string, target User) (records.RecordUpdate, string, string, error) {
		var u records.RecordUpdate
		roleCT, err := cryptox.Encrypt(role, key)
		if err != nil {
			return u, "", "", err
		}
		permsCT, err := cryptox.Encrypt(normalizePermissions(role, perms), key)
		if err != nil {
			return u, "", "", err
		}
		u.RoleEncrypted = &roleCT
		u.PermissionsEncrypted = &permsCT
		return u, common.ActionEditUser, "Updated user " + target.Email, nil
	})
}

// SetArchived archives or restores record id. Restoring also clears the
// plaintext archive flag.
func (s *Service) SetArchived(ctx context.Context, id string, archived bool) error {
	return s.mutate(ctx, id, func(key string, target User) (records.RecordUpdate, string, string, error) {
		var u records.RecordUpdate
		ct, err := cryptox.Encrypt(archived, key)
		if err != nil {
			return u, "", "", err
		}
		u.IsArchivedEncrypted = &ct
		if archived {
			return u, common.ActionArchiveUser, "Archived " + target.Email, nil
		}
		u.IsArchived = records.Ptr(false)
		return u, common.ActionUnarchiveUser, "Unarchived " + target.Email, nil
	})
}

// UnlockUser clears the lock flags and the failed-attempt counter.
func (s *Service) UnlockUser(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(key string, target User) (records.RecordUpdate, string, string, error) {
		var u records.RecordUpdate
		lockCT, err := cryptox.Encrypt(false, key)
		if err != nil {
			return u, "", "", err
		}
		attemptsCT, err := cryptox.Encrypt(0, key)
		if err != nil {
			return u, "", "", err
		}
		u.IsLockedEncrypted = &lockCT
		u.FailedAttemptsEncrypted = &attemptsCT
		u.IsLocked = records.Ptr(false)
		return u, common.ActionUnlockUser, "Unlocked " + target.Email, nil
	})
}

type buildUpdate func(key string, target User) (u records.RecordUpdate, action, details string, err error)

func (s *Service) mutate(ctx context.Context, id string, build buildUpdate) error {
	if err := s.authorize(actEdit, nil); err != nil {
		return err
	}
	operator := s.operatorEmail()

	err := s.session.WithKey(func(key string) error {
		rec, err := s.store.GetIdentity(ctx, id)
		if err != nil {
			return fmt.Errorf("load identity %s: %w", id, err)
		}
		target := decryptUser(rec, key)
		if err := s.authorizeTarget(target); err != nil {
			return err
		}

		u, action, details, err := build(key, target)
		if err != nil {
			return err
		}
		if err := s.store.UpdateIdentity(ctx, id, u); err != nil {
			return fmt.Errorf("update identity %s: %w", id, err)
		}
		s.audit(ctx, key, operator, action, details)
		return nil
	})
	return mapKeyErr(err)
}

// ActivityLog returns one page of the audit log, newest first. Only a
// super admin may read it.
func (s *Service) ActivityLog(ctx context.Context, cursor string) (ActivityPage, error) {
	if !s.session.State().IsSuperAdmin() {
		return ActivityPage{}, ErrForbidden
	}
	if cursor != "" && !records.ValidCursor(cursor) {
		return ActivityPage{}, fmt.Errorf("invalid cursor %q", cursor)
	}

	var page ActivityPage
	err := s.session.WithKey(func(key string) error {
		p, err := s.store.ListAudit(ctx, records.AuditQuery{Limit: ActivityPageSize, Before: cursor})
		if err != nil {
			return fmt.Errorf("list audit: %w", err)
		}
		page.Next = p.NextCursor
		page.Entries = make([]Activity, 0, len(p.Entries))
		for _, e := range p.Entries {
			page.Entries = append(page.Entries, Activity{
				ID:          e.ID,
				Action:      cryptox.Decrypt[string](e.ActionEncrypted, key).Or(""),
				Details:     cryptox.Decrypt[string](e.DetailsEncrypted, key).Or(""),
				PerformedBy: cryptox.Decrypt[string](e.PerformedByEncrypted, key).Or(""),
				Timestamp:   e.Timestamp,
			})
		}
		return nil
	})
	if err != nil {
		return ActivityPage{}, mapKeyErr(err)
	}
	return page, nil
}

// audit appends an entry. Failures are logged and otherwise ignored.
func (s *Service) audit(ctx context.Context, key, operator, action, details string) {
	e := &records.AuditEntry{}
	if err := sealAll(key,
		field{&e.ActionEncrypted, action},
		field{&e.DetailsEncrypted, details},
		field{&e.PerformedByEncrypted, operator},
	); err != nil {
		s.logger.Warn(ctx, "failed to encrypt audit entry", "action", action, "error", err)
		return
	}
	if _, err := s.store.AppendAudit(ctx, e); err != nil {
		s.logger.Warn(ctx, "failed to write audit entry", "action", action, "error", err)
	}
}

func (s *Service) operatorEmail() string {
	if id := s.session.State().Identity; id != nil {
		return id.Email
	}
	return ""
}

func normalizePermissions(role records.Role, p records.Permissions) records.Permissions {
	if role != records.RoleSuperAdmin {
		p.CanView = true
	}
	return p
}

type field struct {
	dst   *string
	value any
}

func sealAll(key string, fields ...field) error {
	for _, f := range fields {
		ct, err := cryptox.Encrypt(f.value, key)
		if err != nil {
			return err
		}
		*f.dst = ct
	}
	return nil
}

func mapKeyErr(err error) error {
	if errors.Is(err, session.ErrLocked) {
		return ErrNotUnlocked
	}
	return err
}
