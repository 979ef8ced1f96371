// Package records defines the documents kept in the remote store (identity
// records and audit entries) and the Store contract every backend
// implements. Backends persist ciphertext as opaque strings and enforce no
// business rules.
package records

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}

type Permissions struct {
	CanAdd  bool `json:"canAdd"`
	CanEdit bool `json:"canEdit"`
	CanView bool `json:"canView"`
}

// IdentityRecord is the per-user document. Fields suffixed Encrypted hold
// codec output; the rest are plaintext.
type IdentityRecord struct {
	ID        string    `json:"id"`
	EmailHash string    `json:"emailHash"`
	CreatedAt time.Time `json:"createdAt"`

	// Plaintext fallbacks that may be set without the session key.
	IsLocked   bool `json:"isLocked,omitempty"`
	IsArchived bool `json:"isArchived,omitempty"`

	EmailEncrypted          string `json:"emailEncrypted"`
	RoleEncrypted           string `json:"roleEncrypted"`
	PermissionsEncrypted    string `json:"permissionsEncrypted"`
	IsLockedEncrypted       string `json:"isLockedEncrypted"`
	IsArchivedEncrypted     string `json:"isArchivedEncrypted"`
	CreatedByEncrypted      string `json:"createdByEncrypted"`
	LastLoginEncrypted      string `json:"lastLoginEncrypted,omitempty"`
	FailedAttemptsEncrypted string `json:"failedAttemptsEncrypted,omitempty"`
}

// RecordUpdate lists the fields to change; nil fields are left alone.
type RecordUpdate struct {
	IsLocked   *bool
	IsArchived *bool

	RoleEncrypted           *string
	PermissionsEncrypted    *string
	IsLockedEncrypted       *string
	IsArchivedEncrypted     *string
	LastLoginEncrypted      *string
	FailedAttemptsEncrypted *string
}

// Empty reports whether u changes nothing.
func (u RecordUpdate) Empty() bool {
	return u.IsLocked == nil && u.IsArchived == nil &&
		u.RoleEncrypted == nil && u.PermissionsEncrypted == nil &&
		u.IsLockedEncrypted == nil && u.IsArchivedEncrypted == nil &&
		u.LastLoginEncrypted == nil && u.FailedAttemptsEncrypted == nil
}

// Apply copies the set fields of u onto rec.
func (u RecordUpdate) Apply(rec *IdentityRecord) {
	if u.IsLocked != nil {
		rec.IsLocked = *u.IsLocked
	}
	if u.IsArchived != nil {
		rec.IsArchived = *u.IsArchived
	}
	if u.RoleEncrypted != nil {
		rec.RoleEncrypted = *u.RoleEncrypted
	}
	if u.PermissionsEncrypted != nil {
		rec.PermissionsEncrypted = *u.PermissionsEncrypted
	}
	if u.IsLockedEncrypted != nil {
		rec.IsLockedEncrypted = *u.IsLockedEncrypted
	}
	if u.IsArchivedEncrypted != nil {
		rec.IsArchivedEncrypted = *u.IsArchivedEncrypted
	}
	if u.LastLoginEncrypted != nil {
		rec.LastLoginEncrypted = *u.LastLoginEncrypted
	}
	if u.FailedAttemptsEncrypted != nil {
		rec.FailedAttemptsEncrypted = *u.FailedAttemptsEncrypted
	}
}

// AuditEntry is append-only. ID and Timestamp are assigned by the store.
type AuditEntry struct {
	ID                   string    `json:"id"`
	ActionEncrypted      string    `json:"actionEncrypted"`
	DetailsEncrypted     string    `json:"detailsEncrypted"`
	PerformedByEncrypted string    `json:"performedByEncrypted"`
	Timestamp            time.Time `json:"timestamp"`
}

// DefaultAuditLimit is the page size used when AuditQuery.Limit is unset.
const DefaultAuditLimit = 50

// AuditQuery selects a page of audit entries, newest first. Before is the
// NextCursor of the previous page, empty for the first page.
type AuditQuery struct {
	Limit  int
	Before string
}

// Size returns the effective page size.
func (q AuditQuery) Size() int {
	if q.Limit <= 0 {
		return DefaultAuditLimit
	}
	return q.Limit
}

type AuditPage struct {
	Entries    []AuditEntry
	NextCursor string
}

// HasMore reports whether another page may follow.
func (p AuditPage) HasMore() bool { return p.NextCursor != "" }

type Store interface {
	GetIdentity(ctx context.Context, id string) (*IdentityRecord, error)
	// PutIdentity creates or replaces the record and returns it with
	// CreatedAt filled in.
	PutIdentity(ctx context.Context, rec *IdentityRecord) (*IdentityRecord, error)
	UpdateIdentity(ctx context.Context, id string, u RecordUpdate) error
	ListIdentities(ctx context.Context) ([]IdentityRecord, error)
	FindByEmailHash(ctx context.Context, hash string) (*IdentityRecord, error)

	// AppendAudit assigns ID and Timestamp and returns the stored entry.
	AppendAudit(ctx context.Context, e *AuditEntry) (*AuditEntry, error)
	ListAudit(ctx context.Context, q AuditQuery) (AuditPage, error)
}

// Ptr returns a pointer to v, for building RecordUpdate values.
func Ptr[T any](v T) *T { return &v }
