package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/adminvault/internal/cryptox"
	"github.com/dmitrijs2005/adminvault/internal/records"
)

type resolution struct {
	role     *records.Role
	perms    *records.Permissions
	locked   bool
	archived bool
}

func (r resolution) denied() bool { return r.locked || r.archived }

// resolveRecord decrypts the authorization fields of rec with key. Role and
// permissions are adopted independently. Lock and archive flags are true
// if either the encrypted flag or its plaintext fallback says so.
func resolveRecord(rec *records.IdentityRecord, key string) resolution {
	var res resolution

	if role, ok := cryptox.Decrypt[records.Role](rec.RoleEncrypted, key).Get(); ok && role.Valid() {
		res.role = &role
	}

	if perms, ok := cryptox.Decrypt[records.Permissions](rec.PermissionsEncrypted, key).Get(); ok {
		if res.role != nil && *res.role != records.RoleSuperAdmin {
			perms.CanView = true
		}
		res.perms = &perms
	}

	res.locked = cryptox.Decrypt[bool](rec.IsLockedEncrypted, key).Or(false) || rec.IsLocked
	res.archived = cryptox.Decrypt[bool](rec.IsArchivedEncrypted, key).Or(false) || rec.IsArchived

	return res
}

// resolve loads and decrypts the signed-in identity's record. It is a
// no-op error (ErrStale) if identity or key changed while the record was
// being fetched.
func (m *Manager) resolve(ctx context.Context) error {
	m.mu.Lock()
	id := m.state.Identity
	if id == nil {
		m.mu.Unlock()
		return ErrNoIdentity
	}
	key, ok := m.vault.Key()
	if !ok {
		m.mu.Unlock()
		return ErrLocked
	}
	m.epoch++
	epoch := m.epoch
	if !m.applyLocked(ctx, evKeySet, State{Identity: id}) {
		m.mu.Unlock()
		return ErrStale
	}
	m.mu.Unlock()
	m.flush()

	rec, err := m.store.GetIdentity(ctx, id.UID)

	m.mu.Lock()
	if !m.currentLocked(epoch, id.UID, key) {
		m.mu.Unlock()
		m.logger.Debug(ctx, "discarding stale resolution", "uid", id.UID)
		return ErrStale
	}

	switch {
	case errors.Is(err, records.ErrNotFound):
		m.applyLocked(ctx, evResolved, State{Identity: id})
		m.mu.Unlock()
		m.flush()
		m.logger.Warn(ctx, "no identity record for signed-in account", "uid", id.UID)
		return nil

	case err != nil:
		m.epoch++
		m.vault.Clear()
		m.applyLocked(ctx, evResolveFailed, State{Identity: id})
		m.mu.Unlock()
		m.flush()
		m.logger.Error(ctx, "failed to load identity record", "uid", id.UID, "error", err)
		return fmt.Errorf("%w: %w", ErrResolve, err)
	}

	res := resolveRecord(rec, key)

	if res.denied() {
		m.applyLocked(ctx, evDenied, State{Identity: id, Notice: DeniedNotice})
		m.mu.Unlock()
		m.flush()

		m.logger.Warn(ctx, "access denied", "uid", id.UID, "locked", res.locked, "archived", res.archived)
		if err := m.endSession(ctx, DeniedNotice); err != nil {
			m.logger.Warn(ctx, "sign-out after denial failed", "error", err)
		}
		return &DeniedError{Locked: res.locked, Archived: res.archived}
	}

	m.applyLocked(ctx, evResolved, State{Identity: id, Role: res.role, Permissions: res.perms})
	m.mu.Unlock()
	m.flush()

	role := "none"
	if res.role != nil {
		role = string(*res.role)
	}
	m.logger.Info(ctx, "session resolved", "uid", id.UID, "role", role)

	m.recordLastLogin(ctx, id.UID, key)
	return nil
}

func (m *Manager) currentLocked(epoch uint64, uid, key string) bool {
	if m.epoch != epoch || m.state.Identity == nil || m.state.Identity.UID != uid {
		return false
	}
	current, ok := m.vault.Key()
	return ok && current == key
}

// recordLastLogin is best effort.
func (m *Manager) recordLastLogin(ctx context.Context, uid, key string) {
	stamp, err := cryptox.Encrypt(m.clock.Now().UTC().Format(time.RFC3339), key)
	if err != nil {
		m.logger.Warn(ctx, "failed to encrypt last login", "error", err)
		return
	}
	if err := m.store.UpdateIdentity(ctx, uid, records.RecordUpdate{LastLoginEncrypted: &stamp}); err != nil {
		m.logger.Warn(ctx, "failed to record last login", "uid", uid, "error", err)
	}
}
