package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/adminvault/internal/common"
	"github.com/dmitrijs2005/adminvault/internal/cryptox"
	"github.com/dmitrijs2005/adminvault/internal/identity"
	"github.com/dmitrijs2005/adminvault/internal/records"
	"github.com/dmitrijs2005/adminvault/internal/session"
)

// Seed creates the first super admin account and encrypts its record with
// pin, which becomes that account's Master PIN. It needs no session.
func (s *Service) Seed(ctx context.Context, email, password, pin string) (*identity.Identity, error) {
	if len(pin) < session.MinPassphraseLength {
		return nil, session.ErrPassphraseTooShort
	}
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	id, err := s.creator.CreateIdentity(ctx, email, password)
	if id == nil {
		return nil, err
	}
	if werr := s.writeSuperAdmin(ctx, id, pin); werr != nil {
		return id, werr
	}
	s.logger.Info(ctx, "super admin seeded", "uid", id.UID)
	return id, err
}

// Repair rewrites the signed-in identity's record as a super admin
// encrypted with pin. It is the recovery path when the record was written
// with a PIN nobody remembers. A record that is force-locked or archived
// in plaintext is never rewritten, and an operator whose role resolved
// below super admin cannot use it.
func (s *Service) Repair(ctx context.Context, pin string) error {
	if len(pin) < session.MinPassphraseLength {
		return session.ErrPassphraseTooShort
	}
	st := s.session.State()
	id := st.Identity
	if id == nil {
		return session.ErrNoIdentity
	}
	if st.Role != nil && *st.Role != records.RoleSuperAdmin {
		return ErrForbidden
	}

	existing, err := s.store.GetIdentity(ctx, id.UID)
	switch {
	case errors.Is(err, records.ErrNotFound):
	case err != nil:
		return fmt.Errorf("read identity record: %w", err)
	case existing.IsLocked || existing.IsArchived:
		s.logger.Warn(ctx, "repair refused for disabled record", "uid", id.UID,
			"locked", existing.IsLocked, "archived", existing.IsArchived)
		return ErrForbidden
	}

	if err := s.writeSuperAdmin(ctx, id, pin); err != nil {
		return err
	}
	s.logger.Warn(ctx, "identity record repaired", "uid", id.UID)
	return nil
}

func (s *Service) writeSuperAdmin(ctx context.Context, id *identity.Identity, pin string) error {
	rec := &records.IdentityRecord{ID: id.UID, EmailHash: cryptox.EmailHash(id.Email)}
	if err := sealAll(pin,
		field{&rec.EmailEncrypted, id.Email},
		field{&rec.RoleEncrypted, records.RoleSuperAdmin},
		field{&rec.PermissionsEncrypted, records.Permissions{CanAdd: true, CanEdit: true, CanView: true}},
		field{&rec.CreatedByEncrypted, common.SeedCreator},
		field{&rec.IsLockedEncrypted, false},
		field{&rec.IsArchivedEncrypted, false},
		field{&rec.FailedAttemptsEncrypted, 0},
	); err != nil {
		return err
	}
	if _, err := s.store.PutIdentity(ctx, rec); err != nil {
		return fmt.Errorf("write identity record: %w", err)
	}
	return nil
}
