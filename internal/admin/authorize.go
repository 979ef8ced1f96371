package admin

import (
	"github.com/dmitrijs2005/adminvault/internal/records"
	"github.com/dmitrijs2005/adminvault/internal/session"
)

type action int

const (
	actView action = iota
	actCreate
	actEdit
)

// authorize checks the operator's resolved role against act. newRole is
// the role being assigned, for actCreate.
func (s *Service) authorize(act action, newRole *records.Role) error {
	st := s.session.State()
	if st.Phase != session.Resolved {
		return ErrNotUnlocked
	}
	return allowed(st, act, newRole)
}

func allowed(st session.State, act action, newRole *records.Role) error {
	if st.Role == nil {
		return ErrForbidden
	}

	perms := records.Permissions{}
	if st.Permissions != nil {
		perms = *st.Permissions
	}

	switch *st.Role {
	case records.RoleSuperAdmin:
		return nil
	case records.RoleAdmin:
		switch act {
		case actView:
			if perms.CanView {
				return nil
			}
		case actCreate:
			if perms.CanAdd && (newRole == nil || *newRole != records.RoleSuperAdmin) {
				return nil
			}
		case actEdit:
			if perms.CanEdit {
				return nil
			}
		}
	}
	// RoleUser holds no administrative rights regardless of its flags.
	return ErrForbidden
}

// authorizeTarget stops an admin from acting on a super admin record, or
// on a record whose role it cannot read.
func (s *Service) authorizeTarget(target User) error {
	if s.session.State().IsSuperAdmin() {
		return nil
	}
	if target.Role == nil || *target.Role == records.RoleSuperAdmin {
		return ErrForbidden
	}
	return nil
}
