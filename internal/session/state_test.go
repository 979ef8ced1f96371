package session

import (
	"testing"

	"github.com/dmitrijs2005/adminvault/internal/identity"
	"github.com/dmitrijs2005/adminvault/internal/records"
	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from Phase
		ev   event
		want Phase
		ok   bool
	}{
		{NoIdentity, evSignedIn, IdentityNoKey, true},
		{NoIdentity, evKeySet, 0, false},
		{NoIdentity, evResolved, 0, false},
		{IdentityNoKey, evKeySet, Resolving, true},
		{IdentityNoKey, evResolved, 0, false},
		{IdentityNoKey, evSignedOut, NoIdentity, true},
		{Resolving, evResolved, Resolved, true},
		{Resolving, evDenied, Denied, true},
		{Resolving, evResolveFailed, IdentityNoKey, true},
		{Resolved, evKeySet, Resolving, true},
		{Resolved, evDenied, 0, false},
		{Resolved, evSignedIn, IdentityNoKey, true},
		{Denied, evSignedOut, NoIdentity, true},
		{Denied, evKeySet, 0, false},
		{Denied, evSignedIn, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.ev.String(), func(t *testing.T) {
			got, ok := transition(tt.from, tt.ev)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestState_CloneIsDeep(t *testing.T) {
	role := records.RoleAdmin
	s := State{
		Phase:       Resolved,
		Identity:    &identity.Identity{UID: "u1"},
		Role:        &role,
		Permissions: &records.Permissions{CanAdd: true},
	}
	c := s.clone()
	c.Identity.UID = "x"
	*c.Role = records.RoleUser
	c.Permissions.CanAdd = false

	assert.Equal(t, "u1", s.Identity.UID)
	assert.Equal(t, records.RoleAdmin, *s.Role)
	assert.True(t, s.Permissions.CanAdd)
}

func TestState_IsSuperAdmin(t *testing.T) {
	super := records.RoleSuperAdmin
	admin := records.RoleAdmin
	assert.True(t, State{Phase: Resolved, Role: &super}.IsSuperAdmin())
	assert.False(t, State{Phase: Resolving, Role: &super}.IsSuperAdmin())
	assert.False(t, State{Phase: Resolved, Role: &admin}.IsSuperAdmin())
	assert.False(t, State{Phase: Resolved}.IsSuperAdmin())
}
