package admin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/adminvault/internal/clock"
	"github.com/dmitrijs2005/adminvault/internal/common"
	"github.com/dmitrijs2005/adminvault/internal/cryptox"
	"github.com/dmitrijs2005/adminvault/internal/identity"
	"github.com/dmitrijs2005/adminvault/internal/logging"
	"github.com/dmitrijs2005/adminvault/internal/records"
	"github.com/dmitrijs2005/adminvault/internal/records/memory"
	"github.com/dmitrijs2005/adminvault/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	opEmail = "boss@corp.io"
	pin     = "4321"
)

type fakeSession struct {
	st  session.State
	key string
}

func (f *fakeSession) State() session.State { return f.st }

func (f *fakeSession) WithKey(fn func(string) error) error {
	if f.key == "" {
		return session.ErrLocked
	}
	return fn(f.key)
}

func (f *fakeSession) as(role records.Role, perms records.Permissions) {
	f.st = session.State{
		Phase:       session.Resolved,
		Identity:    &identity.Identity{UID: "op", Email: opEmail},
		HasKey:      true,
		Role:        &role,
		Permissions: &perms,
	}
	f.key = pin
}

type auditFailStore struct {
	*memory.Store
	AppendErr error
	PutErr    error
}

func (s *auditFailStore) PutIdentity(ctx context.Context, rec *records.IdentityRecord) (*records.IdentityRecord, error) {
	if s.PutErr != nil {
		return nil, s.PutErr
	}
	return s.Store.PutIdentity(ctx, rec)
}

func (s *auditFailStore) AppendAudit(ctx context.Context, e *records.AuditEntry) (*records.AuditEntry, error) {
	if s.AppendErr != nil {
		return nil, s.AppendErr
	}
	return s.Store.AppendAudit(ctx, e)
}

type fixture struct {
	clk     *clock.FakeClock
	sess    *fakeSession
	store   *auditFailStore
	primary *identity.LocalProvider
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	dir := identity.NewDirectory()
	primary := dir.NewProvider()
	creator, err := identity.NewCreator(primary, dir.NewProvider(), logging.Discard())
	require.NoError(t, err)

	f := &fixture{
		clk:     clk,
		sess:    &fakeSession{},
		store:   &auditFailStore{Store: memory.New(clk)},
		primary: primary,
	}
	f.svc = New(f.sess, f.store, creator, logging.Discard())
	f.sess.as(records.RoleSuperAdmin, records.Permissions{CanAdd: true, CanEdit: true, CanView: true})
	return f
}

func (f *fixture) create(t *testing.T, email string, role records.Role) *User {
	t.Helper()
	u, err := f.svc.CreateUser(context.Background(), NewUser{Email: email, Password: "password1", Role: role})
	require.NoError(t, err)
	return u
}

func (f *fixture) auditActions(t *testing.T) []string {
	t.Helper()
	page, err := f.store.ListAudit(context.Background(), records.AuditQuery{})
	require.NoError(t, err)
	var out []string
	for _, e := range page.Entries {
		out = append(out, cryptox.Decrypt[string](e.ActionEncrypted, pin).Or("?"))
	}
	return out
}

func TestCreateUser_WritesEncryptedRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.CreateUser(ctx, NewUser{
		Email:       " new@corp.io ",
		Password:    "password1",
		Role:        records.RoleAdmin,
		Permissions: records.Permissions{CanAdd: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "new@corp.io", u.Email)
	assert.Equal(t, records.RoleAdmin, *u.Role)
	assert.Equal(t, records.Permissions{CanAdd: true, CanView: true}, *u.Permissions)
	assert.Equal(t, opEmail, u.CreatedBy)
	assert.False(t, u.Locked)
	assert.False(t, u.Archived)
	assert.Equal(t, f.clk.Now().UTC(), u.CreatedAt)

	rec, err := f.store.GetIdentity(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, cryptox.EmailHash("new@corp.io"), rec.EmailHash)
	assert.NotContains(t, rec.RoleEncrypted, "admin")
	assert.True(t, cryptox.Decrypt[string](rec.RoleEncrypted, "other").Undecryptable())

	assert.Nil(t, f.primary.Current(), "operator context untouched")

	page, err := f.store.ListAudit(ctx, records.AuditQuery{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	e := page.Entries[0]
	assert.Equal(t, common.ActionCreateUser, cryptox.Decrypt[string](e.ActionEncrypted, pin).Or(""))
	assert.Equal(t, "Created user new@corp.io", cryptox.Decrypt[string](e.DetailsEncrypted, pin).Or(""))
	assert.Equal(t, opEmail, cryptox.Decrypt[string](e.PerformedByEncrypted, pin).Or(""))
}

func TestCreateUser_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateUser(ctx, NewUser{Email: "x@corp.io", Password: "password1", Role: records.RoleSuperAdmin})
	require.ErrorIs(t, err, ErrInvalidRole)

	_, err = f.svc.CreateUser(ctx, NewUser{Email: "nope", Password: "password1", Role: records.RoleUser})
	require.ErrorIs(t, err, ErrInvalidEmail)

	f.create(t, "dup@corp.io", records.RoleUser)
	_, err = f.svc.CreateUser(ctx, NewUser{Email: "dup@corp.io", Password: "password1", Role: records.RoleUser})
	require.ErrorIs(t, err, identity.ErrEmailInUse)

	_, err = f.svc.CreateUser(ctx, NewUser{Email: "short@corp.io", Password: "abc", Role: records.RoleUser})
	require.ErrorIs(t, err, identity.ErrInvalidInput)
}

func TestCreateUser_RecordWriteFailureLogsUID(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	f.svc.logger = logging.NewJSON(&buf, "debug")
	f.store.PutErr = errors.New("bucket gone")

	u, err := f.svc.CreateUser(context.Background(), NewUser{Email: "orphan@corp.io", Password: "password1", Role: records.RoleUser})
	require.Error(t, err)
	assert.Nil(t, u)

	out := buf.String()
	assert.Contains(t, out, "account created without identity record")
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, "bucket gone")
	assert.Regexp(t, `"uid":"[^"]+"`, out)
}

func TestCreateUser_Permissions(t *testing.T) {
	tests := []struct {
		name    string
		role    records.Role
		perms   records.Permissions
		wantErr error
	}{
		{"admin with canAdd", records.RoleAdmin, records.Permissions{CanAdd: true}, nil},
		{"admin without canAdd", records.RoleAdmin, records.Permissions{CanEdit: true}, ErrForbidden},
		{"user", records.RoleUser, records.Permissions{CanAdd: true, CanEdit: true}, ErrForbidden},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.sess.as(tt.role, tt.perms)
			_, err := f.svc.CreateUser(context.Background(), NewUser{
				Email:    fmt.Sprintf("u%d@corp.io", i),
				Password: "password1",
				Role:     records.RoleUser,
			})
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOperations_RequireResolvedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sess.st = session.State{Phase: session.IdentityNoKey, Identity: &identity.Identity{UID: "op"}}
	f.sess.key = ""

	_, _, err := f.svc.ListUsers(ctx)
	require.ErrorIs(t, err, ErrNotUnlocked)
	_, err = f.svc.CreateUser(ctx, NewUser{Email: "a@corp.io", Password: "password1", Role: records.RoleUser})
	require.ErrorIs(t, err, ErrNotUnlocked)
	require.ErrorIs(t, f.svc.UnlockUser(ctx, "x"), ErrNotUnlocked)
	_, err = f.svc.ActivityLog(ctx, "")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestListUsers_CountsLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, "a@corp.io", records.RoleUser)
	f.create(t, "b@corp.io", records.RoleAdmin)

	require.NoError(t, f.store.UpdateIdentity(ctx, a.ID, records.RecordUpdate{IsLocked: records.Ptr(true)}))

	users, locked, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 1, locked)

	require.NoError(t, f.svc.UnlockUser(ctx, a.ID))
	_, locked, err = f.svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, locked)

	rec, err := f.store.GetIdentity(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, rec.IsLocked)
	assert.Equal(t, 0, cryptox.Decrypt[int](rec.FailedAttemptsEncrypted, pin).Or(-1))
}

func TestListUsers_WrongKeyShowsNothing(t *testing.T) {
	f := newFixture(t)
	f.create(t, "a@corp.io", records.RoleUser)
	f.sess.key = "another-pin"

	users, _, err := f.svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Empty(t, users[0].Email)
	assert.Nil(t, users[0].Role)
	assert.Nil(t, users[0].Permissions)
}

func TestListUsers_ByRole(t *testing.T) {
	tests := []struct {
		name  string
		role  records.Role
		perms records.Permissions
		err   error
	}{
		{"super admin", records.RoleSuperAdmin, records.Permissions{}, nil},
		{"admin with view", records.RoleAdmin, records.Permissions{CanView: true}, nil},
		{"admin without view", records.RoleAdmin, records.Permissions{CanEdit: true}, ErrForbidden},
		{"user", records.RoleUser, records.Permissions{CanView: true}, ErrForbidden},
		{"user with every flag", records.RoleUser, records.Permissions{CanAdd: true, CanEdit: true, CanView: true}, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.create(t, "a@corp.io", records.RoleUser)
			f.sess.as(tt.role, tt.perms)

			users, _, err := f.svc.ListUsers(context.Background())
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				assert.Empty(t, users)
				return
			}
			require.NoError(t, err)
			assert.Len(t, users, 1)
		})
	}
}

func TestEditUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.create(t, "a@corp.io", records.RoleUser)

	require.NoError(t, f.svc.EditUser(ctx, u.ID, records.RoleAdmin, records.Permissions{CanEdit: true}))

	users, _, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, records.RoleAdmin, *users[0].Role)
	assert.Equal(t, records.Permissions{CanEdit: true, CanView: true}, *users[0].Permissions)

	require.ErrorIs(t, f.svc.EditUser(ctx, u.ID, records.RoleSuperAdmin, records.Permissions{}), ErrInvalidRole)
	require.ErrorIs(t, f.svc.EditUser(ctx, "missing", records.RoleUser, records.Permissions{}), records.ErrNotFound)

	assert.Equal(t, []string{common.ActionEditUser, common.ActionCreateUser}, f.auditActions(t))
}

func TestMutations_AdminCannotTouchSuperAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Seed(ctx, "root@corp.io", "password1", pin)
	require.NoError(t, err)
	users, _, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	rootID := users[0].ID

	f.sess.as(records.RoleAdmin, records.Permissions{CanEdit: true, CanView: true})
	require.ErrorIs(t, f.svc.SetArchived(ctx, rootID, true), ErrForbidden)
	require.ErrorIs(t, f.svc.UnlockUser(ctx, rootID), ErrForbidden)
	require.ErrorIs(t, f.svc.EditUser(ctx, rootID, records.RoleUser, records.Permissions{}), ErrForbidden)

	f.sess.as(records.RoleAdmin, records.Permissions{CanAdd: true, CanView: true})
	require.ErrorIs(t, f.svc.UnlockUser(ctx, rootID), ErrForbidden)
}

func TestSetArchived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.create(t, "a@corp.io", records.RoleUser)

	require.NoError(t, f.svc.SetArchived(ctx, u.ID, true))
	users, _, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.True(t, users[0].Archived)

	require.NoError(t, f.store.UpdateIdentity(ctx, u.ID, records.RecordUpdate{IsArchived: records.Ptr(true)}))
	require.NoError(t, f.svc.SetArchived(ctx, u.ID, false))
	users, _, err = f.svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.False(t, users[0].Archived, "restoring clears the plaintext flag too")

	assert.Equal(t, []string{common.ActionUnarchiveUser, common.ActionArchiveUser, common.ActionCreateUser}, f.auditActions(t))
}

func TestAuditFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.store.AppendErr = errors.New("quota")

	u := f.create(t, "a@corp.io", records.RoleUser)
	require.NoError(t, f.svc.SetArchived(context.Background(), u.ID, true))
}

func TestActivityLog_Pages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.create(t, "a@corp.io", records.RoleUser)
	for i := 0; i < 11; i++ {
		f.clk.Advance(time.Second)
		require.NoError(t, f.svc.SetArchived(ctx, u.ID, i%2 == 0))
	}

	first, err := f.svc.ActivityLog(ctx, "")
	require.NoError(t, err)
	require.Len(t, first.Entries, ActivityPageSize)
	assert.NotEmpty(t, first.Next)
	assert.Equal(t, common.ActionArchiveUser, first.Entries[0].Action)
	assert.Equal(t, opEmail, first.Entries[0].PerformedBy)
	assert.True(t, first.Entries[0].Timestamp.After(first.Entries[9].Timestamp))

	second, err := f.svc.ActivityLog(ctx, first.Next)
	require.NoError(t, err)
	require.Len(t, second.Entries, 2)
	assert.Empty(t, second.Next)
	assert.Equal(t, common.ActionCreateUser, second.Entries[1].Action)

	_, err = f.svc.ActivityLog(ctx, "not-a-cursor")
	require.Error(t, err)

	f.sess.as(records.RoleAdmin, records.Permissions{CanAdd: true, CanEdit: true, CanView: true})
	_, err = f.svc.ActivityLog(ctx, "")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestSeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Seed(ctx, "root@corp.io", "password1", "123")
	require.ErrorIs(t, err, session.ErrPassphraseTooShort)

	id, err := f.svc.Seed(ctx, "root@corp.io", "password1", "seed-pin")
	require.NoError(t, err)

	rec, err := f.store.GetIdentity(ctx, id.UID)
	require.NoError(t, err)
	u := decryptUser(rec, "seed-pin")
	assert.Equal(t, "root@corp.io", u.Email)
	assert.Equal(t, records.RoleSuperAdmin, *u.Role)
	assert.Equal(t, records.Permissions{CanAdd: true, CanEdit: true, CanView: true}, *u.Permissions)
	assert.Equal(t, common.SeedCreator, u.CreatedBy)
	assert.Nil(t, f.primary.Current())
}

func TestRepair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sess.st = session.State{}
	require.ErrorIs(t, f.svc.Repair(ctx, "new-pin"), session.ErrNoIdentity)

	f.sess.st = session.State{Phase: session.Resolved, Identity: &identity.Identity{UID: "op", Email: opEmail}}
	require.NoError(t, f.svc.Repair(ctx, "new-pin"))

	rec, err := f.store.GetIdentity(ctx, "op")
	require.NoError(t, err)
	assert.Equal(t, records.RoleSuperAdmin, *decryptUser(rec, "new-pin").Role)
	assert.Nil(t, decryptUser(rec, pin).Role)
}

func TestRepair_KeepsDisabledRecords(t *testing.T) {
	tests := []struct {
		name string
		rec  records.IdentityRecord
	}{
		{"locked", records.IdentityRecord{ID: "op", IsLocked: true}},
		{"archived", records.IdentityRecord{ID: "op", IsArchived: true}},
		{"locked and archived", records.IdentityRecord{ID: "op", IsLocked: true, IsArchived: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			rec := tt.rec
			_, err := f.store.PutIdentity(ctx, &rec)
			require.NoError(t, err)
			f.sess.st = session.State{Phase: session.Denied, Identity: &identity.Identity{UID: "op", Email: opEmail}}

			require.ErrorIs(t, f.svc.Repair(ctx, "9999"), ErrForbidden)

			got, err := f.store.GetIdentity(ctx, "op")
			require.NoError(t, err)
			assert.Equal(t, tt.rec.IsLocked, got.IsLocked)
			assert.Equal(t, tt.rec.IsArchived, got.IsArchived)
			assert.Nil(t, decryptUser(got, "9999").Role)
		})
	}
}

func TestRepair_ResolvedBelowSuperAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sess.as(records.RoleUser, records.Permissions{CanView: true})

	require.ErrorIs(t, f.svc.Repair(ctx, "9999"), ErrForbidden)

	_, err := f.store.GetIdentity(ctx, "op")
	require.ErrorIs(t, err, records.ErrNotFound)
}

func TestAllowed(t *testing.T) {
	super := records.RoleSuperAdmin
	tests := []struct {
		name  string
		role  *records.Role
		perms *records.Permissions
		act   action
		ok    bool
	}{
		{"no role", nil, nil, actView, false},
		{"super admin edits", &super, nil, actEdit, true},
		{"admin view", records.Ptr(records.RoleAdmin), &records.Permissions{CanView: true}, actView, true},
		{"admin edit without flag", records.Ptr(records.RoleAdmin), &records.Permissions{CanAdd: true}, actEdit, false},
		{"admin no perms", records.Ptr(records.RoleAdmin), nil, actCreate, false},
		{"user view", records.Ptr(records.RoleUser), &records.Permissions{CanView: true}, actView, false},
		{"user edit", records.Ptr(records.RoleUser), &records.Permissions{CanEdit: true}, actEdit, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := allowed(session.State{Phase: session.Resolved, Role: tt.role, Permissions: tt.perms}, tt.act, nil)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		pw   string
		want Strength
		met  int
	}{
		{"", Weak, 0},
		{"abc", Weak, 1},
		{"abcdefgh1", Medium, 3},
		{"Abcdefg1", Medium, 4},
		{"Abcdef1!", Strong, 5},
	}
	for _, tt := range tests {
		got, met := PasswordStrength(tt.pw)
		assert.Equal(t, tt.want, got, tt.pw)
		assert.Equal(t, tt.met, met, tt.pw)
	}
	assert.Equal(t, "Strong", Strong.String())
}
