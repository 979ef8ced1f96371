package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/adminvault/internal/admin"
	"github.com/dmitrijs2005/adminvault/internal/identity"
	"github.com/dmitrijs2005/adminvault/internal/records"
	"github.com/dmitrijs2005/adminvault/internal/session"
)

// Login signs in and, on success, asks for the PIN straight away.
func (a *App) Login(ctx context.Context) error {
	email, err := a.text("Enter email")
	if err != nil {
		return err
	}
	password, err := a.secret("Password")
	if err != nil {
		return err
	}

	if err := a.session.Login(ctx, email, password); err != nil {
		return err
	}
	printlnFn("Signed in as", email)
	return a.Unlock(ctx)
}

// Unlock asks for the PIN and resolves the session with it.
func (a *App) Unlock(ctx context.Context) error {
	pin, err := a.secret("PIN")
	if err != nil {
		return err
	}
	if err := a.session.Unlock(ctx, pin); err != nil {
		return err
	}

	st := a.session.State()
	if st.Role == nil {
		printlnFn("Unlocked. No role could be read with this PIN; administration is unavailable.")
		return nil
	}
	printlnFn("Unlocked as", *st.Role)
	return nil
}

func (a *App) WhoAmI(context.Context) error {
	st := a.session.State()
	if st.Identity == nil {
		printlnFn("Not signed in")
		return nil
	}

	printlnFn("Email:      ", st.Identity.Email)
	printlnFn("UID:        ", st.Identity.UID)
	printlnFn("Session:    ", st.Phase)
	if st.Role != nil {
		printlnFn("Role:       ", *st.Role)
	}
	if st.Permissions != nil {
		printlnFn("Permissions:", formatPermissions(st.Permissions))
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	a.mu.Lock()
	a.nextCursor = ""
	a.mu.Unlock()
	printlnFn("Signed out")
	return nil
}

func (a *App) Users(ctx context.Context) error {
	users, locked, err := a.admin.ListUsers(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tROLE\tPERMISSIONS\tSTATUS\tLAST LOGIN")
	for _, u := range users {
		role := "?"
		if u.Role != nil {
			role = string(*u.Role)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			u.ID, orDash(u.Email), role, formatPermissions(u.Permissions), userStatus(u), orDash(u.LastLogin))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("%d users, %d locked", len(users), locked))
	return nil
}

func (a *App) AddUser(ctx context.Context) error {
	email, err := a.text("Email of the new user")
	if err != nil {
		return err
	}
	password, err := a.secret("Initial password")
	if err != nil {
		return err
	}
	printStrength(password)

	role, perms, err := a.promptRole()
	if err != nil {
		return err
	}

	u, err := a.admin.CreateUser(ctx, admin.NewUser{Email: email, Password: password, Role: role, Permissions: perms})
	if u == nil {
		return err
	}
	printlnFn("Created user", u.Email, "with id", u.ID)
	if errors.Is(err, identity.ErrPrimaryDisturbed) {
		printlnFn("Warning: your own sign-in was disturbed while creating the account; please sign in again.")
	}
	return nil
}

func (a *App) EditUser(ctx context.Context, id string) error {
	role, perms, err := a.promptRole()
	if err != nil {
		return err
	}
	if err := a.admin.EditUser(ctx, id, role, perms); err != nil {
		return err
	}
	printlnFn("Updated", id)
	return nil
}

func (a *App) Archive(ctx context.Context, id string, archived bool) error {
	if err := a.admin.SetArchived(ctx, id, archived); err != nil {
		return err
	}
	if archived {
		printlnFn("Archived", id)
	} else {
		printlnFn("Restored", id)
	}
	return nil
}

func (a *App) UnlockUser(ctx context.Context, id string) error {
	if err := a.admin.UnlockUser(ctx, id); err != nil {
		return err
	}
	printlnFn("Unlocked", id)
	return nil
}

// Activity prints the newest audit page, or the one after the last page
// shown when next is set.
func (a *App) Activity(ctx context.Context, next bool) error {
	a.mu.Lock()
	cursor := ""
	if next {
		cursor = a.nextCursor
		if cursor == "" {
			a.mu.Unlock()
			printlnFn("No more activity")
			return nil
		}
	}
	a.mu.Unlock()

	page, err := a.admin.ActivityLog(ctx, cursor)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.nextCursor = page.Next
	a.mu.Unlock()

	if len(page.Entries) == 0 {
		printlnFn("No activity recorded")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tBY\tDETAILS")
	for _, e := range page.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), orDash(e.Action), orDash(e.PerformedBy), orDash(e.Details))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if page.Next != "" {
		printlnFn("More entries: activity next")
	}
	return nil
}

// Seed creates the first super admin. It does not sign the operator in.
func (a *App) Seed(ctx context.Context) error {
	email, err := a.text("Super admin email")
	if err != nil {
		return err
	}
	password, err := a.secret("Password")
	if err != nil {
		return err
	}
	printStrength(password)
	pin, err := a.secret("PIN for the new super admin")
	if err != nil {
		return err
	}

	id, err := a.admin.Seed(ctx, email, password, pin)
	if err != nil {
		return err
	}
	printlnFn("Seeded super admin", id.Email, "with id", id.UID)
	return nil
}

// Repair rewrites the signed-in account as a super admin sealed with a
// new PIN.
func (a *App) Repair(ctx context.Context) error {
	ok, err := GetYesNo(a.reader, "Overwrite your account record as super admin?", a.out)
	if err != nil || !ok {
		return err
	}
	pin, err := a.secret("New PIN")
	if err != nil {
		return err
	}
	if err := a.admin.Repair(ctx, pin); err != nil {
		return err
	}
	printlnFn("Record repaired; run 'unlock' with the new PIN")
	return nil
}

func (a *App) promptRole() (records.Role, records.Permissions, error) {
	raw, err := a.text("Role (admin|user)")
	if err != nil {
		return "", records.Permissions{}, err
	}
	role := records.Role(strings.ToLower(raw))
	if role != records.RoleAdmin && role != records.RoleUser {
		return "", records.Permissions{}, admin.ErrInvalidRole
	}

	raw, err = a.text("Permissions (comma separated from add,edit,view; empty for view only)")
	if err != nil {
		return "", records.Permissions{}, err
	}
	perms, err := parsePermissions(raw)
	if err != nil {
		return "", records.Permissions{}, err
	}
	return role, perms, nil
}

func parsePermissions(s string) (records.Permissions, error) {
	var p records.Permissions
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		switch strings.ToLower(f) {
		case "add":
			p.CanAdd = true
		case "edit":
			p.CanEdit = true
		case "view":
			p.CanView = true
		default:
			return records.Permissions{}, fmt.Errorf("unknown permission %q", f)
		}
	}
	return p, nil
}

func formatPermissions(p *records.Permissions) string {
	if p == nil {
		return "?"
	}
	var out []string
	if p.CanAdd {
		out = append(out, "add")
	}
	if p.CanEdit {
		out = append(out, "edit")
	}
	if p.CanView {
		out = append(out, "view")
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ",")
}

func userStatus(u admin.User) string {
	switch {
	case u.Archived && u.Locked:
		return "archived,locked"
	case u.Archived:
		return "archived"
	case u.Locked:
		return "locked"
	default:
		return "active"
	}
}

func printStrength(password string) {
	s, met := admin.PasswordStrength(password)
	printlnFn(fmt.Sprintf("Password strength: %s (%d/5)", s, met))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var _ SessionService = (*session.Manager)(nil)
var _ AdminService = (*admin.Service)(nil)
