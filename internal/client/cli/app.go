package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dmitrijs2005/adminvault/internal/admin"
	"github.com/dmitrijs2005/adminvault/internal/identity"
	"github.com/dmitrijs2005/adminvault/internal/logging"
	"github.com/dmitrijs2005/adminvault/internal/monitor"
	"github.com/dmitrijs2005/adminvault/internal/records"
	"github.com/dmitrijs2005/adminvault/internal/session"
)

// SessionService is the part of session.Manager the console drives.
type SessionService interface {
	State() session.State
	Subscribe(fn func(session.State)) func()
	Login(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
	Unlock(ctx context.Context, passphrase string) error
	Activity(s monitor.Signal)
}

// AdminService is implemented by *admin.Service.
type AdminService interface {
	ListUsers(ctx context.Context) ([]admin.User, int, error)
	CreateUser(ctx context.Context, nu admin.NewUser) (*admin.User, error)
	EditUser(ctx context.Context, id string, role records.Role, perms records.Permissions) error
	SetArchived(ctx context.Context, id string, archived bool) error
	UnlockUser(ctx context.Context, id string) error
	ActivityLog(ctx context.Context, cursor string) (admin.ActivityPage, error)
	Seed(ctx context.Context, email, password, pin string) (*identity.Identity, error)
	Repair(ctx context.Context, pin string) error
}

type App struct {
	session SessionService
	admin   AdminService
	reader  *bufio.Reader
	out     io.Writer
	logger  logging.Logger

	mu         sync.Mutex
	lastNotice string
	// activity paging
	nextCursor string
	reach      Reachability
}

func NewApp(sess SessionService, adm AdminService, in io.Reader, out io.Writer, logger logging.Logger) *App {
	return &App{
		session: sess,
		admin:   adm,
		reader:  bufio.NewReader(in),
		out:     out,
		logger:  logger.With("module", "console"),
		reach:   Online,
	}
}

// Run prints the banner, follows session notices and runs the REPL until
// the user exits.
func (a *App) Run(ctx context.Context) {
	unsubscribe := a.session.Subscribe(a.onState)
	defer unsubscribe()

	printlnFn("AdminVault console (type 'help' for commands)")
	a.onState(a.session.State())

	runREPL(ctx, a, a.status, a.reader)
}

// onState prints a session notice once, however many snapshots carry it.
func (a *App) onState(st session.State) {
	a.mu.Lock()
	if st.Notice == "" || st.Notice == a.lastNotice {
		if st.Notice == "" {
			a.lastNotice = ""
		}
		a.mu.Unlock()
		return
	}
	a.lastNotice = st.Notice
	a.mu.Unlock()

	printlnFn("!", st.Notice)
}

func (a *App) status() string {
	var suffix string
	if a.reachability() == Offline {
		suffix = "[offline] "
	}

	st := a.session.State()
	if st.Identity == nil {
		return "(signed out) " + suffix
	}
	parts := []string{st.Identity.Email}
	switch {
	case st.Phase == session.Resolved && st.Role != nil:
		parts = append(parts, string(*st.Role))
	case st.Phase == session.Resolved:
		parts = append(parts, "no role")
	default:
		parts = append(parts, st.Phase.String())
	}
	return fmt.Sprintf("(%s) %s", strings.Join(parts, " "), suffix)
}

func (a *App) touch() { a.session.Activity(monitor.KeyPress) }

func (a *App) isSignedIn() bool { return a.session.State().Identity != nil }

func (a *App) isResolved() bool { return a.session.State().Phase == session.Resolved }

func (a *App) text(prompt string) (string, error) {
	return getSimpleText(a.reader, prompt, a.out)
}

func (a *App) secret(prompt string) (string, error) {
	return getSecret(a.reader, prompt, a.out)
}

// getSimpleText and getSecret can be swapped in tests.
var (
	getSimpleText = GetSimpleText
	getSecret     = GetSecret
)

// report prints err for the operator. Denials are already shown as a
// session notice.
func report(err error) {
	if errors.Is(err, session.ErrDenied) {
		return
	}
	printlnFn("Error:", err)
}
