package cli

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/adminvault/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExec struct {
	signedIn bool
	resolved bool

	touches int
	calls   []string
	Err     error
}

func (f *fakeExec) record(call string) error {
	f.calls = append(f.calls, call)
	return f.Err
}

func (f *fakeExec) touch()           { f.touches++ }
func (f *fakeExec) isSignedIn() bool { return f.signedIn }
func (f *fakeExec) isResolved() bool { return f.resolved }

func (f *fakeExec) Login(context.Context) error {
	f.signedIn, f.resolved = true, true
	return f.record("login")
}
func (f *fakeExec) Unlock(context.Context) error { return f.record("unlock") }
func (f *fakeExec) WhoAmI(context.Context) error { return f.record("whoami") }
func (f *fakeExec) Logout(context.Context) error {
	f.signedIn, f.resolved = false, false
	return f.record("logout")
}
func (f *fakeExec) Users(context.Context) error   { return f.record("users") }
func (f *fakeExec) AddUser(context.Context) error { return f.record("adduser") }
func (f *fakeExec) EditUser(_ context.Context, id string) error {
	return f.record("edituser " + id)
}
func (f *fakeExec) Archive(_ context.Context, id string, archived bool) error {
	return f.record(fmt.Sprintf("archive %s %v", id, archived))
}
func (f *fakeExec) UnlockUser(_ context.Context, id string) error {
	return f.record("unlockuser " + id)
}
func (f *fakeExec) Activity(_ context.Context, next bool) error {
	return f.record(fmt.Sprintf("activity %v", next))
}
func (f *fakeExec) Seed(context.Context) error   { return f.record("seed") }
func (f *fakeExec) Repair(context.Context) error { return f.record("repair") }

func capturePrint(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, fmt.Sprintln(a...))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	capturePrint(t)

	in := rdr("login\n\nusers\nl\nadduser\nedituser u1\narchive u2\nunarchive u2\nunlockuser u3\nactivity\nactivity next\nwhoami\nunlock\nrepair\nseed\nlogout\nexit\nusers\n")
	exec := &fakeExec{}

	runREPL(context.Background(), exec, func() string { return "" }, in)

	assert.Equal(t, []string{
		"login", "users", "users", "adduser", "edituser u1", "archive u2 true", "archive u2 false",
		"unlockuser u3", "activity false", "activity true", "whoami", "unlock", "repair", "seed", "logout",
	}, exec.calls)
	// every non-empty line, exit included
	assert.Equal(t, 16, exec.touches)
}

func TestRunREPL_MissingIDPrintsUsage(t *testing.T) {
	lines := capturePrint(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, rdr("edituser\narchive\nunlockuser\n"))

	assert.Empty(t, exec.calls)
	assert.Contains(t, *lines, "Usage: edituser <id>\n")
	assert.Contains(t, *lines, "Usage: archive <id>\n")
	assert.Contains(t, *lines, "Usage: unlockuser <id>\n")
}

func TestRunREPL_HelpFollowsSession(t *testing.T) {
	lines := capturePrint(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, rdr("help\nlogin\nhelp\nlogout\nhelp\n"))

	assert.Contains(t, *lines, helpSignedOut+"\n")
	assert.Contains(t, *lines, helpResolved+"\n")
	var signedOut int
	for _, l := range *lines {
		if l == helpSignedOut+"\n" {
			signedOut++
		}
	}
	assert.Equal(t, 2, signedOut)
}

func TestRunREPL_ErrorsAreReportedAndLoopContinues(t *testing.T) {
	lines := capturePrint(t)

	exec := &fakeExec{Err: errors.New("boom")}
	runREPL(context.Background(), exec, func() string { return "" }, rdr("users\nwhoami\nfoobar\nquit\n"))

	require.Equal(t, []string{"users", "whoami"}, exec.calls)
	assert.Contains(t, *lines, "Error: boom\n")
	assert.Contains(t, *lines, "Unknown command: foobar\n")
	assert.Contains(t, *lines, "Bye!\n")
}

func TestRunREPL_DeniedIsNotReportedAsError(t *testing.T) {
	lines := capturePrint(t)

	exec := &fakeExec{Err: &session.DeniedError{Archived: true}}
	runREPL(context.Background(), exec, func() string { return "" }, rdr("unlock\n"))

	for _, l := range *lines {
		assert.NotContains(t, l, "Error:")
	}
}

func TestRunREPL_PromptShowsStatus(t *testing.T) {
	lines := capturePrint(t)

	runREPL(context.Background(), &fakeExec{}, func() string { return "(a@b.c admin) " }, rdr("exit\n"))

	require.NotEmpty(t, *lines)
	assert.Equal(t, "av (a@b.c admin) > \n", (*lines)[0])
}
