package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. The real App
// satisfies it; tests provide a lightweight stub.
type execIface interface {
	// touch reports user activity to the session.
	touch()
	isSignedIn() bool
	isResolved() bool

	Login(ctx context.Context) error
	Unlock(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Logout(ctx context.Context) error
	Users(ctx context.Context) error
	AddUser(ctx context.Context) error
	EditUser(ctx context.Context, id string) error
	Archive(ctx context.Context, id string, archived bool) error
	UnlockUser(ctx context.Context, id string) error
	Activity(ctx context.Context, next bool) error
	Seed(ctx context.Context) error
	Repair(ctx context.Context) error
}

const (
	helpSignedOut = "Available commands: login, seed, help, exit"
	helpNoKey     = "Available commands: unlock, whoami, repair, logout, help, exit"
	helpResolved  = "Available commands: users, adduser, edituser <id>, archive <id>, unarchive <id>, unlockuser <id>, activity [next], whoami, repair, logout, help, exit"
)

// runREPL reads one command per line from in and dispatches it to a. The
// loop exits on EOF or when the user types "exit" or "quit".
//
// Errors returned by command handlers are printed and never end the loop.
// Commands that take a record id print their usage when it is missing.
func runREPL(ctx context.Context, a execIface, statusFn func() string, in *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("av %s> ", statusFn()))
		line, err := in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		a.touch()

		cmd, args := parts[0], parts[1:]
		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}

		if err := dispatch(ctx, a, cmd, args); err != nil {
			report(err)
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	withID := func(usage string, fn func(id string) error) error {
		if len(args) == 0 {
			printlnFn("Usage:", usage)
			return nil
		}
		return fn(args[0])
	}

	switch cmd {
	case "help":
		switch {
		case a.isResolved():
			printlnFn(helpResolved)
		case a.isSignedIn():
			printlnFn(helpNoKey)
		default:
			printlnFn(helpSignedOut)
		}
		return nil

	case "login":
		return a.Login(ctx)
	case "unlock":
		return a.Unlock(ctx)
	case "whoami":
		return a.WhoAmI(ctx)
	case "logout":
		return a.Logout(ctx)
	case "users", "l":
		return a.Users(ctx)
	case "adduser":
		return a.AddUser(ctx)
	case "edituser":
		return withID("edituser <id>", func(id string) error { return a.EditUser(ctx, id) })
	case "archive":
		return withID("archive <id>", func(id string) error { return a.Archive(ctx, id, true) })
	case "unarchive":
		return withID("unarchive <id>", func(id string) error { return a.Archive(ctx, id, false) })
	case "unlockuser":
		return withID("unlockuser <id>", func(id string) error { return a.UnlockUser(ctx, id) })
	case "activity":
		return a.Activity(ctx, len(args) > 0 && args[0] == "next")
	case "seed":
		return a.Seed(ctx)
	case "repair":
		return a.Repair(ctx)
	default:
		printlnFn("Unknown command:", cmd)
		return nil
	}
}
