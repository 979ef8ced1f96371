// Package cli is the interactive administration console.
//
// The console signs an operator in against the identity daemon, asks for
// the session PIN, and then exposes the user-administration commands the
// operator's role allows. Every input line counts as activity for the
// inactivity timeout; notices published by the session (forced logout,
// denied account) are printed as soon as they arrive.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits
// or input ends.
package cli
