package guard

import (
	"errors"
	"fmt"
)

// ErrLocked matches any *LockedError via errors.Is.
var ErrLocked = errors.New("identity locked out")

// LockedError refuses a sign-in while a lockout window is open.
type LockedError struct {
	RemainingMinutes int
	// Triggered is set when the failure being recorded opened the window.
	Triggered bool
}

func (e *LockedError) Error() string {
	if e.Triggered {
		return fmt.Sprintf("Account locked due to too many failed attempts. Try again in %d minutes.", e.RemainingMinutes)
	}
	return fmt.Sprintf("Too many failed attempts. Try again in %d minutes.", e.RemainingMinutes)
}

func (e *LockedError) Is(target error) bool { return target == ErrLocked }

// CredentialsError reports a rejected password together with the attempts
// left before lockout. Err is the provider's error.
type CredentialsError struct {
	Remaining int
	Err       error
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("Invalid credentials. You have %d attempts remaining before lockout.", e.Remaining)
}

func (e *CredentialsError) Unwrap() error { return e.Err }
