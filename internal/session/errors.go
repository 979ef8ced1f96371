package session

import "errors"

const (
	DeniedNotice  = "Your account has been locked or archived. Please contact the Super Admin."
	ExpiredNotice = "Session expired due to inactivity."
)

var (
	ErrNoIdentity         = errors.New("not signed in")
	ErrPassphraseTooShort = errors.New("PIN must be at least 4 characters")
	ErrLocked             = errors.New("session is locked; enter the Master PIN")
	ErrResolve            = errors.New("failed to load profile")
	ErrStale              = errors.New("session changed while loading profile")
	ErrDenied             = errors.New("access denied")
)

// DeniedError is returned when the signed-in account is locked or archived.
type DeniedError struct {
	Locked   bool
	Archived bool
}

func (e *DeniedError) Error() string { return DeniedNotice }

func (e *DeniedError) Is(target error) bool { return target == ErrDenied }
