package session

import (
	"github.com/dmitrijs2005/adminvault/internal/identity"
	"github.com/dmitrijs2005/adminvault/internal/records"
)

// Phase is the position of the session in its lifecycle.
type Phase int

const (
	// NoIdentity: nobody is signed in and the vault is empty.
	NoIdentity Phase = iota
	// IdentityNoKey: signed in, waiting for the Master PIN.
	IdentityNoKey
	// Resolving: the identity record is being fetched and decrypted.
	Resolving
	// Resolved: role and permissions are known (either may be nil if the
	// record could not be decrypted with the current key).
	Resolved
	// Denied: the record is locked or archived. Always followed by a
	// forced logout.
	Denied
)

func (p Phase) String() string {
	switch p {
	case NoIdentity:
		return "no_identity"
	case IdentityNoKey:
		return "identity_no_key"
	case Resolving:
		return "resolving"
	case Resolved:
		return "resolved"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

type event int

const (
	evSignedIn event = iota
	evSignedOut
	evKeySet
	evResolved
	evDenied
	evResolveFailed
)

func (e event) String() string {
	switch e {
	case evSignedIn:
		return "signed_in"
	case evSignedOut:
		return "signed_out"
	case evKeySet:
		return "key_set"
	case evResolved:
		return "resolved"
	case evDenied:
		return "denied"
	case evResolveFailed:
		return "resolve_failed"
	default:
		return "unknown"
	}
}

var transitions = map[Phase]map[event]Phase{
	NoIdentity: {
		evSignedIn:  IdentityNoKey,
		evSignedOut: NoIdentity,
	},
	IdentityNoKey: {
		evSignedIn:  IdentityNoKey,
		evSignedOut: NoIdentity,
		evKeySet:    Resolving,
	},
	Resolving: {
		evSignedIn:      IdentityNoKey,
		evSignedOut:     NoIdentity,
		evKeySet:        Resolving,
		evResolved:      Resolved,
		evDenied:        Denied,
		evResolveFailed: IdentityNoKey,
	},
	Resolved: {
		evSignedIn:  IdentityNoKey,
		evSignedOut: NoIdentity,
		evKeySet:    Resolving,
	},
	Denied: {
		evSignedOut: NoIdentity,
	},
}

// transition returns the phase reached from `from` on ev.
func transition(from Phase, ev event) (Phase, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}

// State is an immutable snapshot of the session.
type State struct {
	Phase    Phase
	Identity *identity.Identity
	HasKey   bool

	// Role and Permissions are only set in Resolved.
	Role        *records.Role
	Permissions *records.Permissions

	// Notice is a message the view layer must show before anything else,
	// e.g. why the session was ended.
	Notice string
}

func (s State) clone() State {
	c := s
	if s.Identity != nil {
		id := *s.Identity
		c.Identity = &id
	}
	if s.Role != nil {
		r := *s.Role
		c.Role = &r
	}
	if s.Permissions != nil {
		p := *s.Permissions
		c.Permissions = &p
	}
	return c
}

// IsSuperAdmin reports whether the session resolved to the super_admin role.
func (s State) IsSuperAdmin() bool {
	return s.Phase == Resolved && s.Role != nil && *s.Role == records.RoleSuperAdmin
}
