// Package identity defines the identity-provider capability the session
// depends on, the gRPC-backed implementation used in production, an
// in-process directory for local use, and the Creator that provisions
// accounts through an isolated provider context.
package identity

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidInput       = errors.New("invalid email or password")
	ErrUnavailable        = errors.New("identity provider unavailable")
	ErrRateLimited        = errors.New("too many requests")
)

// Identity is an authenticated account as reported by a provider.
type Identity struct {
	UID   string
	Email string
}

// Provider is one identity-provider context. Each instance tracks its own
// current session; CreateAccount replaces that session with the new
// account, which is why account provisioning goes through a Creator.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
	CreateAccount(ctx context.Context, email, password string) (*Identity, error)

	// Current returns a copy of the signed-in identity, or nil.
	Current() *Identity
	// Subscribe registers fn for every change of the current identity.
	// fn is not called for the state at subscription time.
	Subscribe(fn func(*Identity)) (unsubscribe func())
}

// notifier holds a provider's current identity and its subscribers.
type notifier struct {
	mu      sync.Mutex
	current *Identity
	nextID  int
	subs    map[int]func(*Identity)
}

func (n *notifier) Current() *Identity {
	n.mu.Lock()
	defer n.mu.Unlock()
	return clone(n.current)
}

func (n *notifier) Subscribe(fn func(*Identity)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs == nil {
		n.subs = make(map[int]func(*Identity))
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// publish sets the current identity and notifies subscribers in
// registration order, outside the lock.
func (n *notifier) publish(id *Identity) {
	n.mu.Lock()
	n.current = clone(id)
	keys := make([]int, 0, len(n.subs))
	for k := range n.subs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	fns := make([]func(*Identity), 0, len(keys))
	for _, k := range keys {
		fns = append(fns, n.subs[k])
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(clone(id))
	}
}

func clone(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// Same reports whether a and b refer to the same account.
func Same(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.UID == b.UID
}
