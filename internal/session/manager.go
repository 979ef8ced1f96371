// Package session owns the console's session state: who is signed in,
// whether the Master PIN has been entered, and what the decrypted profile
// allows. Manager is the only writer; everything else reads snapshots.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/adminvault/internal/clock"
	"github.com/dmitrijs2005/adminvault/internal/guard"
	"github.com/dmitrijs2005/adminvault/internal/identity"
	"github.com/dmitrijs2005/adminvault/internal/logging"
	"github.com/dmitrijs2005/adminvault/internal/monitor"
	"github.com/dmitrijs2005/adminvault/internal/records"
	"github.com/dmitrijs2005/adminvault/internal/vault"
)

// MinPassphraseLength is the shortest accepted Master PIN.
const MinPassphraseLength = 4

type subscriber struct {
	id int
	fn func(State)
}

type Manager struct {
	provider identity.Provider
	vault    *vault.Vault
	guard    *guard.Guard
	monitor  *monitor.Monitor
	store    records.Store
	clock    clock.Clock
	logger   logging.Logger

	mu    sync.Mutex
	state State
	// epoch changes whenever identity or key changes; resolutions started
	// under an older epoch are discarded.
	epoch uint64

	subs       []subscriber
	nextSubID  int
	pending    []State
	delivering bool

	unsubscribe func()
}

func New(
	provider identity.Provider,
	v *vault.Vault,
	g *guard.Guard,
	store records.Store,
	clk clock.Clock,
	logger logging.Logger,
) *Manager {
	m := &Manager{
		provider: provider,
		vault:    v,
		guard:    g,
		store:    store,
		clock:    clk,
		logger:   logger.With("module", "session"),
	}
	m.monitor = monitor.New(clk, m.expire, logger)
	return m
}

// Start follows the provider's identity, beginning with the current one.
func (m *Manager) Start() {
	m.unsubscribe = m.provider.Subscribe(m.onIdentity)
	if id := m.provider.Current(); id != nil {
		m.onIdentity(id)
	}
}

// Close stops following the provider, cancels the inactivity timer and
// discards any resolution in flight. The provider session is kept.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.monitor.Disarm()

	m.mu.Lock()
	m.epoch++
	m.vault.Clear()
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe calls fn with every published snapshot, in order.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.subs = append(m.subs, subscriber{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Login signs in through the provider, subject to the login guard. A
// rejected password is returned as *guard.CredentialsError or, when it
// triggers a lockout, *guard.LockedError. Other provider failures are
// returned unchanged and do not count as attempts.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if err := m.guard.Check(ctx, email); err != nil {
		return err
	}

	if _, err := m.provider.SignIn(ctx, email, password); err != nil {
		if !errors.Is(err, identity.ErrInvalidCredentials) {
			return err
		}
		remaining, gerr := m.guard.RecordFailure(ctx, email)
		if gerr != nil {
			return gerr
		}
		return &guard.CredentialsError{Remaining: remaining, Err: err}
	}

	if err := m.guard.RecordSuccess(ctx, email); err != nil {
		m.logger.Warn(ctx, "failed to reset login attempts", "error", err)
	}
	return nil
}

// Logout clears the session locally and signs out of the provider.
func (m *Manager) Logout(ctx context.Context) error {
	return m.endSession(ctx, "")
}

// Unlock stores passphrase as the session key and resolves the profile.
func (m *Manager) Unlock(ctx context.Context, passphrase string) error {
	m.mu.Lock()
	if m.state.Identity == nil {
		m.mu.Unlock()
		return ErrNoIdentity
	}
	if len(passphrase) < MinPassphraseLength {
		m.mu.Unlock()
		return ErrPassphraseTooShort
	}
	m.vault.SetKey(passphrase)
	m.epoch++
	m.mu.Unlock()

	return m.resolve(ctx)
}

// Activity reports a user-activity signal to the inactivity monitor.
func (m *Manager) Activity(s monitor.Signal) {
	m.monitor.Activity(s)
}

// WithKey runs fn with the session key. fn must not retain the key.
func (m *Manager) WithKey(fn func(key string) error) error {
	key, ok := m.vault.Key()
	if !ok {
		return ErrLocked
	}
	return fn(key)
}

func (m *Manager) onIdentity(id *identity.Identity) {
	ctx := context.Background()

	m.mu.Lock()
	prev := m.state.Identity

	if id == nil {
		if prev == nil {
			m.mu.Unlock()
			return
		}
		m.epoch++
		m.vault.Clear()
		m.monitor.Disarm()
		m.applyLocked(ctx, evSignedOut, State{})
		m.mu.Unlock()
		m.flush()
		return
	}

	if identity.Same(prev, id) {
		rekey := m.vault.HasKey()
		m.mu.Unlock()
		m.monitor.Arm()
		if rekey {
			if err := m.resolve(ctx); err != nil {
				m.logger.Warn(ctx, "re-resolution failed", "error", err)
			}
		}
		return
	}

	m.epoch++
	if prev != nil {
		m.vault.Clear()
	}
	m.applyLocked(ctx, evSignedIn, State{Identity: id})
	m.monitor.Arm()
	m.mu.Unlock()
	m.flush()

	m.logger.Info(ctx, "identity signed in", "uid", id.UID)
}

func (m *Manager) expire() {
	ctx := context.Background()
	m.logger.Info(ctx, "forcing logout after inactivity")
	if err := m.endSession(ctx, ExpiredNotice); err != nil {
		m.logger.Warn(ctx, "sign-out after inactivity failed", "error", err)
	}
}

func (m *Manager) endSession(ctx context.Context, notice string) error {
	m.mu.Lock()
	m.epoch++
	m.vault.Clear()
	m.monitor.Disarm()
	m.applyLocked(ctx, evSignedOut, State{Notice: notice})
	m.mu.Unlock()
	m.flush()

	if err := m.provider.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// applyLocked moves to the phase the transition table allows for ev and
// queues s (with that phase) for subscribers. Illegal transitions are
// logged and ignored.
func (m *Manager) applyLocked(ctx context.Context, ev event, s State) bool {
	to, ok := transition(m.state.Phase, ev)
	if !ok {
		m.logger.Error(ctx, "illegal session transition", "from", m.state.Phase, "event", ev)
		return false
	}
	s.Phase = to
	s.HasKey = s.Identity != nil && m.vault.HasKey()
	m.state = s.clone()
	m.pending = append(m.pending, s.clone())
	return true
}

// flush delivers queued snapshots outside the lock. Only one goroutine
// delivers at a time, so subscribers see snapshots in publication order
// even when a subscriber triggers another transition.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true

	for len(m.pending) > 0 {
		batch := m.pending
		m.pending = nil
		subs := make([]subscriber, len(m.subs))
		copy(subs, m.subs)
		m.mu.Unlock()

		for _, s := range batch {
			for _, sub := range subs {
				sub.fn(s.clone())
			}
		}

		m.mu.Lock()
	}

	m.delivering = false
	m.mu.Unlock()
}
