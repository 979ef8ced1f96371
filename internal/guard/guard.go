// Package guard throttles sign-in attempts per identity.
//
// State lives in durable client storage under two keys per normalized
// email: attempts_<email> holds the failure counter as a decimal string and
// lockout_<email> holds the lockout expiry in Unix milliseconds. A missing
// lockout key means the identity is not locked.
package guard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/adminvault/internal/clock"
	"github.com/dmitrijs2005/adminvault/internal/cryptox"
	"github.com/dmitrijs2005/adminvault/internal/logging"
)

const (
	MaxAttempts   = 3
	LockoutWindow = 15 * time.Minute

	attemptsPrefix = "attempts_"
	lockoutPrefix  = "lockout_"
)

// Store is the durable key/value storage backing the guard. Get returns
// (nil, nil) for a missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type Guard struct {
	mu     sync.Mutex
	store  Store
	clock  clock.Clock
	logger logging.Logger
}

func New(store Store, clk clock.Clock, logger logging.Logger) *Guard {
	return &Guard{
		store:  store,
		clock:  clk,
		logger: logger.With("module", "guard"),
	}
}

// NormalizeIdentity lowercases and trims an email address.
func NormalizeIdentity(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Check returns a *LockedError if email is inside a lockout window. An
// expired lockout is cleared together with the attempt counter.
func (g *Guard) Check(ctx context.Context, email string) error {
	id := NormalizeIdentity(email)

	g.mu.Lock()
	defer g.mu.Unlock()

	until, locked, err := g.lockoutUntil(ctx, id)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}

	now := g.clock.Now()
	if now.Before(until) {
		return &LockedError{RemainingMinutes: remainingMinutes(until.Sub(now))}
	}

	if err := g.reset(ctx, id); err != nil {
		return err
	}
	g.logger.Info(ctx, "lockout expired", "identity", cryptox.EmailHash(id))
	return nil
}

// RecordFailure counts one rejected sign-in. It returns the attempts left
// before lockout, or a *LockedError when this failure triggers one.
func (g *Guard) RecordFailure(ctx context.Context, email string) (int, error) {
	id := NormalizeIdentity(email)

	g.mu.Lock()
	defer g.mu.Unlock()

	attempts, err := g.attempts(ctx, id)
	if err != nil {
		return 0, err
	}
	attempts++

	if err := g.store.Set(ctx, attemptsPrefix+id, []byte(strconv.Itoa(attempts))); err != nil {
		return 0, fmt.Errorf("failed to store attempts: %w", err)
	}

	if attempts < MaxAttempts {
		g.logger.Info(ctx, "sign-in rejected", "identity", cryptox.EmailHash(id), "attempts", attempts)
		return MaxAttempts - attempts, nil
	}

	until := g.clock.Now().Add(LockoutWindow)
	if err := g.store.Set(ctx, lockoutPrefix+id, []byte(strconv.FormatInt(until.UnixMilli(), 10))); err != nil {
		return 0, fmt.Errorf("failed to store lockout: %w", err)
	}
	g.logger.Warn(ctx, "identity locked out", "identity", cryptox.EmailHash(id), "until", until)

	return 0, &LockedError{RemainingMinutes: remainingMinutes(LockoutWindow), Triggered: true}
}

// RecordSuccess clears the counter and any lockout for email.
func (g *Guard) RecordSuccess(ctx context.Context, email string) error {
	id := NormalizeIdentity(email)

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.reset(ctx, id)
}

func (g *Guard) reset(ctx context.Context, id string) error {
	if err := g.store.Delete(ctx, attemptsPrefix+id); err != nil {
		return fmt.Errorf("failed to reset attempts: %w", err)
	}
	if err := g.store.Delete(ctx, lockoutPrefix+id); err != nil {
		return fmt.Errorf("failed to reset lockout: %w", err)
	}
	return nil
}

func (g *Guard) attempts(ctx context.Context, id string) (int, error) {
	raw, err := g.store.Get(ctx, attemptsPrefix+id)
	if err != nil {
		return 0, fmt.Errorf("failed to read attempts: %w", err)
	}
	if raw == nil {
		return 0, nil
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		g.logger.Warn(ctx, "ignoring malformed attempts value", "identity", cryptox.EmailHash(id))
		return 0, nil
	}
	return n, nil
}

func (g *Guard) lockoutUntil(ctx context.Context, id string) (time.Time, bool, error) {
	raw, err := g.store.Get(ctx, lockoutPrefix+id)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read lockout: %w", err)
	}
	if raw == nil {
		return time.Time{}, false, nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		g.logger.Warn(ctx, "ignoring malformed lockout value", "identity", cryptox.EmailHash(id))
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func remainingMinutes(d time.Duration) int {
	m := int((d + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}
