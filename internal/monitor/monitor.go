// Package monitor implements the inactivity timeout for an authenticated
// session. While armed, every qualifying activity signal restarts a fixed
// window; when the window elapses without activity the monitor returns to
// Idle and invokes its expiry callback, which forces a logout.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/adminvault/internal/clock"
	"github.com/dmitrijs2005/adminvault/internal/logging"
)

// Window is the inactivity period after which the session is ended.
const Window = 5 * time.Minute

type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	default:
		return "unknown"
	}
}

// Signal is a user-activity event reported by the view layer.
type Signal int

const (
	PointerPress Signal = iota + 1
	PointerMove
	KeyPress
	Scroll
	TouchStart
)

func (s Signal) qualifies() bool {
	switch s {
	case PointerPress, PointerMove, KeyPress, Scroll, TouchStart:
		return true
	}
	return false
}

type Monitor struct {
	mu       sync.Mutex
	clock    clock.Clock
	logger   logging.Logger
	onExpire func()

	state    State
	timer    *clock.Timer
	deadline time.Time
	// gen invalidates callbacks of timers that were replaced or stopped
	// after they had already been dispatched.
	gen uint64
}

func New(clk clock.Clock, onExpire func(), logger logging.Logger) *Monitor {
	return &Monitor{
		clock:    clk,
		onExpire: onExpire,
		logger:   logger.With("module", "monitor"),
	}
}

// Arm starts the inactivity window, replacing any running timer.
func (m *Monitor) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = Armed
	m.restartLocked()
}

// Activity restarts the window if the monitor is armed and s is a
// qualifying signal.
func (m *Monitor) Activity(s Signal) {
	if !s.qualifies() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Armed {
		return
	}
	m.restartLocked()
}

// Disarm cancels the timer and returns to Idle.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.state = Idle
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Deadline returns when the session will expire if no activity arrives.
func (m *Monitor) Deadline() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Armed {
		return time.Time{}, false
	}
	return m.deadline, true
}

func (m *Monitor) restartLocked() {
	m.stopLocked()

	gen := m.gen
	m.deadline = m.clock.Now().Add(Window)
	m.timer = m.clock.AfterFunc(Window, func() { m.expire(gen) })
}

func (m *Monitor) stopLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
}

func (m *Monitor) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != Armed {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.gen++
	m.state = Idle
	m.mu.Unlock()

	m.logger.Info(context.Background(), "session expired after inactivity", "window", Window)
	if m.onExpire != nil {
		m.onExpire()
	}
}
