package cli

import (
	"context"
	"time"
)

// Pinger checks whether the identity daemon is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Reachability is shown in the prompt while the daemon is unreachable.
type Reachability string

const (
	Online  Reachability = "online"
	Offline Reachability = "offline"
)

func (a *App) reachability() Reachability {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reach
}

func (a *App) setReachability(ctx context.Context, r Reachability) {
	a.mu.Lock()
	changed := a.reach != r
	a.reach = r
	a.mu.Unlock()

	if changed {
		a.logger.Info(ctx, "identity daemon reachability changed", "state", r)
		if r == Offline {
			printlnFn("! Identity service unreachable; sign-in is unavailable")
		}
	}
}

// WatchReachability pings p every interval until ctx is done.
func (a *App) WatchReachability(ctx context.Context, p Pinger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkReachability(ctx, p)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkReachability(ctx context.Context, p Pinger) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := p.Ping(pctx); err != nil {
		a.setReachability(ctx, Offline)
		return
	}
	a.setReachability(ctx, Online)
}
