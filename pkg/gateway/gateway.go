package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultWindow is the trailing interval over which admissions are counted.
const DefaultWindow = time.Minute

// Gateway is a process-wide admission controller for calls to the upstream
// audit API. It admits at most max calls per trailing window, shared by every
// concurrent caller, and serves waiters in FIFO arrival order. The gateway
// only shapes when work starts; operation errors pass through unchanged.
type Gateway struct {
	mu         sync.Mutex
	max        int
	window     time.Duration
	admissions []time.Time   // admission timestamps inside the window, oldest first
	waiters    []chan struct{}
	timer      *time.Timer
	now        func() time.Time
	logger     *zap.SugaredLogger
}

// New creates a Gateway admitting at most maxPerMinute operations per
// trailing 60 seconds.
func New(maxPerMinute int, logger *zap.SugaredLogger) *Gateway {
	if maxPerMinute < 1 {
		maxPerMinute = 1
	}
	return &Gateway{
		max:    maxPerMinute,
		window: DefaultWindow,
		now:    time.Now,
		logger: logger,
	}
}

// Execute blocks until the rate budget admits the caller, then runs op.
// The operation runs outside the gateway's critical section so that one
// caller's network latency never blocks admission bookkeeping for others.
func (g *Gateway) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := g.admit(ctx); err != nil {
		return err
	}
	return op(ctx)
}

// Do is Execute for operations that return a value.
func Do[T any](ctx context.Context, g *Gateway, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := g.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// InFlight reports how many admissions currently sit inside the window.
func (g *Gateway) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.now())
	return len(g.admissions)
}

func (g *Gateway) admit(ctx context.Context) error {
	g.mu.Lock()
	now := g.now()
	g.prune(now)

	// Fast path: capacity free and nobody queued ahead of us.
	if len(g.waiters) == 0 && len(g.admissions) < g.max {
		g.admissions = append(g.admissions, now)
		g.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	g.waiters = append(g.waiters, ready)
	g.scheduleWake(now)
	if g.logger != nil {
		g.logger.Debugw("rate budget exhausted, queued caller", "queued", len(g.waiters))
	}
	g.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range g.waiters {
			if w == ready {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// Already admitted between the context firing and the lock; the
		// slot is ours, so proceed.
		return nil
	}
}

// prune drops admission timestamps that have aged out of the window.
// Caller must hold mu.
func (g *Gateway) prune(now time.Time) {
	cutoff := now.Add(-g.window)
	i := 0
	for i < len(g.admissions) && !g.admissions[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.admissions = append(g.admissions[:0], g.admissions[i:]...)
	}
}

// scheduleWake arms the timer for the instant the oldest admission leaves
// the window. Caller must hold mu and have at least one waiter queued.
func (g *Gateway) scheduleWake(now time.Time) {
	var wait time.Duration
	if len(g.admissions) >= g.max {
		wait = g.admissions[0].Add(g.window).Sub(now)
		if wait < 0 {
			wait = 0
		}
	}
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(wait, g.wake)
}

// wake admits as many queued callers as the refreshed window allows,
// in arrival order, then re-arms the timer if anyone is still waiting.
func (g *Gateway) wake() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.prune(now)
	for len(g.waiters) > 0 && len(g.admissions) < g.max {
		ready := g.waiters[0]
		g.waiters = g.waiters[1:]
		g.admissions = append(g.admissions, now)
		close(ready)
	}
	if len(g.waiters) > 0 {
		g.scheduleWake(now)
	}
}
