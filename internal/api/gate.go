package api

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// CALL GATE - SHARED RATE LIMITING
// =============================================================================
//
// Every outbound API call in the engine flows through one Gate. The gate
// owns three throttles:
//   - a slot semaphore bounding concurrent in-flight calls
//   - a minimum interval between dispatches
//   - a shared cooldown that all callers respect after the server sheds
//     load with a 429
//
// Ship executors yield their slot after each call and re-acquire for the
// next, so a large fleet never outruns the account's rate limit.

// GateConfig configures the shared gate.
type GateConfig struct {
	Slots       int           // Max simultaneous in-flight calls
	MinInterval time.Duration // Min gap between consecutive dispatches
	BackoffBase time.Duration // Cooldown after the first 429
	BackoffCap  time.Duration // Cooldown ceiling under sustained 429s
}

// DefaultGateConfig returns the account-safe defaults: fully serialized
// dispatch with the interval the public API tolerates.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Slots:       1,
		MinInterval: 600 * time.Millisecond,
		BackoffBase: time.Second,
		BackoffCap:  60 * time.Second,
	}
}

// CallerStats tracks one caller's traffic through the gate.
type CallerStats struct {
	CallerID      string
	Calls         int64
	RateLimited   int64
	TotalWaitTime time.Duration
	LastCall      time.Time
}

// Gate is the shared rate gate. Zero value is not usable; construct with
// NewGate.
type Gate struct {
	config GateConfig
	log    *zap.Logger
	slots  chan struct{} // Semaphore for in-flight calls

	// Pacing and cooldown state
	mu            sync.Mutex
	lastDispatch  time.Time
	cooldownUntil time.Time
	backoff       time.Duration
	callers       map[string]*CallerStats

	// Metrics
	totalCalls       int64
	totalRateLimited int64
	totalWaitTime    int64 // nanoseconds
	currentlyWaiting int32
	inFlight         int32

	// Lifecycle
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewGate creates a gate. A nil logger disables gate logging.
func NewGate(config GateConfig, log *zap.Logger) *Gate {
	if config.Slots <= 0 {
		config.Slots = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		config:  config,
		log:     log,
		slots:   make(chan struct{}, config.Slots),
		backoff: config.BackoffBase,
		callers: make(map[string]*CallerStats),
		stopCh:  make(chan struct{}),
	}
}

// Acquire blocks until the caller may dispatch one call: a slot is free,
// the minimum interval since the previous dispatch has passed, and any
// shared cooldown has expired. Returns the context error if cancelled
// while waiting.
func (g *Gate) Acquire(ctx context.Context, callerID string) error {
	waitStart := time.Now()

	atomic.AddInt32(&g.currentlyWaiting, 1)
	defer atomic.AddInt32(&g.currentlyWaiting, -1)

	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-g.stopCh:
		return fmt.Errorf("call gate stopped")
	}

	// Holding a slot: wait out pacing and cooldown. The lock is only held
	// to read/advance the dispatch clock, never while sleeping.
	for {
		g.mu.Lock()
		now := time.Now()
		next := g.lastDispatch.Add(g.config.MinInterval)
		if g.cooldownUntil.After(next) {
			next = g.cooldownUntil
		}
		if !next.After(now) {
			g.lastDispatch = now
			stats := g.statsLocked(callerID)
			stats.Calls++
			stats.LastCall = now
			wait := now.Sub(waitStart)
			stats.TotalWaitTime += wait
			g.mu.Unlock()

			atomic.AddInt32(&g.inFlight, 1)
			atomic.AddInt64(&g.totalCalls, 1)
			atomic.AddInt64(&g.totalWaitTime, int64(wait))

			if wait > time.Second {
				g.log.Debug("call gate released caller after wait",
					zap.String("caller", callerID),
					zap.Duration("waited", wait))
			}
			return nil
		}
		g.mu.Unlock()

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			<-g.slots // Give the slot back before bailing
			return ctx.Err()
		case <-g.stopCh:
			<-g.slots
			return fmt.Errorf("call gate stopped")
		}
	}
}

// Release returns the slot after the call completes. Every successful
// Acquire must be paired with exactly one Release.
func (g *Gate) Release(callerID string) {
	select {
	case <-g.slots:
	default:
		// Releasing without holding a slot is a caller bug.
		g.log.Error("call gate release without acquire", zap.String("caller", callerID))
		return
	}
	atomic.AddInt32(&g.inFlight, -1)
}

// Observe feeds a call outcome back into the gate. A rate-limit error
// starts (or extends) the shared cooldown and doubles the next one up to
// the cap; a success resets the ladder. Other errors leave the ladder
// untouched.
func (g *Gate) Observe(callerID string, err error) {
	if err == nil {
		g.mu.Lock()
		g.backoff = g.config.BackoffBase
		g.mu.Unlock()
		return
	}
	if !IsRateLimited(err) {
		return
	}

	atomic.AddInt64(&g.totalRateLimited, 1)

	pause := time.Duration(0)
	g.mu.Lock()
	pause = g.backoff
	if hint, ok := RetryHint(err); ok && hint > pause {
		pause = hint
	}
	until := time.Now().Add(pause)
	if until.After(g.cooldownUntil) {
		g.cooldownUntil = until
	}
	g.backoff *= 2
	if g.backoff > g.config.BackoffCap {
		g.backoff = g.config.BackoffCap
	}
	stats := g.statsLocked(callerID)
	stats.RateLimited++
	g.mu.Unlock()

	g.log.Warn("rate limited, pausing all callers",
		zap.String("caller", callerID),
		zap.Duration("pause", pause))
}

// statsLocked returns the stats entry for a caller, creating it on first
// use. Caller must hold g.mu.
func (g *Gate) statsLocked(callerID string) *CallerStats {
	stats, ok := g.callers[callerID]
	if !ok {
		stats = &CallerStats{CallerID: callerID}
		g.callers[callerID] = stats
	}
	return stats
}

// Stats returns a copy of one caller's traffic counters.
func (g *Gate) Stats(callerID string) (CallerStats, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stats, ok := g.callers[callerID]
	if !ok {
		return CallerStats{}, false
	}
	return *stats, true
}

// Metrics returns a snapshot of gate-wide counters.
func (g *Gate) Metrics() GateMetrics {
	g.mu.Lock()
	callers := len(g.callers)
	cooldown := time.Until(g.cooldownUntil)
	g.mu.Unlock()
	if cooldown < 0 {
		cooldown = 0
	}

	return GateMetrics{
		MaxSlots:          g.config.Slots,
		InFlight:          int(atomic.LoadInt32(&g.inFlight)),
		Waiting:           int(atomic.LoadInt32(&g.currentlyWaiting)),
		TotalCalls:        atomic.LoadInt64(&g.totalCalls),
		TotalRateLimited:  atomic.LoadInt64(&g.totalRateLimited),
		TotalWaitTimeNs:   atomic.LoadInt64(&g.totalWaitTime),
		Callers:           callers,
		CooldownRemaining: cooldown,
	}
}

// GateMetrics provides observability into gate pressure.
type GateMetrics struct {
	MaxSlots          int
	InFlight          int
	Waiting           int
	TotalCalls        int64
	TotalRateLimited  int64
	TotalWaitTimeNs   int64
	Callers           int
	CooldownRemaining time.Duration
}

// String returns a human-readable summary.
func (m GateMetrics) String() string {
	avgWait := time.Duration(0)
	if m.TotalCalls > 0 {
		avgWait = time.Duration(m.TotalWaitTimeNs / m.TotalCalls)
	}
	return fmt.Sprintf("slots=%d/%d, waiting=%d, calls=%d, rate_limited=%d, avg_wait=%v",
		m.InFlight, m.MaxSlots, m.Waiting, m.TotalCalls, m.TotalRateLimited, avgWait)
}

// Stop unblocks all waiters. Acquire fails after Stop.
func (g *Gate) Stop() {
	g.stopOnce.Do(func() { close(g.stopCh) })
}

// -----------------------------------------------------------------------------
// Gated Caller Wrapper
// -----------------------------------------------------------------------------

// GatedCaller wraps a Caller so each call acquires a gate slot, runs, and
// feeds its outcome back into the gate. It implements Caller, so it can
// be injected wherever the plain client would be.
type GatedCaller struct {
	Gate     *Gate
	CallerID string
	Client   Caller
}

// Compile-time assertion that GatedCaller implements Caller
var _ Caller = (*GatedCaller)(nil)

// NewGatedCaller wraps client so callerID's calls flow through gate.
func NewGatedCaller(gate *Gate, callerID string, client Caller) *GatedCaller {
	return &GatedCaller{Gate: gate, CallerID: callerID, Client: client}
}

func (g *GatedCaller) call(ctx context.Context, fn func(context.Context) error) error {
	if err := g.Gate.Acquire(ctx, g.CallerID); err != nil {
		return fmt.Errorf("acquire call slot: %w", err)
	}
	defer g.Gate.Release(g.CallerID)

	err := fn(ctx)
	g.Gate.Observe(g.CallerID, err)
	return err
}

func (g *GatedCaller) Agent(ctx context.Context) (*Agent, error) {
	var res *Agent
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.Agent(ctx)
		return err
	})
	return res, err
}

func (g *GatedCaller) Ships(ctx context.Context) ([]Ship, error) {
	var res []Ship
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.Ships(ctx)
		return err
	})
	return res, err
}

func (g *GatedCaller) Ship(ctx context.Context, symbol string) (*Ship, error) {
	var res *Ship
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.Ship(ctx, symbol)
		return err
	})
	return res, err
}

func (g *GatedCaller) SystemWaypoints(ctx context.Context, systemSymbol, trait string) ([]Waypoint, error) {
	var res []Waypoint
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.SystemWaypoints(ctx, systemSymbol, trait)
		return err
	})
	return res, err
}

func (g *GatedCaller) Market(ctx context.Context, systemSymbol, waypointSymbol string) (*Market, error) {
	var res *Market
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.Market(ctx, systemSymbol, waypointSymbol)
		return err
	})
	return res, err
}

func (g *GatedCaller) PurchaseCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*PurchaseResult, error) {
	var res *PurchaseResult
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.PurchaseCargo(ctx, shipSymbol, tradeSymbol, units)
		return err
	})
	return res, err
}

func (g *GatedCaller) SellCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*SellResult, error) {
	var res *SellResult
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.SellCargo(ctx, shipSymbol, tradeSymbol, units)
		return err
	})
	return res, err
}

func (g *GatedCaller) JettisonCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*JettisonResult, error) {
	var res *JettisonResult
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.JettisonCargo(ctx, shipSymbol, tradeSymbol, units)
		return err
	})
	return res, err
}

func (g *GatedCaller) Orbit(ctx context.Context, shipSymbol string) (*ShipNav, error) {
	var res *ShipNav
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.Orbit(ctx, shipSymbol)
		return err
	})
	return res, err
}

func (g *GatedCaller) Dock(ctx context.Context, shipSymbol string) (*ShipNav, error) {
	var res *ShipNav
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.Dock(ctx, shipSymbol)
		return err
	})
	return res, err
}

func (g *GatedCaller) Navigate(ctx context.Context, shipSymbol, waypointSymbol string) (*NavigateResult, error) {
	var res *NavigateResult
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.Navigate(ctx, shipSymbol, waypointSymbol)
		return err
	})
	return res, err
}

func (g *GatedCaller) Contracts(ctx context.Context) ([]Contract, error) {
	var res []Contract
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.Contracts(ctx)
		return err
	})
	return res, err
}

func (g *GatedCaller) AcceptContract(ctx context.Context, contractID string) (*Contract, error) {
	var res *Contract
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.AcceptContract(ctx, contractID)
		return err
	})
	return res, err
}

func (g *GatedCaller) NegotiateContract(ctx context.Context, shipSymbol string) (*Contract, error) {
	var res *Contract
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.NegotiateContract(ctx, shipSymbol)
		return err
	})
	return res, err
}

func (g *GatedCaller) DeliverContract(ctx context.Context, contractID, shipSymbol, tradeSymbol string, units int) (*DeliverResult, error) {
	var res *DeliverResult
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.DeliverContract(ctx, contractID, shipSymbol, tradeSymbol, units)
		return err
	})
	return res, err
}

func (g *GatedCaller) FulfillContract(ctx context.Context, contractID string) (*FulfillResult, error) {
	var res *FulfillResult
	err := g.call(ctx, func(ctx context.Context) (err error) {
		res, err = g.Client.FulfillContract(ctx, contractID)
		return err
	})
	return res, err
}
