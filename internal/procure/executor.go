package procure

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
	"github.com/evanmiller2112/spacetraders-cc/internal/ledger"
)

// Ledger receives the audit trail. Satisfied by *ledger.Store; a nil
// Ledger disables persistence.
type Ledger interface {
	Append(rec ledger.TransactionRecord) error
	ArchivePlan(archive ledger.PlanArchive) error
}

// RetryPolicy bounds transient retries during execution.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	CapDelay    time.Duration
}

// DefaultRetryPolicy matches the call gate's backoff shape: exponential
// from one second, capped at a minute, four attempts total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: time.Second, CapDelay: time.Minute}
}

func (rp RetryPolicy) normalize() RetryPolicy {
	def := DefaultRetryPolicy()
	if rp.MaxAttempts <= 0 {
		rp.MaxAttempts = def.MaxAttempts
	}
	if rp.BaseDelay <= 0 {
		rp.BaseDelay = def.BaseDelay
	}
	if rp.CapDelay <= 0 {
		rp.CapDelay = def.CapDelay
	}
	return rp
}

// delay returns the backoff before retrying after the given 1-based
// attempt, doubling from the base up to the cap.
func (rp RetryPolicy) delay(attempt int) time.Duration {
	d := rp.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= rp.CapDelay {
			return rp.CapDelay
		}
	}
	if d > rp.CapDelay {
		return rp.CapDelay
	}
	return d
}

// withRetry runs call under the policy: transient failures back off and
// retry, honoring any server retry hint; structural rejections return
// immediately.
func withRetry(ctx context.Context, policy RetryPolicy, sleep func(context.Context, time.Duration) error, log *zap.Logger, op string, call func() error) error {
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		if !api.IsTemporary(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}
		delay := policy.delay(attempt)
		if hint, ok := api.RetryHint(err); ok && hint > delay {
			delay = hint
		}
		log.Debug("transient failure, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s attempts exhausted: %w", op, lastErr)
}

// outcomeOf maps a terminal batch error onto the ledger's outcome enum.
func outcomeOf(err error) string {
	if api.IsRateLimited(err) || api.IsTemporary(err) {
		return ledger.OutcomeRateLimited
	}
	return ledger.OutcomeRejected
}

// Executor runs one ship's allocation batch by batch: fly to the venue,
// dock, buy, book the result. Batches fail independently; a venue
// rejecting one batch does not sink the rest of the run.
type Executor struct {
	trader api.Trader
	pilot  *Pilot
	ledger Ledger
	policy RetryPolicy
	log    *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// NewExecutor creates an executor. ledger may be nil to skip the audit
// trail; a nil logger disables logging.
func NewExecutor(trader api.Trader, pilot *Pilot, led Ledger, policy RetryPolicy, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		trader: trader,
		pilot:  pilot,
		ledger: led,
		policy: policy.normalize(),
		log:    log.Named("executor"),
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

// Run executes the allocation against the plan, keeping the ship
// snapshot current as it moves and loads. Batch-level failures are
// booked on the plan, not propagated; only context cancellation aborts
// the run early.
func (e *Executor) Run(ctx context.Context, plan *Plan, alloc *Allocation, ship *api.Ship) error {
	alloc.Status = AllocationInProgress
	e.log.Info("allocation started",
		zap.String("plan", plan.ID),
		zap.String("ship", alloc.Ship),
		zap.Int("batches", len(alloc.Batches)),
		zap.Int("units", alloc.Units()))

	requested, purchased, failed := 0, 0, 0
	for _, batch := range alloc.Batches {
		if err := ctx.Err(); err != nil {
			alloc.Status = cancelStatus(purchased)
			return err
		}
		if plan.Remaining() == 0 {
			break
		}

		want, got, err := e.runBatch(ctx, plan, batch, ship)
		requested += want
		purchased += got
		if err != nil {
			if ctx.Err() != nil {
				alloc.Status = cancelStatus(purchased)
				return ctx.Err()
			}
			failed++
		}
	}

	switch {
	case failed == 0 && purchased == requested:
		alloc.Status = AllocationCompleted
	case purchased > 0:
		alloc.Status = AllocationPartial
	default:
		alloc.Status = AllocationFailed
	}
	e.log.Info("allocation finished",
		zap.String("ship", alloc.Ship),
		zap.String("status", alloc.Status),
		zap.Int("purchased", purchased),
		zap.Int("failed_batches", failed))
	return nil
}

func cancelStatus(purchased int) string {
	if purchased > 0 {
		return AllocationPartial
	}
	return AllocationFailed
}

// runBatch drives one batch to a terminal outcome. Returns the units it
// set out to buy and the units actually bought; err is non-nil when the
// batch failed outright.
func (e *Executor) runBatch(ctx context.Context, plan *Plan, batch Batch, ship *api.Ship) (int, int, error) {
	units := batch.Units
	if rem := plan.Remaining(); rem < units {
		units = rem
	}
	if units <= 0 {
		return 0, 0, nil
	}

	rec := ledger.TransactionRecord{
		ID:             uuid.NewString(),
		PlanID:         plan.ID,
		BatchSeq:       batch.Seq,
		Ship:           ship.Symbol,
		Venue:          batch.Venue,
		Good:           batch.Good,
		UnitsRequested: units,
	}

	if err := e.pilot.DockAt(ctx, ship, batch.Venue); err != nil {
		rec.Outcome = outcomeOf(err)
		rec.CreatedAt = e.now()
		e.append(rec)
		plan.RecordFailure(batch, ship.Symbol, fmt.Sprintf("failed to reach venue: %v", err))
		e.log.Warn("batch failed before purchase",
			zap.String("ship", ship.Symbol),
			zap.String("venue", batch.Venue),
			zap.Error(err))
		return units, 0, err
	}

	result, err := e.purchase(ctx, ship.Symbol, batch.Good, units)
	if err != nil {
		rec.Outcome = outcomeOf(err)
		rec.CreatedAt = e.now()
		e.append(rec)
		plan.RecordFailure(batch, ship.Symbol, err.Error())
		e.log.Warn("batch purchase failed",
			zap.String("ship", ship.Symbol),
			zap.String("venue", batch.Venue),
			zap.String("good", batch.Good),
			zap.Int("units", units),
			zap.Error(err))
		return units, 0, err
	}

	ship.Cargo = result.Cargo
	tx := result.Transaction
	plan.ApplyPurchase(tx.Units, tx.TotalPrice)

	rec.UnitsPurchased = tx.Units
	rec.PricePerUnit = tx.PricePerUnit
	rec.TotalPrice = tx.TotalPrice
	rec.Outcome = ledger.OutcomeSucceeded
	if tx.Units < units {
		rec.Outcome = ledger.OutcomePartial
		plan.RecordFailure(batch, ship.Symbol,
			fmt.Sprintf("venue filled %d of %d units", tx.Units, units))
	}
	rec.CreatedAt = e.now()
	e.append(rec)

	e.log.Info("batch purchased",
		zap.String("ship", ship.Symbol),
		zap.String("venue", batch.Venue),
		zap.String("good", batch.Good),
		zap.Int("units", tx.Units),
		zap.Int64("unit_price", tx.PricePerUnit),
		zap.Int64("total", tx.TotalPrice))
	return units, tx.Units, nil
}

// purchase attempts the buy call under the retry policy.
func (e *Executor) purchase(ctx context.Context, shipSymbol, good string, units int) (*api.PurchaseResult, error) {
	var result *api.PurchaseResult
	err := withRetry(ctx, e.policy, e.sleep, e.log, "purchase", func() error {
		r, err := e.trader.PurchaseCargo(ctx, shipSymbol, good, units)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// append writes a ledger row; ledger failures are logged, never fatal.
func (e *Executor) append(rec ledger.TransactionRecord) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.Append(rec); err != nil {
		e.log.Warn("failed to append ledger record",
			zap.String("plan", rec.PlanID),
			zap.Error(err))
	}
}
