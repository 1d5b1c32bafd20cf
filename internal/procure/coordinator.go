package procure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
	"github.com/evanmiller2112/spacetraders-cc/internal/ledger"
	"github.com/evanmiller2112/spacetraders-cc/internal/market"
)

// CoordinatorConfig tunes the pass loop and the delivery phase.
type CoordinatorConfig struct {
	// MaxPasses bounds the source-allocate-execute rounds per line.
	// Later passes pick up units earlier passes could not place or buy.
	MaxPasses int
	// DeliveryChunk caps units per deliver call; zero means no cap.
	DeliveryChunk int
	// DeadlineMargin stops new sourcing this close to the deadline so
	// the haul to the destination still fits.
	DeadlineMargin time.Duration
	// Retry bounds transient retries on delivery and fulfillment calls.
	Retry RetryPolicy
}

// DefaultCoordinatorConfig returns the engine defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		MaxPasses:      3,
		DeliveryChunk:  0,
		DeadlineMargin: 5 * time.Minute,
		Retry:          DefaultRetryPolicy(),
	}
}

// CoordinatorDeps wires the coordinator's collaborators.
type CoordinatorDeps struct {
	Caller    api.Caller
	Locator   *market.Locator
	Planner   *BatchPlanner
	Allocator *Allocator
	Executor  *Executor
	Pilot     *Pilot
	Ledger    Ledger
}

// Coordinator drives one contract end to end: snapshot the fleet, plan
// sourcing for each delivery line, allocate and execute purchases
// across ships, haul everything to the destination, and fulfill once
// the manifest is complete.
type Coordinator struct {
	caller    api.Caller
	locator   *market.Locator
	planner   *BatchPlanner
	allocator *Allocator
	executor  *Executor
	pilot     *Pilot
	ledger    Ledger
	cfg       CoordinatorConfig
	log       *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// NewCoordinator creates a coordinator. A nil logger disables logging.
func NewCoordinator(deps CoordinatorDeps, cfg CoordinatorConfig, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = DefaultCoordinatorConfig().MaxPasses
	}
	cfg.Retry = cfg.Retry.normalize()
	return &Coordinator{
		caller:    deps.Caller,
		locator:   deps.Locator,
		planner:   deps.Planner,
		allocator: deps.Allocator,
		executor:  deps.Executor,
		pilot:     deps.Pilot,
		ledger:    deps.Ledger,
		cfg:       cfg,
		log:       log.Named("coordinator"),
		sleep:     sleepCtx,
		now:       time.Now,
	}
}

// LineReport is the per-delivery-line outcome.
type LineReport struct {
	PlanID        string
	Good          string
	Destination   string
	Required      int
	Purchased     int
	Delivered     int
	Shortfall     int
	FailedBatches int
	CreditsSpent  int64
	AvgUnitPrice  decimal.Decimal
	Status        string
}

// Report is the coordinator's account of one contract run.
type Report struct {
	ContractID   string
	Status       string
	Fulfilled    bool
	Lines        []LineReport
	CreditsSpent int64
	Elapsed      time.Duration
}

// Run works the contract until its manifest is satisfied or nothing
// more can be done. The returned report is populated even when err is
// non-nil, covering whatever progress was made.
func (c *Coordinator) Run(ctx context.Context, contract *api.Contract) (*Report, error) {
	start := c.now()
	report := &Report{ContractID: contract.ID}

	if contract.Expired(c.now()) {
		report.Status = PlanFailed
		return report, &ContractExpiredError{ContractID: contract.ID, Deadline: contract.Terms.Deadline}
	}

	c.log.Info("contract run started",
		zap.String("contract", contract.ID),
		zap.Int("lines", len(contract.Terms.Deliver)),
		zap.Int("units_outstanding", contract.Terms.TotalRemaining()),
		zap.Time("deadline", contract.Terms.Deadline))

	var runErr error
	for _, req := range RequirementsOf(*contract) {
		line, err := c.runLine(ctx, contract, req)
		if line != nil {
			report.Lines = append(report.Lines, *line)
			report.CreditsSpent += line.CreditsSpent
		}
		if err != nil {
			runErr = err
			break
		}
	}

	if runErr == nil && contract.Terms.TotalRemaining() == 0 && !contract.Fulfilled {
		if err := c.fulfill(ctx, contract); err != nil {
			c.log.Warn("failed to fulfill contract",
				zap.String("contract", contract.ID),
				zap.Error(err))
		} else {
			report.Fulfilled = true
		}
	}

	report.Status = rollupStatus(report.Lines)
	report.Elapsed = c.now().Sub(start)
	c.log.Info("contract run finished",
		zap.String("contract", contract.ID),
		zap.String("status", report.Status),
		zap.Bool("fulfilled", report.Fulfilled),
		zap.Int64("credits_spent", report.CreditsSpent),
		zap.Duration("elapsed", report.Elapsed))
	return report, runErr
}

// runLine procures and delivers one requirement.
func (c *Coordinator) runLine(ctx context.Context, contract *api.Contract, req Requirement) (*LineReport, error) {
	log := c.log.With(zap.String("contract", req.ContractID), zap.String("good", req.Good))

	ships, err := c.workingFleet(ctx)
	if err != nil {
		return nil, err
	}
	if len(ships) == 0 {
		return nil, fmt.Errorf("no ship available to work contract %s", req.ContractID)
	}

	held := 0
	for i := range ships {
		held += ships[i].Cargo.UnitsOf(req.Good)
	}
	if held > req.Required {
		held = req.Required
	}

	plan := NewPlan(req, held)
	log.Info("plan opened",
		zap.String("plan", plan.ID),
		zap.String("destination", req.Destination),
		zap.Int("required", req.Required),
		zap.Int("held", held),
		zap.Int("to_source", plan.Remaining()))

	var runErr error
	for pass := 1; pass <= c.cfg.MaxPasses && plan.Remaining() > 0; pass++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if c.pastDeadline(req.Deadline) {
			log.Warn("deadline margin reached, stopping sourcing",
				zap.Time("deadline", req.Deadline),
				zap.Int("shortfall", plan.Remaining()))
			break
		}

		progressed, err := c.pass(ctx, plan, ships, pass)
		if err != nil {
			runErr = err
			break
		}
		if !progressed {
			break
		}
	}

	if runErr == nil && plan.Purchased()+plan.Held > 0 {
		if err := c.deliver(ctx, contract, plan, ships); err != nil {
			runErr = err
		}
	}

	line := c.finalizeLine(plan)
	log.Info("plan closed",
		zap.String("plan", plan.ID),
		zap.String("status", line.Status),
		zap.Int("purchased", line.Purchased),
		zap.Int("delivered", line.Delivered),
		zap.Int("shortfall", line.Shortfall))
	return &line, runErr
}

// pass runs one source-allocate-execute round. Venues are rediscovered
// each pass; prices and volumes move while the fleet flies. Returns
// whether any units were purchased, so the loop stops once the galaxy
// is tapped out.
func (c *Coordinator) pass(ctx context.Context, plan *Plan, ships []api.Ship, pass int) (bool, error) {
	cursor, err := c.locator.Venues(ctx, plan.Good, ships)
	if err != nil {
		return false, fmt.Errorf("failed to discover venues: %w", err)
	}

	sourcing, err := c.planner.Plan(ctx, plan.Good, plan.Remaining(), cursor)
	if err != nil {
		return false, err
	}
	if len(sourcing.Batches) == 0 {
		if pass == 1 && plan.Held == 0 && plan.Purchased() == 0 {
			return false, &VenueUnavailableError{
				Good:     plan.Good,
				Needed:   plan.Remaining(),
				Rejected: len(sourcing.Rejected),
			}
		}
		return false, nil
	}
	if sourcing.Shortfall > 0 {
		c.log.Warn("sourcing fell short of the requirement",
			zap.String("good", plan.Good),
			zap.Int("sourced", sourcing.Sourced),
			zap.Int("shortfall", sourcing.Shortfall))
	}

	keep := []Reservation{{Good: plan.Good, Units: plan.Required}}
	allocation, err := c.allocator.Allocate(ctx, sourcing.Batches, ships, plan.Good, keep)
	if err != nil {
		return false, err
	}
	if len(allocation.Allocations) == 0 {
		c.log.Warn("no hold space for any batch",
			zap.String("good", plan.Good),
			zap.Int("unallocated_units", allocation.UnallocatedUnits))
		return false, nil
	}
	if allocation.UnallocatedUnits > 0 {
		c.log.Info("batches deferred for lack of hold space",
			zap.Int("units", allocation.UnallocatedUnits))
	}

	plan.AddAllocations(allocation.Allocations)
	plan.SetStatus(PlanExecuting)
	c.log.Info("pass executing",
		zap.String("plan", plan.ID),
		zap.Int("pass", pass),
		zap.Int("ships", len(allocation.Allocations)),
		zap.Int("batches", len(sourcing.Batches)))

	before := plan.Purchased()
	grp, gctx := errgroup.WithContext(ctx)
	for _, alloc := range allocation.Allocations {
		ship := shipBySymbol(ships, alloc.Ship)
		if ship == nil {
			continue
		}
		alloc := alloc
		grp.Go(func() error {
			return c.executor.Run(gctx, plan, alloc, ship)
		})
	}
	if err := grp.Wait(); err != nil {
		return plan.Purchased() > before, err
	}
	return plan.Purchased() > before, nil
}

// deliver hauls every loaded ship to the destination and books its
// cargo against the contract. Ships fly concurrently; the contract
// snapshot advances under a lock as deliveries land.
func (c *Coordinator) deliver(ctx context.Context, contract *api.Contract, plan *Plan, ships []api.Ship) error {
	var mu sync.Mutex

	grp, gctx := errgroup.WithContext(ctx)
	for i := range ships {
		ship := &ships[i]
		if ship.Cargo.UnitsOf(plan.Good) == 0 {
			continue
		}
		grp.Go(func() error {
			return c.deliverShip(gctx, contract, plan, ship, &mu)
		})
	}
	return grp.Wait()
}

func (c *Coordinator) deliverShip(ctx context.Context, contract *api.Contract, plan *Plan, ship *api.Ship, mu *sync.Mutex) error {
	if err := c.pilot.DockAt(ctx, ship, plan.Destination); err != nil {
		return fmt.Errorf("failed to bring %s to %s: %w", ship.Symbol, plan.Destination, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		aboard := ship.Cargo.UnitsOf(plan.Good)
		if aboard == 0 {
			return nil
		}
		mu.Lock()
		outstanding := lineRemaining(contract, plan.Good, plan.Destination)
		mu.Unlock()
		if outstanding == 0 {
			return nil
		}

		units := aboard
		if units > outstanding {
			units = outstanding
		}
		if c.cfg.DeliveryChunk > 0 && units > c.cfg.DeliveryChunk {
			units = c.cfg.DeliveryChunk
		}

		var result *api.DeliverResult
		err := withRetry(ctx, c.cfg.Retry, c.sleep, c.log, "deliver", func() error {
			r, err := c.caller.DeliverContract(ctx, contract.ID, ship.Symbol, plan.Good, units)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to deliver %d units of %s: %w", units, plan.Good, err)
		}

		ship.Cargo = result.Cargo
		mu.Lock()
		*contract = result.Contract
		mu.Unlock()
		plan.ApplyDelivery(units)
		c.log.Info("delivery booked",
			zap.String("ship", ship.Symbol),
			zap.String("good", plan.Good),
			zap.Int("units", units),
			zap.String("destination", plan.Destination))
	}
}

// fulfill collects the payout once every line is delivered.
func (c *Coordinator) fulfill(ctx context.Context, contract *api.Contract) error {
	var result *api.FulfillResult
	err := withRetry(ctx, c.cfg.Retry, c.sleep, c.log, "fulfill", func() error {
		r, err := c.caller.FulfillContract(ctx, contract.ID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return err
	}
	*contract = result.Contract
	c.log.Info("contract fulfilled",
		zap.String("contract", contract.ID),
		zap.Int64("credits", result.Agent.Credits))
	return nil
}

// workingFleet snapshots the ships that can take work now. In-transit
// ships cannot trade or change course, and ships without a hold cannot
// haul, so both sit the round out.
func (c *Coordinator) workingFleet(ctx context.Context) ([]api.Ship, error) {
	all, err := c.caller.Ships(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ships: %w", err)
	}
	var ships []api.Ship
	for _, ship := range all {
		if ship.Nav.Status == api.NavStatusInTransit {
			continue
		}
		if ship.Cargo.Capacity == 0 {
			continue
		}
		ships = append(ships, ship)
	}
	return ships, nil
}

func (c *Coordinator) pastDeadline(deadline time.Time) bool {
	if deadline.IsZero() {
		return false
	}
	return c.now().Add(c.cfg.DeadlineMargin).After(deadline)
}

func (c *Coordinator) finalizeLine(plan *Plan) LineReport {
	status := plan.Finalize()
	line := LineReport{
		PlanID:        plan.ID,
		Good:          plan.Good,
		Destination:   plan.Destination,
		Required:      plan.Required,
		Purchased:     plan.Purchased(),
		Delivered:     plan.Delivered(),
		Shortfall:     plan.Remaining(),
		FailedBatches: len(plan.FailedBatches()),
		CreditsSpent:  plan.CreditsSpent(),
		AvgUnitPrice:  plan.AvgUnitPrice(),
		Status:        status,
	}
	c.archive(plan, status)
	return line
}

// archive writes the plan's terminal snapshot; failures only log.
func (c *Coordinator) archive(plan *Plan, status string) {
	if c.ledger == nil {
		return
	}
	err := c.ledger.ArchivePlan(ledger.PlanArchive{
		PlanID:         plan.ID,
		ContractID:     plan.ContractID,
		Good:           plan.Good,
		Status:         status,
		UnitsRequired:  plan.Required,
		UnitsPurchased: plan.Purchased(),
		UnitsDelivered: plan.Delivered(),
		Shortfall:      plan.Remaining(),
		CreditsSpent:   plan.CreditsSpent(),
		FailedBatches:  len(plan.FailedBatches()),
		CreatedAt:      plan.CreatedAt,
		FinishedAt:     c.now(),
	})
	if err != nil {
		c.log.Warn("failed to archive plan",
			zap.String("plan", plan.ID),
			zap.Error(err))
	}
}

func lineRemaining(contract *api.Contract, good, destination string) int {
	for _, d := range contract.Terms.Deliver {
		if d.TradeSymbol == good && d.DestinationSymbol == destination {
			return d.Remaining()
		}
	}
	return 0
}

func shipBySymbol(ships []api.Ship, symbol string) *api.Ship {
	for i := range ships {
		if ships[i].Symbol == symbol {
			return &ships[i]
		}
	}
	return nil
}

func rollupStatus(lines []LineReport) string {
	if len(lines) == 0 {
		return PlanCompleted
	}
	completed := 0
	progressed := false
	for _, line := range lines {
		switch line.Status {
		case PlanCompleted:
			completed++
			progressed = true
		case PlanPartial:
			progressed = true
		}
	}
	switch {
	case completed == len(lines):
		return PlanCompleted
	case progressed:
		return PlanPartial
	default:
		return PlanFailed
	}
}
