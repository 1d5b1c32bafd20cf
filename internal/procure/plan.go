// Package procure turns a delivery obligation into executed purchases.
// Sourcing walks ranked venues and splits the requirement into batches
// no larger than each venue allows per call, allocation packs those
// batches into the fleet's cargo holds, execution buys them venue by
// venue, and the coordinator on top drives one contract line end to end
// before hauling everything to its destination.
package procure

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
)

// Requirement is one contract delivery line distilled to a procurement
// target: how many units of which good must reach which waypoint by when.
type Requirement struct {
	ContractID  string
	Good        string
	Destination string
	Required    int
	Deadline    time.Time
}

// RequirementsOf extracts the unfinished delivery lines of a contract.
// Lines already delivered in full are dropped.
func RequirementsOf(c api.Contract) []Requirement {
	var reqs []Requirement
	for _, d := range c.Terms.Deliver {
		remaining := d.Remaining()
		if remaining == 0 {
			continue
		}
		reqs = append(reqs, Requirement{
			ContractID:  c.ID,
			Good:        d.TradeSymbol,
			Destination: d.DestinationSymbol,
			Required:    remaining,
			Deadline:    c.Terms.Deadline,
		})
	}
	return reqs
}

// Batch is one purchase call: units of one good at one venue, priced at
// discovery time. Units never exceed the good's per-call transaction
// limit.
type Batch struct {
	Seq       int
	Venue     string
	System    string
	Good      string
	Units     int
	UnitPrice int64
}

// Cost is the expected spend for the batch at planning-time prices.
func (b Batch) Cost() int64 {
	return int64(b.Units) * b.UnitPrice
}

// Allocation states.
const (
	AllocationPending    = "PENDING"
	AllocationInProgress = "IN_PROGRESS"
	AllocationCompleted  = "COMPLETED"
	AllocationPartial    = "PARTIAL"
	AllocationFailed     = "FAILED"
)

// Allocation assigns an ordered run of batches to one ship. The executor
// works the batches strictly in order; CommittedSpace is the hold space
// the run will consume when every batch fills.
type Allocation struct {
	Ship           string
	Batches        []Batch
	CommittedSpace int
	Status         string
}

// Units sums the allocation's planned units.
func (a *Allocation) Units() int {
	total := 0
	for _, b := range a.Batches {
		total += b.Units
	}
	return total
}

// Cost sums the allocation's expected spend.
func (a *Allocation) Cost() int64 {
	var total int64
	for _, b := range a.Batches {
		total += b.Cost()
	}
	return total
}

// Plan states.
const (
	PlanPlanning  = "PLANNING"
	PlanExecuting = "EXECUTING"
	PlanCompleted = "COMPLETED"
	PlanPartial   = "PARTIAL"
	PlanFailed    = "FAILED"
)

// Plan is the mutable state of one procurement attempt against one
// delivery line. Ship executors run concurrently, so every unit and
// credit is booked through ApplyPurchase and ApplyDelivery under the
// plan's lock; nothing else touches the counters.
type Plan struct {
	ID          string
	ContractID  string
	Good        string
	Destination string
	Deadline    time.Time
	Required    int
	Held        int
	CreatedAt   time.Time

	mu           sync.Mutex
	status       string
	remaining    int
	purchased    int
	delivered    int
	creditsSpent int64
	allocations  []*Allocation
	failed       []FailedBatch
}

// FailedBatch records one batch that ended short or not at all, and why.
type FailedBatch struct {
	Batch  Batch
	Ship   string
	Reason string
}

// NewPlan opens a plan for one requirement. held is matching cargo
// already aboard the fleet; it reduces what sourcing must buy but still
// has to be delivered.
func NewPlan(req Requirement, held int) *Plan {
	need := req.Required - held
	if need < 0 {
		need = 0
	}
	return &Plan{
		ID:          uuid.NewString(),
		ContractID:  req.ContractID,
		Good:        req.Good,
		Destination: req.Destination,
		Deadline:    req.Deadline,
		Required:    req.Required,
		Held:        held,
		CreatedAt:   time.Now(),
		status:      PlanPlanning,
		remaining:   need,
	}
}

// Status returns the plan's current state.
func (p *Plan) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// SetStatus moves the plan to a new state.
func (p *Plan) SetStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// Remaining returns the units sourcing still has to buy. Once execution
// ends, this is the plan's shortfall.
func (p *Plan) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining
}

// Purchased returns the units bought so far.
func (p *Plan) Purchased() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.purchased
}

// Delivered returns the units handed to the contract so far.
func (p *Plan) Delivered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delivered
}

// CreditsSpent returns the credits paid out so far.
func (p *Plan) CreditsSpent() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creditsSpent
}

// AvgUnitPrice is the volume-weighted average paid per unit so far.
func (p *Plan) AvgUnitPrice() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.purchased == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(p.creditsSpent).
		DivRound(decimal.NewFromInt(int64(p.purchased)), 2)
}

// AddAllocations attaches one pass's allocations to the plan.
func (p *Plan) AddAllocations(allocs []*Allocation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allocations = append(p.allocations, allocs...)
}

// Allocations returns every allocation attached so far.
func (p *Plan) Allocations() []*Allocation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Allocation, len(p.allocations))
	copy(out, p.allocations)
	return out
}

// ApplyPurchase books one successful purchase. Remaining is clamped at
// zero in case a venue filled more than the outstanding balance.
func (p *Plan) ApplyPurchase(units int, totalPrice int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purchased += units
	p.creditsSpent += totalPrice
	p.remaining -= units
	if p.remaining < 0 {
		p.remaining = 0
	}
}

// ApplyDelivery books units handed to the contract.
func (p *Plan) ApplyDelivery(units int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered += units
}

// RecordFailure notes a batch that did not fill completely.
func (p *Plan) RecordFailure(batch Batch, ship, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, FailedBatch{Batch: batch, Ship: ship, Reason: reason})
}

// FailedBatches returns the batches that ended short or not at all.
func (p *Plan) FailedBatches() []FailedBatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FailedBatch, len(p.failed))
	copy(out, p.failed)
	return out
}

// Finalize derives and sets the terminal state from the books: every
// required unit delivered means COMPLETED, any progress means PARTIAL,
// none means FAILED.
func (p *Plan) Finalize() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.delivered >= p.Required:
		p.status = PlanCompleted
	case p.delivered > 0 || p.purchased > 0:
		p.status = PlanPartial
	default:
		p.status = PlanFailed
	}
	return p.status
}
