package procure

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/evanmiller2112/spacetraders-cc/internal/goods"
	"github.com/evanmiller2112/spacetraders-cc/internal/market"
)

// SplitBatches splits units into per-call purchase sizes: full batches
// of limit units, then the remainder. A limit of zero or less means one
// call takes everything.
func SplitBatches(units, limit int) []int {
	if units <= 0 {
		return nil
	}
	if limit <= 0 {
		return []int{units}
	}
	sizes := make([]int, 0, units/limit+1)
	for units > limit {
		sizes = append(sizes, limit)
		units -= limit
	}
	return append(sizes, units)
}

// VenueSource yields venues best first, nil when exhausted. Satisfied
// by *market.VenueCursor.
type VenueSource interface {
	Next(ctx context.Context) (*market.Venue, error)
}

// Rejection notes a venue skipped during sourcing and why.
type Rejection struct {
	Venue  string
	Reason string
}

// SourcingPlan is the outcome of walking venues for one good: ordered
// batches, the units they cover, and what could not be sourced anywhere.
type SourcingPlan struct {
	Good      string
	Batches   []Batch
	Sourced   int
	Shortfall int
	Rejected  []Rejection
}

// BatchPlanner builds purchase batches from ranked venues. Each venue
// contributes at most its advertised trade volume, split into calls no
// larger than the good's transaction limit; venues priced outside the
// acceptable band are recorded and skipped, never bought from.
type BatchPlanner struct {
	catalog   *goods.Catalog
	validator *market.Validator
	log       *zap.Logger
}

// NewBatchPlanner creates a planner. A nil logger disables logging.
func NewBatchPlanner(catalog *goods.Catalog, validator *market.Validator, log *zap.Logger) *BatchPlanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchPlanner{catalog: catalog, validator: validator, log: log.Named("planner")}
}

// Plan consumes venues from the source until need units are covered or
// the source runs dry. A dry source is not an error; the shortfall is
// reported on the plan and the caller decides what a partial sourcing
// is worth.
func (bp *BatchPlanner) Plan(ctx context.Context, good string, need int, venues VenueSource) (*SourcingPlan, error) {
	info, _ := bp.catalog.Lookup(good)
	plan := &SourcingPlan{Good: good}

	outstanding := need
	seq := 0
	for outstanding > 0 {
		venue, err := venues.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to advance venue cursor: %w", err)
		}
		if venue == nil {
			break
		}
		offer, ok := venue.Offer(good)
		if !ok {
			continue
		}
		if err := bp.validator.Check(good, offer.UnitPrice); err != nil {
			bp.log.Warn("venue rejected on price",
				zap.String("venue", venue.Symbol),
				zap.String("good", good),
				zap.Int64("unit_price", offer.UnitPrice))
			plan.Rejected = append(plan.Rejected, Rejection{Venue: venue.Symbol, Reason: err.Error()})
			continue
		}

		deliverable := outstanding
		if offer.TradeVolume > 0 && offer.TradeVolume < deliverable {
			deliverable = offer.TradeVolume
		}
		for _, size := range SplitBatches(deliverable, info.TransactionLimit) {
			plan.Batches = append(plan.Batches, Batch{
				Seq:       seq,
				Venue:     venue.Symbol,
				System:    venue.System,
				Good:      good,
				Units:     size,
				UnitPrice: offer.UnitPrice,
			})
			seq++
		}
		plan.Sourced += deliverable
		outstanding -= deliverable
	}
	plan.Shortfall = outstanding

	bp.log.Debug("sourcing planned",
		zap.String("good", good),
		zap.Int("need", need),
		zap.Int("sourced", plan.Sourced),
		zap.Int("shortfall", plan.Shortfall),
		zap.Int("batches", len(plan.Batches)),
		zap.Int("venues_rejected", len(plan.Rejected)))
	return plan, nil
}
