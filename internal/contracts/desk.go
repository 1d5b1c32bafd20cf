// Package contracts decides which contract the fleet works next. The
// desk ranks what the faction offers by payout per required unit,
// accepts the richest offer it can, resumes work already accepted, and
// negotiates fresh paper through a docked ship when the board is empty.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
)

// ErrNoContract means the board is empty and negotiation produced
// nothing workable.
var ErrNoContract = errors.New("no workable contract available")

// maxNegotiators bounds how many ships the desk tries when negotiating.
const maxNegotiators = 3

// Score rates a contract by payout per required unit. An empty delivery
// manifest scores zero.
func Score(c api.Contract) decimal.Decimal {
	units := c.Terms.TotalRequired()
	if units <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(c.Terms.Payment.TotalPayment()).
		DivRound(decimal.NewFromInt(int64(units)), 2)
}

// Scored pairs a contract with its score for ranking and display.
type Scored struct {
	Contract api.Contract
	Score    decimal.Decimal
}

// Desk selects, accepts, and negotiates contracts.
type Desk struct {
	desk  api.ContractDesk
	fleet api.FleetSource
	nav   api.Navigator
	log   *zap.Logger
	now   func() time.Time
}

// NewDesk creates a desk. A nil logger disables logging.
func NewDesk(desk api.ContractDesk, fleet api.FleetSource, nav api.Navigator, log *zap.Logger) *Desk {
	if log == nil {
		log = zap.NewNop()
	}
	return &Desk{desk: desk, fleet: fleet, nav: nav, log: log.Named("contracts"), now: time.Now}
}

// Ranked lists every known contract best first: score descending, ID
// ascending on ties.
func (d *Desk) Ranked(ctx context.Context) ([]Scored, error) {
	contracts, err := d.desk.Contracts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	scored := make([]Scored, 0, len(contracts))
	for _, c := range contracts {
		scored = append(scored, Scored{Contract: c, Score: Score(c)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if cmp := scored[i].Score.Cmp(scored[j].Score); cmp != 0 {
			return cmp > 0
		}
		return scored[i].Contract.ID < scored[j].Contract.ID
	})
	return scored, nil
}

// Next returns the contract the fleet should work now. Preference
// order: the best acceptable offer on the board, then a contract
// already accepted and still open, then whatever a ship can negotiate.
// Acceptance failures skip to the next candidate rather than aborting.
func (d *Desk) Next(ctx context.Context) (*api.Contract, error) {
	ranked, err := d.Ranked(ctx)
	if err != nil {
		return nil, err
	}

	now := d.now()
	for _, s := range ranked {
		c := s.Contract
		if c.Accepted || c.Expired(now) {
			continue
		}
		if !c.DeadlineToAccept.IsZero() && now.After(c.DeadlineToAccept) {
			continue
		}
		accepted, err := d.desk.AcceptContract(ctx, c.ID)
		if err != nil {
			d.log.Warn("failed to accept contract, trying next",
				zap.String("contract", c.ID),
				zap.Error(err))
			continue
		}
		d.log.Info("contract accepted",
			zap.String("contract", accepted.ID),
			zap.String("score", s.Score.String()),
			zap.Int64("payment", accepted.Terms.Payment.TotalPayment()))
		return accepted, nil
	}

	for _, s := range ranked {
		if c := s.Contract; c.Open(now) {
			d.log.Info("resuming accepted contract",
				zap.String("contract", c.ID),
				zap.Int("units_outstanding", c.Terms.TotalRemaining()))
			resumed := c
			return &resumed, nil
		}
	}

	return d.negotiate(ctx)
}

// negotiate asks up to maxNegotiators ships to negotiate a contract,
// docking each first. The first contract offered is accepted.
func (d *Desk) negotiate(ctx context.Context) (*api.Contract, error) {
	ships, err := d.fleet.Ships(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ships: %w", err)
	}

	tried := 0
	for _, ship := range ships {
		if tried >= maxNegotiators {
			break
		}
		if ship.Nav.Status == api.NavStatusInTransit {
			continue
		}
		tried++

		if !ship.Docked() {
			if _, err := d.nav.Dock(ctx, ship.Symbol); err != nil {
				d.log.Warn("failed to dock for negotiation",
					zap.String("ship", ship.Symbol),
					zap.Error(err))
				continue
			}
		}
		offered, err := d.desk.NegotiateContract(ctx, ship.Symbol)
		if err != nil {
			d.log.Warn("negotiation failed",
				zap.String("ship", ship.Symbol),
				zap.Error(err))
			continue
		}

		accepted, err := d.desk.AcceptContract(ctx, offered.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to accept negotiated contract %s: %w", offered.ID, err)
		}
		d.log.Info("contract negotiated",
			zap.String("ship", ship.Symbol),
			zap.String("contract", accepted.ID),
			zap.Int64("payment", accepted.Terms.Payment.TotalPayment()))
		return accepted, nil
	}

	return nil, ErrNoContract
}
