// Package market finds venues that sell a required good and validates
// their prices against the product knowledge base.
package market

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
	"github.com/evanmiller2112/spacetraders-cc/internal/goods"
)

// Offer is one good's live listing at a venue.
type Offer struct {
	Good        string
	UnitPrice   int64
	TradeVolume int
}

// Venue is a marketplace waypoint carrying the requested good. Offers is
// a read-only snapshot taken at discovery time; prices and volumes may
// have moved by execution time.
type Venue struct {
	Symbol       string
	System       string
	Traits       []string
	TraitMatches int
	Offers       map[string]Offer
}

// Offer returns the venue's listing for one good.
func (v *Venue) Offer(good string) (Offer, bool) {
	offer, ok := v.Offers[good]
	return offer, ok
}

// Locator discovers and ranks venues for a good, starting from wherever
// the fleet currently is. It never assumes a fixed region.
type Locator struct {
	charts  api.ChartSource
	catalog *goods.Catalog
	log     *zap.Logger
}

// NewLocator creates a locator. A nil logger disables logging.
func NewLocator(charts api.ChartSource, catalog *goods.Catalog, log *zap.Logger) *Locator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Locator{charts: charts, catalog: catalog, log: log.Named("locator")}
}

// Venues discovers marketplace waypoints in every system the fleet
// occupies and returns a cursor over them, best first. Ranking is by
// preferred-trait matches, then advertised trade volume, then symbol.
// Market listings are fetched lazily as the cursor advances, so a caller
// that stops early spares the call budget. An exhausted cursor on the
// first call means nothing in reach sells the good; that is not an error.
func (l *Locator) Venues(ctx context.Context, good string, ships []api.Ship) (*VenueCursor, error) {
	info, _ := l.catalog.Lookup(good)

	systems := make(map[string]bool)
	for _, ship := range ships {
		if ship.Nav.SystemSymbol != "" {
			systems[ship.Nav.SystemSymbol] = true
		}
	}
	ordered := make([]string, 0, len(systems))
	for system := range systems {
		ordered = append(ordered, system)
	}
	sort.Strings(ordered)

	seen := make(map[string]bool)
	var candidates []candidate
	for _, system := range ordered {
		waypoints, err := l.charts.SystemWaypoints(ctx, system, api.TraitMarketplace)
		if err != nil {
			return nil, fmt.Errorf("failed to chart system %s: %w", system, err)
		}
		for _, wp := range waypoints {
			if seen[wp.Symbol] {
				continue
			}
			seen[wp.Symbol] = true

			matches := 0
			for _, trait := range info.PreferredTraits {
				if wp.HasTrait(trait) {
					matches++
				}
			}
			candidates = append(candidates, candidate{waypoint: wp, traitMatches: matches})
		}
	}

	// Group candidates by trait score. Volume ordering inside a group
	// needs market data, which the cursor fetches group by group.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].traitMatches != candidates[j].traitMatches {
			return candidates[i].traitMatches > candidates[j].traitMatches
		}
		return candidates[i].waypoint.Symbol < candidates[j].waypoint.Symbol
	})

	l.log.Debug("venue discovery complete",
		zap.String("good", good),
		zap.Int("systems", len(ordered)),
		zap.Int("marketplaces", len(candidates)))

	return &VenueCursor{
		locator:    l,
		good:       good,
		candidates: candidates,
	}, nil
}

type candidate struct {
	waypoint     api.Waypoint
	traitMatches int
}

// VenueCursor walks discovered venues in rank order. Not safe for
// concurrent use.
type VenueCursor struct {
	locator    *Locator
	good       string
	candidates []candidate // Remaining, best trait score first
	ready      []Venue     // Fetched and ranked, next to yield
}

// Next returns the next best venue, or (nil, nil) when the cursor is
// exhausted. Venues that fail to answer a market query are skipped;
// venues not carrying the good are filtered out.
func (c *VenueCursor) Next(ctx context.Context) (*Venue, error) {
	for {
		if len(c.ready) > 0 {
			venue := c.ready[0]
			c.ready = c.ready[1:]
			return &venue, nil
		}
		if len(c.candidates) == 0 {
			return nil, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Pull the next trait-score group and rank it by volume.
		score := c.candidates[0].traitMatches
		group := 0
		for group < len(c.candidates) && c.candidates[group].traitMatches == score {
			group++
		}
		batch := c.candidates[:group]
		c.candidates = c.candidates[group:]

		for _, cand := range batch {
			venue, err := c.fetch(ctx, cand)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				c.locator.log.Warn("venue skipped, market query failed",
					zap.String("waypoint", cand.waypoint.Symbol),
					zap.Error(err))
				continue
			}
			if venue != nil {
				c.ready = append(c.ready, *venue)
			}
		}

		sort.Slice(c.ready, func(i, j int) bool {
			vi, _ := c.ready[i].Offer(c.good)
			vj, _ := c.ready[j].Offer(c.good)
			if vi.TradeVolume != vj.TradeVolume {
				return vi.TradeVolume > vj.TradeVolume
			}
			return c.ready[i].Symbol < c.ready[j].Symbol
		})
	}
}

// fetch loads one candidate's market and builds its venue snapshot.
// Returns nil when the venue does not sell the good.
func (c *VenueCursor) fetch(ctx context.Context, cand candidate) (*Venue, error) {
	system := cand.waypoint.SystemSymbol
	if system == "" {
		system = api.SystemOf(cand.waypoint.Symbol)
	}
	market, err := c.locator.charts.Market(ctx, system, cand.waypoint.Symbol)
	if err != nil {
		return nil, err
	}

	offers := make(map[string]Offer, len(market.TradeGoods))
	for _, listing := range market.TradeGoods {
		offers[listing.Symbol] = Offer{
			Good:        listing.Symbol,
			UnitPrice:   listing.PurchasePrice,
			TradeVolume: listing.TradeVolume,
		}
	}
	if _, sells := offers[c.good]; !sells {
		return nil, nil
	}

	traits := make([]string, 0, len(cand.waypoint.Traits))
	for _, trait := range cand.waypoint.Traits {
		traits = append(traits, trait.Symbol)
	}

	return &Venue{
		Symbol:       cand.waypoint.Symbol,
		System:       system,
		Traits:       traits,
		TraitMatches: cand.traitMatches,
		Offers:       offers,
	}, nil
}

// Collect drains up to max venues from the cursor (all of them when max
// is 0). Mostly a convenience for tests and inspection commands.
func (c *VenueCursor) Collect(ctx context.Context, max int) ([]Venue, error) {
	var venues []Venue
	for {
		if max > 0 && len(venues) >= max {
			return venues, nil
		}
		venue, err := c.Next(ctx)
		if err != nil {
			return venues, err
		}
		if venue == nil {
			return venues, nil
		}
		venues = append(venues, *venue)
	}
}
