package market

import (
	"context"
	"sync"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
)

// mockChartSource implements api.ChartSource with canned waypoints and
// markets, counting queries so tests can assert laziness.
type mockChartSource struct {
	mu                  sync.Mutex
	waypointsBySystem   map[string][]api.Waypoint
	marketsByWaypoint   map[string]*api.Market
	marketErrs          map[string]error
	systemWaypointCalls int
	marketCalls         []string
}

var _ api.ChartSource = (*mockChartSource)(nil)

func (m *mockChartSource) SystemWaypoints(ctx context.Context, systemSymbol, trait string) ([]api.Waypoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemWaypointCalls++
	return m.waypointsBySystem[systemSymbol], nil
}

func (m *mockChartSource) Market(ctx context.Context, systemSymbol, waypointSymbol string) (*api.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketCalls = append(m.marketCalls, waypointSymbol)
	if err := m.marketErrs[waypointSymbol]; err != nil {
		return nil, err
	}
	return m.marketsByWaypoint[waypointSymbol], nil
}

func (m *mockChartSource) marketCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.marketCalls)
}

// marketplaceWaypoint builds a waypoint carrying MARKETPLACE plus any
// extra traits.
func marketplaceWaypoint(symbol, system string, extraTraits ...string) api.Waypoint {
	traits := []api.WaypointTrait{{Symbol: api.TraitMarketplace}}
	for _, t := range extraTraits {
		traits = append(traits, api.WaypointTrait{Symbol: t})
	}
	return api.Waypoint{Symbol: symbol, SystemSymbol: system, Traits: traits}
}

// sellingMarket builds a market listing one good at a price and volume.
func sellingMarket(waypoint, good string, price int64, volume int) *api.Market {
	return &api.Market{
		Symbol: waypoint,
		TradeGoods: []api.MarketTradeGood{
			{Symbol: good, TradeVolume: volume, PurchasePrice: price, SellPrice: price - 100},
		},
	}
}

// emptyMarket builds a market that does not list the good under test.
func emptyMarket(waypoint string) *api.Market {
	return &api.Market{
		Symbol: waypoint,
		TradeGoods: []api.MarketTradeGood{
			{Symbol: "FUEL", TradeVolume: 100, PurchasePrice: 80, SellPrice: 70},
		},
	}
}
