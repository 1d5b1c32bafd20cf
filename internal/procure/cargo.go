package procure

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
)

// Reservation marks cargo that must stay aboard: contract materials on
// their way to a delivery. Units caps how many units of the good are
// protected on each ship.
type Reservation struct {
	Good  string
	Units int
}

func reservedUnits(keep []Reservation, good string) int {
	total := 0
	for _, r := range keep {
		if r.Good == good {
			total += r.Units
		}
	}
	return total
}

// CargoManager clears hold space by selling unneeded cargo where the
// local market takes it and jettisoning the rest. Reserved cargo is
// never sold and never dumped.
type CargoManager struct {
	trader api.Trader
	nav    api.Navigator
	charts api.ChartSource
	log    *zap.Logger
}

var _ CargoPreparer = (*CargoManager)(nil)

// NewCargoManager creates a manager. A nil logger disables logging.
func NewCargoManager(trader api.Trader, nav api.Navigator, charts api.ChartSource, log *zap.Logger) *CargoManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &CargoManager{trader: trader, nav: nav, charts: charts, log: log.Named("cargo")}
}

// EnsureSpace frees hold space on one ship until at least required units
// fit or nothing disposable remains. Selling is preferred over dumping;
// goods the local market will not buy go overboard. The ship snapshot is
// updated in place as cargo leaves, and the resulting free space is
// returned. Falling short is not an error; the allocator works with
// whatever space materialized.
func (m *CargoManager) EnsureSpace(ctx context.Context, ship *api.Ship, required int, keep []Reservation) (int, error) {
	if required > ship.Cargo.Capacity {
		required = ship.Cargo.Capacity
	}
	if ship.Cargo.FreeSpace() >= required {
		return ship.Cargo.FreeSpace(), nil
	}

	disposable := disposableCargo(ship, keep)
	if len(disposable) == 0 {
		return ship.Cargo.FreeSpace(), nil
	}

	local := m.localMarket(ctx, ship)

	for _, item := range disposable {
		if err := ctx.Err(); err != nil {
			return ship.Cargo.FreeSpace(), err
		}
		if ship.Cargo.FreeSpace() >= required {
			break
		}

		if marketBuys(local, item.Symbol) && m.dock(ctx, ship) == nil {
			result, err := m.trader.SellCargo(ctx, ship.Symbol, item.Symbol, item.Units)
			if err == nil {
				ship.Cargo = result.Cargo
				m.log.Info("cargo sold to clear space",
					zap.String("ship", ship.Symbol),
					zap.String("good", item.Symbol),
					zap.Int("units", item.Units),
					zap.Int64("earned", result.Transaction.TotalPrice))
				continue
			}
			m.log.Warn("failed to sell cargo, jettisoning instead",
				zap.String("ship", ship.Symbol),
				zap.String("good", item.Symbol),
				zap.Error(err))
		}

		result, err := m.trader.JettisonCargo(ctx, ship.Symbol, item.Symbol, item.Units)
		if err != nil {
			m.log.Warn("failed to jettison cargo",
				zap.String("ship", ship.Symbol),
				zap.String("good", item.Symbol),
				zap.Error(err))
			continue
		}
		ship.Cargo = result.Cargo
		m.log.Info("cargo jettisoned to clear space",
			zap.String("ship", ship.Symbol),
			zap.String("good", item.Symbol),
			zap.Int("units", item.Units))
	}

	return ship.Cargo.FreeSpace(), nil
}

// disposableCargo lists hold items that may leave the ship, after
// subtracting the reserved units of each good.
func disposableCargo(ship *api.Ship, keep []Reservation) []api.CargoItem {
	var items []api.CargoItem
	for _, item := range ship.Cargo.Inventory {
		units := item.Units - reservedUnits(keep, item.Symbol)
		if units <= 0 {
			continue
		}
		items = append(items, api.CargoItem{Symbol: item.Symbol, Name: item.Name, Units: units})
	}
	return items
}

// localMarket fetches the market at the ship's waypoint. No market means
// no sales; clearing falls through to jettison.
func (m *CargoManager) localMarket(ctx context.Context, ship *api.Ship) *api.Market {
	if m.charts == nil {
		return nil
	}
	market, err := m.charts.Market(ctx, ship.Nav.SystemSymbol, ship.Nav.WaypointSymbol)
	if err != nil {
		m.log.Debug("no market at waypoint, sales unavailable",
			zap.String("ship", ship.Symbol),
			zap.String("waypoint", ship.Nav.WaypointSymbol))
		return nil
	}
	return market
}

// marketBuys reports whether the market takes the good in trade.
func marketBuys(market *api.Market, good string) bool {
	if market == nil {
		return false
	}
	if listing, ok := market.Listing(good); ok {
		return listing.SellPrice > 0
	}
	for _, ref := range market.Imports {
		if ref.Symbol == good {
			return true
		}
	}
	for _, ref := range market.Exchange {
		if ref.Symbol == good {
			return true
		}
	}
	return false
}

// dock brings the ship to docked state if it is not already.
func (m *CargoManager) dock(ctx context.Context, ship *api.Ship) error {
	if ship.Docked() {
		return nil
	}
	nav, err := m.nav.Dock(ctx, ship.Symbol)
	if err != nil {
		return fmt.Errorf("failed to dock %s: %w", ship.Symbol, err)
	}
	ship.Nav = *nav
	return nil
}
