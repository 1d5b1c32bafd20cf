package procure

import (
	"context"
	"sync"
	"time"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
	"github.com/evanmiller2112/spacetraders-cc/internal/ledger"
	"github.com/evanmiller2112/spacetraders-cc/internal/market"
)

// venueList feeds canned venues to the planner in order.
type venueList struct {
	venues []market.Venue
	err    error // returned once the list drains
}

var _ VenueSource = (*venueList)(nil)

func (v *venueList) Next(ctx context.Context) (*market.Venue, error) {
	if len(v.venues) == 0 {
		return nil, v.err
	}
	next := v.venues[0]
	v.venues = v.venues[1:]
	return &next, nil
}

// sellingVenue builds a venue listing one good at a price and volume.
func sellingVenue(symbol, good string, price int64, volume int) market.Venue {
	return market.Venue{
		Symbol: symbol,
		System: api.SystemOf(symbol),
		Offers: map[string]market.Offer{
			good: {Good: good, UnitPrice: price, TradeVolume: volume},
		},
	}
}

// mockLedger collects the audit trail in memory.
type mockLedger struct {
	mu       sync.Mutex
	records  []ledger.TransactionRecord
	archives []ledger.PlanArchive
}

var _ Ledger = (*mockLedger)(nil)

func (m *mockLedger) Append(rec ledger.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockLedger) ArchivePlan(archive ledger.PlanArchive) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archives = append(m.archives, archive)
	return nil
}

func (m *mockLedger) outcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Outcome)
	}
	return out
}

func (m *mockLedger) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// mockNavigator tracks each ship's nav state and moves ships instantly,
// recording calls in order so tests can assert etiquette.
type mockNavigator struct {
	mu          sync.Mutex
	navs        map[string]api.ShipNav
	calls       []string
	orbitErr    error
	dockErr     error
	navigateErr error
}

var _ api.Navigator = (*mockNavigator)(nil)

func newMockNavigator(ships ...*api.Ship) *mockNavigator {
	m := &mockNavigator{navs: make(map[string]api.ShipNav)}
	for _, ship := range ships {
		m.navs[ship.Symbol] = ship.Nav
	}
	return m
}

func (m *mockNavigator) Orbit(ctx context.Context, shipSymbol string) (*api.ShipNav, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "orbit "+shipSymbol)
	if m.orbitErr != nil {
		return nil, m.orbitErr
	}
	nav := m.navs[shipSymbol]
	nav.Status = api.NavStatusInOrbit
	m.navs[shipSymbol] = nav
	return &nav, nil
}

func (m *mockNavigator) Dock(ctx context.Context, shipSymbol string) (*api.ShipNav, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "dock "+shipSymbol)
	if m.dockErr != nil {
		return nil, m.dockErr
	}
	nav := m.navs[shipSymbol]
	nav.Status = api.NavStatusDocked
	m.navs[shipSymbol] = nav
	return &nav, nil
}

func (m *mockNavigator) Navigate(ctx context.Context, shipSymbol, waypointSymbol string) (*api.NavigateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "navigate "+shipSymbol+" "+waypointSymbol)
	if m.navigateErr != nil {
		return nil, m.navigateErr
	}
	nav := m.navs[shipSymbol]
	nav.WaypointSymbol = waypointSymbol
	nav.SystemSymbol = api.SystemOf(waypointSymbol)
	nav.Status = api.NavStatusInTransit
	nav.Route = api.ShipNavRoute{
		DepartureTime: time.Now(),
		Arrival:       time.Now().Add(-time.Millisecond),
	}
	m.navs[shipSymbol] = nav
	return &api.NavigateResult{Nav: nav}, nil
}

func (m *mockNavigator) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// noSleep stands in for real waits so tests finish instantly.
func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

// instantPilot builds a pilot whose waits return immediately.
func instantPilot(nav api.Navigator) *Pilot {
	pilot := NewPilot(nav, nil)
	pilot.sleep = noSleep
	return pilot
}

// fakePreparer grants hold space by fiat, recording each request.
type fakePreparer struct {
	mu    sync.Mutex
	calls []string
	grant map[string]int // ship → free space to clear down to
	err   error
}

var _ CargoPreparer = (*fakePreparer)(nil)

func (f *fakePreparer) EnsureSpace(ctx context.Context, ship *api.Ship, required int, keep []Reservation) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ship.Symbol)
	if f.err != nil {
		return 0, f.err
	}
	if free, ok := f.grant[ship.Symbol]; ok && free > ship.Cargo.FreeSpace() {
		if free > ship.Cargo.Capacity {
			free = ship.Cargo.Capacity
		}
		ship.Cargo.Units = ship.Cargo.Capacity - free
		ship.Cargo.Inventory = nil
	}
	return ship.Cargo.FreeSpace(), nil
}

// worldCaller is an in-memory game: ships, markets, one contract. It
// implements api.Caller so a coordinator run plays out end to end
// without a server.
type worldCaller struct {
	mu        sync.Mutex
	ships     map[string]*api.Ship
	shipOrder []string
	waypoints map[string][]api.Waypoint // system → waypoints
	markets   map[string]*api.Market    // waypoint → live listings
	stock     map[string]int            // waypoint → sellable stock, enforced when set
	failBuyAt map[string]*api.Error     // waypoint → forced purchase failure
	flakyAt   map[string]int            // waypoint → purchases left to rate-limit
	contract  api.Contract
	credits   int64

	purchases    []purchaseCall
	deliverCalls int
}

type purchaseCall struct {
	Ship  string
	Venue string
	Good  string
	Units int
}

var _ api.Caller = (*worldCaller)(nil)

func newWorld() *worldCaller {
	return &worldCaller{
		ships:     make(map[string]*api.Ship),
		waypoints: make(map[string][]api.Waypoint),
		markets:   make(map[string]*api.Market),
		stock:     make(map[string]int),
		failBuyAt: make(map[string]*api.Error),
		flakyAt:   make(map[string]int),
		credits:   1_000_000,
	}
}

func (w *worldCaller) addShip(symbol, waypoint string, capacity int) *api.Ship {
	ship := &api.Ship{
		Symbol: symbol,
		Nav: api.ShipNav{
			SystemSymbol:   api.SystemOf(waypoint),
			WaypointSymbol: waypoint,
			Status:         api.NavStatusInOrbit,
		},
		Cargo: api.ShipCargo{Capacity: capacity},
	}
	w.ships[symbol] = ship
	w.shipOrder = append(w.shipOrder, symbol)
	return ship
}

func (w *worldCaller) loadCargo(shipSymbol, good string, units int) {
	addToHold(w.ships[shipSymbol], good, units)
}

func (w *worldCaller) addMarket(waypoint, good string, price int64, volume int, traits ...string) {
	system := api.SystemOf(waypoint)
	wpTraits := []api.WaypointTrait{{Symbol: api.TraitMarketplace}}
	for _, t := range traits {
		wpTraits = append(wpTraits, api.WaypointTrait{Symbol: t})
	}
	w.waypoints[system] = append(w.waypoints[system], api.Waypoint{
		Symbol:       waypoint,
		SystemSymbol: system,
		Traits:       wpTraits,
	})
	w.markets[waypoint] = &api.Market{
		Symbol: waypoint,
		TradeGoods: []api.MarketTradeGood{
			{Symbol: good, TradeVolume: volume, PurchasePrice: price, SellPrice: price - 50},
		},
	}
}

// addListing appends another good to an existing market.
func (w *worldCaller) addListing(waypoint, good string, price int64, volume int) {
	m := w.markets[waypoint]
	m.TradeGoods = append(m.TradeGoods, api.MarketTradeGood{
		Symbol:        good,
		TradeVolume:   volume,
		PurchasePrice: price,
		SellPrice:     price - 50,
	})
}

// addWaypoint registers a bare waypoint, such as a delivery destination
// with no market.
func (w *worldCaller) addWaypoint(symbol string, traits ...string) {
	system := api.SystemOf(symbol)
	var wpTraits []api.WaypointTrait
	for _, t := range traits {
		wpTraits = append(wpTraits, api.WaypointTrait{Symbol: t})
	}
	w.waypoints[system] = append(w.waypoints[system], api.Waypoint{
		Symbol:       symbol,
		SystemSymbol: system,
		Traits:       wpTraits,
	})
}

func (w *worldCaller) setContract(id, good, destination string, units int) {
	w.contract = api.Contract{
		ID:            id,
		FactionSymbol: "COSMIC",
		Type:          "PROCUREMENT",
		Accepted:      true,
		Terms: api.ContractTerms{
			Deadline: time.Now().Add(24 * time.Hour),
			Payment:  api.ContractPayment{OnAccepted: 10_000, OnFulfilled: 50_000},
			Deliver: []api.ContractDelivery{
				{TradeSymbol: good, DestinationSymbol: destination, UnitsRequired: units},
			},
		},
		Expiration: time.Now().Add(24 * time.Hour),
	}
}

func (w *worldCaller) addDeliverLine(good, destination string, units int) {
	w.contract.Terms.Deliver = append(w.contract.Terms.Deliver, api.ContractDelivery{
		TradeSymbol:       good,
		DestinationSymbol: destination,
		UnitsRequired:     units,
	})
}

func (w *worldCaller) contractSnapshot() api.Contract {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneContract(w.contract)
}

func (w *worldCaller) shipCargo(symbol string) api.ShipCargo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneCargo(w.ships[symbol].Cargo)
}

func (w *worldCaller) purchaseCalls() []purchaseCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]purchaseCall, len(w.purchases))
	copy(out, w.purchases)
	return out
}

func (w *worldCaller) Agent(ctx context.Context) (*api.Agent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return &api.Agent{Symbol: "TESTER", Credits: w.credits}, nil
}

func (w *worldCaller) Ships(ctx context.Context) ([]api.Ship, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ships := make([]api.Ship, 0, len(w.shipOrder))
	for _, symbol := range w.shipOrder {
		ship := *w.ships[symbol]
		ship.Cargo = cloneCargo(ship.Cargo)
		ships = append(ships, ship)
	}
	return ships, nil
}

func (w *worldCaller) Ship(ctx context.Context, symbol string) (*api.Ship, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ship, ok := w.ships[symbol]
	if !ok {
		return nil, &api.Error{Status: 404, Message: "ship not found"}
	}
	out := *ship
	out.Cargo = cloneCargo(out.Cargo)
	return &out, nil
}

func (w *worldCaller) SystemWaypoints(ctx context.Context, systemSymbol, trait string) ([]api.Waypoint, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []api.Waypoint
	for _, wp := range w.waypoints[systemSymbol] {
		if trait != "" && !wp.HasTrait(trait) {
			continue
		}
		out = append(out, wp)
	}
	return out, nil
}

func (w *worldCaller) Market(ctx context.Context, systemSymbol, waypointSymbol string) (*api.Market, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.markets[waypointSymbol]
	if !ok {
		return nil, &api.Error{Status: 404, Message: "no market at waypoint"}
	}
	out := *m
	return &out, nil
}

func (w *worldCaller) PurchaseCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*api.PurchaseResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ship, ok := w.ships[shipSymbol]
	if !ok {
		return nil, &api.Error{Status: 404, Message: "ship not found"}
	}
	if ship.Nav.Status != api.NavStatusDocked {
		return nil, &api.Error{Status: 400, Message: "ship must be docked to trade"}
	}
	venue := ship.Nav.WaypointSymbol
	w.purchases = append(w.purchases, purchaseCall{Ship: shipSymbol, Venue: venue, Good: tradeSymbol, Units: units})

	if apiErr, fail := w.failBuyAt[venue]; fail {
		return nil, apiErr
	}
	if left := w.flakyAt[venue]; left > 0 {
		w.flakyAt[venue] = left - 1
		return nil, &api.Error{Status: 429, Message: "rate limit exceeded"}
	}
	m, ok := w.markets[venue]
	if !ok {
		return nil, &api.Error{Status: 400, Message: "no market at waypoint"}
	}
	listing, ok := m.Listing(tradeSymbol)
	if !ok {
		return nil, &api.Error{Status: 400, Message: "good not sold here"}
	}
	if units > listing.TradeVolume {
		return nil, &api.Error{Status: 400, Message: "units exceed per-call trade volume"}
	}

	fill := units
	if stock, tracked := w.stock[venue]; tracked {
		if stock <= 0 {
			return nil, &api.Error{Status: 400, Message: "venue out of stock"}
		}
		if fill > stock {
			fill = stock
		}
		w.stock[venue] = stock - fill
	}
	if fill > ship.Cargo.FreeSpace() {
		return nil, &api.Error{Status: 400, Message: "cargo hold is full"}
	}

	addToHold(ship, tradeSymbol, fill)
	total := int64(fill) * listing.PurchasePrice
	w.credits -= total
	return &api.PurchaseResult{
		Agent: api.Agent{Symbol: "TESTER", Credits: w.credits},
		Cargo: cloneCargo(ship.Cargo),
		Transaction: api.Transaction{
			WaypointSymbol: venue,
			ShipSymbol:     shipSymbol,
			TradeSymbol:    tradeSymbol,
			Type:           "PURCHASE",
			Units:          fill,
			PricePerUnit:   listing.PurchasePrice,
			TotalPrice:     total,
			Timestamp:      time.Now(),
		},
	}, nil
}

func (w *worldCaller) SellCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*api.SellResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ship, ok := w.ships[shipSymbol]
	if !ok {
		return nil, &api.Error{Status: 404, Message: "ship not found"}
	}
	if ship.Nav.Status != api.NavStatusDocked {
		return nil, &api.Error{Status: 400, Message: "ship must be docked to trade"}
	}
	if units > ship.Cargo.UnitsOf(tradeSymbol) {
		return nil, &api.Error{Status: 400, Message: "not enough cargo to sell"}
	}
	m, ok := w.markets[ship.Nav.WaypointSymbol]
	if !ok {
		return nil, &api.Error{Status: 400, Message: "no market at waypoint"}
	}
	var price int64 = 10
	if listing, ok := m.Listing(tradeSymbol); ok {
		price = listing.SellPrice
	}

	removeFromHold(ship, tradeSymbol, units)
	total := int64(units) * price
	w.credits += total
	return &api.SellResult{
		Agent: api.Agent{Symbol: "TESTER", Credits: w.credits},
		Cargo: cloneCargo(ship.Cargo),
		Transaction: api.Transaction{
			WaypointSymbol: ship.Nav.WaypointSymbol,
			ShipSymbol:     shipSymbol,
			TradeSymbol:    tradeSymbol,
			Type:           "SELL",
			Units:          units,
			PricePerUnit:   price,
			TotalPrice:     total,
			Timestamp:      time.Now(),
		},
	}, nil
}

func (w *worldCaller) JettisonCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*api.JettisonResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ship, ok := w.ships[shipSymbol]
	if !ok {
		return nil, &api.Error{Status: 404, Message: "ship not found"}
	}
	if units > ship.Cargo.UnitsOf(tradeSymbol) {
		return nil, &api.Error{Status: 400, Message: "not enough cargo to jettison"}
	}
	removeFromHold(ship, tradeSymbol, units)
	return &api.JettisonResult{Cargo: cloneCargo(ship.Cargo)}, nil
}

func (w *worldCaller) Orbit(ctx context.Context, shipSymbol string) (*api.ShipNav, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ship, ok := w.ships[shipSymbol]
	if !ok {
		return nil, &api.Error{Status: 404, Message: "ship not found"}
	}
	if err := w.settleTransitLocked(ship); err != nil {
		return nil, err
	}
	ship.Nav.Status = api.NavStatusInOrbit
	nav := ship.Nav
	return &nav, nil
}

func (w *worldCaller) Dock(ctx context.Context, shipSymbol string) (*api.ShipNav, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ship, ok := w.ships[shipSymbol]
	if !ok {
		return nil, &api.Error{Status: 404, Message: "ship not found"}
	}
	if err := w.settleTransitLocked(ship); err != nil {
		return nil, err
	}
	ship.Nav.Status = api.NavStatusDocked
	nav := ship.Nav
	return &nav, nil
}

// settleTransitLocked flips an arrived ship out of transit, or rejects
// the call when the ship is still flying.
func (w *worldCaller) settleTransitLocked(ship *api.Ship) error {
	if ship.Nav.Status != api.NavStatusInTransit {
		return nil
	}
	if time.Now().Before(ship.Nav.Route.Arrival) {
		return &api.Error{Status: 409, Code: 4214, Message: "ship is in transit"}
	}
	ship.Nav.Status = api.NavStatusInOrbit
	return nil
}

func (w *worldCaller) Navigate(ctx context.Context, shipSymbol, waypointSymbol string) (*api.NavigateResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ship, ok := w.ships[shipSymbol]
	if !ok {
		return nil, &api.Error{Status: 404, Message: "ship not found"}
	}
	if ship.Nav.Status != api.NavStatusInOrbit {
		return nil, &api.Error{Status: 400, Message: "ship must be in orbit to navigate"}
	}
	ship.Nav.WaypointSymbol = waypointSymbol
	ship.Nav.SystemSymbol = api.SystemOf(waypointSymbol)
	ship.Nav.Status = api.NavStatusInTransit
	ship.Nav.Route = api.ShipNavRoute{
		DepartureTime: time.Now(),
		Arrival:       time.Now().Add(-time.Millisecond),
	}
	return &api.NavigateResult{Nav: ship.Nav, Fuel: ship.Fuel}, nil
}

func (w *worldCaller) Contracts(ctx context.Context) ([]api.Contract, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return []api.Contract{cloneContract(w.contract)}, nil
}

func (w *worldCaller) AcceptContract(ctx context.Context, contractID string) (*api.Contract, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if contractID != w.contract.ID {
		return nil, &api.Error{Status: 404, Message: "contract not found"}
	}
	w.contract.Accepted = true
	out := cloneContract(w.contract)
	return &out, nil
}

func (w *worldCaller) NegotiateContract(ctx context.Context, shipSymbol string) (*api.Contract, error) {
	return nil, &api.Error{Status: 400, Message: "no contract available to negotiate"}
}

func (w *worldCaller) DeliverContract(ctx context.Context, contractID, shipSymbol, tradeSymbol string, units int) (*api.DeliverResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ship, ok := w.ships[shipSymbol]
	if !ok {
		return nil, &api.Error{Status: 404, Message: "ship not found"}
	}
	w.deliverCalls++
	if contractID != w.contract.ID {
		return nil, &api.Error{Status: 404, Message: "contract not found"}
	}
	if ship.Nav.Status != api.NavStatusDocked {
		return nil, &api.Error{Status: 400, Message: "ship must be docked to deliver"}
	}

	line := -1
	for i, d := range w.contract.Terms.Deliver {
		if d.TradeSymbol == tradeSymbol && d.DestinationSymbol == ship.Nav.WaypointSymbol {
			line = i
			break
		}
	}
	if line < 0 {
		return nil, &api.Error{Status: 400, Message: "nothing to deliver at this waypoint"}
	}
	if units > ship.Cargo.UnitsOf(tradeSymbol) {
		return nil, &api.Error{Status: 400, Message: "not enough cargo aboard"}
	}

	removeFromHold(ship, tradeSymbol, units)
	w.contract.Terms.Deliver[line].UnitsFulfilled += units
	return &api.DeliverResult{
		Contract: cloneContract(w.contract),
		Cargo:    cloneCargo(ship.Cargo),
	}, nil
}

func (w *worldCaller) FulfillContract(ctx context.Context, contractID string) (*api.FulfillResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if contractID != w.contract.ID {
		return nil, &api.Error{Status: 404, Message: "contract not found"}
	}
	for _, d := range w.contract.Terms.Deliver {
		if d.Remaining() > 0 {
			return nil, &api.Error{Status: 400, Message: "delivery manifest incomplete"}
		}
	}
	w.contract.Fulfilled = true
	w.credits += w.contract.Terms.Payment.OnFulfilled
	return &api.FulfillResult{
		Agent:    api.Agent{Symbol: "TESTER", Credits: w.credits},
		Contract: cloneContract(w.contract),
	}, nil
}

func addToHold(ship *api.Ship, good string, units int) {
	ship.Cargo.Units += units
	for i := range ship.Cargo.Inventory {
		if ship.Cargo.Inventory[i].Symbol == good {
			ship.Cargo.Inventory[i].Units += units
			return
		}
	}
	ship.Cargo.Inventory = append(ship.Cargo.Inventory, api.CargoItem{Symbol: good, Units: units})
}

func removeFromHold(ship *api.Ship, good string, units int) {
	ship.Cargo.Units -= units
	for i := range ship.Cargo.Inventory {
		if ship.Cargo.Inventory[i].Symbol == good {
			ship.Cargo.Inventory[i].Units -= units
			if ship.Cargo.Inventory[i].Units <= 0 {
				ship.Cargo.Inventory = append(ship.Cargo.Inventory[:i], ship.Cargo.Inventory[i+1:]...)
			}
			return
		}
	}
}

func cloneCargo(c api.ShipCargo) api.ShipCargo {
	out := c
	out.Inventory = make([]api.CargoItem, len(c.Inventory))
	copy(out.Inventory, c.Inventory)
	return out
}

func cloneContract(c api.Contract) api.Contract {
	out := c
	out.Terms.Deliver = make([]api.ContractDelivery, len(c.Terms.Deliver))
	copy(out.Terms.Deliver, c.Terms.Deliver)
	return out
}
