// Package api provides the SpaceTraders HTTP client, the shared call
// gate that paces every outbound request, and the wire models used by
// the rest of the engine.
package api

import (
	"strings"
	"time"
)

// =============================================================================
// WIRE MODELS
// =============================================================================
//
// Field names follow the SpaceTraders v2 JSON payloads (camelCase on the
// wire). Only the fields the engine reads are modeled; unknown fields are
// ignored on decode.

// Agent is the player account snapshot returned alongside mutating calls.
type Agent struct {
	Symbol          string `json:"symbol"`
	Headquarters    string `json:"headquarters"`
	Credits         int64  `json:"credits"`
	StartingFaction string `json:"startingFaction"`
}

// Contract is a delivery contract offered by a faction.
type Contract struct {
	ID               string        `json:"id"`
	FactionSymbol    string        `json:"factionSymbol"`
	Type             string        `json:"type"`
	Terms            ContractTerms `json:"terms"`
	Accepted         bool          `json:"accepted"`
	Fulfilled        bool          `json:"fulfilled"`
	Expiration       time.Time     `json:"expiration"`
	DeadlineToAccept time.Time     `json:"deadlineToAccept"`
}

// ContractTerms carries the payment schedule and the delivery manifest.
type ContractTerms struct {
	Deadline time.Time          `json:"deadline"`
	Payment  ContractPayment    `json:"payment"`
	Deliver  []ContractDelivery `json:"deliver"`
}

// ContractPayment is split between acceptance and fulfillment.
type ContractPayment struct {
	OnAccepted  int64 `json:"onAccepted"`
	OnFulfilled int64 `json:"onFulfilled"`
}

// ContractDelivery is one line of the delivery manifest: how many units of
// a good must reach which waypoint.
type ContractDelivery struct {
	TradeSymbol       string `json:"tradeSymbol"`
	DestinationSymbol string `json:"destinationSymbol"`
	UnitsRequired     int    `json:"unitsRequired"`
	UnitsFulfilled    int    `json:"unitsFulfilled"`
}

// Contract lifecycle states derived from the wire payload.
const (
	ContractOpen               = "OPEN"
	ContractPartiallyFulfilled = "PARTIALLY_FULFILLED"
	ContractFulfilled          = "FULFILLED"
	ContractExpired            = "EXPIRED"
)

// Expired reports whether the contract can no longer be worked at now.
func (c *Contract) Expired(now time.Time) bool {
	return now.After(c.Expiration)
}

// State derives the contract's lifecycle state at now. Fulfillment wins
// over expiration: a contract fulfilled at the buzzer stays FULFILLED.
func (c *Contract) State(now time.Time) string {
	if c.Fulfilled {
		return ContractFulfilled
	}
	if c.Expired(now) {
		return ContractExpired
	}
	for _, d := range c.Terms.Deliver {
		if d.UnitsFulfilled > 0 {
			return ContractPartiallyFulfilled
		}
	}
	return ContractOpen
}

// Open reports whether the contract is accepted, unfulfilled, and inside
// its deadline.
func (c *Contract) Open(now time.Time) bool {
	return c.Accepted && !c.Fulfilled && !c.Expired(now)
}

// TotalPayment is the full payout for accepting and fulfilling.
func (p ContractPayment) TotalPayment() int64 {
	return p.OnAccepted + p.OnFulfilled
}

// Remaining returns the units still owed on this delivery line.
func (d ContractDelivery) Remaining() int {
	r := d.UnitsRequired - d.UnitsFulfilled
	if r < 0 {
		return 0
	}
	return r
}

// TotalRequired sums the units owed across the delivery manifest.
func (t ContractTerms) TotalRequired() int {
	total := 0
	for _, d := range t.Deliver {
		total += d.UnitsRequired
	}
	return total
}

// TotalRemaining sums the units still outstanding across the manifest.
func (t ContractTerms) TotalRemaining() int {
	total := 0
	for _, d := range t.Deliver {
		total += d.Remaining()
	}
	return total
}

// Ship nav status values.
const (
	NavStatusDocked    = "DOCKED"
	NavStatusInOrbit   = "IN_ORBIT"
	NavStatusInTransit = "IN_TRANSIT"
)

// Ship is a fleet vehicle with its position and cargo hold.
type Ship struct {
	Symbol       string           `json:"symbol"`
	Registration ShipRegistration `json:"registration"`
	Nav          ShipNav          `json:"nav"`
	Cargo        ShipCargo        `json:"cargo"`
	Fuel         ShipFuel         `json:"fuel"`
}

type ShipRegistration struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// ShipNav tracks where the ship is and whether it is docked, in orbit,
// or mid-flight.
type ShipNav struct {
	SystemSymbol   string        `json:"systemSymbol"`
	WaypointSymbol string        `json:"waypointSymbol"`
	Route          ShipNavRoute  `json:"route"`
	Status         string        `json:"status"`
	FlightMode     string        `json:"flightMode"`
}

type ShipNavRoute struct {
	Arrival       time.Time `json:"arrival"`
	DepartureTime time.Time `json:"departureTime"`
}

// ShipCargo is the hold: fixed capacity, current load, itemized inventory.
type ShipCargo struct {
	Capacity  int         `json:"capacity"`
	Units     int         `json:"units"`
	Inventory []CargoItem `json:"inventory"`
}

type CargoItem struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Units  int    `json:"units"`
}

type ShipFuel struct {
	Current  int `json:"current"`
	Capacity int `json:"capacity"`
}

// FreeSpace returns how many cargo units the hold can still take.
func (c ShipCargo) FreeSpace() int {
	return c.Capacity - c.Units
}

// UnitsOf returns how many units of one good the hold carries.
func (c ShipCargo) UnitsOf(symbol string) int {
	for _, item := range c.Inventory {
		if item.Symbol == symbol {
			return item.Units
		}
	}
	return 0
}

// Docked reports whether the ship is docked and able to trade.
func (s *Ship) Docked() bool {
	return s.Nav.Status == NavStatusDocked
}

// Waypoint trait symbols the engine cares about when ranking venues.
const (
	TraitMarketplace  = "MARKETPLACE"
	TraitHighTech     = "HIGH_TECH"
	TraitIndustrial   = "INDUSTRIAL"
	TraitResearch     = "RESEARCH"
	TraitAgricultural = "AGRICULTURAL"
	TraitMilitary     = "MILITARY"
)

// Waypoint is a location inside a system.
type Waypoint struct {
	Symbol       string          `json:"symbol"`
	Type         string          `json:"type"`
	SystemSymbol string          `json:"systemSymbol"`
	X            int             `json:"x"`
	Y            int             `json:"y"`
	Traits       []WaypointTrait `json:"traits"`
}

type WaypointTrait struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HasTrait reports whether the waypoint carries the given trait symbol.
func (w *Waypoint) HasTrait(symbol string) bool {
	for _, t := range w.Traits {
		if t.Symbol == symbol {
			return true
		}
	}
	return false
}

// SystemOf derives the system symbol from a waypoint symbol. Waypoint
// symbols are SECTOR-SYSTEM-LOCATION, so the system is the first two
// hyphenated segments.
func SystemOf(waypointSymbol string) string {
	parts := strings.SplitN(waypointSymbol, "-", 3)
	if len(parts) < 2 {
		return waypointSymbol
	}
	return parts[0] + "-" + parts[1]
}

// Market is the trade listing at one waypoint. TradeGoods is only
// populated when a ship is present at the waypoint.
type Market struct {
	Symbol     string            `json:"symbol"`
	Imports    []TradeGoodRef    `json:"imports"`
	Exports    []TradeGoodRef    `json:"exports"`
	Exchange   []TradeGoodRef    `json:"exchange"`
	TradeGoods []MarketTradeGood `json:"tradeGoods"`
}

type TradeGoodRef struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MarketTradeGood is a live listing: prices and the per-call volume cap.
type MarketTradeGood struct {
	Symbol        string `json:"symbol"`
	Type          string `json:"type"`
	TradeVolume   int    `json:"tradeVolume"`
	Supply        string `json:"supply"`
	Activity      string `json:"activity"`
	PurchasePrice int64  `json:"purchasePrice"`
	SellPrice     int64  `json:"sellPrice"`
}

// Listing returns the live listing for one good, if the market carries it.
func (m *Market) Listing(symbol string) (MarketTradeGood, bool) {
	for _, g := range m.TradeGoods {
		if g.Symbol == symbol {
			return g, true
		}
	}
	return MarketTradeGood{}, false
}

// Transaction is the market's record of one buy or sell call.
type Transaction struct {
	WaypointSymbol string    `json:"waypointSymbol"`
	ShipSymbol     string    `json:"shipSymbol"`
	TradeSymbol    string    `json:"tradeSymbol"`
	Type           string    `json:"type"`
	Units          int       `json:"units"`
	PricePerUnit   int64     `json:"pricePerUnit"`
	TotalPrice     int64     `json:"totalPrice"`
	Timestamp      time.Time `json:"timestamp"`
}

// =============================================================================
// CALL RESULT PAYLOADS
// =============================================================================

// PurchaseResult is returned by PurchaseCargo: the post-trade agent
// balance, the updated hold, and the executed transaction.
type PurchaseResult struct {
	Agent       Agent       `json:"agent"`
	Cargo       ShipCargo   `json:"cargo"`
	Transaction Transaction `json:"transaction"`
}

// SellResult is returned by SellCargo.
type SellResult struct {
	Agent       Agent       `json:"agent"`
	Cargo       ShipCargo   `json:"cargo"`
	Transaction Transaction `json:"transaction"`
}

// JettisonResult is the updated hold after dumping cargo.
type JettisonResult struct {
	Cargo ShipCargo `json:"cargo"`
}

// NavigateResult is returned by Navigate: fuel spent and the new route.
type NavigateResult struct {
	Fuel ShipFuel `json:"fuel"`
	Nav  ShipNav  `json:"nav"`
}

// DeliverResult is returned by DeliverContract: the contract with updated
// fulfillment counters and the lightened hold.
type DeliverResult struct {
	Contract Contract  `json:"contract"`
	Cargo    ShipCargo `json:"cargo"`
}

// FulfillResult is returned by FulfillContract after the final payout.
type FulfillResult struct {
	Agent    Agent    `json:"agent"`
	Contract Contract `json:"contract"`
}
