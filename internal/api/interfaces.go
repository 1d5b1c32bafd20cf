package api

import "context"

// =============================================================================
// CLIENT INTERFACES
// =============================================================================
//
// Consumers depend on the narrow interface for their concern, not on the
// concrete client. Client implements all of them; GatedCaller wraps any
// Caller so every call flows through the shared gate.

// AgentSource reads the player account.
type AgentSource interface {
	Agent(ctx context.Context) (*Agent, error)
}

// FleetSource reads fleet state.
type FleetSource interface {
	Ships(ctx context.Context) ([]Ship, error)
	Ship(ctx context.Context, symbol string) (*Ship, error)
}

// ChartSource reads system charts and market listings.
type ChartSource interface {
	SystemWaypoints(ctx context.Context, systemSymbol, trait string) ([]Waypoint, error)
	Market(ctx context.Context, systemSymbol, waypointSymbol string) (*Market, error)
}

// Trader executes market transactions for one ship at its current
// waypoint.
type Trader interface {
	PurchaseCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*PurchaseResult, error)
	SellCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*SellResult, error)
	JettisonCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*JettisonResult, error)
}

// Navigator moves ships between waypoints and flips dock/orbit state.
type Navigator interface {
	Orbit(ctx context.Context, shipSymbol string) (*ShipNav, error)
	Dock(ctx context.Context, shipSymbol string) (*ShipNav, error)
	Navigate(ctx context.Context, shipSymbol, waypointSymbol string) (*NavigateResult, error)
}

// ContractDesk manages the contract lifecycle: listing, acceptance,
// delivery, and fulfillment.
type ContractDesk interface {
	Contracts(ctx context.Context) ([]Contract, error)
	AcceptContract(ctx context.Context, contractID string) (*Contract, error)
	NegotiateContract(ctx context.Context, shipSymbol string) (*Contract, error)
	DeliverContract(ctx context.Context, contractID, shipSymbol, tradeSymbol string, units int) (*DeliverResult, error)
	FulfillContract(ctx context.Context, contractID string) (*FulfillResult, error)
}

// Caller is the full client surface. The engine wires one Caller (the
// HTTP client behind the gate) and hands each component the slice of it
// the component needs.
type Caller interface {
	AgentSource
	FleetSource
	ChartSource
	Trader
	Navigator
	ContractDesk
}
