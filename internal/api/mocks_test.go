package api

import "context"

// mockCaller implements Caller with overridable behavior per method.
// Tests set only the Func fields they exercise; unset methods return
// zero values.
type mockCaller struct {
	AgentFunc             func(ctx context.Context) (*Agent, error)
	ShipsFunc             func(ctx context.Context) ([]Ship, error)
	ShipFunc              func(ctx context.Context, symbol string) (*Ship, error)
	SystemWaypointsFunc   func(ctx context.Context, systemSymbol, trait string) ([]Waypoint, error)
	MarketFunc            func(ctx context.Context, systemSymbol, waypointSymbol string) (*Market, error)
	PurchaseCargoFunc     func(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*PurchaseResult, error)
	SellCargoFunc         func(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*SellResult, error)
	JettisonCargoFunc     func(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*JettisonResult, error)
	OrbitFunc             func(ctx context.Context, shipSymbol string) (*ShipNav, error)
	DockFunc              func(ctx context.Context, shipSymbol string) (*ShipNav, error)
	NavigateFunc          func(ctx context.Context, shipSymbol, waypointSymbol string) (*NavigateResult, error)
	ContractsFunc         func(ctx context.Context) ([]Contract, error)
	AcceptContractFunc    func(ctx context.Context, contractID string) (*Contract, error)
	NegotiateContractFunc func(ctx context.Context, shipSymbol string) (*Contract, error)
	DeliverContractFunc   func(ctx context.Context, contractID, shipSymbol, tradeSymbol string, units int) (*DeliverResult, error)
	FulfillContractFunc   func(ctx context.Context, contractID string) (*FulfillResult, error)
}

var _ Caller = (*mockCaller)(nil)

func (m *mockCaller) Agent(ctx context.Context) (*Agent, error) {
	if m.AgentFunc != nil {
		return m.AgentFunc(ctx)
	}
	return &Agent{}, nil
}

func (m *mockCaller) Ships(ctx context.Context) ([]Ship, error) {
	if m.ShipsFunc != nil {
		return m.ShipsFunc(ctx)
	}
	return nil, nil
}

func (m *mockCaller) Ship(ctx context.Context, symbol string) (*Ship, error) {
	if m.ShipFunc != nil {
		return m.ShipFunc(ctx, symbol)
	}
	return &Ship{Symbol: symbol}, nil
}

func (m *mockCaller) SystemWaypoints(ctx context.Context, systemSymbol, trait string) ([]Waypoint, error) {
	if m.SystemWaypointsFunc != nil {
		return m.SystemWaypointsFunc(ctx, systemSymbol, trait)
	}
	return nil, nil
}

func (m *mockCaller) Market(ctx context.Context, systemSymbol, waypointSymbol string) (*Market, error) {
	if m.MarketFunc != nil {
		return m.MarketFunc(ctx, systemSymbol, waypointSymbol)
	}
	return &Market{Symbol: waypointSymbol}, nil
}

func (m *mockCaller) PurchaseCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*PurchaseResult, error) {
	if m.PurchaseCargoFunc != nil {
		return m.PurchaseCargoFunc(ctx, shipSymbol, tradeSymbol, units)
	}
	return &PurchaseResult{}, nil
}

func (m *mockCaller) SellCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*SellResult, error) {
	if m.SellCargoFunc != nil {
		return m.SellCargoFunc(ctx, shipSymbol, tradeSymbol, units)
	}
	return &SellResult{}, nil
}

func (m *mockCaller) JettisonCargo(ctx context.Context, shipSymbol, tradeSymbol string, units int) (*JettisonResult, error) {
	if m.JettisonCargoFunc != nil {
		return m.JettisonCargoFunc(ctx, shipSymbol, tradeSymbol, units)
	}
	return &JettisonResult{}, nil
}

func (m *mockCaller) Orbit(ctx context.Context, shipSymbol string) (*ShipNav, error) {
	if m.OrbitFunc != nil {
		return m.OrbitFunc(ctx, shipSymbol)
	}
	return &ShipNav{Status: NavStatusInOrbit}, nil
}

func (m *mockCaller) Dock(ctx context.Context, shipSymbol string) (*ShipNav, error) {
	if m.DockFunc != nil {
		return m.DockFunc(ctx, shipSymbol)
	}
	return &ShipNav{Status: NavStatusDocked}, nil
}

func (m *mockCaller) Navigate(ctx context.Context, shipSymbol, waypointSymbol string) (*NavigateResult, error) {
	if m.NavigateFunc != nil {
		return m.NavigateFunc(ctx, shipSymbol, waypointSymbol)
	}
	return &NavigateResult{}, nil
}

func (m *mockCaller) Contracts(ctx context.Context) ([]Contract, error) {
	if m.ContractsFunc != nil {
		return m.ContractsFunc(ctx)
	}
	return nil, nil
}

func (m *mockCaller) AcceptContract(ctx context.Context, contractID string) (*Contract, error) {
	if m.AcceptContractFunc != nil {
		return m.AcceptContractFunc(ctx, contractID)
	}
	return &Contract{ID: contractID, Accepted: true}, nil
}

func (m *mockCaller) NegotiateContract(ctx context.Context, shipSymbol string) (*Contract, error) {
	if m.NegotiateContractFunc != nil {
		return m.NegotiateContractFunc(ctx, shipSymbol)
	}
	return &Contract{}, nil
}

func (m *mockCaller) DeliverContract(ctx context.Context, contractID, shipSymbol, tradeSymbol string, units int) (*DeliverResult, error) {
	if m.DeliverContractFunc != nil {
		return m.DeliverContractFunc(ctx, contractID, shipSymbol, tradeSymbol, units)
	}
	return &DeliverResult{}, nil
}

func (m *mockCaller) FulfillContract(ctx context.Context, contractID string) (*FulfillResult, error) {
	if m.FulfillContractFunc != nil {
		return m.FulfillContractFunc(ctx, contractID)
	}
	return &FulfillResult{}, nil
}
