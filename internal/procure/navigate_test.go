package procure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
)

func dockedShip(symbol, waypoint string) *api.Ship {
	return &api.Ship{
		Symbol: symbol,
		Nav: api.ShipNav{
			SystemSymbol:   api.SystemOf(waypoint),
			WaypointSymbol: waypoint,
			Status:         api.NavStatusDocked,
		},
		Cargo: api.ShipCargo{Capacity: 40},
	}
}

func TestDockAtFliesOrbitNavigateDock(t *testing.T) {
	ship := dockedShip("HAULER-1", "X1-TEST-A")
	nav := newMockNavigator(ship)
	pilot := instantPilot(nav)

	err := pilot.DockAt(context.Background(), ship, "X1-TEST-B")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"orbit HAULER-1",
		"navigate HAULER-1 X1-TEST-B",
		"dock HAULER-1",
	}, nav.callLog())
	assert.Equal(t, "X1-TEST-B", ship.Nav.WaypointSymbol)
	assert.Equal(t, api.NavStatusDocked, ship.Nav.Status)
}

func TestDockAtSameWaypointOnlyDocks(t *testing.T) {
	ship := dockedShip("HAULER-1", "X1-TEST-B")
	ship.Nav.Status = api.NavStatusInOrbit
	nav := newMockNavigator(ship)
	pilot := instantPilot(nav)

	err := pilot.DockAt(context.Background(), ship, "X1-TEST-B")
	require.NoError(t, err)
	assert.Equal(t, []string{"dock HAULER-1"}, nav.callLog())
}

func TestDockAtAlreadyDockedMakesNoCalls(t *testing.T) {
	ship := dockedShip("HAULER-1", "X1-TEST-B")
	nav := newMockNavigator(ship)
	pilot := instantPilot(nav)

	err := pilot.DockAt(context.Background(), ship, "X1-TEST-B")
	require.NoError(t, err)
	assert.Empty(t, nav.callLog())
}

func TestDockAtWaitsOutTransitFirst(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ship := dockedShip("HAULER-1", "X1-TEST-B")
	ship.Nav.Status = api.NavStatusInTransit
	ship.Nav.Route.Arrival = base.Add(90 * time.Second)
	nav := newMockNavigator(ship)

	var slept []time.Duration
	pilot := NewPilot(nav, nil)
	pilot.now = func() time.Time { return base }
	pilot.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	err := pilot.DockAt(context.Background(), ship, "X1-TEST-B")
	require.NoError(t, err)

	require.Len(t, slept, 1)
	assert.Equal(t, 90*time.Second+arrivalGrace, slept[0])
	assert.Equal(t, []string{"dock HAULER-1"}, nav.callLog())
	assert.Equal(t, api.NavStatusDocked, ship.Nav.Status)
}

func TestDockAtNavigateErrorPropagates(t *testing.T) {
	ship := dockedShip("HAULER-1", "X1-TEST-A")
	ship.Nav.Status = api.NavStatusInOrbit
	nav := newMockNavigator(ship)
	nav.navigateErr = &api.Error{Status: 400, Message: "insufficient fuel"}
	pilot := instantPilot(nav)

	err := pilot.DockAt(context.Background(), ship, "X1-TEST-B")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to navigate HAULER-1 to X1-TEST-B")
}

func TestDockAtCancelledDuringWait(t *testing.T) {
	ship := dockedShip("HAULER-1", "X1-TEST-B")
	ship.Nav.Status = api.NavStatusInTransit
	ship.Nav.Route.Arrival = time.Now().Add(time.Hour)
	nav := newMockNavigator(ship)
	pilot := instantPilot(nav)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pilot.DockAt(ctx, ship, "X1-TEST-B")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, nav.callLog(), "no dock call while the leg is unfinished")
}
