package procure

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
)

// arrivalGrace pads the wait past the advertised arrival time so the
// server has settled the ship before the next call lands.
const arrivalGrace = time.Second

// Pilot moves one ship to a waypoint and leaves it docked, following
// the dock and orbit etiquette the API enforces: depart from orbit,
// travel, dock on arrival.
type Pilot struct {
	nav   api.Navigator
	log   *zap.Logger
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewPilot creates a pilot. A nil logger disables logging.
func NewPilot(nav api.Navigator, log *zap.Logger) *Pilot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pilot{nav: nav, log: log.Named("pilot"), sleep: sleepCtx, now: time.Now}
}

// DockAt brings the ship to the waypoint, docked. A ship already there
// only flips its dock state; a ship mid-flight first waits out its
// current leg. The snapshot tracks every hop.
func (p *Pilot) DockAt(ctx context.Context, ship *api.Ship, waypointSymbol string) error {
	if ship.Nav.Status == api.NavStatusInTransit {
		if err := p.waitArrival(ctx, ship); err != nil {
			return err
		}
	}
	if ship.Nav.WaypointSymbol == waypointSymbol {
		return p.dock(ctx, ship)
	}

	if ship.Docked() {
		nav, err := p.nav.Orbit(ctx, ship.Symbol)
		if err != nil {
			return fmt.Errorf("failed to orbit %s: %w", ship.Symbol, err)
		}
		ship.Nav = *nav
	}

	result, err := p.nav.Navigate(ctx, ship.Symbol, waypointSymbol)
	if err != nil {
		return fmt.Errorf("failed to navigate %s to %s: %w", ship.Symbol, waypointSymbol, err)
	}
	ship.Nav = result.Nav
	ship.Fuel = result.Fuel

	if err := p.waitArrival(ctx, ship); err != nil {
		return err
	}
	return p.dock(ctx, ship)
}

// waitArrival sleeps until the current route's arrival time has passed.
func (p *Pilot) waitArrival(ctx context.Context, ship *api.Ship) error {
	wait := ship.Nav.Route.Arrival.Sub(p.now())
	if wait > 0 {
		wait += arrivalGrace
		p.log.Debug("waiting for arrival",
			zap.String("ship", ship.Symbol),
			zap.String("waypoint", ship.Nav.WaypointSymbol),
			zap.Duration("wait", wait))
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
	ship.Nav.Status = api.NavStatusInOrbit
	return nil
}

func (p *Pilot) dock(ctx context.Context, ship *api.Ship) error {
	if ship.Docked() {
		return nil
	}
	nav, err := p.nav.Dock(ctx, ship.Symbol)
	if err != nil {
		return fmt.Errorf("failed to dock %s: %w", ship.Symbol, err)
	}
	ship.Nav = *nav
	return nil
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
