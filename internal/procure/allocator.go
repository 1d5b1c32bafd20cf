package procure

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
	"github.com/evanmiller2112/spacetraders-cc/internal/goods"
)

// AllocationResult is what fleet assignment produced: per-ship batch
// runs plus the batches no hold could take this pass.
type AllocationResult struct {
	Allocations      []*Allocation
	Unallocated      []Batch
	UnallocatedUnits int
}

// AllocateFleet assigns batches to ships first-fit in a fixed order:
// ships by free hold space descending then symbol ascending, batches in
// plan order. A batch bigger than the current ship's remaining space is
// split so the front of it still travels. The function is pure and
// deterministic; identical inputs produce identical assignments.
func AllocateFleet(batches []Batch, ships []api.Ship, info goods.Info) *AllocationResult {
	ordered := make([]api.Ship, len(ships))
	copy(ordered, ships)
	sort.Slice(ordered, func(i, j int) bool {
		fi, fj := ordered[i].Cargo.FreeSpace(), ordered[j].Cargo.FreeSpace()
		if fi != fj {
			return fi > fj
		}
		return ordered[i].Symbol < ordered[j].Symbol
	})

	free := make(map[string]int, len(ordered))
	for _, ship := range ordered {
		free[ship.Symbol] = ship.Cargo.FreeSpace()
	}

	perUnit := info.CargoPerUnit
	if perUnit <= 0 {
		perUnit = 1
	}

	result := &AllocationResult{}
	byShip := make(map[string]*Allocation, len(ordered))

	for _, batch := range batches {
		rest := batch
		for rest.Units > 0 {
			assigned := false
			for _, ship := range ordered {
				fit := free[ship.Symbol] / perUnit
				if fit <= 0 {
					continue
				}
				take := rest.Units
				if take > fit {
					take = fit
				}

				part := rest
				part.Units = take
				alloc := byShip[ship.Symbol]
				if alloc == nil {
					alloc = &Allocation{Ship: ship.Symbol, Status: AllocationPending}
					byShip[ship.Symbol] = alloc
				}
				alloc.Batches = append(alloc.Batches, part)
				alloc.CommittedSpace += take * perUnit
				free[ship.Symbol] -= take * perUnit
				rest.Units -= take
				assigned = true
				break
			}
			if !assigned {
				result.Unallocated = append(result.Unallocated, rest)
				result.UnallocatedUnits += rest.Units
				break
			}
		}
	}

	for _, ship := range ordered {
		if alloc := byShip[ship.Symbol]; alloc != nil {
			result.Allocations = append(result.Allocations, alloc)
		}
	}
	return result
}

// CargoPreparer frees hold space ahead of allocation without touching
// protected cargo.
type CargoPreparer interface {
	EnsureSpace(ctx context.Context, ship *api.Ship, required int, keep []Reservation) (int, error)
}

// Allocator pairs the pure assignment with cargo preparation: it asks
// each ship to clear space for the work at hand, then assigns batches to
// the space that actually materialized.
type Allocator struct {
	catalog *goods.Catalog
	cargo   CargoPreparer
	log     *zap.Logger
}

// NewAllocator creates an allocator. cargo may be nil, in which case
// ships are taken as they are. A nil logger disables logging.
func NewAllocator(catalog *goods.Catalog, cargo CargoPreparer, log *zap.Logger) *Allocator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Allocator{catalog: catalog, cargo: cargo, log: log.Named("allocator")}
}

// Allocate clears space fleet-wide, then assigns the batches. The ship
// snapshots are refreshed in place as cargo leaves their holds; keep
// lists cargo that must stay aboard while clearing. One ship failing to
// clear does not stop the others.
func (al *Allocator) Allocate(ctx context.Context, batches []Batch, ships []api.Ship, good string, keep []Reservation) (*AllocationResult, error) {
	info, _ := al.catalog.Lookup(good)
	perUnit := info.CargoPerUnit
	if perUnit <= 0 {
		perUnit = 1
	}

	if al.cargo != nil {
		required := 0
		for _, b := range batches {
			required += b.Units * perUnit
		}
		for i := range ships {
			if required <= 0 {
				break
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			freed, err := al.cargo.EnsureSpace(ctx, &ships[i], required, keep)
			if err != nil {
				al.log.Warn("failed to clear hold",
					zap.String("ship", ships[i].Symbol),
					zap.Error(err))
				continue
			}
			required -= freed
		}
	}

	result := AllocateFleet(batches, ships, info)
	al.log.Debug("fleet allocation complete",
		zap.String("good", good),
		zap.Int("batches", len(batches)),
		zap.Int("ships_used", len(result.Allocations)),
		zap.Int("unallocated_units", result.UnallocatedUnits))
	return result, nil
}
