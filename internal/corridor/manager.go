// Package corridor manages emergency corridors: it finds the signals near
// a requested route, forces them into manual cleared operation through the
// signal controller, and restores them when the corridor deactivates.
// Signals claimed by more than one active corridor are reference-tracked
// through the store's owning-set index so deactivating one corridor never
// releases a signal another still holds.
package corridor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/terminal-bench/urbanflow/internal/hub"
	"github.com/terminal-bench/urbanflow/internal/model"
	"github.com/terminal-bench/urbanflow/internal/store"
	"github.com/terminal-bench/urbanflow/pkg/geo"
)

var log = logrus.WithField("module", "corridor")

// ErrNotFound is returned when a corridor id does not exist.
var ErrNotFound = errors.New("corridor not found")

const (
	// clearRadiusKm is how far from the route's start, mid and end points
	// a signal may sit and still be cleared. The three-sample union is a
	// deliberate approximation of "along the route".
	clearRadiusKm = 0.5

	// overrideGreenSeconds is the extended green applied while a corridor
	// holds a signal.
	overrideGreenSeconds = 60

	// corridorSpeedKmh is the assumed emergency vehicle speed for the
	// arrival estimate.
	corridorSpeedKmh = 60.0
)

// Store is the slice of the state store the manager needs.
type Store interface {
	ListActiveSignals(ctx context.Context) ([]model.Signal, error)
	CreateCorridor(ctx context.Context, c model.Corridor) error
	GetCorridor(ctx context.Context, id uuid.UUID) (model.Corridor, error)
	ListActiveCorridors(ctx context.Context) ([]model.Corridor, error)
	DeactivateCorridor(ctx context.Context, id uuid.UUID) error
	ActiveCorridorSignalIDs(ctx context.Context, exclude uuid.UUID) (map[uuid.UUID]bool, error)
}

// Controller is the override surface of the signal controller.
type Controller interface {
	ForceOverride(ctx context.Context, ids []uuid.UUID, greenSeconds int) ([]uuid.UUID, error)
	RestoreAuto(ctx context.Context, ids []uuid.UUID, defaultGreenSeconds int) ([]uuid.UUID, error)
}

// Publisher fans events out to live subscribers.
type Publisher interface {
	Publish(eventType string, data any)
}

// Manager coordinates corridor lifecycle.
type Manager struct {
	store  Store
	ctl    Controller
	events Publisher
	now    func() time.Time
}

// NewManager builds a manager. now may be nil, defaulting to time.Now.
func NewManager(st Store, ctl Controller, events Publisher, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: st, ctl: ctl, events: events, now: now}
}

// CreateRequest carries the parameters for a new corridor.
type CreateRequest struct {
	Name           string
	StartLatitude  float64
	StartLongitude float64
	EndLatitude    float64
	EndLongitude   float64
	VehicleType    string
	Priority       int
	ClearSignals   bool
}

// Create computes the route's signal set, forces it into cleared
// operation, and persists the corridor record. The returned corridor
// carries the ids actually cleared, which may be a subset of the
// candidates.
func (m *Manager) Create(ctx context.Context, req CreateRequest, createdBy uuid.UUID) (model.Corridor, error) {
	start := geo.Point{Latitude: req.StartLatitude, Longitude: req.StartLongitude}
	end := geo.Point{Latitude: req.EndLatitude, Longitude: req.EndLongitude}

	var cleared []uuid.UUID
	if req.ClearSignals {
		candidates, err := m.signalsAlongRoute(ctx, start, end)
		if err != nil {
			return model.Corridor{}, err
		}
		if len(candidates) > 0 {
			ids := lo.Map(candidates, func(s model.Signal, _ int) uuid.UUID { return s.ID })
			updated, err := m.ctl.ForceOverride(ctx, ids, overrideGreenSeconds)
			if err != nil {
				return model.Corridor{}, err
			}
			// Keep route order while dropping any ids the override skipped.
			updatedSet := lo.SliceToMap(updated, func(id uuid.UUID) (uuid.UUID, bool) { return id, true })
			cleared = lo.Filter(ids, func(id uuid.UUID, _ int) bool { return updatedSet[id] })
		}
	}

	now := m.now().UTC()
	distanceKm := geo.DistanceKm(start, end)
	c := model.Corridor{
		ID:               uuid.New(),
		Name:             req.Name,
		StartLatitude:    req.StartLatitude,
		StartLongitude:   req.StartLongitude,
		EndLatitude:      req.EndLatitude,
		EndLongitude:     req.EndLongitude,
		VehicleType:      req.VehicleType,
		Priority:         req.Priority,
		Active:           true,
		CreatedAt:        now,
		EstimatedArrival: now.Add(arrivalDelay(distanceKm)),
		ClearedSignalIDs: cleared,
		CreatedBy:        createdBy,
	}
	if c.Name == "" {
		c.Name = defaultName(req.VehicleType)
	}

	if err := m.store.CreateCorridor(ctx, c); err != nil {
		// The overrides committed but no corridor record claims them.
		// Release the signals again so none are stranded in manual.
		if _, restoreErr := m.restoreUnclaimed(ctx, c.ID, cleared); restoreErr != nil {
			log.WithError(restoreErr).WithField("corridor", c.ID).
				Error("release signals after failed corridor persist")
		}
		return model.Corridor{}, fmt.Errorf("persist corridor: %w", err)
	}

	m.events.Publish(hub.EventEmergencyCorridor, map[string]any{
		"corridor_id":     c.ID,
		"name":            c.Name,
		"active":          true,
		"signals_cleared": len(cleared),
	})
	log.WithFields(logrus.Fields{
		"corridor": c.ID,
		"cleared":  len(cleared),
	}).Info("corridor created")
	return c, nil
}

// Deactivate marks a corridor inactive and restores its signals, except
// those still claimed by another active corridor. Returns the ids
// actually restored.
func (m *Manager) Deactivate(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	c, err := m.store.GetCorridor(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := m.store.DeactivateCorridor(ctx, id); err != nil {
		return nil, err
	}

	restored, err := m.restoreUnclaimed(ctx, id, c.ClearedSignalIDs)
	if err != nil {
		return nil, err
	}

	m.events.Publish(hub.EventEmergencyCorridor, map[string]any{
		"corridor_id":      c.ID,
		"name":             c.Name,
		"active":           false,
		"signals_restored": len(restored),
	})
	log.WithFields(logrus.Fields{
		"corridor": c.ID,
		"restored": len(restored),
		"retained": len(c.ClearedSignalIDs) - len(restored),
	}).Info("corridor deactivated")
	return restored, nil
}

// restoreUnclaimed restores the given signals to automatic operation,
// skipping any still claimed by an active corridor other than exclude.
func (m *Manager) restoreUnclaimed(ctx context.Context, exclude uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	claimed, err := m.store.ActiveCorridorSignalIDs(ctx, exclude)
	if err != nil {
		return nil, err
	}
	toRestore := lo.Filter(ids, func(sigID uuid.UUID, _ int) bool {
		return !claimed[sigID]
	})

	return m.ctl.RestoreAuto(ctx, toRestore, model.DefaultGreenTime)
}

// ClearSignals force-clears the signals near an ad-hoc route without
// creating a corridor record. Used for manual emergency intervention.
func (m *Manager) ClearSignals(ctx context.Context, start, end geo.Point) ([]uuid.UUID, error) {
	candidates, err := m.signalsAlongRoute(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := lo.Map(candidates, func(s model.Signal, _ int) uuid.UUID { return s.ID })
	return m.ctl.ForceOverride(ctx, ids, overrideGreenSeconds)
}

// ListActive returns every corridor still marked active.
func (m *Manager) ListActive(ctx context.Context) ([]model.Corridor, error) {
	return m.store.ListActiveCorridors(ctx)
}

// signalsAlongRoute returns the active signals within clearRadiusKm of
// the route's start, end, or midpoint. The union of the three samples,
// not the intersection.
func (m *Manager) signalsAlongRoute(ctx context.Context, start, end geo.Point) ([]model.Signal, error) {
	signals, err := m.store.ListActiveSignals(ctx)
	if err != nil {
		return nil, fmt.Errorf("signals along route: %w", err)
	}

	mid := geo.Midpoint(start, end)
	return lo.Filter(signals, func(s model.Signal, _ int) bool {
		at := geo.Point{Latitude: s.Latitude, Longitude: s.Longitude}
		return geo.DistanceKm(at, start) <= clearRadiusKm ||
			geo.DistanceKm(at, end) <= clearRadiusKm ||
			geo.DistanceKm(at, mid) <= clearRadiusKm
	}), nil
}

// arrivalDelay estimates travel time over a distance at corridor speed.
func arrivalDelay(distanceKm float64) time.Duration {
	hours := distanceKm / corridorSpeedKmh
	return time.Duration(hours * float64(time.Hour))
}

func defaultName(vehicleType string) string {
	if vehicleType == "" {
		return "Emergency Corridor"
	}
	return strings.ToUpper(vehicleType[:1]) + vehicleType[1:] + " Emergency Corridor"
}
