// Package trafficgen periodically synthesizes plausible traffic
// measurements for every active signal, informed by time-of-day and
// weather factors, and appends them to the traffic log.
package trafficgen

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/terminal-bench/urbanflow/internal/hub"
	"github.com/terminal-bench/urbanflow/internal/model"
	"github.com/terminal-bench/urbanflow/internal/realtime"
)

var log = logrus.WithField("module", "trafficgen")

// Base values a measurement is scaled from.
const (
	baseVehicleCount = 30
	baseQueueLength  = 10
	baseSpeedKmh     = 40
)

// Store is the slice of the state store the generator needs.
type Store interface {
	ListActiveSignals(ctx context.Context) ([]model.Signal, error)
	InsertTrafficLogs(ctx context.Context, logs []model.TrafficLog) error
}

// Realtime supplies the time-pattern and weather inputs.
type Realtime interface {
	Pattern() realtime.TimePattern
	Weather(ctx context.Context) realtime.WeatherSnapshot
}

// Publisher fans events out to live subscribers.
type Publisher interface {
	Publish(eventType string, data any)
}

// MeasurementSink receives a committed measurement batch, best-effort.
type MeasurementSink interface {
	Record(ctx context.Context, batch []Measurement, ts time.Time)
}

// Measurement is one synthesized snapshot for one signal.
type Measurement struct {
	SignalCode      string    `json:"signal_id"`
	SignalID        uuid.UUID `json:"signal_id_db"`
	ZoneID          uuid.UUID `json:"zone_id"`
	VehicleCount    int       `json:"vehicle_count"`
	QueueLength     int       `json:"queue_length"`
	SpeedKmh        int       `json:"speed"`
	Density         float64   `json:"density"`
	PedestrianCount int       `json:"pedestrian_count"`
}

// Generator produces traffic measurements.
type Generator struct {
	store     Store
	rt        Realtime
	events    Publisher
	telemetry MeasurementSink

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator builds a generator. telemetry may be nil; rng is injectable
// for deterministic tests.
func NewGenerator(store Store, rt Realtime, events Publisher, telemetry MeasurementSink, rng *rand.Rand) *Generator {
	return &Generator{
		store:     store,
		rt:        rt,
		events:    events,
		telemetry: telemetry,
		rng:       rng,
	}
}

// Generate synthesizes one measurement from the pattern and weather
// multipliers plus bounded randomness. Counts never go negative and
// density is clamped to [0, 1].
func (g *Generator) Generate(sig model.Signal, pattern realtime.TimePattern, weather realtime.WeatherSnapshot) Measurement {
	g.mu.Lock()
	defer g.mu.Unlock()

	combined := pattern.Multiplier * weather.TrafficMultiplier

	vehicles := int(math.Round(baseVehicleCount*combined)) + g.uniform(-10, 20)
	if vehicles < 0 {
		vehicles = 0
	}

	queue := int(math.Round(baseQueueLength*combined)) + g.uniform(-5, 15)
	if queue < 0 {
		queue = 0
	}

	speed := int(math.Round(baseSpeedKmh/combined)) + g.uniform(-10, 10)
	if speed < 10 {
		speed = 10
	}

	density := math.Min(1.0, float64(vehicles)/100*pattern.Multiplier)
	density = math.Round(density*100) / 100

	pedestrians := g.uniform(0, 10)
	if pattern.IsRushHour {
		pedestrians = g.uniform(0, 20)
	}

	return Measurement{
		SignalCode:      sig.Code,
		SignalID:        sig.ID,
		ZoneID:          sig.ZoneID,
		VehicleCount:    vehicles,
		QueueLength:     queue,
		SpeedKmh:        speed,
		Density:         density,
		PedestrianCount: pedestrians,
	}
}

// uniform returns an integer in [lo, hi], both ends inclusive. Caller
// holds g.mu.
func (g *Generator) uniform(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

// RunCycle performs one scheduler tick: one measurement per active signal,
// committed as a single transactional batch, then the summary and
// per-signal broadcasts fire. The broadcasts always happen after the
// commit; a store failure aborts the whole batch and nothing is
// broadcast for the tick.
func (g *Generator) RunCycle(ctx context.Context) error {
	pattern := g.rt.Pattern()
	weather := g.rt.Weather(ctx)

	signals, err := g.store.ListActiveSignals(ctx)
	if err != nil {
		return fmt.Errorf("traffic cycle: %w", err)
	}
	if len(signals) == 0 {
		return nil
	}

	now := time.Now().UTC()
	measurements := make([]Measurement, 0, len(signals))
	logs := make([]model.TrafficLog, 0, len(signals))
	for _, sig := range signals {
		m := g.Generate(sig, pattern, weather)
		measurements = append(measurements, m)
		logs = append(logs, model.TrafficLog{
			ID:              uuid.New(),
			SignalID:        sig.ID,
			VehicleCount:    m.VehicleCount,
			PedestrianCount: m.PedestrianCount,
			QueueLength:     m.QueueLength,
			Density:         m.Density,
			Timestamp:       now,
		})
	}

	if err := g.store.InsertTrafficLogs(ctx, logs); err != nil {
		return fmt.Errorf("traffic cycle commit: %w", err)
	}

	g.events.Publish(hub.EventTrafficUpdate, map[string]any{
		"signals_updated": len(signals),
		"timestamp":       now.Format(time.RFC3339),
	})
	g.events.Publish(hub.EventRealtimeTraffic, map[string]any{
		"signals":      measurements,
		"time_pattern": pattern,
		"weather":      weather,
	})

	if g.telemetry != nil {
		g.telemetry.Record(ctx, measurements, now)
	}

	log.WithField("signals", len(signals)).Debug("traffic cycle complete")
	return nil
}
