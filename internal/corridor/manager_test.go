package corridor

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/urbanflow/internal/model"
	"github.com/terminal-bench/urbanflow/internal/signalctl"
	"github.com/terminal-bench/urbanflow/internal/store/storetest"
	"github.com/terminal-bench/urbanflow/pkg/geo"
)

func geoPoint(lat, lon float64) geo.Point {
	return geo.Point{Latitude: lat, Longitude: lon}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(eventType string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func signalAt(lat, lon float64) model.Signal {
	return model.Signal{
		ID:           uuid.New(),
		Code:         "SIG-" + uuid.NewString()[:8],
		ZoneID:       uuid.New(),
		Latitude:     lat,
		Longitude:    lon,
		Status:       model.StatusActive,
		CurrentPhase: model.PhaseEast,
		GreenTime:    model.DefaultGreenTime,
		YellowTime:   model.DefaultYellowTime,
		RedTime:      model.DefaultRedTime,
		Mode:         model.ModeAuto,
		CreatedAt:    time.Now(),
	}
}

// persistFailStore fails corridor persistence while delegating everything
// else to the in-memory store.
type persistFailStore struct {
	*storetest.Memory
	err error
}

func (s *persistFailStore) CreateCorridor(ctx context.Context, c model.Corridor) error {
	return s.err
}

func newManager(mem *storetest.Memory) *Manager {
	ctl := signalctl.NewController(mem, &recordingPublisher{}, 0.1, rand.New(rand.NewSource(1)))
	return NewManager(mem, ctl, &recordingPublisher{}, nil)
}

func TestCreate(t *testing.T) {
	t.Run("clears the signal sitting on the route start", func(t *testing.T) {
		mem := storetest.NewMemory()
		sig := signalAt(19.0760, 72.8777)
		mem.AddSignal(sig)
		m := newManager(mem)

		c, err := m.Create(context.Background(), CreateRequest{
			StartLatitude:  19.0760,
			StartLongitude: 72.8777,
			EndLatitude:    19.0810,
			EndLongitude:   72.8827,
			VehicleType:    "ambulance",
			Priority:       1,
			ClearSignals:   true,
		}, uuid.New())
		require.NoError(t, err)

		require.Equal(t, []uuid.UUID{sig.ID}, c.ClearedSignalIDs)
		assert.True(t, c.Active)
		assert.Equal(t, "Ambulance Emergency Corridor", c.Name)
		assert.True(t, c.EstimatedArrival.After(c.CreatedAt))

		forced := mem.Signal(sig.ID)
		assert.Equal(t, model.PhaseNorth, forced.CurrentPhase)
		assert.Equal(t, model.ModeManual, forced.Mode)
		assert.Equal(t, 60, forced.GreenTime)
	})

	t.Run("ignores signals beyond the half kilometer radius", func(t *testing.T) {
		mem := storetest.NewMemory()
		near := signalAt(19.0765, 72.8780)
		far := signalAt(19.2000, 73.0000)
		mem.AddSignal(near)
		mem.AddSignal(far)
		m := newManager(mem)

		c, err := m.Create(context.Background(), CreateRequest{
			StartLatitude:  19.0760,
			StartLongitude: 72.8777,
			EndLatitude:    19.0810,
			EndLongitude:   72.8827,
			VehicleType:    "fire_truck",
			ClearSignals:   true,
		}, uuid.New())
		require.NoError(t, err)

		assert.Equal(t, []uuid.UUID{near.ID}, c.ClearedSignalIDs)
		assert.Equal(t, model.ModeAuto, mem.Signal(far.ID).Mode)
	})

	t.Run("failed persist releases the overridden signals", func(t *testing.T) {
		mem := storetest.NewMemory()
		sig := signalAt(19.0760, 72.8777)
		mem.AddSignal(sig)

		ctl := signalctl.NewController(mem, &recordingPublisher{}, 0.1, rand.New(rand.NewSource(1)))
		m := NewManager(&persistFailStore{Memory: mem, err: errors.New("db down")},
			ctl, &recordingPublisher{}, nil)

		_, err := m.Create(context.Background(), CreateRequest{
			StartLatitude:  19.0760,
			StartLongitude: 72.8777,
			EndLatitude:    19.0810,
			EndLongitude:   72.8827,
			VehicleType:    "ambulance",
			ClearSignals:   true,
		}, uuid.New())
		require.Error(t, err)

		released := mem.Signal(sig.ID)
		assert.Equal(t, model.ModeAuto, released.Mode)
		assert.Equal(t, model.DefaultGreenTime, released.GreenTime)
	})

	t.Run("failed persist keeps signals held by another corridor", func(t *testing.T) {
		mem := storetest.NewMemory()
		sig := signalAt(19.0760, 72.8777)
		mem.AddSignal(sig)
		req := CreateRequest{
			StartLatitude:  19.0760,
			StartLongitude: 72.8777,
			EndLatitude:    19.0810,
			EndLongitude:   72.8827,
			VehicleType:    "ambulance",
			ClearSignals:   true,
		}

		_, err := newManager(mem).Create(context.Background(), req, uuid.New())
		require.NoError(t, err)

		ctl := signalctl.NewController(mem, &recordingPublisher{}, 0.1, rand.New(rand.NewSource(1)))
		m := NewManager(&persistFailStore{Memory: mem, err: errors.New("db down")},
			ctl, &recordingPublisher{}, nil)
		_, err = m.Create(context.Background(), req, uuid.New())
		require.Error(t, err)

		held := mem.Signal(sig.ID)
		assert.Equal(t, model.ModeManual, held.Mode)
		assert.Equal(t, 60, held.GreenTime)
	})

	t.Run("clear signals disabled leaves every signal alone", func(t *testing.T) {
		mem := storetest.NewMemory()
		sig := signalAt(19.0760, 72.8777)
		mem.AddSignal(sig)
		m := newManager(mem)

		c, err := m.Create(context.Background(), CreateRequest{
			StartLatitude:  19.0760,
			StartLongitude: 72.8777,
			EndLatitude:    19.0810,
			EndLongitude:   72.8827,
			VehicleType:    "ambulance",
			ClearSignals:   false,
		}, uuid.New())
		require.NoError(t, err)

		assert.Empty(t, c.ClearedSignalIDs)
		assert.Equal(t, model.ModeAuto, mem.Signal(sig.ID).Mode)
	})
}

func TestDeactivate(t *testing.T) {
	t.Run("restores cleared signals to auto with default green", func(t *testing.T) {
		mem := storetest.NewMemory()
		sig := signalAt(19.0760, 72.8777)
		mem.AddSignal(sig)
		m := newManager(mem)

		c, err := m.Create(context.Background(), CreateRequest{
			StartLatitude:  19.0760,
			StartLongitude: 72.8777,
			EndLatitude:    19.0810,
			EndLongitude:   72.8827,
			VehicleType:    "ambulance",
			ClearSignals:   true,
		}, uuid.New())
		require.NoError(t, err)

		restored, err := m.Deactivate(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{sig.ID}, restored)

		after := mem.Signal(sig.ID)
		assert.Equal(t, model.ModeAuto, after.Mode)
		assert.Equal(t, model.DefaultGreenTime, after.GreenTime)
	})

	t.Run("unknown corridor id", func(t *testing.T) {
		m := newManager(storetest.NewMemory())
		_, err := m.Deactivate(context.Background(), uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("signal shared by two corridors stays manual until both deactivate", func(t *testing.T) {
		mem := storetest.NewMemory()
		shared := signalAt(19.0760, 72.8777)
		mem.AddSignal(shared)
		m := newManager(mem)

		req := CreateRequest{
			StartLatitude:  19.0760,
			StartLongitude: 72.8777,
			EndLatitude:    19.0810,
			EndLongitude:   72.8827,
			VehicleType:    "ambulance",
			ClearSignals:   true,
		}
		first, err := m.Create(context.Background(), req, uuid.New())
		require.NoError(t, err)
		second, err := m.Create(context.Background(), req, uuid.New())
		require.NoError(t, err)
		require.Equal(t, first.ClearedSignalIDs, second.ClearedSignalIDs)

		// One corridor down: the other still claims the signal.
		restored, err := m.Deactivate(context.Background(), first.ID)
		require.NoError(t, err)
		assert.Empty(t, restored)
		assert.Equal(t, model.ModeManual, mem.Signal(shared.ID).Mode)
		assert.Equal(t, 60, mem.Signal(shared.ID).GreenTime)

		// Both down: the signal returns to autonomous cycling.
		restored, err = m.Deactivate(context.Background(), second.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{shared.ID}, restored)
		assert.Equal(t, model.ModeAuto, mem.Signal(shared.ID).Mode)
		assert.Equal(t, model.DefaultGreenTime, mem.Signal(shared.ID).GreenTime)
	})
}

func TestClearSignals(t *testing.T) {
	mem := storetest.NewMemory()
	sig := signalAt(19.0760, 72.8777)
	mem.AddSignal(sig)
	m := newManager(mem)

	cleared, err := m.ClearSignals(context.Background(),
		geoPoint(19.0760, 72.8777), geoPoint(19.0810, 72.8827))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{sig.ID}, cleared)
	assert.Equal(t, model.ModeManual, mem.Signal(sig.ID).Mode)
}
