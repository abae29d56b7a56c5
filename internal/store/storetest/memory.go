// Package storetest provides an in-memory stand-in for the postgres store
// so the coordination engine can be tested without a database. Batch
// operations keep the real store's all-or-nothing semantics.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terminal-bench/urbanflow/internal/model"
	"github.com/terminal-bench/urbanflow/internal/store"
)

// Memory is a mutex-protected in-memory store.
type Memory struct {
	mu        sync.Mutex
	signals   map[uuid.UUID]model.Signal
	logs      []model.TrafficLog
	corridors map[uuid.UUID]model.Corridor
	users     map[uuid.UUID]model.User
	zones     map[uuid.UUID]model.Zone

	// FailNext makes the next mutating call fail with this error, once.
	FailNext error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		signals:   make(map[uuid.UUID]model.Signal),
		corridors: make(map[uuid.UUID]model.Corridor),
		users:     make(map[uuid.UUID]model.User),
		zones:     make(map[uuid.UUID]model.Zone),
	}
}

func (m *Memory) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

// AddZone seeds a zone.
func (m *Memory) AddZone(z model.Zone) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones[z.ID] = z
}

// ListZones returns all seeded zones sorted by name.
func (m *Memory) ListZones(ctx context.Context) ([]model.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	zones := make([]model.Zone, 0, len(m.zones))
	for _, z := range m.zones {
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Name < zones[j].Name })
	return zones, nil
}

// AddUser seeds a user.
func (m *Memory) AddUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// GetUser returns one seeded user by id.
func (m *Memory) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

// GetUserByEmail returns one seeded user by email.
func (m *Memory) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, store.ErrNotFound
}

// AddSignal seeds a signal.
func (m *Memory) AddSignal(sig model.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[sig.ID] = sig
}

// Signal returns a seeded signal by id.
func (m *Memory) Signal(id uuid.UUID) model.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signals[id]
}

// TrafficLogs returns all appended measurements.
func (m *Memory) TrafficLogs() []model.TrafficLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TrafficLog(nil), m.logs...)
}

func (m *Memory) ListActiveSignals(ctx context.Context) ([]model.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Signal
	for _, sig := range m.signals {
		if sig.Status == model.StatusActive {
			out = append(out, sig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) ListSignals(ctx context.Context, zoneID *uuid.UUID) ([]model.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Signal
	for _, sig := range m.signals {
		if zoneID == nil || sig.ZoneID == *zoneID {
			out = append(out, sig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) GetSignal(ctx context.Context, id uuid.UUID) (model.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sig, ok := m.signals[id]
	if !ok {
		return model.Signal{}, store.ErrNotFound
	}
	return sig, nil
}

func (m *Memory) UpdateSignal(ctx context.Context, sig model.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.signals[sig.ID]; !ok {
		return store.ErrNotFound
	}
	m.signals[sig.ID] = sig
	return nil
}

func (m *Memory) UpdateSignalsBatch(ctx context.Context, signals []model.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	for _, sig := range signals {
		if _, ok := m.signals[sig.ID]; ok {
			m.signals[sig.ID] = sig
		}
	}
	return nil
}

func (m *Memory) OverrideSignals(ctx context.Context, ids []uuid.UUID, phase model.SignalPhase, mode model.ControlMode, greenTime int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	var updated []uuid.UUID
	for _, id := range ids {
		sig, ok := m.signals[id]
		if !ok {
			continue
		}
		sig.CurrentPhase = phase
		sig.Mode = mode
		sig.GreenTime = greenTime
		m.signals[id] = sig
		updated = append(updated, id)
	}
	return updated, nil
}

func (m *Memory) RestoreSignals(ctx context.Context, ids []uuid.UUID, mode model.ControlMode, greenTime int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	var updated []uuid.UUID
	for _, id := range ids {
		sig, ok := m.signals[id]
		if !ok {
			continue
		}
		sig.Mode = mode
		sig.GreenTime = greenTime
		m.signals[id] = sig
		updated = append(updated, id)
	}
	return updated, nil
}

func (m *Memory) InsertTrafficLogs(ctx context.Context, logs []model.TrafficLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	m.logs = append(m.logs, logs...)
	return nil
}

func (m *Memory) ListTrafficLogs(ctx context.Context, signalIDs []uuid.UUID, from, to time.Time, limit int) ([]model.TrafficLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[uuid.UUID]bool, len(signalIDs))
	for _, id := range signalIDs {
		wanted[id] = true
	}

	var out []model.TrafficLog
	for _, entry := range m.logs {
		if entry.Timestamp.Before(from) || entry.Timestamp.After(to) {
			continue
		}
		if len(wanted) > 0 && !wanted[entry.SignalID] {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CreateCorridor(ctx context.Context, c model.Corridor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	m.corridors[c.ID] = c
	return nil
}

func (m *Memory) GetCorridor(ctx context.Context, id uuid.UUID) (model.Corridor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.corridors[id]
	if !ok {
		return model.Corridor{}, store.ErrNotFound
	}
	return c, nil
}

func (m *Memory) ListActiveCorridors(ctx context.Context) ([]model.Corridor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Corridor
	for _, c := range m.corridors {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) DeactivateCorridor(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}
	c, ok := m.corridors[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Active = false
	m.corridors[id] = c
	return nil
}

func (m *Memory) ActiveCorridorSignalIDs(ctx context.Context, exclude uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	claimed := make(map[uuid.UUID]bool)
	for _, c := range m.corridors {
		if !c.Active || c.ID == exclude {
			continue
		}
		for _, id := range c.ClearedSignalIDs {
			claimed[id] = true
		}
	}
	return claimed, nil
}
