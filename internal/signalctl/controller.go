// Package signalctl owns the authoritative control mode and phase cycling
// for every intersection, arbitrating between autonomous operation and
// operator overrides.
package signalctl

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/terminal-bench/urbanflow/internal/hub"
	"github.com/terminal-bench/urbanflow/internal/model"
)

var log = logrus.WithField("module", "signalctl")

// Store is the slice of the state store the controller needs.
type Store interface {
	ListActiveSignals(ctx context.Context) ([]model.Signal, error)
	UpdateSignalsBatch(ctx context.Context, signals []model.Signal) error
	OverrideSignals(ctx context.Context, ids []uuid.UUID, phase model.SignalPhase, mode model.ControlMode, greenTime int) ([]uuid.UUID, error)
	RestoreSignals(ctx context.Context, ids []uuid.UUID, mode model.ControlMode, greenTime int) ([]uuid.UUID, error)
}

// Publisher fans events out to live subscribers.
type Publisher interface {
	Publish(eventType string, data any)
}

// Controller drives phase cycling and applies operator overrides.
type Controller struct {
	store  Store
	events Publisher

	// chance is the per-tick probability that an auto signal advances.
	// Probabilistic rather than duration-accurate cycling is deliberate;
	// the timing plan is reserved for overrides.
	chance float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewController builds a controller. rng is injectable for deterministic
// tests.
func NewController(store Store, events Publisher, chance float64, rng *rand.Rand) *Controller {
	return &Controller{
		store:  store,
		events: events,
		chance: chance,
		rng:    rng,
	}
}

// AdvancePhase rolls the dice for one signal. Only active signals in auto
// mode are ever advanced; manual and semi-auto signals are returned
// untouched. The boolean reports whether the signal changed.
func (c *Controller) AdvancePhase(sig model.Signal) (model.Signal, bool) {
	if sig.Mode != model.ModeAuto || sig.Status != model.StatusActive {
		return sig, false
	}

	c.mu.Lock()
	roll := c.rng.Float64()
	c.mu.Unlock()
	if roll >= c.chance {
		return sig, false
	}

	sig.CurrentPhase = sig.CurrentPhase.Next()
	return sig, true
}

// RunPhaseCheck performs one scheduler tick: every active signal gets a
// chance to advance, changed rows commit as a single transaction, and a
// signal_update event fires per changed signal after the commit.
func (c *Controller) RunPhaseCheck(ctx context.Context) error {
	signals, err := c.store.ListActiveSignals(ctx)
	if err != nil {
		return fmt.Errorf("phase check: %w", err)
	}

	var changed []model.Signal
	for _, sig := range signals {
		if next, ok := c.AdvancePhase(sig); ok {
			changed = append(changed, next)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	if err := c.store.UpdateSignalsBatch(ctx, changed); err != nil {
		return fmt.Errorf("phase check commit: %w", err)
	}

	for _, sig := range changed {
		c.events.Publish(hub.EventSignalUpdate, map[string]any{
			"signal_id":         sig.ID,
			"signal_id_display": sig.Code,
			"phase":             sig.CurrentPhase,
			"status":            sig.Status,
		})
	}
	log.WithField("advanced", len(changed)).Debug("phase check complete")
	return nil
}

// ForceOverride puts the given signals into manual mode on the clear
// phase with an extended green time, committing as one transaction.
// Unknown ids are skipped; the ids actually updated are returned.
func (c *Controller) ForceOverride(ctx context.Context, ids []uuid.UUID, greenSeconds int) ([]uuid.UUID, error) {
	updated, err := c.store.OverrideSignals(ctx, ids, model.PhaseNorth, model.ModeManual, greenSeconds)
	if err != nil {
		return nil, fmt.Errorf("force override: %w", err)
	}
	if len(updated) < len(ids) {
		log.WithFields(logrus.Fields{
			"requested": len(ids),
			"updated":   len(updated),
		}).Warn("override skipped unknown signal ids")
	}
	return updated, nil
}

// RestoreAuto returns the given signals to autonomous cycling with the
// default green time. Same partial-result policy as ForceOverride.
func (c *Controller) RestoreAuto(ctx context.Context, ids []uuid.UUID, defaultGreenSeconds int) ([]uuid.UUID, error) {
	updated, err := c.store.RestoreSignals(ctx, ids, model.ModeAuto, defaultGreenSeconds)
	if err != nil {
		return nil, fmt.Errorf("restore auto: %w", err)
	}
	return updated, nil
}
