package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/terminal-bench/urbanflow/internal/model"
)

const signalColumns = `id, code, zone_id, latitude, longitude, status,
	current_phase, green_time, yellow_time, red_time, mode, created_at`

func scanSignal(row interface{ Scan(...any) error }) (model.Signal, error) {
	var sig model.Signal
	err := row.Scan(&sig.ID, &sig.Code, &sig.ZoneID, &sig.Latitude, &sig.Longitude,
		&sig.Status, &sig.CurrentPhase, &sig.GreenTime, &sig.YellowTime,
		&sig.RedTime, &sig.Mode, &sig.CreatedAt)
	return sig, err
}

// CreateSignal provisions a new signal row.
func (s *Store) CreateSignal(ctx context.Context, sig model.Signal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (`+signalColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sig.ID, sig.Code, sig.ZoneID, sig.Latitude, sig.Longitude, sig.Status,
		sig.CurrentPhase, sig.GreenTime, sig.YellowTime, sig.RedTime, sig.Mode,
		sig.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create signal: %w", err)
	}
	return nil
}

// GetSignal returns one signal by internal id.
func (s *Store) GetSignal(ctx context.Context, id uuid.UUID) (model.Signal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE id = $1`, id)
	sig, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return model.Signal{}, ErrNotFound
	}
	if err != nil {
		return model.Signal{}, fmt.Errorf("get signal: %w", err)
	}
	return sig, nil
}

// ListSignals returns all signals, optionally filtered by zone.
func (s *Store) ListSignals(ctx context.Context, zoneID *uuid.UUID) ([]model.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals`
	args := []any{}
	if zoneID != nil {
		query += ` WHERE zone_id = $1`
		args = append(args, *zoneID)
	}
	query += ` ORDER BY code`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	return collectSignals(rows)
}

// ListActiveSignals returns every signal with status active.
func (s *Store) ListActiveSignals(ctx context.Context) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE status = $1 ORDER BY code`,
		model.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active signals: %w", err)
	}
	defer rows.Close()

	return collectSignals(rows)
}

func collectSignals(rows *sql.Rows) ([]model.Signal, error) {
	var signals []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// UpdateSignal rewrites the mutable fields of one signal row.
func (s *Store) UpdateSignal(ctx context.Context, sig model.Signal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE signals SET status = $2, current_phase = $3, green_time = $4,
			yellow_time = $5, red_time = $6, mode = $7
		 WHERE id = $1`,
		sig.ID, sig.Status, sig.CurrentPhase, sig.GreenTime, sig.YellowTime,
		sig.RedTime, sig.Mode,
	)
	if err != nil {
		return fmt.Errorf("update signal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSignalsBatch commits a set of signal updates as one transaction.
// Either every row is applied or none is.
func (s *Store) UpdateSignalsBatch(ctx context.Context, signals []model.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, sig := range signals {
			_, err := tx.ExecContext(ctx,
				`UPDATE signals SET status = $2, current_phase = $3, green_time = $4,
					yellow_time = $5, red_time = $6, mode = $7
				 WHERE id = $1`,
				sig.ID, sig.Status, sig.CurrentPhase, sig.GreenTime,
				sig.YellowTime, sig.RedTime, sig.Mode,
			)
			if err != nil {
				return fmt.Errorf("update signal %s: %w", sig.ID, err)
			}
		}
		return nil
	})
}

// OverrideSignals forces the given signals into a phase/mode/green-time
// combination in one transaction. Unknown ids are skipped; the ids actually
// updated are returned.
func (s *Store) OverrideSignals(ctx context.Context, ids []uuid.UUID, phase model.SignalPhase, mode model.ControlMode, greenTime int) ([]uuid.UUID, error) {
	return s.setSignalControl(ctx, ids, &phase, mode, greenTime)
}

// RestoreSignals returns the given signals to a control mode with the given
// green time, leaving the current phase untouched. Same partial-result
// policy as OverrideSignals.
func (s *Store) RestoreSignals(ctx context.Context, ids []uuid.UUID, mode model.ControlMode, greenTime int) ([]uuid.UUID, error) {
	return s.setSignalControl(ctx, ids, nil, mode, greenTime)
}

func (s *Store) setSignalControl(ctx context.Context, ids []uuid.UUID, phase *model.SignalPhase, mode model.ControlMode, greenTime int) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	idStrs := lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })

	var updated []uuid.UUID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE signals SET mode = $2, green_time = $3`
		args := []any{pq.Array(idStrs), mode, greenTime}
		if phase != nil {
			query += `, current_phase = $4`
			args = append(args, *phase)
		}
		query += ` WHERE id = ANY($1) RETURNING id`

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("set signal control: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scan updated id: %w", err)
			}
			updated = append(updated, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
