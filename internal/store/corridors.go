package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/terminal-bench/urbanflow/internal/model"
)

const corridorColumns = `id, name, start_latitude, start_longitude,
	end_latitude, end_longitude, vehicle_type, priority, active, created_at,
	estimated_arrival, created_by`

// CreateCorridor persists a corridor together with its owning-set index
// rows in one transaction.
func (s *Store) CreateCorridor(ctx context.Context, c model.Corridor) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO corridors (`+corridorColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			c.ID, c.Name, c.StartLatitude, c.StartLongitude, c.EndLatitude,
			c.EndLongitude, c.VehicleType, c.Priority, c.Active, c.CreatedAt,
			c.EstimatedArrival, c.CreatedBy,
		)
		if err != nil {
			return fmt.Errorf("create corridor: %w", err)
		}
		for i, signalID := range c.ClearedSignalIDs {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO corridor_signals (corridor_id, signal_id, position)
				 VALUES ($1, $2, $3)`,
				c.ID, signalID, i,
			)
			if err != nil {
				return fmt.Errorf("create corridor signal link: %w", err)
			}
		}
		return nil
	})
}

// GetCorridor returns one corridor with its cleared-id list in route order.
func (s *Store) GetCorridor(ctx context.Context, id uuid.UUID) (model.Corridor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+corridorColumns+` FROM corridors WHERE id = $1`, id)
	c, err := scanCorridor(row)
	if err == sql.ErrNoRows {
		return model.Corridor{}, ErrNotFound
	}
	if err != nil {
		return model.Corridor{}, fmt.Errorf("get corridor: %w", err)
	}

	c.ClearedSignalIDs, err = s.corridorSignalIDs(ctx, id)
	if err != nil {
		return model.Corridor{}, err
	}
	return c, nil
}

// ListActiveCorridors returns every corridor still marked active.
func (s *Store) ListActiveCorridors(ctx context.Context) ([]model.Corridor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+corridorColumns+` FROM corridors WHERE active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list active corridors: %w", err)
	}
	defer rows.Close()

	var corridors []model.Corridor
	for rows.Next() {
		c, err := scanCorridor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan corridor: %w", err)
		}
		corridors = append(corridors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range corridors {
		corridors[i].ClearedSignalIDs, err = s.corridorSignalIDs(ctx, corridors[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return corridors, nil
}

// DeactivateCorridor flips the active flag. The owning-set rows are kept so
// the corridor's history stays queryable.
func (s *Store) DeactivateCorridor(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE corridors SET active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate corridor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveCorridorSignalIDs returns the union of signal ids claimed by all
// active corridors, optionally excluding one corridor. This is the
// owning-set index that keeps overlapping corridors from restoring each
// other's signals.
func (s *Store) ActiveCorridorSignalIDs(ctx context.Context, exclude uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT cs.signal_id
		 FROM corridor_signals cs
		 JOIN corridors c ON c.id = cs.corridor_id
		 WHERE c.active AND c.id <> $1`, exclude)
	if err != nil {
		return nil, fmt.Errorf("active corridor signal ids: %w", err)
	}
	defer rows.Close()

	claimed := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan claimed id: %w", err)
		}
		claimed[id] = true
	}
	return claimed, rows.Err()
}

func (s *Store) corridorSignalIDs(ctx context.Context, corridorID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT signal_id FROM corridor_signals WHERE corridor_id = $1 ORDER BY position`,
		corridorID)
	if err != nil {
		return nil, fmt.Errorf("corridor signal ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan corridor signal id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCorridor(row interface{ Scan(...any) error }) (model.Corridor, error) {
	var c model.Corridor
	err := row.Scan(&c.ID, &c.Name, &c.StartLatitude, &c.StartLongitude,
		&c.EndLatitude, &c.EndLongitude, &c.VehicleType, &c.Priority,
		&c.Active, &c.CreatedAt, &c.EstimatedArrival, &c.CreatedBy)
	return c, err
}
