package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/terminal-bench/urbanflow/internal/model"
)

// CreateZone provisions a zone row.
func (s *Store) CreateZone(ctx context.Context, z model.Zone) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO zones (id, name, city, latitude, longitude, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		z.ID, z.Name, z.City, z.Latitude, z.Longitude, z.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create zone: %w", err)
	}
	return nil
}

// GetZone returns one zone by id.
func (s *Store) GetZone(ctx context.Context, id uuid.UUID) (model.Zone, error) {
	var z model.Zone
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, city, latitude, longitude, created_at FROM zones WHERE id = $1`,
		id,
	).Scan(&z.ID, &z.Name, &z.City, &z.Latitude, &z.Longitude, &z.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Zone{}, ErrNotFound
	}
	if err != nil {
		return model.Zone{}, fmt.Errorf("get zone: %w", err)
	}
	return z, nil
}

// ListZones returns all zones.
func (s *Store) ListZones(ctx context.Context) ([]model.Zone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, city, latitude, longitude, created_at FROM zones ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()

	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		if err := rows.Scan(&z.ID, &z.Name, &z.City, &z.Latitude, &z.Longitude, &z.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}
