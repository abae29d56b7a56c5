package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/terminal-bench/urbanflow/internal/model"
)

const userColumns = `id, email, password_hash, name, role, zone_id, created_at`

// GetUser returns one user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByEmail returns one user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// CreateUser provisions a user row.
func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.ZoneID, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var zoneID sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role,
		&zoneID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	if zoneID.Valid {
		id, err := uuid.Parse(zoneID.String)
		if err != nil {
			return model.User{}, fmt.Errorf("parse user zone id: %w", err)
		}
		u.ZoneID = &id
	}
	return u, nil
}
