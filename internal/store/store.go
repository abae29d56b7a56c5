// Package store is the durable State Store: signals, zones, corridors and
// the append-only traffic log, backed by postgres. Every multi-row mutation
// commits as a single transaction; callers never observe a partially
// applied batch.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

var log = logrus.WithField("module", "store")

// Store wraps the postgres connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to postgres and verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS zones (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			city TEXT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			zone_id UUID REFERENCES zones(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id UUID PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			zone_id UUID NOT NULL REFERENCES zones(id),
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			current_phase TEXT NOT NULL,
			green_time INT NOT NULL,
			yellow_time INT NOT NULL,
			red_time INT NOT NULL,
			mode TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS traffic_logs (
			id UUID PRIMARY KEY,
			signal_id UUID NOT NULL REFERENCES signals(id),
			vehicle_count INT NOT NULL,
			pedestrian_count INT NOT NULL,
			queue_length INT NOT NULL,
			density DOUBLE PRECISION NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traffic_logs_signal_ts
			ON traffic_logs (signal_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS corridors (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			start_latitude DOUBLE PRECISION NOT NULL,
			start_longitude DOUBLE PRECISION NOT NULL,
			end_latitude DOUBLE PRECISION NOT NULL,
			end_longitude DOUBLE PRECISION NOT NULL,
			vehicle_type TEXT NOT NULL,
			priority INT NOT NULL,
			active BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			estimated_arrival TIMESTAMPTZ,
			created_by UUID
		)`,
		`CREATE TABLE IF NOT EXISTS corridor_signals (
			corridor_id UUID NOT NULL REFERENCES corridors(id),
			signal_id UUID NOT NULL REFERENCES signals(id),
			position INT NOT NULL,
			PRIMARY KEY (corridor_id, signal_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	log.Info("schema up to date")
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
