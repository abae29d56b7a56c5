package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/terminal-bench/urbanflow/internal/model"
)

// InsertTrafficLogs appends a batch of measurements in one transaction.
// The traffic log is append-only; rows are never updated or deleted.
func (s *Store) InsertTrafficLogs(ctx context.Context, logs []model.TrafficLog) error {
	if len(logs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO traffic_logs
				(id, signal_id, vehicle_count, pedestrian_count, queue_length, density, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
		if err != nil {
			return fmt.Errorf("prepare traffic log insert: %w", err)
		}
		defer stmt.Close()

		for _, entry := range logs {
			_, err := stmt.ExecContext(ctx, entry.ID, entry.SignalID,
				entry.VehicleCount, entry.PedestrianCount, entry.QueueLength,
				entry.Density, entry.Timestamp)
			if err != nil {
				return fmt.Errorf("insert traffic log: %w", err)
			}
		}
		return nil
	})
}

// ListTrafficLogs returns measurements for a signal-id set within a time
// range, newest first. An empty id set matches all signals.
func (s *Store) ListTrafficLogs(ctx context.Context, signalIDs []uuid.UUID, from, to time.Time, limit int) ([]model.TrafficLog, error) {
	query := `SELECT id, signal_id, vehicle_count, pedestrian_count, queue_length, density, timestamp
		FROM traffic_logs WHERE timestamp >= $1 AND timestamp <= $2`
	args := []any{from, to}

	if len(signalIDs) > 0 {
		idStrs := lo.Map(signalIDs, func(id uuid.UUID, _ int) string { return id.String() })
		query += ` AND signal_id = ANY($3)`
		args = append(args, pq.Array(idStrs))
	}
	query += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list traffic logs: %w", err)
	}
	defer rows.Close()

	var logs []model.TrafficLog
	for rows.Next() {
		var entry model.TrafficLog
		err := rows.Scan(&entry.ID, &entry.SignalID, &entry.VehicleCount,
			&entry.PedestrianCount, &entry.QueueLength, &entry.Density,
			&entry.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan traffic log: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
