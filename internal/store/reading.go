package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ayusman/emberguard/internal/sensor"
)

// Reading is a stored sensor sample.
type Reading struct {
	ID          int64     `json:"id"`
	Temperature float64   `json:"temperature"`
	GasLevel    float64   `json:"gas_level"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ReadingRepository stores sensor readings.
type ReadingRepository struct {
	db *sql.DB
}

// Readings returns the reading repository for this store.
func (s *Store) Readings() *ReadingRepository {
	return &ReadingRepository{db: s.DB()}
}

// Insert stores a sample and returns the stored row.
func (r *ReadingRepository) Insert(ctx context.Context, s sensor.Sample) (*Reading, error) {
	recorded := s.Timestamp
	if recorded.IsZero() {
		recorded = time.Now()
	}
	recorded = recorded.UTC()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sensor_readings (temperature, gas_level, recorded_at) VALUES (?, ?, ?)`,
		s.Temperature, s.GasLevel, recorded,
	)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &Reading{ID: id, Temperature: s.Temperature, GasLevel: s.GasLevel, RecordedAt: recorded}, nil
}

// Latest returns the most recent reading.
func (r *ReadingRepository) Latest(ctx context.Context) (*Reading, error) {
	rd := &Reading{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, temperature, gas_level, recorded_at
		 FROM sensor_readings ORDER BY id DESC LIMIT 1`,
	).Scan(&rd.ID, &rd.Temperature, &rd.GasLevel, &rd.RecordedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rd, nil
}

// List returns up to limit readings, newest first.
func (r *ReadingRepository) List(ctx context.Context, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, temperature, gas_level, recorded_at
		 FROM sensor_readings ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := []Reading{}
	for rows.Next() {
		var rd Reading
		if err := rows.Scan(&rd.ID, &rd.Temperature, &rd.GasLevel, &rd.RecordedAt); err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return readings, nil
}

// Count returns the number of stored readings.
func (r *ReadingRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensor_readings`).Scan(&n)
	return n, err
}
