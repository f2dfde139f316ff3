package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/vision"
)

// EpisodeRepository stores response episodes and their scan observations.
type EpisodeRepository struct {
	db *sql.DB
}

// Episodes returns the episode repository for this store.
func (s *Store) Episodes() *EpisodeRepository {
	return &EpisodeRepository{db: s.DB()}
}

// Create stores an episode and its observations in one transaction.
func (r *EpisodeRepository) Create(ctx context.Context, e *response.EpisodeResult) error {
	if e == nil || e.ID == "" {
		return errors.New("episode id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var (
		label              sql.NullString
		bestX, bestY, conf sql.NullFloat64
		bestCX, bestCY     sql.NullInt64
	)
	if b := e.Best; b != nil {
		label = sql.NullString{String: string(b.Label), Valid: true}
		bestX = sql.NullFloat64{Float64: b.X, Valid: true}
		bestY = sql.NullFloat64{Float64: b.Y, Valid: true}
		conf = sql.NullFloat64{Float64: b.Confidence, Valid: true}
		bestCX, bestCY = nullPoint(b.Centroid)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO episodes (id, trigger, started_at, finished_at, fire_detected,
			best_label, best_x, best_y, best_confidence, best_cx, best_cy,
			centered, artifact_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Trigger), e.StartedAt.UTC(), e.FinishedAt.UTC(), e.FireDetected,
		label, bestX, bestY, conf, bestCX, bestCY,
		e.Centered, e.ArtifactPath,
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}

	for i, o := range e.Scan {
		cx, cy := nullPoint(o.Centroid)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO scan_observations (episode_id, sequence, pos, servo_x, servo_y,
				detected, confidence, cx, cy)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, i, string(o.Position.Label), o.Position.X, o.Position.Y,
			o.Detected, o.Confidence, cx, cy,
		)
		if err != nil {
			return fmt.Errorf("insert observation %s: %w", o.Position.Label, err)
		}
	}

	return tx.Commit()
}

const episodeColumns = `id, trigger, started_at, finished_at, fire_detected,
	best_label, best_x, best_y, best_confidence, best_cx, best_cy,
	centered, artifact_path`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row rowScanner) (*response.EpisodeResult, error) {
	var (
		e                  response.EpisodeResult
		trigger            string
		label              sql.NullString
		bestX, bestY, conf sql.NullFloat64
		bestCX, bestCY     sql.NullInt64
	)
	err := row.Scan(&e.ID, &trigger, &e.StartedAt, &e.FinishedAt, &e.FireDetected,
		&label, &bestX, &bestY, &conf, &bestCX, &bestCY,
		&e.Centered, &e.ArtifactPath)
	if err != nil {
		return nil, err
	}

	e.Trigger = response.Trigger(trigger)
	if label.Valid {
		e.Best = &response.BestCandidate{
			Label:      response.PositionLabel(label.String),
			X:          bestX.Float64,
			Y:          bestY.Float64,
			Confidence: conf.Float64,
			Centroid:   pointOf(bestCX, bestCY),
		}
	}
	return &e, nil
}

// GetByID returns an episode with its scan observations.
func (r *EpisodeRepository) GetByID(ctx context.Context, id string) (*response.EpisodeResult, error) {
	e, err := scanEpisode(r.db.QueryRowContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT pos, servo_x, servo_y, detected, confidence, cx, cy
		 FROM scan_observations WHERE episode_id = ? ORDER BY sequence`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	e.Scan = response.ScanReport{}
	for rows.Next() {
		var (
			o      response.ScanObservation
			pos    string
			cx, cy sql.NullInt64
		)
		if err := rows.Scan(&pos, &o.Position.X, &o.Position.Y, &o.Detected, &o.Confidence, &cx, &cy); err != nil {
			return nil, err
		}
		o.Position.Label = response.PositionLabel(pos)
		o.Centroid = pointOf(cx, cy)
		e.Scan = append(e.Scan, o)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return e, nil
}

// List returns up to limit episodes, newest first. Scan observations are
// not loaded; use GetByID for those.
func (r *EpisodeRepository) List(ctx context.Context, limit int) ([]*response.EpisodeResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	episodes := []*response.EpisodeResult{}
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return episodes, nil
}

// Delete removes an episode and its observations.
func (r *EpisodeRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM episodes WHERE id = ?`, id)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func nullPoint(p *vision.Point) (sql.NullInt64, sql.NullInt64) {
	if p == nil {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(p.X), Valid: true}, sql.NullInt64{Int64: int64(p.Y), Valid: true}
}

func pointOf(x, y sql.NullInt64) *vision.Point {
	if !x.Valid || !y.Valid {
		return nil
	}
	return &vision.Point{X: int(x.Int64), Y: int(y.Int64)}
}
