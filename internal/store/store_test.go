package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/sensor"
	"github.com/ayusman/emberguard/internal/vision"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	// Verify the database file doesn't exist yet
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	tables := []string{"sensor_readings", "episodes", "scan_observations"}
	for _, table := range tables {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist after migrations: %v", table, err)
		}
	}
}

func TestNewStore_MigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 2; i++ {
		s, err := New(dbPath)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		s.Close()
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("close should not return error: %v", err)
	}

	// After closing, DB operations should fail
	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("DB operations should fail after close")
	}
	if err := s.Ensure(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Ensure after close = %v, want ErrClosed", err)
	}
}

func TestStore_ForeignKeysEnabled(t *testing.T) {
	s := newTestStore(t)

	var fkEnabled int
	if err := s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("failed to check foreign keys pragma: %v", err)
	}
	if fkEnabled != 1 {
		t.Error("foreign keys should be enabled")
	}
}

func TestStore_IndexesCreated(t *testing.T) {
	s := newTestStore(t)

	indexes := []string{
		"idx_sensor_readings_recorded_at",
		"idx_episodes_started_at",
		"idx_scan_observations_episode_id",
	}
	for _, idx := range indexes {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
			idx,
		).Scan(&name)
		if err != nil {
			t.Errorf("index %q should exist after migrations: %v", idx, err)
		}
	}
}

func TestStore_EnsureHealthy(t *testing.T) {
	s := newTestStore(t)
	before := s.DB()

	if err := s.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if s.DB() != before {
		t.Error("healthy connection should not be replaced")
	}
}

func TestStore_EnsureReconnects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Simulate a dropped connection
	s.DB().Close()

	if err := s.Ensure(ctx); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := s.RecordSample(ctx, sensor.Sample{GasLevel: 10, Temperature: 20}); err != nil {
		t.Fatalf("RecordSample after reconnect: %v", err)
	}

	var fkEnabled int
	if err := s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil || fkEnabled != 1 {
		t.Errorf("foreign keys after reconnect = %d, %v", fkEnabled, err)
	}
}

func TestReadingRepository_InsertAndLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Readings()

	if _, err := repo.Latest(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Latest on empty table = %v, want ErrNotFound", err)
	}

	at := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	for i, gas := range []float64{12.5, 30.1, 64.4} {
		_, err := repo.Insert(ctx, sensor.Sample{
			GasLevel:    gas,
			Temperature: 24 + float64(i),
			Timestamp:   at.Add(time.Duration(i) * 2 * time.Second),
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	latest, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.GasLevel != 64.4 || latest.Temperature != 26 {
		t.Errorf("Latest = %+v", latest)
	}
	if !latest.RecordedAt.Equal(at.Add(4 * time.Second)) {
		t.Errorf("RecordedAt = %v", latest.RecordedAt)
	}

	list, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].GasLevel != 64.4 || list[1].GasLevel != 30.1 {
		t.Errorf("List(2) = %+v", list)
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func sampleEpisode(id string, started time.Time) *response.EpisodeResult {
	grid := response.Grid()
	return &response.EpisodeResult{
		ID:         id,
		Trigger:    response.TriggerCritical,
		StartedAt:  started,
		FinishedAt: started.Add(40 * time.Second),
		Scan: response.ScanReport{
			{Position: grid[0], Detected: false},
			{Position: grid[1], Detected: true, Confidence: 0.62, Centroid: &vision.Point{X: 300, Y: 200}},
			{Position: grid[4], Detected: true, Confidence: 0.91, Centroid: &vision.Point{X: 330, Y: 250}},
		},
		Best: &response.BestCandidate{
			Label:      response.MM,
			X:          0.47,
			Y:          0.52,
			Confidence: 0.93,
			Centroid:   &vision.Point{X: 322, Y: 241},
		},
		FireDetected: true,
		ArtifactPath: "/tmp/fire_detected.jpg",
		Centered:     1,
	}
}

func TestEpisodeRepository_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	if err := s.Report(ctx, sampleEpisode("ep-1", started)); err != nil {
		t.Fatalf("Report: %v", err)
	}

	got, err := s.Episodes().GetByID(ctx, "ep-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if got.Trigger != response.TriggerCritical || !got.FireDetected || got.Centered != 1 {
		t.Errorf("episode = %+v", got)
	}
	if !got.StartedAt.Equal(started) || got.Duration() != 40*time.Second {
		t.Errorf("times = %v .. %v", got.StartedAt, got.FinishedAt)
	}
	if got.Best == nil || got.Best.Label != response.MM || got.Best.Confidence != 0.93 {
		t.Fatalf("best = %+v", got.Best)
	}
	if got.Best.Centroid == nil || *got.Best.Centroid != (vision.Point{X: 322, Y: 241}) {
		t.Errorf("best centroid = %v", got.Best.Centroid)
	}

	if len(got.Scan) != 3 {
		t.Fatalf("scan len = %d, want 3", len(got.Scan))
	}
	wantOrder := []response.PositionLabel{response.TL, response.TM, response.MM}
	for i, o := range got.Scan {
		if o.Position.Label != wantOrder[i] {
			t.Errorf("scan[%d] = %s, want %s", i, o.Position.Label, wantOrder[i])
		}
	}
	if got.Scan[0].Centroid != nil || got.Scan[0].Detected {
		t.Errorf("scan[0] = %+v", got.Scan[0])
	}
	if got.Scan[2].Position.X != 0.5 || got.Scan[2].Confidence != 0.91 {
		t.Errorf("scan[2] = %+v", got.Scan[2])
	}
}

func TestEpisodeRepository_NoBest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := sampleEpisode("quiet", time.Now())
	e.Best = nil
	e.FireDetected = false
	e.Trigger = response.TriggerPeriodic
	if err := s.Episodes().Create(ctx, e); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Episodes().GetByID(ctx, "quiet")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Best != nil {
		t.Errorf("best = %+v, want nil", got.Best)
	}
}

func TestEpisodeRepository_GetMissing(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Episodes().GetByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID = %v, want ErrNotFound", err)
	}
}

func TestEpisodeRepository_RejectsMissingID(t *testing.T) {
	s := newTestStore(t)

	if err := s.Episodes().Create(context.Background(), &response.EpisodeResult{}); err == nil {
		t.Error("Create without id should fail")
	}
}

func TestEpisodeRepository_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := s.Report(ctx, sampleEpisode(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Report %s: %v", id, err)
		}
	}

	list, err := s.Episodes().List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List len = %d", len(list))
	}
	if list[0].ID != "c" || list[2].ID != "a" {
		t.Errorf("order = %s %s %s", list[0].ID, list[1].ID, list[2].ID)
	}
	if list[0].Scan != nil {
		t.Error("List should not load observations")
	}
}

func TestEpisodeRepository_DeleteCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Report(ctx, sampleEpisode("gone", time.Now())); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := s.Episodes().Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM scan_observations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("observations left = %d, want 0", n)
	}
	if err := s.Episodes().Delete(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestEpisodeRepository_DuplicateIDRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Report(ctx, sampleEpisode("dup", time.Now())); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := s.Report(ctx, sampleEpisode("dup", time.Now())); err == nil {
		t.Fatal("duplicate id should fail")
	}

	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM scan_observations WHERE episode_id = 'dup'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("observations = %d, want 3", n)
	}
}
