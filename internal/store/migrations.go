package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per successful scheduler tick
		`CREATE TABLE IF NOT EXISTS sensor_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			temperature REAL NOT NULL,
			gas_level REAL NOT NULL,
			recorded_at DATETIME NOT NULL
		)`,

		// One row per response episode; best_* are NULL when nothing was found
		`CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			trigger TEXT NOT NULL CHECK(trigger IN ('critical', 'periodic', 'manual')),
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			fire_detected INTEGER NOT NULL DEFAULT 0,
			best_label TEXT,
			best_x REAL,
			best_y REAL,
			best_confidence REAL,
			best_cx INTEGER,
			best_cy INTEGER,
			centered INTEGER NOT NULL DEFAULT 0,
			artifact_path TEXT NOT NULL DEFAULT ''
		)`,

		// Scan observations in visitation order
		`CREATE TABLE IF NOT EXISTS scan_observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			episode_id TEXT NOT NULL REFERENCES episodes(id) ON DELETE CASCADE,
			sequence INTEGER NOT NULL,
			pos TEXT NOT NULL,
			servo_x REAL NOT NULL,
			servo_y REAL NOT NULL,
			detected INTEGER NOT NULL,
			confidence REAL NOT NULL,
			cx INTEGER,
			cy INTEGER
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_sensor_readings_recorded_at ON sensor_readings(recorded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_started_at ON episodes(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_observations_episode_id ON scan_observations(episode_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
