package store

import "database/sql"

// migrate runs all database migrations
func migrate(db *sql.DB) error {
	migrations := []string{
		// One row per athlete that completed the OAuth flow
		`CREATE TABLE IF NOT EXISTS credentials (
			external_user_id INTEGER PRIMARY KEY,
			display_name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			token_expiry TEXT NOT NULL,
			last_synced_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			last_login_at TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1
		)`,

		// Activities (summary data from /athlete/activities), insert-only
		`CREATE TABLE IF NOT EXISTS activities (
			activity_id INTEGER PRIMARY KEY,
			owner_user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			start_date TEXT NOT NULL,
			distance REAL,
			moving_time INTEGER,
			elapsed_time INTEGER,
			average_speed REAL,
			max_speed REAL,
			total_elevation_gain REAL,
			elev_high REAL,
			average_heartrate REAL,
			max_heartrate REAL,
			ingested_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_activities_owner ON activities(owner_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_start_date ON activities(start_date)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}
