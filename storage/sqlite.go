package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"rmb_tracker/models"
)

// SQLiteStore is the local operational store: run history, run logs, and
// pending commands for the daemon. Domain data lives in Postgres.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		run_type TEXT,
		platform TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		jobs_found INTEGER,
		jobs_inserted INTEGER,
		jobs_updated INTEGER,
		jobs_unchanged INTEGER,
		jobs_skipped INTEGER,
		errors_count INTEGER,
		error_message TEXT
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		platform TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS platform_stats (
		platform TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		success_rate REAL,
		avg_run_duration_sec INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Runs
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO scrape_runs (run_type, platform, started_at, status)
		VALUES (?, ?, ?, ?)`,
		run.RunType, run.Platform, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET
			finished_at = ?, status = ?, jobs_found = ?, jobs_inserted = ?,
			jobs_updated = ?, jobs_unchanged = ?, jobs_skipped = ?,
			errors_count = ?, error_message = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.JobsFound, run.JobsInserted,
		run.JobsUpdated, run.JobsUnchanged, run.JobsSkipped,
		run.ErrorsCount, run.ErrorMessage, run.ID)
	return err
}

// GetLastRunTime returns when the most recent run of the given type
// started, or the zero time if none exists.
func (s *SQLiteStore) GetLastRunTime(runType models.RunType) (time.Time, error) {
	var started sql.NullTime
	err := s.db.QueryRow(`
		SELECT MAX(started_at) FROM scrape_runs WHERE run_type = ?`, runType).Scan(&started)
	if err != nil {
		return time.Time{}, err
	}
	if !started.Valid {
		return time.Time{}, nil
	}
	return started.Time, nil
}

// =============================================================================
// Logs
// =============================================================================

func (s *SQLiteStore) AddLog(runID *int64, level models.LogLevel, platform, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, message, platform)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, platform)
	return err
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) EnqueueCommand(cmd *models.Command) error {
	_, err := s.db.Exec(`
		INSERT INTO commands (command, params) VALUES (?, ?)`,
		cmd.Command, cmd.Params)
	return err
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, COALESCE(params, '{}'), created_at
		FROM commands
		WHERE processed_at IS NULL
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var c models.Command
		if err := rows.Scan(&c.ID, &c.Command, &c.Params, &c.CreatedAt); err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

// =============================================================================
// Platform stats
// =============================================================================

// UpdatePlatformStats recomputes the rollup row for a platform from its run
// history.
func (s *SQLiteStore) UpdatePlatformStats(platform string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO platform_stats (platform, last_run_at, last_run_status, success_rate, avg_run_duration_sec)
		SELECT
			?,
			MAX(started_at),
			(SELECT status FROM scrape_runs WHERE platform = ?1 AND run_type = 'scrape' ORDER BY started_at DESC LIMIT 1),
			AVG(CASE WHEN status = 'completed' THEN 1.0 ELSE 0.0 END),
			CAST(AVG(strftime('%s', finished_at) - strftime('%s', started_at)) AS INTEGER)
		FROM scrape_runs
		WHERE platform = ?1 AND run_type = 'scrape' AND finished_at IS NOT NULL`,
		platform)
	return err
}

func (s *SQLiteStore) GetPlatformStats(platform string) (*models.PlatformStats, error) {
	row := s.db.QueryRow(`
		SELECT platform, last_run_at, last_run_status, success_rate, avg_run_duration_sec
		FROM platform_stats WHERE platform = ?`, platform)

	var st models.PlatformStats
	var lastRun sql.NullTime
	var lastStatus sql.NullString
	var successRate sql.NullFloat64
	var avgDur sql.NullInt64
	err := row.Scan(&st.Platform, &lastRun, &lastStatus, &successRate, &avgDur)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		st.LastRunAt = &lastRun.Time
	}
	st.LastRunStatus = lastStatus.String
	st.SuccessRate = successRate.Float64
	st.AvgRunDurationSec = int(avgDur.Int64)
	return &st, nil
}
