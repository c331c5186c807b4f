package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rmb_tracker/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// =============================================================================
// Companies
// =============================================================================

const companyColumns = `id, name, ats_platform, careers_url, sector, size,
	is_active, last_checked_at, check_failures, created_at`

func scanCompany(row pgx.Row) (*models.Company, error) {
	var c models.Company
	err := row.Scan(
		&c.ID, &c.Name, &c.ATSPlatform, &c.CareersURL, &c.Sector, &c.Size,
		&c.IsActive, &c.LastCheckedAt, &c.CheckFailures, &c.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	return scanCompany(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) ListActiveCompanies(ctx context.Context) ([]models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE is_active ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, rows.Err()
}

// ListCompanies returns every company, active or not. Metrics need the
// names of companies that have since been deactivated.
func (s *PostgresStore) ListCompanies(ctx context.Context) ([]models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, rows.Err()
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, c *models.Company) error {
	query := `
		INSERT INTO companies (id, name, ats_platform, careers_url, sector, size, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			ats_platform = EXCLUDED.ats_platform,
			careers_url = EXCLUDED.careers_url,
			sector = COALESCE(NULLIF(EXCLUDED.sector, ''), companies.sector),
			size = COALESCE(NULLIF(EXCLUDED.size, ''), companies.size),
			is_active = EXCLUDED.is_active`

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.Name, c.ATSPlatform, c.CareersURL, c.Sector, c.Size, c.IsActive, c.CreatedAt,
	)
	return err
}

// ListCompaniesForCheck returns active companies whose careers page has not
// been health-checked since the cutoff, oldest first.
func (s *PostgresStore) ListCompaniesForCheck(ctx context.Context, checkedBefore time.Time, limit int) ([]models.Company, error) {
	query := `
		SELECT ` + companyColumns + `
		FROM companies
		WHERE is_active AND (last_checked_at IS NULL OR last_checked_at < $1)
		ORDER BY last_checked_at NULLS FIRST
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, checkedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, rows.Err()
}

func (s *PostgresStore) TouchCompanyCheck(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE companies SET last_checked_at = $2, check_failures = 0 WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id, at)
	return err
}

// RecordCompanyCheckFailure bumps the failure counter and deactivates the
// company once the counter crosses maxFailures. Returns whether the company
// was deactivated by this call.
func (s *PostgresStore) RecordCompanyCheckFailure(ctx context.Context, id string, at time.Time, maxFailures int) (bool, error) {
	query := `
		UPDATE companies SET
			last_checked_at = $2,
			check_failures = check_failures + 1,
			is_active = (check_failures + 1 < $3)
		WHERE id = $1
		RETURNING NOT is_active`

	var deactivated bool
	if err := s.pool.QueryRow(ctx, query, id, at, maxFailures).Scan(&deactivated); err != nil {
		return false, err
	}
	return deactivated, nil
}

// =============================================================================
// Job postings
// =============================================================================

const postingColumns = `id, source_job_id, company_id, title_raw, title_canonical,
	function, level, location_city, location_state, is_remote, url,
	first_seen, last_seen, created_at, updated_at`

func scanPosting(row pgx.Row) (*models.JobPosting, error) {
	var p models.JobPosting
	err := row.Scan(
		&p.ID, &p.SourceJobID, &p.CompanyID, &p.TitleRaw, &p.TitleCanonical,
		&p.Function, &p.Level, &p.LocationCity, &p.LocationState, &p.IsRemote, &p.URL,
		&p.FirstSeen, &p.LastSeen, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) GetJobPosting(ctx context.Context, sourceJobID, companyID string) (*models.JobPosting, error) {
	query := `SELECT ` + postingColumns + ` FROM job_postings WHERE source_job_id = $1 AND company_id = $2`
	return scanPosting(s.pool.QueryRow(ctx, query, sourceJobID, companyID))
}

// UpsertJobPosting writes a posting keyed on (source_job_id, company_id).
// The caller merges observations before writing, and the statement itself
// applies the same rule: LEAST/GREATEST keep the seen bounds convergent,
// and descriptive fields only follow EXCLUDED when the incoming observation
// is at least as recent, so a stale concurrent writer cannot overwrite a
// newer title or classification.
func (s *PostgresStore) UpsertJobPosting(ctx context.Context, p *models.JobPosting) error {
	query := `
		INSERT INTO job_postings (
			id, source_job_id, company_id, title_raw, title_canonical,
			function, level, location_city, location_state, is_remote, url,
			first_seen, last_seen, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (source_job_id, company_id) DO UPDATE SET
			title_raw = CASE WHEN EXCLUDED.last_seen >= job_postings.last_seen THEN EXCLUDED.title_raw ELSE job_postings.title_raw END,
			title_canonical = CASE WHEN EXCLUDED.last_seen >= job_postings.last_seen THEN EXCLUDED.title_canonical ELSE job_postings.title_canonical END,
			function = CASE WHEN EXCLUDED.last_seen >= job_postings.last_seen THEN EXCLUDED.function ELSE job_postings.function END,
			level = CASE WHEN EXCLUDED.last_seen >= job_postings.last_seen THEN EXCLUDED.level ELSE job_postings.level END,
			location_city = CASE WHEN EXCLUDED.last_seen >= job_postings.last_seen THEN EXCLUDED.location_city ELSE job_postings.location_city END,
			location_state = CASE WHEN EXCLUDED.last_seen >= job_postings.last_seen THEN EXCLUDED.location_state ELSE job_postings.location_state END,
			is_remote = CASE WHEN EXCLUDED.last_seen >= job_postings.last_seen THEN EXCLUDED.is_remote ELSE job_postings.is_remote END,
			url = CASE WHEN EXCLUDED.last_seen >= job_postings.last_seen THEN EXCLUDED.url ELSE job_postings.url END,
			first_seen = LEAST(job_postings.first_seen, EXCLUDED.first_seen),
			last_seen = GREATEST(job_postings.last_seen, EXCLUDED.last_seen),
			updated_at = NOW()
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		p.ID, p.SourceJobID, p.CompanyID, p.TitleRaw, p.TitleCanonical,
		p.Function, p.Level, p.LocationCity, p.LocationState, p.IsRemote, p.URL,
		p.FirstSeen, p.LastSeen, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
}

// ListJobPostings returns the full posting snapshot. With asOf set, rows
// first seen after that date are excluded, which reconstructs the snapshot
// as it would have looked then.
func (s *PostgresStore) ListJobPostings(ctx context.Context, asOf *time.Time) ([]models.JobPosting, error) {
	query := `SELECT ` + postingColumns + ` FROM job_postings`
	var args []interface{}
	if asOf != nil {
		query += ` WHERE first_seen <= $1`
		args = append(args, *asOf)
	}
	query += ` ORDER BY company_id, source_job_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var postings []models.JobPosting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		postings = append(postings, *p)
	}
	return postings, rows.Err()
}

// =============================================================================
// Weekly metrics
// =============================================================================

// UpsertWeeklyMetric persists one computed metric document. Recomputing a
// period replaces the previous payload; a duplicate row for the same
// (week_start, metric_type, dimension) cannot occur.
func (s *PostgresStore) UpsertWeeklyMetric(ctx context.Context, m *models.WeeklyMetric) error {
	query := `
		INSERT INTO weekly_metrics (id, week_start, metric_type, dimension, payload, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (week_start, metric_type, dimension) DO UPDATE SET
			payload = EXCLUDED.payload,
			computed_at = EXCLUDED.computed_at
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		m.ID, m.WeekStart, m.MetricType, m.Dimension, m.Payload, m.ComputedAt,
	).Scan(&m.ID)
}

func (s *PostgresStore) GetWeeklyMetric(ctx context.Context, weekStart time.Time, metricType, dimension string) (*models.WeeklyMetric, error) {
	query := `
		SELECT id, week_start, metric_type, dimension, payload, computed_at
		FROM weekly_metrics
		WHERE week_start = $1 AND metric_type = $2 AND dimension = $3`

	var m models.WeeklyMetric
	err := s.pool.QueryRow(ctx, query, weekStart, metricType, dimension).Scan(
		&m.ID, &m.WeekStart, &m.MetricType, &m.Dimension, &m.Payload, &m.ComputedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// =============================================================================
// Run bookkeeping (mirror of the local SQLite records)
// =============================================================================

func (s *PostgresStore) CreateScrapeRun(ctx context.Context, run *models.ScrapeRun) error {
	query := `
		INSERT INTO scrape_runs (run_type, platform, started_at, status, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		run.RunType, run.Platform, run.StartedAt, run.Status, run.Metadata,
	).Scan(&run.ID)
}

func (s *PostgresStore) UpdateScrapeRun(ctx context.Context, run *models.ScrapeRun) error {
	query := `
		UPDATE scrape_runs SET
			finished_at = $2, status = $3, jobs_found = $4, jobs_inserted = $5,
			jobs_updated = $6, jobs_unchanged = $7, jobs_skipped = $8,
			errors_count = $9, error_message = $10, metadata = $11
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.FinishedAt, run.Status, run.JobsFound, run.JobsInserted,
		run.JobsUpdated, run.JobsUnchanged, run.JobsSkipped,
		run.ErrorsCount, run.ErrorMessage, run.Metadata,
	)
	return err
}
