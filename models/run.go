package models

import (
	"encoding/json"
	"time"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type RunType string

const (
	RunTypeScrape  RunType = "scrape"
	RunTypeMetrics RunType = "metrics"
)

// ScrapeRun is the bookkeeping record for one scheduled run. Kept in the
// local SQLite store for operational visibility and mirrored to Postgres.
type ScrapeRun struct {
	ID            int64           `json:"id" db:"id"`
	RunType       RunType         `json:"run_type" db:"run_type"`
	Platform      string          `json:"platform" db:"platform"` // ats platform, or "all"
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at" db:"finished_at"`
	Status        RunStatus       `json:"status" db:"status"`
	JobsFound     int             `json:"jobs_found" db:"jobs_found"`
	JobsInserted  int             `json:"jobs_inserted" db:"jobs_inserted"`
	JobsUpdated   int             `json:"jobs_updated" db:"jobs_updated"`
	JobsUnchanged int             `json:"jobs_unchanged" db:"jobs_unchanged"`
	JobsSkipped   int             `json:"jobs_skipped" db:"jobs_skipped"`
	ErrorsCount   int             `json:"errors_count" db:"errors_count"`
	ErrorMessage  string          `json:"error_message" db:"error_message"`
	Metadata      json.RawMessage `json:"metadata" db:"metadata"`
}

// RunSummary is the structured result an entry point hands back to its
// caller (scheduler, CLI), which owns logging and alerting on it.
type RunSummary struct {
	Found     int      `json:"found"`
	Inserted  int      `json:"inserted"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

func (s *RunSummary) Add(o RunSummary) {
	s.Found += o.Found
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Unchanged += o.Unchanged
	s.Skipped += o.Skipped
	s.Failed += o.Failed
	s.Errors = append(s.Errors, o.Errors...)
}

func (s *RunSummary) ToJSON() json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

// PlatformStats is the per-ATS rollup shown by operational tooling.
type PlatformStats struct {
	Platform          string     `json:"platform" db:"platform"`
	LastRunAt         *time.Time `json:"last_run_at" db:"last_run_at"`
	LastRunStatus     string     `json:"last_run_status" db:"last_run_status"`
	TotalPostings     int        `json:"total_postings" db:"total_postings"`
	ActiveCompanies   int        `json:"active_companies" db:"active_companies"`
	SuccessRate       float64    `json:"success_rate" db:"success_rate"`
	AvgRunDurationSec int        `json:"avg_run_duration_sec" db:"avg_run_duration_sec"`
}
