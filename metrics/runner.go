package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rmb_tracker/models"
	"rmb_tracker/storage"
)

// Runner loads a consistent posting snapshot, computes the three weekly
// indices for a reference date, and persists them under the week's Monday.
// Store failures here are fatal and propagate: the downstream newsletter
// must be gated on a successful run, never on silently partial metrics.
type Runner struct {
	store *storage.PostgresStore
	opts  Options
}

func NewRunner(store *storage.PostgresStore, opts Options) *Runner {
	return &Runner{
		store: store,
		opts:  opts.withDefaults(),
	}
}

// RunResult reports what a metrics run computed and persisted.
type RunResult struct {
	ReferenceDate       time.Time    `json:"reference_date"`
	WeekStart           time.Time    `json:"week_start"`
	PostingsRead        int          `json:"postings_read"`
	InsufficientHistory bool         `json:"insufficient_history"`
	Volume              VolumeIndex  `json:"volume"`
	Stale               StaleIndex   `json:"stale"`
	Employers           TopEmployers `json:"employers"`
}

func (r *Runner) Run(ctx context.Context, refDate time.Time) (*RunResult, error) {
	refDate = refDate.UTC()

	snapshot, err := r.store.ListJobPostings(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("read postings snapshot: %w", err)
	}
	companies, err := r.store.ListCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("read companies: %w", err)
	}

	result := &RunResult{
		ReferenceDate: refDate,
		WeekStart:     models.WeekStartOf(refDate),
		PostingsRead:  len(snapshot),
		Volume:        ComputeVolumeIndex(snapshot, refDate, r.opts),
		Stale:         ComputeStaleIndex(snapshot, refDate, r.opts),
		Employers:     ComputeTopEmployers(snapshot, companies, refDate, r.opts),
	}
	result.InsufficientHistory = result.Volume.InsufficientHistory

	if result.InsufficientHistory {
		log.Warn().
			Time("reference_date", refDate).
			Msg("metrics_insufficient_history")
	}

	if err := r.persist(ctx, result, models.MetricTypeVolume, result.Volume); err != nil {
		return nil, err
	}
	if err := r.persist(ctx, result, models.MetricTypeStale, result.Stale); err != nil {
		return nil, err
	}
	if err := r.persist(ctx, result, models.MetricTypeEmployers, result.Employers); err != nil {
		return nil, err
	}

	log.Info().
		Time("week_start", result.WeekStart).
		Int("postings_read", result.PostingsRead).
		Msg("metrics_compute_completed")

	return result, nil
}

func (r *Runner) persist(ctx context.Context, result *RunResult, metricType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", metricType, err)
	}

	metric := &models.WeeklyMetric{
		ID:         uuid.New(),
		WeekStart:  result.WeekStart,
		MetricType: metricType,
		Payload:    data,
		ComputedAt: time.Now().UTC(),
	}
	if err := r.store.UpsertWeeklyMetric(ctx, metric); err != nil {
		return fmt.Errorf("persist %s: %w", metricType, err)
	}
	return nil
}
