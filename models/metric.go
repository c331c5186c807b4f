package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Metric types persisted to weekly_metrics
const (
	MetricTypeVolume    = "volume_index"
	MetricTypeStale     = "stale_search_index"
	MetricTypeEmployers = "top_employers"
)

// WeeklyMetric is one computed metric document for one period. The store
// enforces uniqueness on (week_start, metric_type, dimension); re-running a
// period replaces the payload rather than inserting a duplicate row.
// Dimension is empty for whole-market documents and reserved for future
// per-function slices.
type WeeklyMetric struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	WeekStart  time.Time       `json:"week_start" db:"week_start"`
	MetricType string          `json:"metric_type" db:"metric_type"`
	Dimension  string          `json:"dimension" db:"dimension"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
	ComputedAt time.Time       `json:"computed_at" db:"computed_at"`
}

// WeekStartOf returns the Monday of the week containing d, truncated to
// midnight UTC. Metric rows are keyed by this date.
func WeekStartOf(d time.Time) time.Time {
	d = d.UTC()
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return day.AddDate(0, 0, -offset)
}
