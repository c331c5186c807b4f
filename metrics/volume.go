package metrics

import (
	"time"

	"rmb_tracker/models"
)

// ComputeVolumeIndex counts open Director+ postings per function at refDate
// and at refDate-CompareDays. Unclassified postings have no function row to
// land in and are excluded.
func ComputeVolumeIndex(snapshot []models.JobPosting, refDate time.Time, opts Options) VolumeIndex {
	opts = opts.withDefaults()
	compareDate := refDate.AddDate(0, 0, -opts.CompareDays)

	current := seniorCountsByFunction(snapshot, refDate)
	previous := seniorCountsByFunction(snapshot, compareDate)

	idx := VolumeIndex{
		ReferenceDate:       refDate,
		ComparisonDate:      compareDate,
		InsufficientHistory: insufficientHistory(snapshot, compareDate),
	}

	for _, fn := range opts.Functions {
		cur, prev := current[fn], previous[fn]
		idx.Functions = append(idx.Functions, FunctionVolume{
			Function: fn,
			Current:  cur,
			Previous: prev,
			Delta:    cur - prev,
		})
		idx.TotalCurrent += cur
		idx.TotalPrevious += prev
	}
	idx.TotalDelta = idx.TotalCurrent - idx.TotalPrevious

	return idx
}

func seniorCountsByFunction(snapshot []models.JobPosting, d time.Time) map[string]int {
	counts := make(map[string]int)
	for i := range snapshot {
		p := &snapshot[i]
		if p.Function == nil || p.Level == nil {
			continue
		}
		if !models.IsSeniorLevel(*p.Level) || !p.OpenAt(d) {
			continue
		}
		counts[*p.Function]++
	}
	return counts
}

// insufficientHistory reports whether the snapshot has no posting observed
// on or before the comparison date, in which case a comparative delta would
// be a fabricated zero baseline.
func insufficientHistory(snapshot []models.JobPosting, compareDate time.Time) bool {
	for i := range snapshot {
		if !snapshot[i].FirstSeen.After(compareDate) {
			return false
		}
	}
	return true
}
