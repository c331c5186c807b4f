package metrics

import (
	"time"

	"rmb_tracker/models"
)

// ComputeStaleIndex computes the per-function share of open Director+
// postings older than StaleDays at refDate and at refDate-CompareDays.
func ComputeStaleIndex(snapshot []models.JobPosting, refDate time.Time, opts Options) StaleIndex {
	opts = opts.withDefaults()
	compareDate := refDate.AddDate(0, 0, -opts.CompareDays)

	idx := StaleIndex{
		ReferenceDate:       refDate,
		ComparisonDate:      compareDate,
		StaleDays:           opts.StaleDays,
		InsufficientHistory: insufficientHistory(snapshot, compareDate),
	}

	for _, fn := range opts.Functions {
		total, stale := stalenessAt(snapshot, fn, refDate, opts.StaleDays)
		prevTotal, prevStale := stalenessAt(snapshot, fn, compareDate, opts.StaleDays)

		fs := FunctionStaleness{
			Function: fn,
			Total:    total,
			Stale:    stale,
		}
		if total == 0 {
			fs.NoData = true
		} else {
			pct := 100 * float64(stale) / float64(total)
			fs.StalePct = &pct
		}
		if prevTotal > 0 {
			prev := 100 * float64(prevStale) / float64(prevTotal)
			fs.PreviousPct = &prev
		}
		if fs.StalePct != nil && fs.PreviousPct != nil {
			delta := *fs.StalePct - *fs.PreviousPct
			fs.DeltaPts = &delta
		}

		idx.Functions = append(idx.Functions, fs)
	}

	return idx
}

func stalenessAt(snapshot []models.JobPosting, function string, d time.Time, staleDays int) (total, stale int) {
	cutoff := d.AddDate(0, 0, -staleDays)
	for i := range snapshot {
		p := &snapshot[i]
		if p.Function == nil || *p.Function != function {
			continue
		}
		if p.Level == nil || !models.IsSeniorLevel(*p.Level) || !p.OpenAt(d) {
			continue
		}
		total++
		if p.FirstSeen.Before(cutoff) {
			stale++
		}
	}
	return total, stale
}
