package metrics

import (
	"sort"
	"time"

	"rmb_tracker/models"
)

// ComputeTopEmployers ranks companies by Director+ postings first seen in
// [refDate-CompareDays, refDate], descending by count with ascending
// alphabetical tie-break on company name.
func ComputeTopEmployers(snapshot []models.JobPosting, companies []models.Company, refDate time.Time, opts Options) TopEmployers {
	opts = opts.withDefaults()
	windowStart := refDate.AddDate(0, 0, -opts.CompareDays)

	names := make(map[string]string, len(companies))
	for _, c := range companies {
		names[c.ID] = c.Name
	}

	counts := make(map[string]int)
	for i := range snapshot {
		p := &snapshot[i]
		if p.Level == nil || !models.IsSeniorLevel(*p.Level) {
			continue
		}
		if p.FirstSeen.Before(windowStart) || p.FirstSeen.After(refDate) {
			continue
		}
		counts[p.CompanyID]++
	}

	entries := make([]EmployerActivity, 0, len(counts))
	for companyID, count := range counts {
		name := names[companyID]
		if name == "" {
			name = companyID
		}
		entries = append(entries, EmployerActivity{
			CompanyID:   companyID,
			CompanyName: name,
			Postings:    count,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Postings != entries[j].Postings {
			return entries[i].Postings > entries[j].Postings
		}
		return entries[i].CompanyName < entries[j].CompanyName
	})

	if len(entries) > opts.TopEmployers {
		entries = entries[:opts.TopEmployers]
	}

	return TopEmployers{
		ReferenceDate: refDate,
		WindowDays:    opts.CompareDays,
		Entries:       entries,
	}
}
