package metrics

import (
	"testing"
	"time"

	"rmb_tracker/models"
)

var refDate = time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }

func posting(company, function, level string, firstSeen, lastSeen time.Time) models.JobPosting {
	p := models.JobPosting{
		CompanyID: company,
		FirstSeen: firstSeen,
		LastSeen:  lastSeen,
	}
	if function != "" {
		p.Function = strp(function)
	}
	if level != "" {
		p.Level = strp(level)
	}
	return p
}

func days(n int) time.Time { return refDate.AddDate(0, 0, n) }

func TestComputeVolumeIndex(t *testing.T) {
	snapshot := []models.JobPosting{
		// Open at both dates.
		posting("a", models.FunctionOperations, models.LevelDirector, days(-30), days(0)),
		posting("a", models.FunctionOperations, models.LevelVP, days(-30), days(0)),
		posting("b", models.FunctionOperations, models.LevelDirector, days(-30), days(0)),
		// Opened inside the window: current only.
		posting("b", models.FunctionOperations, models.LevelSVP, days(-7), days(0)),
		posting("c", models.FunctionOperations, models.LevelCLevel, days(-3), days(0)),
		// Closed before the reference date: previous only.
		posting("c", models.FunctionFinance, models.LevelDirector, days(-40), days(-10)),
		// Below director: never counted.
		posting("a", models.FunctionOperations, "", days(-30), days(0)),
		// Unclassified: never counted.
		posting("a", "", models.LevelDirector, days(-30), days(0)),
	}

	idx := ComputeVolumeIndex(snapshot, refDate, Options{
		Functions: []string{models.FunctionOperations, models.FunctionFinance},
	})

	if idx.InsufficientHistory {
		t.Fatal("history goes back past the comparison date")
	}
	if len(idx.Functions) != 2 {
		t.Fatalf("expected 2 function rows, got %d", len(idx.Functions))
	}

	ops := idx.Functions[0]
	if ops.Function != models.FunctionOperations {
		t.Fatalf("row order must follow the configured function order, got %s first", ops.Function)
	}
	if ops.Current != 5 || ops.Previous != 3 || ops.Delta != 2 {
		t.Fatalf("operations = %d/%d/%+d, want 5/3/+2", ops.Current, ops.Previous, ops.Delta)
	}

	fin := idx.Functions[1]
	if fin.Current != 0 || fin.Previous != 1 || fin.Delta != -1 {
		t.Fatalf("finance = %d/%d/%+d, want 0/1/-1", fin.Current, fin.Previous, fin.Delta)
	}

	if idx.TotalCurrent != 5 || idx.TotalPrevious != 4 || idx.TotalDelta != 1 {
		t.Fatalf("totals = %d/%d/%+d, want 5/4/+1", idx.TotalCurrent, idx.TotalPrevious, idx.TotalDelta)
	}
}

func TestComputeVolumeIndex_InsufficientHistory(t *testing.T) {
	snapshot := []models.JobPosting{
		posting("a", models.FunctionOperations, models.LevelDirector, days(-7), days(0)),
	}

	idx := ComputeVolumeIndex(snapshot, refDate, Options{
		Functions: []string{models.FunctionOperations},
	})

	if !idx.InsufficientHistory {
		t.Fatal("no posting observed by the comparison date must flag insufficient history")
	}
	// The counts are still computed; the flag tells the reader not to
	// trust the comparison column.
	if idx.Functions[0].Current != 1 {
		t.Fatalf("current = %d, want 1", idx.Functions[0].Current)
	}
}

func TestComputeStaleIndex(t *testing.T) {
	snapshot := []models.JobPosting{
		// 90 days open: stale at both dates.
		posting("a", models.FunctionOperations, models.LevelDirector, days(-90), days(0)),
		// 30 days open: fresh.
		posting("a", models.FunctionOperations, models.LevelVP, days(-30), days(0)),
		// Not director+: excluded entirely.
		posting("a", models.FunctionOperations, "", days(-90), days(0)),
	}

	idx := ComputeStaleIndex(snapshot, refDate, Options{
		StaleDays: 60,
		Functions: []string{models.FunctionOperations, models.FunctionFinance},
	})

	ops := idx.Functions[0]
	if ops.Total != 2 || ops.Stale != 1 {
		t.Fatalf("operations = %d total / %d stale, want 2/1", ops.Total, ops.Stale)
	}
	if ops.StalePct == nil || *ops.StalePct != 50 {
		t.Fatalf("stale pct = %v, want 50", ops.StalePct)
	}
	if ops.NoData {
		t.Fatal("function with postings must not be flagged no-data")
	}
	if ops.PreviousPct == nil || *ops.PreviousPct != 50 {
		t.Fatalf("previous pct = %v, want 50", ops.PreviousPct)
	}
	if ops.DeltaPts == nil || *ops.DeltaPts != 0 {
		t.Fatalf("delta pts = %v, want 0", ops.DeltaPts)
	}

	fin := idx.Functions[1]
	if !fin.NoData {
		t.Fatal("function with no open postings must be flagged no-data")
	}
	if fin.StalePct != nil || fin.DeltaPts != nil {
		t.Fatal("no-data function must carry nil percentages, not zero")
	}
}

func TestComputeTopEmployers(t *testing.T) {
	companies := []models.Company{
		{ID: "a", Name: "Acme"},
		{ID: "b", Name: "Beta"},
		{ID: "c", Name: "Carbon"},
		{ID: "d", Name: "Delta"},
	}
	snapshot := []models.JobPosting{
		posting("a", models.FunctionOperations, models.LevelDirector, days(-3), days(0)),
		posting("a", models.FunctionFinance, models.LevelVP, days(-5), days(0)),
		posting("b", models.FunctionGTM, models.LevelDirector, days(-14), days(0)), // window start inclusive
		posting("c", models.FunctionProduct, models.LevelSVP, days(-1), days(0)),
		// Outside the window: excluded.
		posting("d", models.FunctionOperations, models.LevelDirector, days(-15), days(0)),
		// Not director+: excluded.
		posting("d", models.FunctionOperations, "", days(-3), days(0)),
	}

	top := ComputeTopEmployers(snapshot, companies, refDate, Options{})

	if len(top.Entries) != 3 {
		t.Fatalf("expected 3 employers, got %d", len(top.Entries))
	}
	if top.Entries[0].CompanyID != "a" || top.Entries[0].Postings != 2 {
		t.Fatalf("first = %s/%d, want a/2", top.Entries[0].CompanyID, top.Entries[0].Postings)
	}
	// Beta and Carbon tie at 1; alphabetical name order breaks the tie.
	if top.Entries[1].CompanyName != "Beta" || top.Entries[2].CompanyName != "Carbon" {
		t.Fatalf("tie-break order wrong: %s, %s", top.Entries[1].CompanyName, top.Entries[2].CompanyName)
	}
}

func TestComputeTopEmployers_Truncation(t *testing.T) {
	var companies []models.Company
	var snapshot []models.JobPosting
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		companies = append(companies, models.Company{ID: id, Name: id})
		snapshot = append(snapshot,
			posting(id, models.FunctionOperations, models.LevelDirector, days(-2), days(0)))
	}

	top := ComputeTopEmployers(snapshot, companies, refDate, Options{TopEmployers: 3})
	if len(top.Entries) != 3 {
		t.Fatalf("expected truncation to 3, got %d", len(top.Entries))
	}
}

func TestComputeTopEmployers_UnknownCompanyName(t *testing.T) {
	snapshot := []models.JobPosting{
		posting("ghost", models.FunctionOperations, models.LevelDirector, days(-2), days(0)),
	}
	top := ComputeTopEmployers(snapshot, nil, refDate, Options{})
	if len(top.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(top.Entries))
	}
	if top.Entries[0].CompanyName != "ghost" {
		t.Fatalf("missing company record should fall back to id, got %s", top.Entries[0].CompanyName)
	}
}
