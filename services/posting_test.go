package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"rmb_tracker/classify"
	"rmb_tracker/models"
)

// fakePostingStore keeps postings in a map keyed by the natural key.
type fakePostingStore struct {
	postings map[string]models.JobPosting
	failNext error
}

func newFakePostingStore() *fakePostingStore {
	return &fakePostingStore{postings: make(map[string]models.JobPosting)}
}

func (f *fakePostingStore) key(sourceJobID, companyID string) string {
	return companyID + "/" + sourceJobID
}

func (f *fakePostingStore) GetJobPosting(_ context.Context, sourceJobID, companyID string) (*models.JobPosting, error) {
	p, ok := f.postings[f.key(sourceJobID, companyID)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakePostingStore) UpsertJobPosting(_ context.Context, p *models.JobPosting) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.postings[f.key(p.SourceJobID, p.CompanyID)] = *p
	return nil
}

func newTestService(t *testing.T) *PostingService {
	t.Helper()
	return newTestServiceWithStore(t, nil)
}

func newTestServiceWithStore(t *testing.T, store PostingStore) *PostingService {
	t.Helper()
	classifier, err := classify.New(classify.DefaultTaxonomy())
	if err != nil {
		t.Fatalf("default taxonomy rejected: %v", err)
	}
	return NewPostingService(store, classifier)
}

func rawPosting(title string) models.RawJobPosting {
	return models.RawJobPosting{
		SourceJobID: "job-1",
		CompanyID:   "acme",
		Title:       title,
		URL:         "https://boards.greenhouse.io/acme/jobs/1",
		LocationRaw: "Austin, TX",
		ObservedAt:  time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuildPosting(t *testing.T) {
	svc := newTestService(t)

	p, err := svc.BuildPosting(rawPosting("VP, Global Supply Chain"))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if p.Function == nil || *p.Function != models.FunctionOperations {
		t.Fatalf("function = %v, want operations", p.Function)
	}
	if p.Level == nil || *p.Level != models.LevelVP {
		t.Fatalf("level = %v, want vp", p.Level)
	}
	if p.TitleCanonical != "vp global supply chain" {
		t.Fatalf("canonical title = %q", p.TitleCanonical)
	}
	if p.LocationCity == nil || *p.LocationCity != "Austin" {
		t.Fatalf("city = %v, want Austin", p.LocationCity)
	}
	if p.LocationState == nil || *p.LocationState != "TX" {
		t.Fatalf("state = %v, want TX", p.LocationState)
	}
	if !p.FirstSeen.Equal(p.LastSeen) {
		t.Fatal("a single observation has equal seen bounds")
	}
}

func TestBuildPosting_PostedAtSeedsFirstSeen(t *testing.T) {
	svc := newTestService(t)

	raw := rawPosting("Director of Finance")
	posted := raw.ObservedAt.AddDate(0, 0, -30)
	raw.PostedAt = &posted

	p, err := svc.BuildPosting(raw)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !p.FirstSeen.Equal(posted) {
		t.Fatalf("first_seen = %s, want publish date %s", p.FirstSeen, posted)
	}
	if !p.LastSeen.Equal(raw.ObservedAt) {
		t.Fatalf("last_seen = %s, want observation date %s", p.LastSeen, raw.ObservedAt)
	}
}

func TestBuildPosting_FuturePostedAtIgnored(t *testing.T) {
	svc := newTestService(t)

	raw := rawPosting("Director of Finance")
	posted := raw.ObservedAt.AddDate(0, 0, 5)
	raw.PostedAt = &posted

	p, err := svc.BuildPosting(raw)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !p.FirstSeen.Equal(raw.ObservedAt) {
		t.Fatalf("a future publish date must not move first_seen, got %s", p.FirstSeen)
	}
}

func TestBuildPosting_UnclassifiableTitle(t *testing.T) {
	svc := newTestService(t)

	p, err := svc.BuildPosting(rawPosting("Llama Wrangler"))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if p.Function != nil || p.Level != nil {
		t.Fatalf("unknown title must classify to nil/nil, got %v/%v", p.Function, p.Level)
	}
}

func TestBuildPosting_MalformedRecords(t *testing.T) {
	svc := newTestService(t)

	cases := []struct {
		name   string
		mutate func(*models.RawJobPosting)
	}{
		{"missing source_job_id", func(r *models.RawJobPosting) { r.SourceJobID = "" }},
		{"missing company_id", func(r *models.RawJobPosting) { r.CompanyID = "" }},
		{"missing observed_at", func(r *models.RawJobPosting) { r.ObservedAt = time.Time{} }},
	}
	for _, tc := range cases {
		raw := rawPosting("Director of Finance")
		tc.mutate(&raw)
		if _, err := svc.BuildPosting(raw); !errors.Is(err, ErrMalformedRecord) {
			t.Fatalf("%s: err = %v, want ErrMalformedRecord", tc.name, err)
		}
	}
}

func TestProcessBatchIdempotent(t *testing.T) {
	store := newFakePostingStore()
	svc := newTestServiceWithStore(t, store)
	ctx := context.Background()

	first := rawPosting("Director of Operations")
	second := rawPosting("VP, Global Supply Chain")
	second.SourceJobID = "job-2"
	batch := []models.RawJobPosting{first, second}

	s1 := svc.ProcessBatch(ctx, batch)
	if s1.Found != 2 || s1.Inserted != 2 || s1.Updated != 0 || s1.Unchanged != 0 {
		t.Fatalf("first pass = %+v, want 2 found, 2 inserted", s1)
	}

	snapshot := make(map[string]models.JobPosting, len(store.postings))
	for k, v := range store.postings {
		snapshot[k] = v
	}

	s2 := svc.ProcessBatch(ctx, batch)
	if s2.Found != 2 || s2.Inserted != 0 || s2.Updated != 0 || s2.Unchanged != 2 {
		t.Fatalf("second pass = %+v, want 2 unchanged", s2)
	}

	if len(store.postings) != len(snapshot) {
		t.Fatalf("re-applying the batch changed the row count: %d -> %d", len(snapshot), len(store.postings))
	}
	for k, before := range snapshot {
		after := store.postings[k]
		if !after.Equivalent(&before) {
			t.Fatalf("re-applying the batch changed %s: %+v -> %+v", k, before, after)
		}
	}
}

func TestProcessPostingSecondObservationUpdates(t *testing.T) {
	store := newFakePostingStore()
	svc := newTestServiceWithStore(t, store)
	ctx := context.Background()

	day1 := rawPosting("Director of Operations")
	day5 := day1
	day5.Title = "Sr. Director of Operations"
	day5.ObservedAt = day1.ObservedAt.AddDate(0, 0, 4)

	r1, err := svc.ProcessPosting(ctx, day1)
	if err != nil {
		t.Fatalf("day 1: %v", err)
	}
	if !r1.Inserted {
		t.Fatalf("day 1 result = %+v, want inserted", r1)
	}

	r2, err := svc.ProcessPosting(ctx, day5)
	if err != nil {
		t.Fatalf("day 5: %v", err)
	}
	if !r2.Updated || r2.PostingID != r1.PostingID {
		t.Fatalf("day 5 result = %+v, want update of %s", r2, r1.PostingID)
	}

	stored, err := store.GetJobPosting(ctx, day1.SourceJobID, day1.CompanyID)
	if err != nil || stored == nil {
		t.Fatalf("stored posting missing: %v", err)
	}
	if !stored.FirstSeen.Equal(day1.ObservedAt) {
		t.Fatalf("first_seen = %s, must stay %s", stored.FirstSeen, day1.ObservedAt)
	}
	if !stored.LastSeen.Equal(day5.ObservedAt) {
		t.Fatalf("last_seen = %s, want %s", stored.LastSeen, day5.ObservedAt)
	}
	if stored.TitleRaw != "Sr. Director of Operations" {
		t.Fatalf("title = %q, want the newest observation", stored.TitleRaw)
	}
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	store := newFakePostingStore()
	store.failNext = errors.New("deadlock detected")
	svc := newTestServiceWithStore(t, store)

	bad := rawPosting("Director of Operations")
	bad.SourceJobID = ""
	failing := rawPosting("VP, Global Supply Chain")
	ok := rawPosting("Director of Finance")
	ok.SourceJobID = "job-3"

	summary := svc.ProcessBatch(context.Background(), []models.RawJobPosting{bad, failing, ok})

	if summary.Found != 3 || summary.Skipped != 1 || summary.Failed != 1 || summary.Inserted != 1 {
		t.Fatalf("summary = %+v, want 3 found / 1 skipped / 1 failed / 1 inserted", summary)
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("errors = %v, want the store failure only", summary.Errors)
	}
}

func TestRepeatedObservationsCollapse(t *testing.T) {
	svc := newTestService(t)

	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	day5 := day1.AddDate(0, 0, 4)

	first := rawPosting("Director of Operations")
	first.SourceJobID = "123"
	first.CompanyID = "acme"
	first.ObservedAt = day1

	second := first
	second.Title = "Sr. Director of Operations"
	second.ObservedAt = day5

	p1, err := svc.BuildPosting(first)
	if err != nil {
		t.Fatalf("build day 1: %v", err)
	}
	p2, err := svc.BuildPosting(second)
	if err != nil {
		t.Fatalf("build day 5: %v", err)
	}

	merged := models.MergePostings(p1, p2)

	if !merged.FirstSeen.Equal(day1) || !merged.LastSeen.Equal(day5) {
		t.Fatalf("seen bounds = %s..%s, want %s..%s", merged.FirstSeen, merged.LastSeen, day1, day5)
	}
	if merged.Function == nil || *merged.Function != models.FunctionOperations {
		t.Fatalf("function = %v, want operations", merged.Function)
	}
	if merged.Level == nil || *merged.Level != models.LevelDirector {
		t.Fatalf("level = %v, want director", merged.Level)
	}
	if merged.TitleRaw != "Sr. Director of Operations" {
		t.Fatalf("title = %q, want the newest observation", merged.TitleRaw)
	}
}

func TestParseLocation(t *testing.T) {
	cases := []struct {
		in    string
		city  string
		state string
	}{
		{"Austin, TX", "Austin", "TX"},
		{"New York, NY", "New York", "NY"},
		{"San Francisco, California", "San Francisco", "CA"},
		{"Remote", "Remote", ""},
		{"  Boston , MA ", "Boston", "MA"},
		{"", "", ""},
	}
	for _, tc := range cases {
		city, state := ParseLocation(tc.in)
		gotCity, gotState := "", ""
		if city != nil {
			gotCity = *city
		}
		if state != nil {
			gotState = *state
		}
		if gotCity != tc.city || gotState != tc.state {
			t.Fatalf("ParseLocation(%q) = %q/%q, want %q/%q", tc.in, gotCity, gotState, tc.city, tc.state)
		}
	}
}
