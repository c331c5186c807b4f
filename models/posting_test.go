package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func obs(id uuid.UUID, title string, firstSeen, lastSeen time.Time) JobPosting {
	return JobPosting{
		ID:          id,
		SourceJobID: "job-1",
		CompanyID:   "acme",
		TitleRaw:    title,
		FirstSeen:   firstSeen,
		LastSeen:    lastSeen,
		CreatedAt:   firstSeen,
	}
}

func TestMergePostings_WidensSeenBounds(t *testing.T) {
	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	day5 := day1.AddDate(0, 0, 4)

	id := uuid.New()
	a := obs(id, "Director of Operations", day1, day1)
	b := obs(uuid.New(), "Sr. Director of Operations", day5, day5)

	merged := MergePostings(a, b)

	if !merged.FirstSeen.Equal(day1) {
		t.Fatalf("first_seen = %s, want original %s", merged.FirstSeen, day1)
	}
	if !merged.LastSeen.Equal(day5) {
		t.Fatalf("last_seen = %s, want %s", merged.LastSeen, day5)
	}
	if merged.TitleRaw != "Sr. Director of Operations" {
		t.Fatalf("title must follow the newest observation, got %q", merged.TitleRaw)
	}
}

func TestMergePostings_StaleObservationDoesNotOverwrite(t *testing.T) {
	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	day5 := day1.AddDate(0, 0, 4)

	id := uuid.New()
	stored := obs(id, "Sr. Director of Operations", day1, day5)
	late := obs(id, "Director of Operations", day1, day1)

	merged := MergePostings(stored, late)

	if merged.TitleRaw != "Sr. Director of Operations" {
		t.Fatalf("an older observation arriving late must not overwrite the newer title, got %q", merged.TitleRaw)
	}
	if !merged.LastSeen.Equal(day5) {
		t.Fatalf("last_seen = %s, want %s", merged.LastSeen, day5)
	}
}

func TestMergePostings_Commutative(t *testing.T) {
	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	day5 := day1.AddDate(0, 0, 4)

	id := uuid.New()
	a := obs(id, "Director of Operations", day1, day1)
	b := obs(id, "Sr. Director of Operations", day5, day5)

	ab := MergePostings(a, b)
	ba := MergePostings(b, a)

	if !ab.Equivalent(&ba) {
		t.Fatalf("merge order changed the result: %+v vs %+v", ab, ba)
	}
}

func TestMergePostings_Associative(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	id := uuid.New()
	a := obs(id, "VP Finance", base, base)
	b := obs(id, "VP, Finance", base.AddDate(0, 0, 3), base.AddDate(0, 0, 3))
	c := obs(id, "VP of Finance", base.AddDate(0, 0, 7), base.AddDate(0, 0, 7))

	left := MergePostings(MergePostings(a, b), c)
	right := MergePostings(a, MergePostings(b, c))

	if !left.Equivalent(&right) {
		t.Fatalf("merge grouping changed the result: %+v vs %+v", left, right)
	}
}

func TestMergePostings_Idempotent(t *testing.T) {
	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	a := obs(uuid.New(), "Director of Operations", day1, day1)

	merged := MergePostings(a, a)
	if !merged.Equivalent(&a) {
		t.Fatalf("merging a posting with itself changed it: %+v", merged)
	}
}

func TestOpenAt(t *testing.T) {
	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	day10 := day1.AddDate(0, 0, 9)
	p := obs(uuid.New(), "Director", day1, day10)

	if !p.OpenAt(day1) || !p.OpenAt(day10) {
		t.Fatal("seen bounds are inclusive")
	}
	if !p.OpenAt(day1.AddDate(0, 0, 5)) {
		t.Fatal("posting must be open between its bounds")
	}
	if p.OpenAt(day1.AddDate(0, 0, -1)) || p.OpenAt(day10.AddDate(0, 0, 1)) {
		t.Fatal("posting must be closed outside its bounds")
	}
}

func TestIsSeniorLevel(t *testing.T) {
	for _, level := range []string{LevelDirector, LevelVP, LevelSVP, LevelCLevel} {
		if !IsSeniorLevel(level) {
			t.Fatalf("%s must count as senior", level)
		}
	}
	if IsSeniorLevel("") || IsSeniorLevel("manager") {
		t.Fatal("non-director levels must not count as senior")
	}
}

func TestWeekStartOf(t *testing.T) {
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		// Monday maps to itself.
		{time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC), time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)},
		// Sunday maps back six days.
		{time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)},
		// Wednesday mid-week.
		{time.Date(2026, 8, 26, 23, 59, 0, 0, time.UTC), time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := WeekStartOf(tc.in); !got.Equal(tc.want) {
			t.Fatalf("WeekStartOf(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
