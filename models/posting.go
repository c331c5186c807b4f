package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job functions, listed in classifier priority order
const (
	FunctionOperations  = "operations"
	FunctionFinance     = "finance"
	FunctionGTM         = "gtm"
	FunctionProduct     = "product"
	FunctionEngineering = "engineering"
)

// Seniority levels, listed in classifier priority order
const (
	LevelCLevel   = "c-level"
	LevelSVP      = "svp"
	LevelVP       = "vp"
	LevelDirector = "director"
)

// IsSeniorLevel reports whether level is in the Director+ set the weekly
// metrics care about.
func IsSeniorLevel(level string) bool {
	switch level {
	case LevelDirector, LevelVP, LevelSVP, LevelCLevel:
		return true
	}
	return false
}

// RawJobPosting is what a scraper adapter hands to the processing pipeline.
// CompanyID is filled in by the adapter since it knows which company it
// scraped; everything else comes off the wire.
type RawJobPosting struct {
	SourceJobID string          `json:"source_job_id"`
	CompanyID   string          `json:"company_id"`
	Title       string          `json:"title"`
	URL         string          `json:"url"`
	LocationRaw string          `json:"location_raw"`
	IsRemote    bool            `json:"is_remote"`
	SourceURL   string          `json:"source_url"`
	ObservedAt  time.Time       `json:"observed_at"`
	PostedAt    *time.Time      `json:"posted_at,omitempty"` // board-reported publish date, seeds first_seen
	Data        json.RawMessage `json:"data,omitempty"`
}

// JobPosting is the persisted record of a posting across repeated
// observations. Identified by the natural key (SourceJobID, CompanyID);
// the uuid is an internal surrogate. FirstSeen is immutable after
// creation and LastSeen only ever moves forward. Rows are never deleted:
// staleness analysis depends on retained history.
type JobPosting struct {
	ID             uuid.UUID `json:"id" db:"id"`
	SourceJobID    string    `json:"source_job_id" db:"source_job_id"`
	CompanyID      string    `json:"company_id" db:"company_id"`
	TitleRaw       string    `json:"title_raw" db:"title_raw"`
	TitleCanonical string    `json:"title_canonical" db:"title_canonical"`
	Function       *string   `json:"function" db:"function"`
	Level          *string   `json:"level" db:"level"`
	LocationCity   *string   `json:"location_city" db:"location_city"`
	LocationState  *string   `json:"location_state" db:"location_state"`
	IsRemote       bool      `json:"is_remote" db:"is_remote"`
	URL            string    `json:"url" db:"url"`
	FirstSeen      time.Time `json:"first_seen" db:"first_seen"`
	LastSeen       time.Time `json:"last_seen" db:"last_seen"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// OpenAt reports whether the posting was observable at date d.
func (p *JobPosting) OpenAt(d time.Time) bool {
	return !p.FirstSeen.After(d) && !p.LastSeen.Before(d)
}

// MergePostings merges two observations of the same natural key. It is
// commutative and associative: first_seen takes the min, last_seen the max,
// and the descriptive fields (title, classification, location, url) follow
// whichever side was seen more recently. Backing both the SQL upsert and
// in-memory reductions with the same rule means conflicting writes converge
// regardless of application order.
func MergePostings(a, b JobPosting) JobPosting {
	newer, older := b, a
	if a.LastSeen.After(b.LastSeen) {
		newer, older = a, b
	}

	merged := newer
	if older.FirstSeen.Before(newer.FirstSeen) {
		merged.FirstSeen = older.FirstSeen
	}
	// LastSeen is already max(a, b) via newer.

	if merged.ID == uuid.Nil {
		merged.ID = older.ID
	}
	if !older.CreatedAt.IsZero() && (merged.CreatedAt.IsZero() || older.CreatedAt.Before(merged.CreatedAt)) {
		merged.CreatedAt = older.CreatedAt
	}
	return merged
}

// Equivalent reports whether two records carry the same stored state,
// ignoring surrogate identity and bookkeeping timestamps. Used to decide
// whether a re-observation actually changed anything.
func (p *JobPosting) Equivalent(o *JobPosting) bool {
	return p.SourceJobID == o.SourceJobID &&
		p.CompanyID == o.CompanyID &&
		p.TitleRaw == o.TitleRaw &&
		p.TitleCanonical == o.TitleCanonical &&
		strPtrEq(p.Function, o.Function) &&
		strPtrEq(p.Level, o.Level) &&
		strPtrEq(p.LocationCity, o.LocationCity) &&
		strPtrEq(p.LocationState, o.LocationState) &&
		p.IsRemote == o.IsRemote &&
		p.URL == o.URL &&
		p.FirstSeen.Equal(o.FirstSeen) &&
		p.LastSeen.Equal(o.LastSeen)
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
