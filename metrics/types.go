// Package metrics computes the weekly market-hiring indices. Every
// calculator is a pure function of (posting snapshot, reference date):
// no hidden state, no I/O, fully reproducible from a fixture.
package metrics

import "time"

// Options carries the tunable windows. Functions is the function list in
// taxonomy priority order, which fixes the row order of every output.
type Options struct {
	StaleDays    int
	CompareDays  int
	TopEmployers int
	Functions    []string
}

func (o Options) withDefaults() Options {
	if o.StaleDays == 0 {
		o.StaleDays = 60
	}
	if o.CompareDays == 0 {
		o.CompareDays = 14
	}
	if o.TopEmployers == 0 {
		o.TopEmployers = 10
	}
	return o
}

// VolumeIndex counts open Director+ postings per function at the reference
// date against the comparison date.
type VolumeIndex struct {
	ReferenceDate       time.Time        `json:"reference_date"`
	ComparisonDate      time.Time        `json:"comparison_date"`
	Functions           []FunctionVolume `json:"functions"`
	TotalCurrent        int              `json:"total_current"`
	TotalPrevious       int              `json:"total_previous"`
	TotalDelta          int              `json:"total_delta"`
	InsufficientHistory bool             `json:"insufficient_history"`
}

type FunctionVolume struct {
	Function string `json:"function"`
	Current  int    `json:"current"`
	Previous int    `json:"previous"`
	Delta    int    `json:"delta"`
}

// StaleIndex reports, per function, the share of open postings older than
// the staleness threshold. A function with no open postings carries a nil
// percentage and NoData for downstream "no data" rendering; it is never a
// division error.
type StaleIndex struct {
	ReferenceDate       time.Time           `json:"reference_date"`
	ComparisonDate      time.Time           `json:"comparison_date"`
	StaleDays           int                 `json:"stale_days"`
	Functions           []FunctionStaleness `json:"functions"`
	InsufficientHistory bool                `json:"insufficient_history"`
}

type FunctionStaleness struct {
	Function    string   `json:"function"`
	Total       int      `json:"total"`
	Stale       int      `json:"stale"`
	StalePct    *float64 `json:"stale_pct"`
	PreviousPct *float64 `json:"previous_pct"`
	DeltaPts    *float64 `json:"delta_pts"`
	NoData      bool     `json:"no_data"`
}

// TopEmployers ranks companies by Director+ postings first seen inside the
// trailing window. Companies with no qualifying postings are absent, not
// ranked at zero.
type TopEmployers struct {
	ReferenceDate time.Time          `json:"reference_date"`
	WindowDays    int                `json:"window_days"`
	Entries       []EmployerActivity `json:"entries"`
}

type EmployerActivity struct {
	CompanyID   string `json:"company_id"`
	CompanyName string `json:"company_name"`
	Postings    int    `json:"postings"`
}
