package models

import "time"

// ATS platforms we know how to scrape
const (
	PlatformAshby      = "ashby"
	PlatformGreenhouse = "greenhouse"
	PlatformLever      = "lever"
)

// Company size buckets
const (
	SizeLarge  = "large"
	SizeGrowth = "growth"
)

// Company is reference data for a tracked employer. Rarely mutated;
// the board healthcheck worker may flip IsActive when a careers page
// disappears for good.
type Company struct {
	ID            string     `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	ATSPlatform   string     `json:"ats_platform" db:"ats_platform"`
	CareersURL    string     `json:"careers_url" db:"careers_url"`
	Sector        string     `json:"sector" db:"sector"`
	Size          string     `json:"size" db:"size"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	LastCheckedAt *time.Time `json:"last_checked_at" db:"last_checked_at"`
	CheckFailures int        `json:"check_failures" db:"check_failures"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

func KnownPlatform(p string) bool {
	switch p {
	case PlatformAshby, PlatformGreenhouse, PlatformLever:
		return true
	}
	return false
}
