package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdScrapeNow      CommandType = "scrape_now"
	CmdScrapePlatform CommandType = "scrape_platform"
	CmdComputeMetrics CommandType = "compute_metrics"
	CmdPause          CommandType = "pause"
	CmdResume         CommandType = "resume"
	CmdCheckBoards    CommandType = "check_boards"
)

type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	Platform string `json:"platform,omitempty"`
	Company  string `json:"company,omitempty"`
	Date     string `json:"date,omitempty"` // reference date for compute_metrics, YYYY-MM-DD
}
