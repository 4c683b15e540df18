package store

import (
	"time"

	"github.com/google/uuid"
)

// Talent represents one person's record. CardData maps dimension keys to
// dimension-shaped values; Version guards the read-merge-write cycle.
type Talent struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Phone       string         `json:"phone"`
	CurrentRole string         `json:"current_role"`
	Department  string         `json:"department"`
	Summary     string         `json:"summary"`
	CardData    map[string]any `json:"card_data"`
	Version     int64          `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// EntrySource identifies where an entry's content came from.
type EntrySource string

// Entry sources
const (
	SourceText EntrySource = "text"
	SourcePDF  EntrySource = "pdf"
)

// EntryStatus is the processing state of a submitted entry.
// Transitions are monotonic: processing → done|failed, never back.
type EntryStatus string

// Entry statuses
const (
	StatusProcessing EntryStatus = "processing"
	StatusDone       EntryStatus = "done"
	StatusFailed     EntryStatus = "failed"
)

// Terminal reports whether the status is final.
func (s EntryStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// EntryLog tracks one submitted entry through the extraction pipeline.
// Detail carries the failure reason for failed entries.
type EntryLog struct {
	ID        uuid.UUID   `json:"id"`
	TalentID  int64       `json:"talent_id"`
	Source    EntrySource `json:"source"`
	Content   string      `json:"content"`
	Status    EntryStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Tag is a short, atomic label attached to talents.
type Tag struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// DefaultTagColor matches the UI's default tag styling.
const DefaultTagColor = "#3B82F6"

// UsageSummaryRow aggregates model call accounting per model.
type UsageSummaryRow struct {
	Model             string  `json:"model"`
	Calls             int64   `json:"calls"`
	AvgDurationMs     float64 `json:"avg_duration_ms"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
}
