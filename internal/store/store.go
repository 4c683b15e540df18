// Package store provides persistence for talents, entry logs, dimensions,
// tags and model usage accounting. Two implementations exist: Postgres for
// production and Memory for tests and single-box runs.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jonathan/teamgr/internal/dimension"
	"github.com/jonathan/teamgr/internal/llm"
)

// Sentinel errors shared by all implementations.
var (
	// ErrNotFound is returned for point reads of missing records.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned by UpdateCard when the expected version
	// no longer matches; the caller re-reads and retries under its lock.
	ErrVersionConflict = errors.New("card version conflict")
)

// Store is the keyed record store behind the pipelines. UpdateCard is a
// compare-and-swap on the talent's version column, sufficient to implement
// per-talent merge serialization; InsertDimension is insert-if-absent so a
// concurrent registry race has exactly one winner.
type Store interface {
	// Talents
	CreateTalent(ctx context.Context, t *Talent) (*Talent, error)
	GetTalent(ctx context.Context, id int64) (*Talent, error)
	ListTalents(ctx context.Context) ([]Talent, error)
	UpdateTalent(ctx context.Context, t *Talent) error
	UpdateCard(ctx context.Context, id int64, cardData map[string]any, summary string, expectedVersion int64) error
	DeleteTalent(ctx context.Context, id int64) error

	// Entry logs
	CreateEntryLog(ctx context.Context, e *EntryLog) (*EntryLog, error)
	GetEntryLog(ctx context.Context, id uuid.UUID) (*EntryLog, error)
	ListEntryLogs(ctx context.Context, talentID int64) ([]EntryLog, error)
	DeleteEntryLog(ctx context.Context, id uuid.UUID) error
	// SetEntryStatus records a terminal state. Transitions are monotonic:
	// once an entry is done or failed its status never changes again.
	SetEntryStatus(ctx context.Context, id uuid.UUID, status EntryStatus, detail string) error

	// Dimensions (the registry's persistence surface)
	dimension.Store

	// Tags
	EnsureTags(ctx context.Context, names []string) ([]Tag, error)
	AttachTags(ctx context.Context, talentID int64, tagIDs []int64) error
	ListTalentTags(ctx context.Context, talentID int64) ([]Tag, error)

	// Model usage accounting
	llm.UsageRecorder
	UsageSummary(ctx context.Context) ([]UsageSummaryRow, error)

	Close()
}
