package extraction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/teamgr/internal/store"
)

// PollInterval is how often clients should re-check a processing entry.
const PollInterval = 3 * time.Second

// Tracker answers status questions about submitted entries.
type Tracker struct {
	store store.Store
}

func NewTracker(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// Status returns the current state of one entry.
func (t *Tracker) Status(ctx context.Context, id uuid.UUID) (*store.EntryLog, error) {
	return t.store.GetEntryLog(ctx, id)
}

// History returns a talent's entries, newest first.
func (t *Tracker) History(ctx context.Context, talentID int64) ([]store.EntryLog, error) {
	return t.store.ListEntryLogs(ctx, talentID)
}
