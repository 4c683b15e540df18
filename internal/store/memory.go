package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/teamgr/internal/card"
	"github.com/jonathan/teamgr/internal/dimension"
	"github.com/jonathan/teamgr/internal/llm"
)

// Memory is a mutex-guarded in-memory Store. It hands out deep copies so
// callers can never alias stored card data.
type Memory struct {
	mu sync.Mutex

	talents      map[int64]*Talent
	nextTalentID int64

	entries map[uuid.UUID]*EntryLog

	dims     map[string]dimension.Dimension
	dimOrder []string

	tags       map[string]*Tag
	nextTagID  int64
	talentTags map[int64]map[int64]bool

	usage []llm.Usage
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		talents:    map[int64]*Talent{},
		entries:    map[uuid.UUID]*EntryLog{},
		dims:       map[string]dimension.Dimension{},
		tags:       map[string]*Tag{},
		talentTags: map[int64]map[int64]bool{},
	}
}

var _ Store = (*Memory)(nil)

// Close is a no-op for the in-memory store.
func (m *Memory) Close() {}

// ---------------------------------------------------------------------------
// Talents
// ---------------------------------------------------------------------------

// CreateTalent stores a new talent and returns the stored copy.
func (m *Memory) CreateTalent(_ context.Context, t *Talent) (*Talent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextTalentID++
	now := time.Now()
	stored := cloneTalent(t)
	stored.ID = m.nextTalentID
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.CardData == nil {
		stored.CardData = map[string]any{}
	}
	m.talents[stored.ID] = stored
	return cloneTalent(stored), nil
}

// GetTalent returns a copy of the talent or ErrNotFound.
func (m *Memory) GetTalent(_ context.Context, id int64) (*Talent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.talents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTalent(t), nil
}

// ListTalents returns all talents ordered by id.
func (m *Memory) ListTalents(_ context.Context) ([]Talent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.talents))
	for id := range m.talents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Talent, 0, len(ids))
	for _, id := range ids {
		out = append(out, *cloneTalent(m.talents[id]))
	}
	return out, nil
}

// UpdateTalent overwrites the talent's editable fields. Card data, if set on
// t, replaces the stored card wholesale (single-path overwrite responsibility
// lies with the caller) and bumps the version.
func (m *Memory) UpdateTalent(_ context.Context, t *Talent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.talents[t.ID]
	if !ok {
		return ErrNotFound
	}

	current.Name = t.Name
	current.Email = t.Email
	current.Phone = t.Phone
	current.CurrentRole = t.CurrentRole
	current.Department = t.Department
	current.Summary = t.Summary
	if t.CardData != nil {
		current.CardData = card.DeepCopy(t.CardData)
		current.Version++
	}
	current.UpdatedAt = time.Now()
	return nil
}

// UpdateCard performs a compare-and-swap replace of the talent's card data.
func (m *Memory) UpdateCard(_ context.Context, id int64, cardData map[string]any, summary string, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.talents[id]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	current.CardData = card.DeepCopy(cardData)
	if summary != "" {
		current.Summary = summary
	}
	current.Version++
	current.UpdatedAt = time.Now()
	return nil
}

// DeleteTalent removes the talent and its entry logs and tag links.
func (m *Memory) DeleteTalent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.talents[id]; !ok {
		return ErrNotFound
	}
	delete(m.talents, id)
	delete(m.talentTags, id)
	for eid, e := range m.entries {
		if e.TalentID == id {
			delete(m.entries, eid)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Entry logs
// ---------------------------------------------------------------------------

// CreateEntryLog stores a new entry log, assigning an id if none set.
func (m *Memory) CreateEntryLog(_ context.Context, e *EntryLog) (*EntryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *e
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.Status == "" {
		stored.Status = StatusProcessing
	}
	stored.CreatedAt = time.Now()
	m.entries[stored.ID] = &stored

	out := stored
	return &out, nil
}

// GetEntryLog returns a copy of the entry log or ErrNotFound.
func (m *Memory) GetEntryLog(_ context.Context, id uuid.UUID) (*EntryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *e
	return &out, nil
}

// ListEntryLogs returns a talent's entries, newest first.
func (m *Memory) ListEntryLogs(_ context.Context, talentID int64) ([]EntryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []EntryLog
	for _, e := range m.entries {
		if e.TalentID == talentID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DeleteEntryLog removes an entry log. Card data the entry produced stays.
func (m *Memory) DeleteEntryLog(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

// SetEntryStatus records a status transition; terminal states are sticky.
func (m *Memory) SetEntryStatus(_ context.Context, id uuid.UUID, status EntryStatus, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status.Terminal() {
		return nil
	}
	e.Status = status
	e.Detail = detail
	return nil
}

// ---------------------------------------------------------------------------
// Dimensions
// ---------------------------------------------------------------------------

// ListDimensions returns all dimensions in sort order.
func (m *Memory) ListDimensions(_ context.Context) ([]dimension.Dimension, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]dimension.Dimension, 0, len(m.dimOrder))
	for _, k := range m.dimOrder {
		out = append(out, m.dims[k])
	}
	return out, nil
}

// InsertDimension inserts if the key is absent; the first writer wins.
func (m *Memory) InsertDimension(_ context.Context, d dimension.Dimension) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.dims[d.Key]; ok {
		return false, nil
	}
	m.dims[d.Key] = d
	m.dimOrder = append(m.dimOrder, d.Key)
	return true, nil
}

// ---------------------------------------------------------------------------
// Tags
// ---------------------------------------------------------------------------

// EnsureTags creates any missing tags by name and returns them all.
func (m *Memory) EnsureTags(_ context.Context, names []string) ([]Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Tag
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tag, ok := m.tags[name]
		if !ok {
			m.nextTagID++
			tag = &Tag{ID: m.nextTagID, Name: name, Color: DefaultTagColor}
			m.tags[name] = tag
		}
		out = append(out, *tag)
	}
	return out, nil
}

// AttachTags links tags to a talent, ignoring already-linked ids.
func (m *Memory) AttachTags(_ context.Context, talentID int64, tagIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.talents[talentID]; !ok {
		return ErrNotFound
	}
	links := m.talentTags[talentID]
	if links == nil {
		links = map[int64]bool{}
		m.talentTags[talentID] = links
	}
	for _, id := range tagIDs {
		links[id] = true
	}
	return nil
}

// ListTalentTags returns the tags linked to a talent.
func (m *Memory) ListTalentTags(_ context.Context, talentID int64) ([]Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Tag
	for _, tag := range m.tags {
		if m.talentTags[talentID][tag.ID] {
			out = append(out, *tag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------------------------------------------------------------------------
// Usage accounting
// ---------------------------------------------------------------------------

// RecordUsage appends a usage record.
func (m *Memory) RecordUsage(_ context.Context, u llm.Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, u)
	return nil
}

// UsageSummary aggregates usage per model.
func (m *Memory) UsageSummary(_ context.Context) ([]UsageSummaryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byModel := map[string]*UsageSummaryRow{}
	var order []string
	for _, u := range m.usage {
		row, ok := byModel[u.Model]
		if !ok {
			row = &UsageSummaryRow{Model: u.Model}
			byModel[u.Model] = row
			order = append(order, u.Model)
		}
		row.Calls++
		row.AvgDurationMs += float64(u.DurationMs)
		row.TotalInputTokens += int64(u.InputTokens)
		row.TotalOutputTokens += int64(u.OutputTokens)
	}

	out := make([]UsageSummaryRow, 0, len(order))
	for _, model := range order {
		row := byModel[model]
		if row.Calls > 0 {
			row.AvgDurationMs /= float64(row.Calls)
		}
		out = append(out, *row)
	}
	return out, nil
}

func cloneTalent(t *Talent) *Talent {
	out := *t
	out.CardData = card.DeepCopy(t.CardData)
	return &out
}
