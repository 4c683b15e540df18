package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/teamgr/internal/dimension"
	"github.com/jonathan/teamgr/internal/llm"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// Connect establishes a connection pool and verifies it.
func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS talents (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			"current_role" TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			card_data JSONB NOT NULL DEFAULT '{}',
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS entry_logs (
			id UUID PRIMARY KEY,
			talent_id BIGINT NOT NULL REFERENCES talents(id) ON DELETE CASCADE,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'processing',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS card_dimensions (
			key TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			schema TEXT NOT NULL DEFAULT '""',
			shape TEXT NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			sort_order INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			color TEXT NOT NULL DEFAULT '#3B82F6'
		)`,
		`CREATE TABLE IF NOT EXISTS talent_tags (
			talent_id BIGINT NOT NULL REFERENCES talents(id) ON DELETE CASCADE,
			tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (talent_id, tag_id)
		)`,
		`CREATE TABLE IF NOT EXISTS llm_usage_logs (
			id BIGSERIAL PRIMARY KEY,
			model_name TEXT NOT NULL,
			call_type TEXT NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			input_tokens BIGINT NOT NULL DEFAULT 0,
			output_tokens BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range ddl {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Talents
// ---------------------------------------------------------------------------

// CURRENT_ROLE is a reserved word in PostgreSQL, so the column must stay
// quoted in every statement that names it.
const talentColumns = `id, name, email, phone, "current_role", department, summary, card_data, version, created_at, updated_at`

func scanTalent(row pgx.Row) (*Talent, error) {
	var t Talent
	var cardJSON []byte
	err := row.Scan(&t.ID, &t.Name, &t.Email, &t.Phone, &t.CurrentRole, &t.Department,
		&t.Summary, &cardJSON, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan talent: %w", err)
	}
	if len(cardJSON) > 0 {
		if err := json.Unmarshal(cardJSON, &t.CardData); err != nil {
			return nil, fmt.Errorf("failed to decode card data: %w", err)
		}
	}
	if t.CardData == nil {
		t.CardData = map[string]any{}
	}
	return &t, nil
}

// CreateTalent inserts a new talent and returns the stored record.
func (p *Postgres) CreateTalent(ctx context.Context, t *Talent) (*Talent, error) {
	cardJSON, err := json.Marshal(orEmptyCard(t.CardData))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal card data: %w", err)
	}
	row := p.pool.QueryRow(ctx,
		`INSERT INTO talents (name, email, phone, "current_role", department, summary, card_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+talentColumns,
		t.Name, t.Email, t.Phone, t.CurrentRole, t.Department, t.Summary, cardJSON)
	created, err := scanTalent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create talent: %w", err)
	}
	return created, nil
}

// GetTalent retrieves a talent by id.
func (p *Postgres) GetTalent(ctx context.Context, id int64) (*Talent, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+talentColumns+` FROM talents WHERE id = $1`, id)
	return scanTalent(row)
}

// ListTalents retrieves all talents ordered by id.
func (p *Postgres) ListTalents(ctx context.Context) ([]Talent, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+talentColumns+` FROM talents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list talents: %w", err)
	}
	defer rows.Close()

	var out []Talent
	for rows.Next() {
		t, err := scanTalent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateTalent overwrites editable fields; a non-nil CardData replaces the
// stored card wholesale and bumps the version.
func (p *Postgres) UpdateTalent(ctx context.Context, t *Talent) error {
	var result pgx.Rows
	var err error
	if t.CardData != nil {
		cardJSON, merr := json.Marshal(t.CardData)
		if merr != nil {
			return fmt.Errorf("failed to marshal card data: %w", merr)
		}
		result, err = p.pool.Query(ctx,
			`UPDATE talents SET name=$1, email=$2, phone=$3, "current_role"=$4, department=$5,
			        summary=$6, card_data=$7, version=version+1, updated_at=NOW()
			 WHERE id=$8 RETURNING id`,
			t.Name, t.Email, t.Phone, t.CurrentRole, t.Department, t.Summary, cardJSON, t.ID)
	} else {
		result, err = p.pool.Query(ctx,
			`UPDATE talents SET name=$1, email=$2, phone=$3, "current_role"=$4, department=$5,
			        summary=$6, updated_at=NOW()
			 WHERE id=$7 RETURNING id`,
			t.Name, t.Email, t.Phone, t.CurrentRole, t.Department, t.Summary, t.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update talent: %w", err)
	}
	defer result.Close()
	if !result.Next() {
		return ErrNotFound
	}
	return nil
}

// UpdateCard replaces card_data iff the version still matches (CAS).
func (p *Postgres) UpdateCard(ctx context.Context, id int64, cardData map[string]any, summary string, expectedVersion int64) error {
	cardJSON, err := json.Marshal(orEmptyCard(cardData))
	if err != nil {
		return fmt.Errorf("failed to marshal card data: %w", err)
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE talents
		 SET card_data=$1,
		     summary=CASE WHEN $2 <> '' THEN $2 ELSE summary END,
		     version=version+1,
		     updated_at=NOW()
		 WHERE id=$3 AND version=$4`,
		cardJSON, summary, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing talent from a lost CAS race.
		var exists bool
		if err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM talents WHERE id=$1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to update card: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

// DeleteTalent removes a talent; entry logs and tag links cascade.
func (p *Postgres) DeleteTalent(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM talents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete talent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Entry logs
// ---------------------------------------------------------------------------

// CreateEntryLog inserts a new entry log.
func (p *Postgres) CreateEntryLog(ctx context.Context, e *EntryLog) (*EntryLog, error) {
	stored := *e
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.Status == "" {
		stored.Status = StatusProcessing
	}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO entry_logs (id, talent_id, source, content, status, detail)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		stored.ID, stored.TalentID, stored.Source, stored.Content, stored.Status, stored.Detail,
	).Scan(&stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry log: %w", err)
	}
	return &stored, nil
}

// GetEntryLog retrieves an entry log by id.
func (p *Postgres) GetEntryLog(ctx context.Context, id uuid.UUID) (*EntryLog, error) {
	var e EntryLog
	err := p.pool.QueryRow(ctx,
		`SELECT id, talent_id, source, content, status, detail, created_at
		 FROM entry_logs WHERE id = $1`, id,
	).Scan(&e.ID, &e.TalentID, &e.Source, &e.Content, &e.Status, &e.Detail, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entry log: %w", err)
	}
	return &e, nil
}

// ListEntryLogs retrieves a talent's entries, newest first.
func (p *Postgres) ListEntryLogs(ctx context.Context, talentID int64) ([]EntryLog, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, talent_id, source, content, status, detail, created_at
		 FROM entry_logs WHERE talent_id = $1 ORDER BY created_at DESC`, talentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entry logs: %w", err)
	}
	defer rows.Close()

	var out []EntryLog
	for rows.Next() {
		var e EntryLog
		if err := rows.Scan(&e.ID, &e.TalentID, &e.Source, &e.Content, &e.Status, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEntryLog removes an entry log without touching merged card data.
func (p *Postgres) DeleteEntryLog(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM entry_logs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEntryStatus records a status transition; terminal statuses are sticky.
func (p *Postgres) SetEntryStatus(ctx context.Context, id uuid.UUID, status EntryStatus, detail string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE entry_logs SET status=$1, detail=$2
		 WHERE id=$3 AND status='processing'`,
		status, detail, id)
	if err != nil {
		return fmt.Errorf("failed to set entry status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM entry_logs WHERE id=$1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to set entry status: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		// Already terminal: monotonic transitions, nothing to do.
	}
	return nil
}

// ---------------------------------------------------------------------------
// Dimensions
// ---------------------------------------------------------------------------

// ListDimensions returns all dimensions in sort order.
func (p *Postgres) ListDimensions(ctx context.Context) ([]dimension.Dimension, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT key, label, schema, shape, is_default, sort_order
		 FROM card_dimensions ORDER BY sort_order, key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dimensions: %w", err)
	}
	defer rows.Close()

	var out []dimension.Dimension
	for rows.Next() {
		var d dimension.Dimension
		if err := rows.Scan(&d.Key, &d.Label, &d.Schema, &d.Shape, &d.IsDefault, &d.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan dimension: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertDimension inserts if the key is absent; first writer wins.
func (p *Postgres) InsertDimension(ctx context.Context, d dimension.Dimension) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO card_dimensions (key, label, schema, shape, is_default, sort_order)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (key) DO NOTHING`,
		d.Key, d.Label, d.Schema, d.Shape, d.IsDefault, d.SortOrder)
	if err != nil {
		return false, fmt.Errorf("failed to insert dimension: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ---------------------------------------------------------------------------
// Tags
// ---------------------------------------------------------------------------

// EnsureTags creates any missing tags by name and returns them all.
func (p *Postgres) EnsureTags(ctx context.Context, names []string) ([]Tag, error) {
	var out []Tag
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var t Tag
		err := p.pool.QueryRow(ctx,
			`INSERT INTO tags (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name=EXCLUDED.name
			 RETURNING id, name, color`,
			name,
		).Scan(&t.ID, &t.Name, &t.Color)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure tag %s: %w", name, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// AttachTags links tags to a talent, ignoring duplicates.
func (p *Postgres) AttachTags(ctx context.Context, talentID int64, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		_, err := p.pool.Exec(ctx,
			`INSERT INTO talent_tags (talent_id, tag_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			talentID, tagID)
		if err != nil {
			return fmt.Errorf("failed to attach tag %d: %w", tagID, err)
		}
	}
	return nil
}

// ListTalentTags returns the tags linked to a talent.
func (p *Postgres) ListTalentTags(ctx context.Context, talentID int64) ([]Tag, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT t.id, t.name, t.color FROM tags t
		 JOIN talent_tags tt ON tt.tag_id = t.id
		 WHERE tt.talent_id = $1 ORDER BY t.id`, talentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list talent tags: %w", err)
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Usage accounting
// ---------------------------------------------------------------------------

// RecordUsage persists one model call record.
func (p *Postgres) RecordUsage(ctx context.Context, u llm.Usage) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO llm_usage_logs (model_name, call_type, duration_ms, input_tokens, output_tokens)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.Model, u.CallType, u.DurationMs, u.InputTokens, u.OutputTokens)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// UsageSummary aggregates usage per model.
func (p *Postgres) UsageSummary(ctx context.Context) ([]UsageSummaryRow, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT model_name, COUNT(*), COALESCE(AVG(duration_ms), 0),
		        COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		 FROM llm_usage_logs GROUP BY model_name ORDER BY model_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	defer rows.Close()

	var out []UsageSummaryRow
	for rows.Next() {
		var r UsageSummaryRow
		if err := rows.Scan(&r.Model, &r.Calls, &r.AvgDurationMs, &r.TotalInputTokens, &r.TotalOutputTokens); err != nil {
			return nil, fmt.Errorf("failed to scan usage summary: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func orEmptyCard(card map[string]any) map[string]any {
	if card == nil {
		return map[string]any{}
	}
	return card
}
