// Package extraction runs the async entry pipeline: an accepted note or
// resume is handed to the model, the structured result is merged into the
// talent's card, and the entry log tracks the outcome.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/teamgr/internal/card"
	"github.com/jonathan/teamgr/internal/dimension"
	"github.com/jonathan/teamgr/internal/llm"
	"github.com/jonathan/teamgr/internal/store"
)

// DefaultJobTimeout bounds one extraction job end to end.
const DefaultJobTimeout = 120 * time.Second

// Worker accepts entries and processes them in the background.
type Worker struct {
	store    store.Store
	registry *dimension.Registry
	client   llm.Client
	locks    *lockTable
	timeout  time.Duration

	wg sync.WaitGroup
}

// NewWorker creates a Worker. A non-positive timeout falls back to
// DefaultJobTimeout.
func NewWorker(st store.Store, registry *dimension.Registry, client llm.Client, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &Worker{
		store:    st,
		registry: registry,
		client:   client,
		locks:    newLockTable(),
		timeout:  timeout,
	}
}

// SubmitText records a processing entry for a raw text note and starts the
// extraction job. It returns as soon as the entry log exists.
func (w *Worker) SubmitText(ctx context.Context, talentID int64, text string) (*store.EntryLog, error) {
	return w.submit(ctx, talentID, store.SourceText, text)
}

// SubmitResumeText records a processing entry for text extracted from a
// resume PDF and starts the extraction job.
func (w *Worker) SubmitResumeText(ctx context.Context, talentID int64, text string) (*store.EntryLog, error) {
	return w.submit(ctx, talentID, store.SourcePDF, text)
}

func (w *Worker) submit(ctx context.Context, talentID int64, source store.EntrySource, content string) (*store.EntryLog, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("entry content is empty")
	}
	if _, err := w.store.GetTalent(ctx, talentID); err != nil {
		return nil, err
	}

	entry, err := w.store.CreateEntryLog(ctx, &store.EntryLog{
		TalentID: talentID,
		Source:   source,
		Content:  content,
		Status:   store.StatusProcessing,
	})
	if err != nil {
		return nil, err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		// Detached from the request context: the job outlives the HTTP call.
		jobCtx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		w.process(jobCtx, entry)
	}()

	return entry, nil
}

// Wait blocks until all in-flight jobs finish. Used on shutdown and in tests.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) process(ctx context.Context, entry *store.EntryLog) {
	start := time.Now()
	err := w.run(ctx, entry)
	if err != nil {
		log.Printf("[extraction] entry %s failed after %v: %v", entry.ID, time.Since(start), err)
		if serr := w.store.SetEntryStatus(context.Background(), entry.ID, store.StatusFailed, err.Error()); serr != nil {
			log.Printf("[extraction] entry %s: failed to record failure: %v", entry.ID, serr)
		}
		return
	}
	log.Printf("[extraction] entry %s done in %v", entry.ID, time.Since(start))
	if serr := w.store.SetEntryStatus(context.Background(), entry.ID, store.StatusDone, ""); serr != nil {
		log.Printf("[extraction] entry %s: failed to record completion: %v", entry.ID, serr)
	}
}

func (w *Worker) run(ctx context.Context, entry *store.EntryLog) error {
	talent, err := w.store.GetTalent(ctx, entry.TalentID)
	if err != nil {
		return fmt.Errorf("failed to load talent: %w", err)
	}
	dims, err := w.registry.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load dimensions: %w", err)
	}

	var prompt, callType string
	if entry.Source == store.SourcePDF {
		prompt = buildResumePrompt(talent.Name, dims, entry.Content)
		callType = "pdf-parse"
	} else {
		prompt = buildTextPrompt(talent.Name, dims, talent.CardData, entry.Content)
		callType = "text-entry"
	}

	var result Result
	if err := llm.CompleteJSON(ctx, w.client, prompt, llm.TierStandard, callType, resultSchema, &result); err != nil {
		return err
	}

	if err := w.registry.Ensure(ctx, result.NewDimensions); err != nil {
		return fmt.Errorf("failed to register dimensions: %w", err)
	}

	if err := w.mergeCard(ctx, entry.TalentID, result.CardData, result.Summary); err != nil {
		return err
	}

	if entry.Source == store.SourcePDF && result.ExtractedInfo != nil {
		if err := w.applyExtractedInfo(ctx, entry.TalentID, result.ExtractedInfo); err != nil {
			return err
		}
	}

	if err := w.attachTags(ctx, entry.TalentID, result.SuggestedTags); err != nil {
		// Tags are a side product; the merged card already stuck.
		log.Printf("[extraction] entry %s: failed to attach tags: %v", entry.ID, err)
	}
	return nil
}

// mergeCard serializes merges per talent and retries once when a concurrent
// writer bumped the version between read and write.
func (w *Worker) mergeCard(ctx context.Context, talentID int64, incoming map[string]any, summary string) error {
	if len(incoming) == 0 {
		return nil
	}
	shapes, err := w.registry.ShapeIndex(ctx)
	if err != nil {
		return fmt.Errorf("failed to load dimension shapes: %w", err)
	}

	lock := w.locks.forTalent(talentID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		current, err := w.store.GetTalent(ctx, talentID)
		if err != nil {
			return fmt.Errorf("failed to reload talent: %w", err)
		}

		merged, rejected := card.Merge(current.CardData, incoming, shapes)
		for _, rej := range rejected {
			log.Printf("[extraction] talent %d: dropped value for %s: %s", talentID, rej.Dimension, rej.Message)
		}

		err = w.store.UpdateCard(ctx, talentID, merged, summary, current.Version)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrVersionConflict) && attempt == 0 {
			continue
		}
		return fmt.Errorf("failed to store merged card: %w", err)
	}
	return store.ErrVersionConflict
}

// applyExtractedInfo fills profile fields the resume revealed, without
// clobbering anything already set by hand.
func (w *Worker) applyExtractedInfo(ctx context.Context, talentID int64, info *ExtractedInfo) error {
	talent, err := w.store.GetTalent(ctx, talentID)
	if err != nil {
		return fmt.Errorf("failed to reload talent: %w", err)
	}

	changed := false
	setIfEmpty := func(dst *string, v string) {
		v = strings.TrimSpace(v)
		if *dst == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	setIfEmpty(&talent.Name, info.Name)
	setIfEmpty(&talent.Email, info.Email)
	setIfEmpty(&talent.Phone, info.Phone)
	setIfEmpty(&talent.CurrentRole, info.CurrentRole)
	setIfEmpty(&talent.Department, info.Department)
	if !changed {
		return nil
	}

	talent.CardData = nil
	if err := w.store.UpdateTalent(ctx, talent); err != nil {
		return fmt.Errorf("failed to update talent profile: %w", err)
	}
	return nil
}

func (w *Worker) attachTags(ctx context.Context, talentID int64, names []string) error {
	if len(names) == 0 {
		return nil
	}
	tags, err := w.store.EnsureTags(ctx, names)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ID)
	}
	return w.store.AttachTags(ctx, talentID, ids)
}
