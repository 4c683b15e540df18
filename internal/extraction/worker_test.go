package extraction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/teamgr/internal/dimension"
	"github.com/jonathan/teamgr/internal/llm"
	"github.com/jonathan/teamgr/internal/store"
)

// fakeClient answers every model call through reply.
type fakeClient struct {
	mu      sync.Mutex
	reply   func(prompt, callType string) (string, error)
	prompts []string
}

func (f *fakeClient) record(prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
}

func (f *fakeClient) GenerateContent(_ context.Context, prompt string, _ llm.ModelTier, callType string) (string, error) {
	f.record(prompt)
	return f.reply(prompt, callType)
}

func (f *fakeClient) GenerateJSON(_ context.Context, prompt string, _ llm.ModelTier, callType string) (string, error) {
	f.record(prompt)
	return f.reply(prompt, callType)
}

func (f *fakeClient) GetModel(llm.ModelTier) string { return "fake-model" }
func (f *fakeClient) Close() error                  { return nil }

func newTestWorker(t *testing.T, reply func(prompt, callType string) (string, error)) (*Worker, *store.Memory, *dimension.Registry) {
	t.Helper()
	mem := store.NewMemory()
	registry := dimension.NewRegistry(mem)
	require.NoError(t, registry.Seed(context.Background()))
	w := NewWorker(mem, registry, &fakeClient{reply: reply}, 0)
	return w, mem, registry
}

func TestWorkerTextEntryMergesCard(t *testing.T) {
	ctx := context.Background()
	w, mem, _ := newTestWorker(t, func(_, callType string) (string, error) {
		assert.Equal(t, "text-entry", callType)
		return `{
			"card_data": {"one_liner": "资深后端工程师", "strengths": ["Go", "系统设计"]},
			"summary": "资深后端工程师",
			"suggested_tags": ["后端", "Go"],
			"new_dimensions": []
		}`, nil
	})

	talent, err := mem.CreateTalent(ctx, &store.Talent{Name: "张伟"})
	require.NoError(t, err)

	entry, err := w.SubmitText(ctx, talent.ID, "他主导了订单系统重构")
	require.NoError(t, err)
	assert.Equal(t, store.StatusProcessing, entry.Status)
	w.Wait()

	got, err := mem.GetEntryLog(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, got.Status)

	updated, err := mem.GetTalent(ctx, talent.ID)
	require.NoError(t, err)
	assert.Equal(t, "资深后端工程师", updated.CardData["one_liner"])
	assert.Equal(t, []any{"Go", "系统设计"}, updated.CardData["strengths"])
	assert.Equal(t, "资深后端工程师", updated.Summary)

	tags, err := mem.ListTalentTags(ctx, talent.ID)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

func TestWorkerRegistersNewDimensions(t *testing.T) {
	ctx := context.Background()
	w, mem, registry := newTestWorker(t, func(_, _ string) (string, error) {
		return `{
			"card_data": {"projects": [{"name": "订单系统", "role": "负责人"}]},
			"summary": "",
			"suggested_tags": [],
			"new_dimensions": [{"key": "projects", "label": "项目经历", "schema": "[{\"name\": \"\", \"role\": \"\"}]"}]
		}`, nil
	})

	talent, err := mem.CreateTalent(ctx, &store.Talent{Name: "李娜"})
	require.NoError(t, err)

	_, err = w.SubmitText(ctx, talent.ID, "她负责订单系统")
	require.NoError(t, err)
	w.Wait()

	shapes, err := registry.ShapeIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, dimension.ShapeListOfRecord, shapes["projects"])

	updated, err := mem.GetTalent(ctx, talent.ID)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"name": "订单系统", "role": "负责人"}}, updated.CardData["projects"])
}

func TestWorkerModelFailureMarksEntryFailed(t *testing.T) {
	ctx := context.Background()
	w, mem, _ := newTestWorker(t, func(_, _ string) (string, error) {
		return "", &llm.ModelError{Op: "text-entry", Message: "quota exhausted"}
	})

	talent, err := mem.CreateTalent(ctx, &store.Talent{Name: "Dave"})
	require.NoError(t, err)

	entry, err := w.SubmitText(ctx, talent.ID, "note")
	require.NoError(t, err)
	w.Wait()

	got, err := mem.GetEntryLog(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Contains(t, got.Detail, "quota exhausted")

	// The card stays untouched.
	updated, err := mem.GetTalent(ctx, talent.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.CardData)
}

func TestWorkerMalformedResponseMarksEntryFailed(t *testing.T) {
	ctx := context.Background()
	w, mem, _ := newTestWorker(t, func(_, _ string) (string, error) {
		return `{"summary": "missing card_data"}`, nil
	})

	talent, err := mem.CreateTalent(ctx, &store.Talent{Name: "Eve"})
	require.NoError(t, err)

	entry, err := w.SubmitText(ctx, talent.ID, "note")
	require.NoError(t, err)
	w.Wait()

	got, err := mem.GetEntryLog(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
}

func TestWorkerSubmitValidation(t *testing.T) {
	ctx := context.Background()
	w, mem, _ := newTestWorker(t, func(_, _ string) (string, error) {
		return "{}", nil
	})

	_, err := w.SubmitText(ctx, 42, "note")
	assert.ErrorIs(t, err, store.ErrNotFound)

	talent, err := mem.CreateTalent(ctx, &store.Talent{Name: "F"})
	require.NoError(t, err)
	_, err = w.SubmitText(ctx, talent.ID, "   ")
	assert.Error(t, err)
}

func TestWorkerResumeEntryFillsProfile(t *testing.T) {
	ctx := context.Background()
	w, mem, _ := newTestWorker(t, func(_, callType string) (string, error) {
		assert.Equal(t, "pdf-parse", callType)
		return `{
			"extracted_info": {"name": "王芳", "email": "wang@example.com", "phone": "ignored-not-empty", "current_role": "前端工程师", "department": ""},
			"card_data": {"one_liner": "前端工程师"},
			"summary": "前端工程师",
			"suggested_tags": ["前端"],
			"new_dimensions": []
		}`, nil
	})

	talent, err := mem.CreateTalent(ctx, &store.Talent{Name: "", Phone: "139-0000"})
	require.NoError(t, err)

	_, err = w.SubmitResumeText(ctx, talent.ID, "简历全文……")
	require.NoError(t, err)
	w.Wait()

	updated, err := mem.GetTalent(ctx, talent.ID)
	require.NoError(t, err)
	assert.Equal(t, "王芳", updated.Name)
	assert.Equal(t, "wang@example.com", updated.Email)
	assert.Equal(t, "139-0000", updated.Phone)
	assert.Equal(t, "前端工程师", updated.CurrentRole)
	assert.Equal(t, "前端工程师", updated.CardData["one_liner"])
}

func TestWorkerConcurrentEntriesMergeToUnion(t *testing.T) {
	ctx := context.Background()
	w, mem, _ := newTestWorker(t, func(prompt, _ string) (string, error) {
		// Each note contributes one strength named in its input.
		for i := 0; i < 8; i++ {
			tag := fmt.Sprintf("skill-%d", i)
			if strings.Contains(prompt, fmt.Sprintf("note-%d", i)) {
				return fmt.Sprintf(`{"card_data": {"strengths": [%q]}, "summary": "", "suggested_tags": [], "new_dimensions": []}`, tag), nil
			}
		}
		return "", fmt.Errorf("unexpected prompt")
	})

	talent, err := mem.CreateTalent(ctx, &store.Talent{Name: "G"})
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, err := w.SubmitText(ctx, talent.ID, fmt.Sprintf("note-%d", i))
		require.NoError(t, err)
	}
	w.Wait()

	updated, err := mem.GetTalent(ctx, talent.ID)
	require.NoError(t, err)
	strengths, ok := updated.CardData["strengths"].([]any)
	require.True(t, ok)
	assert.Len(t, strengths, 8)
}

func TestWorkerSubmitDoesNotBlockOnModel(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	w, mem, _ := newTestWorker(t, func(_, _ string) (string, error) {
		<-gate
		return `{"card_data": {}, "summary": "", "suggested_tags": [], "new_dimensions": []}`, nil
	})

	talent, err := mem.CreateTalent(ctx, &store.Talent{Name: "I"})
	require.NoError(t, err)

	// Submit returns while the model call is still held at the gate.
	entry, err := w.SubmitText(ctx, talent.ID, "note")
	require.NoError(t, err)

	got, err := mem.GetEntryLog(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusProcessing, got.Status)

	close(gate)
	w.Wait()

	got, err = mem.GetEntryLog(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, got.Status)
}

func TestTrackerStatus(t *testing.T) {
	ctx := context.Background()
	w, mem, _ := newTestWorker(t, func(_, _ string) (string, error) {
		return `{"card_data": {}, "summary": "", "suggested_tags": [], "new_dimensions": []}`, nil
	})
	tracker := NewTracker(mem)

	talent, err := mem.CreateTalent(ctx, &store.Talent{Name: "H"})
	require.NoError(t, err)

	entry, err := w.SubmitText(ctx, talent.ID, "note")
	require.NoError(t, err)
	w.Wait()

	got, err := tracker.Status(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, got.Status)

	history, err := tracker.History(ctx, talent.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = tracker.Status(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
