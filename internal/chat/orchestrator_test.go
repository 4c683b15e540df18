package chat

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/teamgr/internal/dimension"
	"github.com/jonathan/teamgr/internal/llm"
	"github.com/jonathan/teamgr/internal/store"
)

type fakeClient struct {
	mu      sync.Mutex
	reply   func(prompt, callType string) (string, error)
	prompts []string
}

func (f *fakeClient) call(prompt, callType string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.reply(prompt, callType)
}

func (f *fakeClient) GenerateContent(_ context.Context, prompt string, _ llm.ModelTier, callType string) (string, error) {
	return f.call(prompt, callType)
}

func (f *fakeClient) GenerateJSON(_ context.Context, prompt string, _ llm.ModelTier, callType string) (string, error) {
	return f.call(prompt, callType)
}

func (f *fakeClient) GetModel(llm.ModelTier) string { return "fake-model" }
func (f *fakeClient) Close() error                  { return nil }

func newTestOrchestrator(t *testing.T, reply func(prompt, callType string) (string, error)) (*Orchestrator, *store.Memory, *fakeClient) {
	t.Helper()
	mem := store.NewMemory()
	registry := dimension.NewRegistry(mem)
	require.NoError(t, registry.Seed(context.Background()))
	client := &fakeClient{reply: reply}
	return NewOrchestrator(mem, registry, client), mem, client
}

func addTalent(t *testing.T, mem *store.Memory, name string, cardData map[string]any) *store.Talent {
	t.Helper()
	ctx := context.Background()
	talent, err := mem.CreateTalent(ctx, &store.Talent{Name: name})
	require.NoError(t, err)
	if cardData != nil {
		require.NoError(t, mem.UpdateCard(ctx, talent.ID, cardData, "", talent.Version))
	}
	return talent
}

func TestAnalyzeKeepsKnownDimensionsOnly(t *testing.T) {
	o, _, client := newTestOrchestrator(t, func(_, callType string) (string, error) {
		assert.Equal(t, "chat-analyze", callType)
		return `{
			"relevant_dimensions": [
				{"key": "strengths", "label": "优势"},
				{"key": "made_up", "label": "不存在"}
			],
			"reasoning": "问题与能力相关"
		}`, nil
	})

	result, err := o.Analyze(context.Background(), "谁擅长Go？")
	require.NoError(t, err)
	require.Len(t, result.RelevantDimensions, 1)
	assert.Equal(t, "strengths", result.RelevantDimensions[0].Key)
	assert.Equal(t, []string{"strengths"}, result.Keys())
	assert.Equal(t, "问题与能力相关", result.Reasoning)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "谁擅长Go？")
	assert.Contains(t, client.prompts[0], "strengths")
}

func TestAnswerPseudonymizesAndRestores(t *testing.T) {
	var answerPrompt string
	o, mem, _ := newTestOrchestrator(t, func(prompt, callType string) (string, error) {
		require.Equal(t, "chat-answer", callType)
		answerPrompt = prompt
		// Echo the first pseudonym back so restore has work to do.
		idx := strings.Index(prompt, "T_")
		require.GreaterOrEqual(t, idx, 0)
		return prompt[idx:idx+7] + " 最合适", nil
	})

	addTalent(t, mem, "张伟", map[string]any{
		"strengths": []any{"Go", "张伟擅长带团队"},
		"notes":     "内部备注",
	})
	addTalent(t, mem, "李娜", map[string]any{"strengths": []any{"前端"}})

	result, err := o.Answer(context.Background(), "谁适合带后端团队？", []string{"strengths"})
	require.NoError(t, err)

	assert.NotContains(t, answerPrompt, "张伟")
	assert.NotContains(t, answerPrompt, "李娜")
	assert.NotContains(t, answerPrompt, "内部备注")
	assert.Contains(t, answerPrompt, "谁适合带后端团队？")

	assert.Equal(t, 2, result.TalentCount)
	assert.Equal(t, []string{"strengths"}, result.DimensionsUsed)
	require.Len(t, result.NameMapping, 2)
	assert.Contains(t, result.RawAnswer, "T_")
	assert.NotContains(t, result.FinalAnswer, "T_")
	assert.True(t, strings.Contains(result.FinalAnswer, "张伟") || strings.Contains(result.FinalAnswer, "李娜"))
}

func TestAskCompletesBothPhases(t *testing.T) {
	o, mem, _ := newTestOrchestrator(t, func(_, callType string) (string, error) {
		if callType == "chat-analyze" {
			return `{"relevant_dimensions": [{"key": "strengths", "label": "优势"}], "reasoning": "ok"}`, nil
		}
		return "没有明显人选", nil
	})
	addTalent(t, mem, "张伟", nil)

	result, err := o.Ask(context.Background(), "谁擅长Go？")
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, result.Phase)
	require.NotNil(t, result.Analysis)
	require.NotNil(t, result.AnswerResult)
	assert.Equal(t, "没有明显人选", result.FinalAnswer)
}

func TestAskStopsWhenNothingRelevant(t *testing.T) {
	o, mem, client := newTestOrchestrator(t, func(_, _ string) (string, error) {
		return `{"relevant_dimensions": [], "reasoning": "与人才数据无关"}`, nil
	})
	addTalent(t, mem, "张伟", nil)

	result, err := o.Ask(context.Background(), "今天天气如何？")
	assert.ErrorIs(t, err, ErrNoRelevantDimensions)
	assert.Equal(t, PhaseFailed, result.Phase)
	require.NotNil(t, result.Analysis)
	assert.Equal(t, "与人才数据无关", result.Analysis.Reasoning)

	// The answer phase never ran, so no card data left the process.
	assert.Len(t, client.prompts, 1)
}

func TestAskFailsOnModelError(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, func(_, _ string) (string, error) {
		return "", &llm.ModelError{Op: "chat-analyze", Message: "quota exhausted"}
	})

	result, err := o.Ask(context.Background(), "谁擅长Go？")
	require.Error(t, err)
	assert.True(t, llm.IsModelError(err))
	assert.Equal(t, PhaseFailed, result.Phase)
}

func TestAnswerWithEmptyLibrary(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, func(_, _ string) (string, error) {
		return "人才库为空", nil
	})

	result, err := o.Answer(context.Background(), "谁擅长Go？", []string{"strengths"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TalentCount)
	assert.Empty(t, result.NameMapping)
	assert.Equal(t, "人才库为空", result.FinalAnswer)
}
