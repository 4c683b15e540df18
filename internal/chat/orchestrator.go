// Package chat implements the two-phase talent query pipeline: first the
// model picks relevant card dimensions from keys and labels alone, then it
// answers over pseudonymized card data and the real names are restored
// locally. Raw talent names never appear in an outbound prompt.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jonathan/teamgr/internal/dimension"
	"github.com/jonathan/teamgr/internal/llm"
	"github.com/jonathan/teamgr/internal/privacy"
	"github.com/jonathan/teamgr/internal/store"
)

// MaxContextChars caps the serialized talent context sent to the model.
const MaxContextChars = 30000

// ErrNoRelevantDimensions means the analyze phase found nothing to look at.
// The pipeline stops there; no card data leaves the process.
var ErrNoRelevantDimensions = errors.New("no relevant dimensions for query")

// Phase names the pipeline stage a query reached.
type Phase string

const (
	PhaseAnalyzing Phase = "analyzing"
	PhaseAnswering Phase = "answering"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// DimensionRef is a key/label pair from the analyze phase.
type DimensionRef struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// AnalyzeResult is the outcome of the dimension-selection phase.
type AnalyzeResult struct {
	RelevantDimensions []DimensionRef `json:"relevant_dimensions"`
	Reasoning          string         `json:"reasoning"`
}

// Keys returns the selected dimension keys in order.
func (r *AnalyzeResult) Keys() []string {
	out := make([]string, 0, len(r.RelevantDimensions))
	for _, d := range r.RelevantDimensions {
		out = append(out, d.Key)
	}
	return out
}

// AnswerResult is the outcome of the answer phase. RawAnswer still contains
// pseudonyms; FinalAnswer has real names restored.
type AnswerResult struct {
	RawAnswer      string            `json:"raw_answer"`
	FinalAnswer    string            `json:"final_answer"`
	NameMapping    map[string]string `json:"name_mapping"`
	TalentCount    int               `json:"talent_count"`
	DimensionsUsed []string          `json:"dimensions_used"`
}

// Result is the combined outcome of a full Ask.
type Result struct {
	Phase    Phase          `json:"phase"`
	Analysis *AnalyzeResult `json:"analysis,omitempty"`
	*AnswerResult
}

// Orchestrator drives the query pipeline.
type Orchestrator struct {
	store    store.Store
	registry *dimension.Registry
	client   llm.Client
}

func NewOrchestrator(st store.Store, registry *dimension.Registry, client llm.Client) *Orchestrator {
	return &Orchestrator{store: st, registry: registry, client: client}
}

// Analyze asks the model which dimensions a query needs. Only dimension keys,
// labels and exemplar schemas go into the prompt.
func (o *Orchestrator) Analyze(ctx context.Context, query string) (*AnalyzeResult, error) {
	dims, err := o.registry.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dimensions: %w", err)
	}

	var result AnalyzeResult
	if err := llm.CompleteJSON(ctx, o.client, buildAnalyzePrompt(query, dims), llm.TierStandard, "chat-analyze", analyzeSchema, &result); err != nil {
		return nil, err
	}

	// Keep only keys the registry actually knows.
	known, err := o.registry.ShapeIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dimensions: %w", err)
	}
	kept := result.RelevantDimensions[:0]
	for _, d := range result.RelevantDimensions {
		if _, ok := known[d.Key]; ok {
			kept = append(kept, d)
		}
	}
	result.RelevantDimensions = kept
	return &result, nil
}

// Answer builds a pseudonymized context limited to the given dimension keys
// and asks the model, then restores real names in the answer.
func (o *Orchestrator) Answer(ctx context.Context, query string, dimensionKeys []string) (*AnswerResult, error) {
	talents, err := o.store.ListTalents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load talents: %w", err)
	}

	names := make([]string, 0, len(talents))
	for _, t := range talents {
		names = append(names, t.Name)
	}
	mapping, err := privacy.NewMapping(names)
	if err != nil {
		return nil, err
	}

	contextJSON, err := buildContext(talents, dimensionKeys, mapping)
	if err != nil {
		return nil, err
	}

	rawAnswer, err := o.client.GenerateContent(ctx, buildAnswerPrompt(query, contextJSON, len(dimensionKeys)), llm.TierStandard, "chat-answer")
	if err != nil {
		return nil, err
	}
	rawAnswer = strings.TrimSpace(rawAnswer)

	nameMapping := map[string]string{}
	for pseudo, name := range mapping.PseudoToName() {
		nameMapping[name] = pseudo
	}

	return &AnswerResult{
		RawAnswer:      rawAnswer,
		FinalAnswer:    mapping.Restore(rawAnswer),
		NameMapping:    nameMapping,
		TalentCount:    len(talents),
		DimensionsUsed: dimensionKeys,
	}, nil
}

// Ask runs both phases. When the analyze phase selects no dimensions the
// pipeline stops with ErrNoRelevantDimensions and the result carries the
// analysis for the caller to show.
func (o *Orchestrator) Ask(ctx context.Context, query string) (*Result, error) {
	result := &Result{Phase: PhaseAnalyzing}

	analysis, err := o.Analyze(ctx, query)
	if err != nil {
		result.Phase = PhaseFailed
		return result, err
	}
	result.Analysis = analysis

	if len(analysis.RelevantDimensions) == 0 {
		result.Phase = PhaseFailed
		return result, ErrNoRelevantDimensions
	}

	result.Phase = PhaseAnswering
	answer, err := o.Answer(ctx, query, analysis.Keys())
	if err != nil {
		result.Phase = PhaseFailed
		return result, err
	}
	result.AnswerResult = answer
	result.Phase = PhaseCompleted
	return result, nil
}

// buildContext serializes the talents down to profile basics plus the chosen
// dimensions, with every string pseudonymized.
func buildContext(talents []store.Talent, dimensionKeys []string, mapping *privacy.Mapping) (string, error) {
	entries := make([]map[string]any, 0, len(talents))
	for _, t := range talents {
		name := t.Name
		if pseudo, ok := mapping.NameToPseudo(t.Name); ok {
			name = pseudo
		}
		entry := map[string]any{
			"name":         name,
			"current_role": mapping.MaskText(t.CurrentRole),
			"department":   mapping.MaskText(t.Department),
			"summary":      mapping.MaskText(t.Summary),
		}
		for _, key := range dimensionKeys {
			if v, ok := t.CardData[key]; ok {
				entry[key] = mapping.Mask(v)
			}
		}
		entries = append(entries, entry)
	}

	buf, err := json.MarshalIndent(entries, "", " ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize talent context: %w", err)
	}

	contextJSON := string(buf)
	if runes := []rune(contextJSON); len(runes) > MaxContextChars {
		log.Printf("[chat] talent context truncated from %d to %d chars", len(runes), MaxContextChars)
		contextJSON = string(runes[:MaxContextChars])
	}
	return contextJSON, nil
}
