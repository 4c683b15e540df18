package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client is an abstraction over LLM providers
type Client interface {
	// GenerateContent generates text content using the specified model tier.
	// callType labels the call for usage accounting (e.g. "chat-answer").
	GenerateContent(ctx context.Context, prompt string, tier ModelTier, callType string) (string, error)
	// GenerateJSON generates JSON content using the specified model tier
	GenerateJSON(ctx context.Context, prompt string, tier ModelTier, callType string) (string, error)
	// GetModel returns the underlying provider model for a tier
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// Usage describes a single model call for accounting purposes.
type Usage struct {
	Model        string
	CallType     string
	DurationMs   int64
	InputTokens  int32
	OutputTokens int32
}

// UsageRecorder persists model call usage. Recording is best-effort:
// failures are logged and never break the main flow.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, u Usage) error
}

// NewClient creates a new LLM client based on configuration.
// recorder may be nil to disable usage accounting.
func NewClient(ctx context.Context, config *Config, apiKey string, recorder UsageRecorder) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey, recorder)
	default:
		return NewGeminiClient(ctx, config, apiKey, recorder)
	}
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client   *genai.Client
	config   *Config
	recorder UsageRecorder
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string, recorder UsageRecorder) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:   client,
		config:   config,
		recorder: recorder,
	}, nil
}

// GenerateContent generates text content using the specified model tier
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier, callType string) (string, error) {
	return c.generate(ctx, prompt, tier, callType, false)
}

// GenerateJSON generates JSON content using the specified model tier
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier, callType string) (string, error) {
	text, err := c.generate(ctx, prompt, tier, callType, true)
	if err != nil {
		return "", err
	}
	// Clean any markdown code block wrappers
	return cleanJSONBlock(text), nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string, tier ModelTier, callType string, jsonMode bool) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", &ModelError{Op: callType, Message: fmt.Sprintf("no model configured for tier %s", tier)}
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(0.1) // Low temperature for consistent output
	if jsonMode {
		model.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		return "", &ModelError{Op: callType, Message: "failed to generate content", Cause: err}
	}

	c.recordUsage(ctx, modelName, callType, durationMs, resp)

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", &ModelError{Op: callType, Message: err.Error()}
	}
	return text, nil
}

func (c *GeminiClient) recordUsage(ctx context.Context, model, callType string, durationMs int64, resp *genai.GenerateContentResponse) {
	if c.recorder == nil {
		return
	}
	u := Usage{Model: model, CallType: callType, DurationMs: durationMs}
	if resp.UsageMetadata != nil {
		u.InputTokens = resp.UsageMetadata.PromptTokenCount
		u.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}
	if err := c.recorder.RecordUsage(ctx, u); err != nil {
		log.Printf("[llm] failed to record usage for %s: %v", callType, err)
	}
}

// GetModel returns the model name for a tier
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
