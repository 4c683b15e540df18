package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = MustCompileSchema("test_result", `{
	"type": "object",
	"required": ["answer"],
	"properties": {
		"answer": {"type": "string"},
		"score": {"type": "number"}
	}
}`)

// scriptedClient returns canned responses for CompleteJSON tests.
type scriptedClient struct {
	response string
	err      error
}

func (c *scriptedClient) GenerateContent(_ context.Context, _ string, _ ModelTier, _ string) (string, error) {
	return c.response, c.err
}

func (c *scriptedClient) GenerateJSON(_ context.Context, _ string, _ ModelTier, _ string) (string, error) {
	return c.response, c.err
}

func (c *scriptedClient) GetModel(ModelTier) string { return "scripted" }
func (c *scriptedClient) Close() error              { return nil }

func TestResponseSchemaValidate(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		assert.NoError(t, testSchema.Validate(`{"answer": "yes", "score": 0.5}`))
	})

	t.Run("missing required field", func(t *testing.T) {
		err := testSchema.Validate(`{"score": 0.5}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "test_result")
	})

	t.Run("wrong type", func(t *testing.T) {
		assert.Error(t, testSchema.Validate(`{"answer": 42}`))
	})

	t.Run("not json", func(t *testing.T) {
		assert.Error(t, testSchema.Validate(`answer: yes`))
	})
}

func TestCompleteJSON(t *testing.T) {
	type result struct {
		Answer string  `json:"answer"`
		Score  float64 `json:"score"`
	}

	t.Run("valid response unmarshals", func(t *testing.T) {
		client := &scriptedClient{response: `{"answer": "ok", "score": 0.9}`}
		var out result
		require.NoError(t, CompleteJSON(context.Background(), client, "p", TierStandard, "test", testSchema, &out))
		assert.Equal(t, "ok", out.Answer)
		assert.Equal(t, 0.9, out.Score)
	})

	t.Run("schema violation is a ModelError", func(t *testing.T) {
		client := &scriptedClient{response: `{"score": 1}`}
		var out result
		err := CompleteJSON(context.Background(), client, "p", TierStandard, "test", testSchema, &out)
		require.Error(t, err)
		assert.True(t, IsModelError(err))
	})

	t.Run("transport error is a ModelError", func(t *testing.T) {
		client := &scriptedClient{err: errors.New("quota exceeded")}
		var out result
		err := CompleteJSON(context.Background(), client, "p", TierStandard, "test", testSchema, &out)
		require.Error(t, err)
		assert.True(t, IsModelError(err))
	})

	t.Run("garbage response is a ModelError", func(t *testing.T) {
		client := &scriptedClient{response: "not json at all"}
		var out result
		err := CompleteJSON(context.Background(), client, "p", TierStandard, "test", testSchema, &out)
		require.Error(t, err)
		assert.True(t, IsModelError(err))
	})
}
