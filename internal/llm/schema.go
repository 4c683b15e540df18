package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ResponseSchema is a compiled JSON Schema used to gate structured model
// output. A response that fails validation is a ModelError, never valid data.
type ResponseSchema struct {
	name   string
	schema *gojsonschema.Schema
}

// MustCompileSchema compiles a JSON Schema document or panics.
// Intended for package-level schema constants.
func MustCompileSchema(name, schemaJSON string) *ResponseSchema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid response schema %s: %v", name, err))
	}
	return &ResponseSchema{name: name, schema: schema}
}

// Name returns the schema's name.
func (s *ResponseSchema) Name() string { return s.name }

// Validate checks a JSON document against the schema.
func (s *ResponseSchema) Validate(jsonText string) error {
	result, err := s.schema.Validate(gojsonschema.NewStringLoader(jsonText))
	if err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("response violates schema %s:", s.name))
	for _, desc := range result.Errors() {
		sb.WriteString(fmt.Sprintf(" %s: %s;", desc.Field(), desc.Description()))
	}
	return fmt.Errorf("%s", strings.TrimSuffix(sb.String(), ";"))
}

// CompleteJSON performs a structured model call: generate JSON, validate it
// against schema, and unmarshal into out. Any failure, including a
// schema-violating response, is returned as a *ModelError.
func CompleteJSON(ctx context.Context, c Client, prompt string, tier ModelTier, callType string, schema *ResponseSchema, out any) error {
	text, err := c.GenerateJSON(ctx, prompt, tier, callType)
	if err != nil {
		if IsModelError(err) {
			return err
		}
		return &ModelError{Op: callType, Message: "generation failed", Cause: err}
	}

	if schema != nil {
		if err := schema.Validate(text); err != nil {
			return &ModelError{Op: callType, Message: "malformed response", Cause: err}
		}
	}

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return &ModelError{Op: callType, Message: "failed to parse JSON response", Cause: err}
	}
	return nil
}
