// Package dimension defines the talent card dimension registry: the set of
// recognized card dimensions (key, label, shape) that all card data is
// validated against. Dimensions are seeded at install time and extended at
// runtime by the extraction pipeline; once created, a dimension's shape is
// fixed.
package dimension

import "encoding/json"

// Shape classifies the structure of a dimension's value. The set is closed:
// every dimension is exactly one of these.
type Shape string

const (
	// ShapeScalar is a single string value
	ShapeScalar Shape = "scalar"
	// ShapeList is a list of string values
	ShapeList Shape = "list"
	// ShapeListOfRecord is a list of flat records
	ShapeListOfRecord Shape = "list_of_record"
	// ShapeRecord is a single nested record
	ShapeRecord Shape = "record"
)

// Dimension is one named, shape-typed field of the talent card schema.
// Schema holds the exemplar JSON string the dimension was created with
// (e.g. `{"education": "", "certifications": []}` or `[]`); Shape is
// inferred from it once at creation time and never changes.
type Dimension struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Schema    string `json:"schema"`
	Shape     Shape  `json:"shape"`
	IsDefault bool   `json:"is_default"`
	SortOrder int    `json:"sort_order"`
}

// Proposal is a new dimension suggested by the model during extraction.
type Proposal struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Schema string `json:"schema"`
}

// InferShape derives the shape from an exemplar JSON string.
// Unparseable or unrecognized exemplars default to scalar.
func InferShape(exemplar string) Shape {
	var v any
	if err := json.Unmarshal([]byte(exemplar), &v); err != nil {
		return ShapeScalar
	}
	return ShapeOf(v)
}

// ShapeOf classifies an already-decoded JSON value.
func ShapeOf(v any) Shape {
	switch t := v.(type) {
	case []any:
		if len(t) > 0 {
			if _, ok := t[0].(map[string]any); ok {
				return ShapeListOfRecord
			}
		}
		return ShapeList
	case map[string]any:
		return ShapeRecord
	default:
		return ShapeScalar
	}
}

// EmptyValue returns the zero value for a shape, used when initializing
// card data for a freshly created dimension.
func EmptyValue(s Shape) any {
	switch s {
	case ShapeList, ShapeListOfRecord:
		return []any{}
	case ShapeRecord:
		return map[string]any{}
	default:
		return ""
	}
}

// Defaults returns the seed dimensions installed into an empty registry.
func Defaults() []Dimension {
	seeds := []struct {
		key, label, schema string
	}{
		{"personal_info", "个人信息", `{"age": "", "gender": "", "location": "", "hometown": ""}`},
		{"basic_info", "基本背景", `{"education": "", "university": "", "major": "", "certifications": []}`},
		{"professional", "专业能力", `{"years_of_experience": "", "expertise_areas": [], "tech_stack": [], "current_focus": ""}`},
		{"strengths", "优势", `[]`},
		{"weaknesses", "劣势", `[]`},
		{"personality", "性格特征", `{"work_style": "", "communication": "", "leadership": ""}`},
		{"potential", "发展潜力", `{"growth_direction": "", "suitable_roles": [], "development_suggestions": []}`},
		{"notes", "备注", `""`},
		{"one_liner", "一句话总结", `""`},
	}

	dims := make([]Dimension, 0, len(seeds))
	for i, s := range seeds {
		dims = append(dims, Dimension{
			Key:       s.key,
			Label:     s.label,
			Schema:    s.schema,
			Shape:     InferShape(s.schema),
			IsDefault: true,
			SortOrder: i,
		})
	}
	return dims
}
