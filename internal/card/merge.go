// Package card implements the talent card data model and the shape-aware
// merge policy used when extracted values are folded into existing card data.
package card

import (
	"fmt"
	"strings"

	"github.com/jonathan/teamgr/internal/dimension"
)

// Merge folds incoming extracted values into existing card data and returns a
// fresh map; neither input is mutated, so the caller can replace the stored
// card in a single write or discard the result entirely.
//
// Per-dimension rules, keyed by the registered shape:
//   - scalar: incoming overwrites, but an empty/whitespace-only value never
//     overwrites existing non-empty content;
//   - list: union by content, de-duplicated, existing items first;
//   - list_of_record: incoming records append unless one matches an existing
//     record on the identity heuristic (all non-empty fields equal);
//   - record: merged key-by-key recursively with the same rules per field.
//
// Keys not present in shapes are rejected with a ValidationError and skipped;
// so are values whose structure cannot serve the declared shape. The merge
// never fails as a whole over individual rejects.
func Merge(existing, incoming map[string]any, shapes map[string]dimension.Shape) (map[string]any, []*ValidationError) {
	result := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		result[k] = deepCopy(v)
	}

	var rejects []*ValidationError
	for key, value := range incoming {
		shape, ok := shapes[key]
		if !ok {
			rejects = append(rejects, &ValidationError{Dimension: key, Message: "not a registered dimension"})
			continue
		}

		merged, err := mergeShaped(result[key], value, shape)
		if err != nil {
			err.Dimension = key
			rejects = append(rejects, err)
			continue
		}
		result[key] = merged
	}
	return result, rejects
}

func mergeShaped(existing, incoming any, shape dimension.Shape) (any, *ValidationError) {
	switch shape {
	case dimension.ShapeScalar:
		return mergeScalar(existing, incoming)
	case dimension.ShapeList:
		return mergeList(existing, incoming)
	case dimension.ShapeListOfRecord:
		return mergeRecordList(existing, incoming)
	case dimension.ShapeRecord:
		return mergeRecord(existing, incoming)
	default:
		return nil, &ValidationError{Message: fmt.Sprintf("unknown shape %s", shape)}
	}
}

func mergeScalar(existing, incoming any) (any, *ValidationError) {
	switch incoming.(type) {
	case []any, map[string]any:
		return nil, &ValidationError{Message: "expected a scalar value"}
	}

	s := scalarString(incoming)
	if isEmpty(s) {
		// Empty never overwrites.
		if existing == nil {
			return "", nil
		}
		return existing, nil
	}
	return s, nil
}

func mergeList(existing, incoming any) (any, *ValidationError) {
	items, ok := incoming.([]any)
	if !ok {
		return nil, &ValidationError{Message: "expected a list of values"}
	}

	result := []any{}
	seen := map[string]bool{}
	if current, ok := existing.([]any); ok {
		for _, v := range current {
			s := scalarString(v)
			if isEmpty(s) || seen[s] {
				continue
			}
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, v := range items {
		s := scalarString(v)
		if isEmpty(s) || seen[s] {
			continue
		}
		seen[s] = true
		result = append(result, s)
	}
	return result, nil
}

func mergeRecordList(existing, incoming any) (any, *ValidationError) {
	items, ok := incoming.([]any)
	if !ok {
		return nil, &ValidationError{Message: "expected a list of records"}
	}

	result := []any{}
	if current, ok := existing.([]any); ok {
		for _, v := range current {
			result = append(result, deepCopy(v))
		}
	}

	for _, v := range items {
		rec, ok := v.(map[string]any)
		if !ok || recordEmpty(rec) {
			continue
		}
		duplicate := false
		for _, ev := range result {
			if er, ok := ev.(map[string]any); ok && recordsMatch(er, rec) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			result = append(result, deepCopy(rec))
		}
	}
	return result, nil
}

func mergeRecord(existing, incoming any) (any, *ValidationError) {
	fields, ok := incoming.(map[string]any)
	if !ok {
		return nil, &ValidationError{Message: "expected a record"}
	}

	result := map[string]any{}
	if current, ok := existing.(map[string]any); ok {
		for k, v := range current {
			result[k] = deepCopy(v)
		}
	}

	for k, v := range fields {
		// Sub-shape follows the incoming value's structure unless the existing
		// field already has one; rules recurse unchanged at each level.
		base := result[k]
		shape := dimension.ShapeOf(v)
		if base != nil {
			shape = dimension.ShapeOf(base)
		}
		merged, err := mergeShaped(base, v, shape)
		if err != nil {
			// Structure mismatch inside a record: skip the field, keep the rest.
			continue
		}
		if isEmpty(merged) && !isEmpty(base) {
			continue
		}
		result[k] = merged
	}
	return result, nil
}

// recordsMatch implements the list-of-record identity heuristic: two records
// are the same entry when every field that is non-empty in either record
// compares equal in both.
func recordsMatch(a, b map[string]any) bool {
	keys := map[string]bool{}
	for k, v := range a {
		if !isEmpty(v) {
			keys[k] = true
		}
	}
	for k, v := range b {
		if !isEmpty(v) {
			keys[k] = true
		}
	}
	if len(keys) == 0 {
		return true
	}
	for k := range keys {
		if fingerprint(a[k]) != fingerprint(b[k]) {
			return false
		}
	}
	return true
}

func fingerprint(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		// JSON numbers arrive as float64; render integers without a decimal.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func recordEmpty(rec map[string]any) bool {
	for _, v := range rec {
		if !isEmpty(v) {
			return false
		}
	}
	return true
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

// DeepCopy clones a card data value. Shared by stores that must hand out
// isolated copies of stored maps.
func DeepCopy(v map[string]any) map[string]any {
	if v == nil {
		return nil
	}
	return deepCopy(v).(map[string]any)
}
