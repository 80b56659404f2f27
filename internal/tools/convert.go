package tools

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Argument coercion helpers. Tool arguments arrive either as decoded
// JSON (maps, []any, float64) or as Go values resolved from the
// blackboard, so every data-shaping tool normalizes through these.

// asObjectList coerces a value into a list of generic objects.
func asObjectList(v any) ([]map[string]any, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		return list, nil
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				return roundTripObjectList(v)
			}
			out = append(out, obj)
		}
		return out, nil
	default:
		return roundTripObjectList(v)
	}
}

func roundTripObjectList(v any) ([]map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not a list of objects: %w", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("value is not a list of objects: %w", err)
	}
	return out, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asStringSlice(v any) []string {
	switch list := v.(type) {
	case nil:
		return nil
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// asInt coerces JSON numbers (float64) and native ints.
func asInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}

// fieldString renders an object field as a grouping key.
func fieldString(v any) string {
	switch s := v.(type) {
	case nil:
		return "unknown"
	case string:
		if s == "" {
			return "unknown"
		}
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

// fieldMatches compares an object field against an expected value.
// List fields (labels) match when they contain the expected value.
func fieldMatches(fieldValue, want any) bool {
	if list, ok := fieldValue.([]any); ok {
		for _, item := range list {
			if fieldMatches(item, want) {
				return true
			}
		}
		return false
	}
	if list, ok := fieldValue.([]string); ok {
		for _, item := range list {
			if fieldMatches(item, want) {
				return true
			}
		}
		return false
	}
	return fmt.Sprintf("%v", fieldValue) == fmt.Sprintf("%v", want)
}

// sortedKeys returns map keys in stable order for deterministic output.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
