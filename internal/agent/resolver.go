package agent

import "strings"

// resolveReferences walks a JSON-like value and replaces every string
// leaf of the form "$key" with the blackboard entry for "key". Missing
// keys substitute null and are reported back as warnings so the caller
// can attach them to the history record. Strings without the leading $
// pass through verbatim.
//
// Resolution is idempotent: resolved values are plain data and contain
// no further references unless a blackboard entry itself stores a $
// string, which is the caller's own doing.
func resolveReferences(v any, bb *Blackboard) (any, []string) {
	var warnings []string
	resolved := resolveValue(v, bb, &warnings)
	return resolved, warnings
}

func resolveValue(v any, bb *Blackboard, warnings *[]string) any {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, "$") {
			return val
		}
		key := val[1:]
		stored, ok := bb.Get(key)
		if !ok {
			*warnings = append(*warnings, "unresolved reference: $"+key)
			return nil
		}
		return stored
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = resolveValue(item, bb, warnings)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveValue(item, bb, warnings)
		}
		return out
	default:
		return v
	}
}
