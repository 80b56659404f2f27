package agent

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultSummaryMaxChars bounds the size of a tool-result summary fed
// back to the LLM.
const DefaultSummaryMaxChars = 50000

const (
	summaryHeadItems = 30
	summaryTailItems = 20
	summaryMaxFields = 10
	summaryTopValues = 5
)

// Summarizer produces a bounded JSON projection of a tool result. Lists
// keep a head-plus-tail sample with per-field frequency statistics so
// the LLM can reason about whole datasets without raw rows.
type Summarizer struct {
	maxChars int
}

// NewSummarizer creates a summarizer with the given character bound;
// non-positive values fall back to the default.
func NewSummarizer(maxChars int) *Summarizer {
	if maxChars <= 0 {
		maxChars = DefaultSummaryMaxChars
	}
	return &Summarizer{maxChars: maxChars}
}

// Summarize converts an arbitrary result into its JSON summary string.
func (s *Summarizer) Summarize(v any) string {
	if v == nil {
		return `{"status":"no_result"}`
	}

	normalized, err := normalize(v)
	if err != nil {
		normalized = fmt.Sprintf("%v", v)
	}

	var projection any = normalized
	if list, ok := normalized.([]any); ok {
		projection = summarizeList(list)
	}

	encoded, err := json.Marshal(projection)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%q", fmt.Sprintf("%v", projection)))
	}
	return s.truncate(string(encoded))
}

func (s *Summarizer) truncate(out string) string {
	if len(out) <= s.maxChars {
		return out
	}
	return out[:s.maxChars] + "... [truncated]"
}

// normalize round-trips through JSON so typed values (issue structs)
// flatten into generic maps and lists.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func summarizeList(list []any) map[string]any {
	projection := map[string]any{
		"type":  "list",
		"count": len(list),
	}
	if len(list) <= summaryHeadItems+summaryTailItems {
		projection["items"] = list
	} else {
		sampled := make([]any, 0, summaryHeadItems+summaryTailItems)
		sampled = append(sampled, list[:summaryHeadItems]...)
		sampled = append(sampled, list[len(list)-summaryTailItems:]...)
		projection["items"] = sampled
		projection["truncated"] = true
		projection["sampling"] = fmt.Sprintf("first %d + last %d", summaryHeadItems, summaryTailItems)
	}
	if stats := fieldStatistics(list); stats != nil {
		projection["field_statistics"] = stats
	}
	return projection
}

// fieldStatistics computes per-field frequency tops across all items,
// keyed by the fields of the first object. Non-object lists get none.
func fieldStatistics(list []any) map[string]any {
	if len(list) == 0 {
		return nil
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return nil
	}

	fields := make([]string, 0, len(first))
	for field := range first {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	if len(fields) > summaryMaxFields {
		fields = fields[:summaryMaxFields]
	}

	stats := make(map[string]any, len(fields))
	for _, field := range fields {
		total := 0
		counts := make(map[string]int)
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			value, ok := obj[field]
			if !ok || value == nil {
				continue
			}
			total++
			counts[fmt.Sprintf("%v", value)]++
		}
		stats[field] = map[string]any{
			"total":      total,
			"unique":     len(counts),
			"top_values": topValues(counts, summaryTopValues),
		}
	}
	return stats
}

func topValues(counts map[string]int, limit int) []map[string]any {
	type entry struct {
		value string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for value, count := range counts {
		entries = append(entries, entry{value, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].value < entries[j].value
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	top := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		top = append(top, map[string]any{"value": e.value, "count": e.count})
	}
	return top
}
