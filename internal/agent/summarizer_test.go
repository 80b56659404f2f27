package agent

import (
	"encoding/json"
	"strings"
	"testing"
)

func decodeSummary(t *testing.T, summary string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(summary), &out); err != nil {
		t.Fatalf("summary is not valid JSON: %v\n%s", err, summary)
	}
	return out
}

func TestSummarizeNil(t *testing.T) {
	s := NewSummarizer(0)
	if got := s.Summarize(nil); got != `{"status":"no_result"}` {
		t.Errorf("Summarize(nil) = %s", got)
	}
}

func TestSummarizeScalar(t *testing.T) {
	s := NewSummarizer(0)
	if got := s.Summarize("v2.14.1"); got != `"v2.14.1"` {
		t.Errorf("Summarize(string) = %s", got)
	}
	if got := s.Summarize(map[string]int{"Done": 2}); got != `{"Done":2}` {
		t.Errorf("Summarize(map) = %s", got)
	}
}

func TestSummarizeSmallList(t *testing.T) {
	s := NewSummarizer(0)
	list := []any{
		map[string]any{"key": "OPS-1", "status": "Done"},
		map[string]any{"key": "OPS-2", "status": "Done"},
	}

	out := decodeSummary(t, s.Summarize(list))
	if out["type"] != "list" {
		t.Errorf("type = %v", out["type"])
	}
	if out["count"] != float64(2) {
		t.Errorf("count = %v", out["count"])
	}
	if _, ok := out["truncated"]; ok {
		t.Error("small list should not be marked truncated")
	}
	items := out["items"].([]any)
	if len(items) != 2 {
		t.Errorf("items length = %d", len(items))
	}
}

func TestSummarizeLargeListSampling(t *testing.T) {
	s := NewSummarizer(0)
	list := make([]any, 120)
	for i := range list {
		list[i] = map[string]any{"idx": i}
	}

	out := decodeSummary(t, s.Summarize(list))
	if out["count"] != float64(120) {
		t.Errorf("count = %v", out["count"])
	}
	if out["truncated"] != true {
		t.Error("large list should be marked truncated")
	}
	if out["sampling"] != "first 30 + last 20" {
		t.Errorf("sampling = %v", out["sampling"])
	}

	items := out["items"].([]any)
	if len(items) != 50 {
		t.Fatalf("items length = %d, want 50", len(items))
	}
	first := items[0].(map[string]any)
	last := items[49].(map[string]any)
	if first["idx"] != float64(0) || last["idx"] != float64(119) {
		t.Errorf("sampling lost head/tail: first=%v last=%v", first["idx"], last["idx"])
	}
}

func TestSummarizeFieldStatistics(t *testing.T) {
	s := NewSummarizer(0)
	list := []any{
		map[string]any{"key": "OPS-1", "status": "Done", "assignee": "kim"},
		map[string]any{"key": "OPS-2", "status": "Done", "assignee": "ada"},
		map[string]any{"key": "OPS-3", "status": "In Progress", "assignee": nil},
	}

	out := decodeSummary(t, s.Summarize(list))
	stats, ok := out["field_statistics"].(map[string]any)
	if !ok {
		t.Fatal("missing field_statistics")
	}

	status := stats["status"].(map[string]any)
	if status["total"] != float64(3) {
		t.Errorf("status total = %v", status["total"])
	}
	if status["unique"] != float64(2) {
		t.Errorf("status unique = %v", status["unique"])
	}
	top := status["top_values"].([]any)
	best := top[0].(map[string]any)
	if best["value"] != "Done" || best["count"] != float64(2) {
		t.Errorf("top value = %v", best)
	}

	// nil values do not count toward a field's total
	assignee := stats["assignee"].(map[string]any)
	if assignee["total"] != float64(2) {
		t.Errorf("assignee total = %v", assignee["total"])
	}
}

func TestSummarizeFieldStatisticsCap(t *testing.T) {
	s := NewSummarizer(0)
	wide := map[string]any{}
	for _, f := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		wide[f] = 1
	}
	out := decodeSummary(t, s.Summarize([]any{wide}))
	stats := out["field_statistics"].(map[string]any)
	if len(stats) != 10 {
		t.Errorf("field_statistics has %d fields, want 10", len(stats))
	}
}

func TestSummarizeTruncation(t *testing.T) {
	maxChars := 200
	s := NewSummarizer(maxChars)
	list := make([]any, 40)
	for i := range list {
		list[i] = strings.Repeat("x", 50)
	}

	summary := s.Summarize(list)
	if !strings.HasSuffix(summary, "... [truncated]") {
		t.Error("oversized summary missing truncation marker")
	}
	if len(summary) > maxChars+len("... [truncated]") {
		t.Errorf("summary length %d exceeds bound %d", len(summary), maxChars+len("... [truncated]"))
	}
}

func TestSummarizeUnserializable(t *testing.T) {
	s := NewSummarizer(0)
	summary := s.Summarize(func() {})
	if summary == "" {
		t.Error("expected a fallback summary for unserializable value")
	}
	var decoded any
	if err := json.Unmarshal([]byte(summary), &decoded); err != nil {
		t.Errorf("fallback summary is not valid JSON: %v", err)
	}
}
