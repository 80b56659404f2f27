package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jaimegago/scribe/internal/agent"
	"github.com/jaimegago/scribe/internal/jira"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "scribe.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRunRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	issues := []jira.Issue{{Key: "OPS-1", Summary: "Upgrade collector", Status: "Done"}}
	metadata := map[string]any{"iterations": float64(2)}

	id, err := s.StoreRun(ctx, 7, "<p>report</p>", issues, metadata)
	if err != nil {
		t.Fatalf("StoreRun failed: %v", err)
	}
	if id == "" {
		t.Fatal("StoreRun returned empty id")
	}

	exec, err := s.LatestFor(ctx, 7)
	if err != nil {
		t.Fatalf("LatestFor failed: %v", err)
	}
	if exec == nil {
		t.Fatal("LatestFor returned nil for stored prompt")
	}
	if exec.ID != id || exec.PromptID != 7 || exec.Artifact != "<p>report</p>" {
		t.Errorf("execution = %+v", exec)
	}
	if len(exec.Issues) != 1 || exec.Issues[0].Key != "OPS-1" {
		t.Errorf("issues = %v", exec.Issues)
	}
	if exec.Metadata["iterations"] != float64(2) {
		t.Errorf("metadata = %v", exec.Metadata)
	}
	if exec.ExecutedAt.IsZero() {
		t.Error("executed_at not set")
	}
}

func TestLatestForEmpty(t *testing.T) {
	s := openTestStore(t)
	exec, err := s.LatestFor(context.Background(), 99)
	if err != nil {
		t.Fatalf("LatestFor failed: %v", err)
	}
	if exec != nil {
		t.Errorf("expected nil for unknown prompt, got %+v", exec)
	}
}

func TestLatestForPicksNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, artifact := range []string{"first", "second", "third"} {
		if _, err := s.StoreRun(ctx, 1, artifact, nil, nil); err != nil {
			t.Fatalf("StoreRun failed: %v", err)
		}
	}

	exec, err := s.LatestFor(ctx, 1)
	if err != nil {
		t.Fatalf("LatestFor failed: %v", err)
	}
	if exec.Artifact != "third" {
		t.Errorf("latest artifact = %q, want third", exec.Artifact)
	}
}

func TestLatestForTieBreaksByInsertionOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Force identical timestamps; rowid must break the tie.
	at := "2026-08-25T10:00:00Z"
	for _, id := range []string{"exec-a", "exec-b"} {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO executions (id, prompt_id, executed_at) VALUES (?, 5, ?)`, id, at,
		); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	exec, err := s.LatestFor(ctx, 5)
	if err != nil {
		t.Fatalf("LatestFor failed: %v", err)
	}
	if exec.ID != "exec-b" {
		t.Errorf("latest id = %s, want exec-b (later insertion)", exec.ID)
	}
}

func TestAllFor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, artifact := range []string{"one", "two"} {
		if _, err := s.StoreRun(ctx, 3, artifact, nil, nil); err != nil {
			t.Fatalf("StoreRun failed: %v", err)
		}
	}
	if _, err := s.StoreRun(ctx, 4, "other prompt", nil, nil); err != nil {
		t.Fatalf("StoreRun failed: %v", err)
	}

	executions, err := s.AllFor(ctx, 3)
	if err != nil {
		t.Fatalf("AllFor failed: %v", err)
	}
	if len(executions) != 2 {
		t.Fatalf("got %d executions, want 2", len(executions))
	}
	if executions[0].Artifact != "two" || executions[1].Artifact != "one" {
		t.Errorf("order = %q, %q; want newest first", executions[0].Artifact, executions[1].Artifact)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.StoreRun(ctx, 1, "x", nil, nil)
	if err != nil {
		t.Fatalf("StoreRun failed: %v", err)
	}

	deleted, err := s.Delete(ctx, id)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Error("Delete returned false for existing execution")
	}

	deleted, err = s.Delete(ctx, id)
	if err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if deleted {
		t.Error("Delete returned true for missing execution")
	}
}

func TestSaveAndListReports(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.SaveReport(ctx, "<h1>{{prompt:1}}</h1>", "<h1>body</h1>", []int{2})
	if err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	reports, err := s.Reports(ctx, 10)
	if err != nil {
		t.Fatalf("Reports failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	r := reports[0]
	if r.ID != id || r.HTML != "<h1>body</h1>" {
		t.Errorf("report = %+v", r)
	}
	if len(r.Missing) != 1 || r.Missing[0] != 2 {
		t.Errorf("missing = %v", r.Missing)
	}
}

func TestExtractIssues(t *testing.T) {
	history := []agent.HistoryRecord{
		{
			Tool:    "search_issues",
			Success: true,
			Value:   []jira.Issue{{Key: "OPS-1"}, {Key: "OPS-2"}},
		},
		{
			// generic value shape survives the JSON coercion
			Tool:    "get_cached_issues",
			Success: true,
			Value: []any{
				map[string]any{"key": "OPS-2", "summary": "dup"},
				map[string]any{"key": "OPS-3"},
			},
		},
		{
			Tool:    "search_issues",
			Success: false,
			Value:   []jira.Issue{{Key: "OPS-9"}},
		},
		{
			Tool:    "format_as_table",
			Success: true,
			Value:   "<table></table>",
		},
	}

	issues := ExtractIssues(history)
	keys := make([]string, len(issues))
	for i, issue := range issues {
		keys[i] = issue.Key
	}
	want := []string{"OPS-1", "OPS-2", "OPS-3"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}
