package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch(t *testing.T) {
	var gotAuthEmail, gotAuthToken string
	var gotRequest searchRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/api/2/search" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuthEmail, gotAuthToken, _ = r.BasicAuth()
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"total": 2,
			"issues": [
				{
					"key": "OPS-1",
					"fields": {
						"summary": "Upgrade collector",
						"status": {"name": "Done"},
						"assignee": {"displayName": "Kim"},
						"created": "2025-10-01T09:00:00.000+0000",
						"updated": "2025-10-05T12:00:00.000+0000",
						"priority": {"name": "High"},
						"issuetype": {"name": "Task"},
						"labels": ["infra", "q3"]
					}
				},
				{
					"key": "OPS-2",
					"fields": {"summary": "Fix flaky alert", "assignee": null}
				}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "reports@example.com", "token-123")
	issues, err := client.Search(context.Background(), "project = OPS", []string{"summary", "status"}, 50)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if gotAuthEmail != "reports@example.com" || gotAuthToken != "token-123" {
		t.Errorf("basic auth = %s / %s", gotAuthEmail, gotAuthToken)
	}
	if gotRequest.JQL != "project = OPS" || gotRequest.MaxResults != 50 {
		t.Errorf("request = %+v", gotRequest)
	}
	if len(gotRequest.Fields) != 2 {
		t.Errorf("fields = %v", gotRequest.Fields)
	}

	if len(issues) != 2 {
		t.Fatalf("got %d issues, want 2", len(issues))
	}
	first := issues[0]
	if first.Key != "OPS-1" || first.Status != "Done" || first.Assignee != "Kim" || first.Priority != "High" {
		t.Errorf("issue = %+v", first)
	}
	if len(first.Labels) != 2 {
		t.Errorf("labels = %v", first.Labels)
	}
	// null assignee flattens to an empty string
	if issues[1].Assignee != "" {
		t.Errorf("assignee = %q", issues[1].Assignee)
	}
}

func TestSearchDefaultsMaxResults(t *testing.T) {
	var gotRequest searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotRequest)
		w.Write([]byte(`{"issues": [], "total": 0}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "e", "t")
	if _, err := client.Search(context.Background(), "project = OPS", nil, 0); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if gotRequest.MaxResults != 100 {
		t.Errorf("maxResults = %d, want default 100", gotRequest.MaxResults)
	}
}

func TestSearchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad jql", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, "e", "t")
	if _, err := client.Search(context.Background(), "not jql", nil, 10); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestDedupe(t *testing.T) {
	issues := []Issue{
		{Key: "OPS-1", Summary: "first"},
		{Key: "OPS-2"},
		{Key: "OPS-1", Summary: "duplicate"},
		{Key: "OPS-3"},
	}

	deduped := Dedupe(issues)
	if len(deduped) != 3 {
		t.Fatalf("got %d issues, want 3", len(deduped))
	}
	// first occurrence wins, order preserved
	if deduped[0].Key != "OPS-1" || deduped[0].Summary != "first" {
		t.Errorf("deduped[0] = %+v", deduped[0])
	}
	if deduped[1].Key != "OPS-2" || deduped[2].Key != "OPS-3" {
		t.Errorf("order = %v", deduped)
	}
}
