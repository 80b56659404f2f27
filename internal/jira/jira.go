// Package jira provides the issue model and a minimal query client for
// Jira-shaped issue trackers. The agent core only depends on the
// Searcher interface; the REST client is one implementation of it.
package jira

import "context"

// Issue is the flattened issue shape the report tools operate on.
// Field names (json tags) are the vocabulary the LLM uses in tool
// arguments, so they must stay stable.
type Issue struct {
	Key       string   `json:"key"`
	Summary   string   `json:"summary"`
	Status    string   `json:"status"`
	Assignee  string   `json:"assignee"`
	Created   string   `json:"created"`
	Updated   string   `json:"updated"`
	Priority  string   `json:"priority"`
	IssueType string   `json:"issuetype"`
	Labels    []string `json:"labels"`
}

// Searcher executes a JQL query with a field selection and a result cap.
// The JQL string is opaque to the core; transport errors are returned
// as-is and recorded by the execution engine as tool failures.
type Searcher interface {
	Search(ctx context.Context, jql string, fields []string, maxResults int) ([]Issue, error)
}

// Dedupe returns issues with duplicate keys removed, preserving the
// order of first appearance.
func Dedupe(issues []Issue) []Issue {
	seen := make(map[string]bool, len(issues))
	out := make([]Issue, 0, len(issues))
	for _, is := range issues {
		if is.Key == "" || seen[is.Key] {
			continue
		}
		seen[is.Key] = true
		out = append(out, is)
	}
	return out
}
