package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxResults = 100
	searchPath        = "/rest/api/2/search"
)

// Client is a thin REST client for the Jira search API. It handles
// authentication and response flattening; retries and pagination beyond
// the maxResults cap are left to the server side.
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	httpClient *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Jira client for the given base URL using basic
// auth with an API token.
func NewClient(baseURL, email, apiToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		email:      email,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	JQL        string   `json:"jql"`
	Fields     []string `json:"fields,omitempty"`
	MaxResults int      `json:"maxResults"`
}

type searchResponse struct {
	Issues []struct {
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
			Status  struct {
				Name string `json:"name"`
			} `json:"status"`
			Assignee struct {
				DisplayName string `json:"displayName"`
			} `json:"assignee"`
			Created  string `json:"created"`
			Updated  string `json:"updated"`
			Priority struct {
				Name string `json:"name"`
			} `json:"priority"`
			IssueType struct {
				Name string `json:"name"`
			} `json:"issuetype"`
			Labels []string `json:"labels"`
		} `json:"fields"`
	} `json:"issues"`
	Total int `json:"total"`
}

// Search implements Searcher against the Jira REST search endpoint.
func (c *Client) Search(ctx context.Context, jql string, fields []string, maxResults int) ([]Issue, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	body, err := json.Marshal(searchRequest{JQL: jql, Fields: fields, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.email, c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jira search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("jira search returned %d: %s", resp.StatusCode, string(msg))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	issues := make([]Issue, 0, len(sr.Issues))
	for _, raw := range sr.Issues {
		issues = append(issues, Issue{
			Key:       raw.Key,
			Summary:   raw.Fields.Summary,
			Status:    raw.Fields.Status.Name,
			Assignee:  raw.Fields.Assignee.DisplayName,
			Created:   raw.Fields.Created,
			Updated:   raw.Fields.Updated,
			Priority:  raw.Fields.Priority.Name,
			IssueType: raw.Fields.IssueType.Name,
			Labels:    raw.Fields.Labels,
		})
	}
	return issues, nil
}
