// Package store persists execution results in SQLite so report
// templates can reuse prior artifacts without re-running the agent.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jaimegago/scribe/internal/agent"
	"github.com/jaimegago/scribe/internal/jira"
	"github.com/jaimegago/scribe/internal/tools"
)

// timeLayout keeps executed_at lexically sortable in SQLite.
const timeLayout = time.RFC3339Nano

// Execution is one cached agent run for a prompt.
type Execution struct {
	ID         string
	PromptID   int
	ExecutedAt time.Time
	Issues     []jira.Issue
	Artifact   string
	Metadata   map[string]any
}

// Report is a rendered template record.
type Report struct {
	ID        string
	Template  string
	HTML      string
	Missing   []int
	CreatedAt time.Time
}

// Store is the SQLite-backed execution cache. It is append-only:
// StoreRun never overwrites a prior run; Delete exists for
// administrative cleanup.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and prepares the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// WAL for concurrent readers while a StoreRun transaction commits.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id          TEXT PRIMARY KEY,
		prompt_id   INTEGER NOT NULL,
		executed_at TEXT NOT NULL,
		jira_issues TEXT NOT NULL DEFAULT '[]',
		html_output TEXT NOT NULL DEFAULT '',
		metadata    TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS reports (
		id         TEXT PRIMARY KEY,
		template   TEXT NOT NULL,
		html       TEXT NOT NULL,
		missing    TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_executions_prompt ON executions(prompt_id, executed_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StoreRun records one completed run in a single transaction and
// returns the new execution id.
func (s *Store) StoreRun(ctx context.Context, promptID int, artifact string, issues []jira.Issue, metadata map[string]any) (string, error) {
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return "", fmt.Errorf("failed to encode issues: %w", err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	id := uuid.NewString()
	executedAt := time.Now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO executions (id, prompt_id, executed_at, jira_issues, html_output, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, promptID, executedAt, string(issuesJSON), artifact, string(metadataJSON),
	); err != nil {
		return "", fmt.Errorf("failed to insert execution: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit execution: %w", err)
	}
	return id, nil
}

// LatestFor returns the most recent execution for a prompt, or nil when
// none exists. Ties on executed_at break by insertion order.
func (s *Store) LatestFor(ctx context.Context, promptID int) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, prompt_id, executed_at, jira_issues, html_output, metadata
		 FROM executions WHERE prompt_id = ?
		 ORDER BY executed_at DESC, rowid DESC LIMIT 1`,
		promptID,
	)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// AllFor returns every execution for a prompt, newest first.
func (s *Store) AllFor(ctx context.Context, promptID int) ([]Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt_id, executed_at, jira_issues, html_output, metadata
		 FROM executions WHERE prompt_id = ?
		 ORDER BY executed_at DESC, rowid DESC`,
		promptID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var executions []Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *exec)
	}
	return executions, rows.Err()
}

// Delete removes one execution and reports whether it existed.
func (s *Store) Delete(ctx context.Context, executionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, executionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete execution: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SaveReport records a rendered template.
func (s *Store) SaveReport(ctx context.Context, template, html string, missing []int) (string, error) {
	if missing == nil {
		missing = []int{}
	}
	missingJSON, err := json.Marshal(missing)
	if err != nil {
		return "", fmt.Errorf("failed to encode missing list: %w", err)
	}
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, template, html, missing, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, template, html, string(missingJSON), time.Now().UTC().Format(timeLayout),
	); err != nil {
		return "", fmt.Errorf("failed to insert report: %w", err)
	}
	return id, nil
}

// Reports returns the most recent rendered reports, newest first.
func (s *Store) Reports(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, template, html, missing, created_at FROM reports
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var (
			r           Report
			missingJSON string
			createdAt   string
		)
		if err := rows.Scan(&r.ID, &r.Template, &r.HTML, &missingJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		if err := json.Unmarshal([]byte(missingJSON), &r.Missing); err != nil {
			return nil, fmt.Errorf("failed to decode missing list: %w", err)
		}
		if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*Execution, error) {
	var (
		exec         Execution
		executedAt   string
		issuesJSON   string
		metadataJSON string
	)
	if err := row.Scan(&exec.ID, &exec.PromptID, &executedAt, &issuesJSON, &exec.Artifact, &metadataJSON); err != nil {
		return nil, err
	}
	var err error
	if exec.ExecutedAt, err = time.Parse(timeLayout, executedAt); err != nil {
		return nil, fmt.Errorf("failed to parse executed_at: %w", err)
	}
	if err := json.Unmarshal([]byte(issuesJSON), &exec.Issues); err != nil {
		return nil, fmt.Errorf("failed to decode issues: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &exec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &exec, nil
}

// ExtractIssues pulls the issues a run touched out of its history,
// scanning search_issues and get_cached_issues results and deduping by
// issue key.
func ExtractIssues(history []agent.HistoryRecord) []jira.Issue {
	var issues []jira.Issue
	for _, record := range history {
		if !record.Success {
			continue
		}
		if record.Tool != tools.ToolSearchIssues && record.Tool != tools.ToolGetCachedIssues {
			continue
		}
		issues = append(issues, coerceIssues(record.Value)...)
	}
	return jira.Dedupe(issues)
}

func coerceIssues(v any) []jira.Issue {
	switch val := v.(type) {
	case []jira.Issue:
		return val
	case nil:
		return nil
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		var issues []jira.Issue
		if err := json.Unmarshal(raw, &issues); err != nil {
			return nil
		}
		return issues
	}
}
