package tools

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jaimegago/scribe/internal/jira"
	"github.com/jaimegago/scribe/internal/llm"
)

// Tool names the execution cache scans for when extracting issues.
const (
	ToolSearchIssues    = "search_issues"
	ToolGetCachedIssues = "get_cached_issues"
)

// IssueCache holds the issues fetched during a run so later tool calls
// (and the execution cache) can reuse them without re-querying Jira.
type IssueCache struct {
	mu     sync.RWMutex
	issues []jira.Issue
}

// NewIssueCache creates an empty cache. One cache is created per
// session; it is not shared across runs.
func NewIssueCache() *IssueCache {
	return &IssueCache{}
}

// Store merges issues into the cache, deduplicating by key.
func (c *IssueCache) Store(issues []jira.Issue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issues = jira.Dedupe(append(c.issues, issues...))
}

// Issues returns the cached issues.
func (c *IssueCache) Issues() []jira.Issue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]jira.Issue, len(c.issues))
	copy(out, c.issues)
	return out
}

// RegisterBuiltins registers the issue-analytics tool set. search_issues
// queries through the given searcher and feeds the issue cache.
func RegisterBuiltins(reg *Registry, searcher jira.Searcher, cache *IssueCache) {
	reg.MustRegister(searchIssuesTool(searcher, cache))
	reg.MustRegister(getCachedIssuesTool(cache))
	reg.MustRegister(findIssueByFieldTool())
	reg.MustRegister(filterIssuesTool())
	reg.MustRegister(groupByFieldTool())
	reg.MustRegister(countByFieldTool())
	reg.MustRegister(extractVersionTool())
	reg.MustRegister(formatDateTool())
	reg.MustRegister(formatAsTableTool())
	reg.MustRegister(formatAsListTool())
}

func searchIssuesTool(searcher jira.Searcher, cache *IssueCache) Tool {
	return &FuncTool{
		ToolName:        ToolSearchIssues,
		ToolDescription: "Execute a JQL query against the issue tracker and return the matching issues.",
		Schema: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"jql":        {Type: "string", Description: "JQL query string, e.g. 'project = OPS AND created >= 2025-10-01'"},
				"fields":     {Type: "array", Description: "Issue fields to fetch (default: all standard fields)", Items: &llm.Property{Type: "string"}},
				"maxResults": {Type: "integer", Description: "Maximum number of issues to return (default 100)"},
			},
			Required: []string{"jql"},
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			jql, ok := asString(args["jql"])
			if !ok || jql == "" {
				return nil, fmt.Errorf("jql must be a non-empty string")
			}
			fields := asStringSlice(args["fields"])
			maxResults := asInt(args["maxResults"], 0)

			issues, err := searcher.Search(ctx, jql, fields, maxResults)
			if err != nil {
				return nil, err
			}
			cache.Store(issues)
			return issues, nil
		},
	}
}

func getCachedIssuesTool(cache *IssueCache) Tool {
	return &FuncTool{
		ToolName:        ToolGetCachedIssues,
		ToolDescription: "Return the issues already fetched during this session without querying the tracker again.",
		Schema: llm.ParameterSchema{
			Type:       "object",
			Properties: map[string]llm.Property{},
		},
		NoSideEffects: true,
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			return cache.Issues(), nil
		},
	}
}

func findIssueByFieldTool() Tool {
	return &FuncTool{
		ToolName:        "find_issue_by_field",
		ToolDescription: "Find the first issue whose field equals the given value. Returns null if none matches.",
		Schema: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"issues":     {Type: "array", Description: "Issue list, usually a $reference to a previous result", Items: &llm.Property{Type: "object"}},
				"fieldName":  {Type: "string", Description: "Field to compare, e.g. 'key' or 'status'"},
				"fieldValue": {Type: "string", Description: "Value to match"},
			},
			Required: []string{"issues", "fieldName", "fieldValue"},
		},
		NoSideEffects: true,
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			objs, err := asObjectList(args["issues"])
			if err != nil {
				return nil, err
			}
			field, ok := asString(args["fieldName"])
			if !ok {
				return nil, fmt.Errorf("fieldName must be a string")
			}
			for _, obj := range objs {
				if fieldMatches(obj[field], args["fieldValue"]) {
					return obj, nil
				}
			}
			return nil, nil
		},
	}
}

func filterIssuesTool() Tool {
	return &FuncTool{
		ToolName:        "filter_issues",
		ToolDescription: "Filter issues by field conditions. Every condition must match; list fields match by containment.",
		Schema: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"issues":          {Type: "array", Description: "Issue list to filter", Items: &llm.Property{Type: "object"}},
				"fieldConditions": {Type: "object", Description: "Field name to expected value, e.g. {\"status\": \"Done\"}"},
			},
			Required: []string{"issues", "fieldConditions"},
		},
		NoSideEffects: true,
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			objs, err := asObjectList(args["issues"])
			if err != nil {
				return nil, err
			}
			conditions, ok := args["fieldConditions"].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("fieldConditions must be an object")
			}

			out := make([]map[string]any, 0, len(objs))
			for _, obj := range objs {
				matched := true
				for field, want := range conditions {
					if !fieldMatches(obj[field], want) {
						matched = false
						break
					}
				}
				if matched {
					out = append(out, obj)
				}
			}
			return out, nil
		},
	}
}

func groupByFieldTool() Tool {
	return &FuncTool{
		ToolName:        "group_by_field",
		ToolDescription: "Group issues by the string value of a field. Missing values group under 'unknown'.",
		Schema: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"issues":    {Type: "array", Description: "Issue list to group", Items: &llm.Property{Type: "object"}},
				"fieldName": {Type: "string", Description: "Field to group by, e.g. 'assignee'"},
			},
			Required: []string{"issues", "fieldName"},
		},
		NoSideEffects: true,
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			objs, err := asObjectList(args["issues"])
			if err != nil {
				return nil, err
			}
			field, ok := asString(args["fieldName"])
			if !ok {
				return nil, fmt.Errorf("fieldName must be a string")
			}
			groups := make(map[string][]map[string]any)
			for _, obj := range objs {
				key := fieldString(obj[field])
				groups[key] = append(groups[key], obj)
			}
			return groups, nil
		},
	}
}

func countByFieldTool() Tool {
	return &FuncTool{
		ToolName:        "count_by_field",
		ToolDescription: "Count issues by the string value of a field.",
		Schema: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"issues":    {Type: "array", Description: "Issue list to count", Items: &llm.Property{Type: "object"}},
				"fieldName": {Type: "string", Description: "Field to count by, e.g. 'status'"},
			},
			Required: []string{"issues", "fieldName"},
		},
		NoSideEffects: true,
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			objs, err := asObjectList(args["issues"])
			if err != nil {
				return nil, err
			}
			field, ok := asString(args["fieldName"])
			if !ok {
				return nil, fmt.Errorf("fieldName must be a string")
			}
			counts := make(map[string]int)
			for _, obj := range objs {
				counts[fieldString(obj[field])]++
			}
			return counts, nil
		},
	}
}

var versionPattern = regexp.MustCompile(`v?\d+\.\d+(\.\d+)?`)

func extractVersionTool() Tool {
	return &FuncTool{
		ToolName:        "extract_version",
		ToolDescription: "Extract the first version number (e.g. 2.14.1) from a text. Returns an empty string when none is found.",
		Schema: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"text": {Type: "string", Description: "Text to scan for a version number"},
			},
			Required: []string{"text"},
		},
		NoSideEffects: true,
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			text, ok := asString(args["text"])
			if !ok {
				return nil, fmt.Errorf("text must be a string")
			}
			return versionPattern.FindString(text), nil
		},
	}
}

// dateLayouts are tried in order when parsing incoming values; Jira
// timestamps use the numeric-zone form.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var layoutAliases = map[string]string{
	"":         "2006-01-02",
	"date":     "2006-01-02",
	"datetime": "2006-01-02 15:04",
	"time":     "15:04",
}

func formatDateTool() Tool {
	return &FuncTool{
		ToolName:        "format_date",
		ToolDescription: "Reformat an ISO timestamp. Layout is 'date', 'datetime', 'time', or a Go reference layout.",
		Schema: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"date":   {Type: "string", Description: "ISO-8601 timestamp or date"},
				"layout": {Type: "string", Description: "Target layout (default 'date')"},
			},
			Required: []string{"date"},
		},
		NoSideEffects: true,
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			value, ok := asString(args["date"])
			if !ok {
				return nil, fmt.Errorf("date must be a string")
			}
			layout, _ := asString(args["layout"])
			if alias, ok := layoutAliases[layout]; ok {
				layout = alias
			}

			var parsed time.Time
			var err error
			for _, in := range dateLayouts {
				parsed, err = time.Parse(in, value)
				if err == nil {
					return parsed.Format(layout), nil
				}
			}
			return nil, fmt.Errorf("unparseable date %q", value)
		},
	}
}

func formatAsTableTool() Tool {
	return &FuncTool{
		ToolName:        "format_as_table",
		ToolDescription: "Render a list of objects (or a name-to-count map) as an HTML or markdown table.",
		Schema: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"data":    {Type: "array", Description: "List of objects, usually a $reference to a previous result", Items: &llm.Property{Type: "object"}},
				"columns": {Type: "array", Description: "Column field names, in order", Items: &llm.Property{Type: "string"}},
				"format":  {Type: "string", Description: "Output format", Enum: []string{"html", "markdown"}},
			},
			Required: []string{"data", "columns"},
		},
		NoSideEffects: true,
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			columns := asStringSlice(args["columns"])
			if len(columns) == 0 {
				return nil, fmt.Errorf("columns must be a non-empty list of strings")
			}
			rows, err := tableRows(args["data"], columns)
			if err != nil {
				return nil, err
			}
			format, _ := asString(args["format"])
			if format == "markdown" {
				return markdownTable(columns, rows), nil
			}
			return htmlTable(columns, rows), nil
		},
	}
}

// tableRows flattens data into cell rows. Count maps become two-column
// rows in key order.
func tableRows(data any, columns []string) ([][]string, error) {
	if m, ok := countMap(data); ok {
		rows := make([][]string, 0, len(m))
		for _, key := range sortedKeys(m) {
			rows = append(rows, []string{key, fmt.Sprintf("%v", m[key])})
		}
		return rows, nil
	}

	objs, err := asObjectList(data)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(objs))
	for _, obj := range objs {
		row := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := obj[col]; ok && v != nil {
				row[i] = fmt.Sprintf("%v", v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func countMap(data any) (map[string]any, bool) {
	switch m := data.(type) {
	case map[string]int:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, true
	case map[string]any:
		for _, v := range m {
			switch v.(type) {
			case int, int64, float64, string:
			default:
				return nil, false
			}
		}
		return m, true
	default:
		return nil, false
	}
}

func htmlTable(columns []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("<table>\n<thead>\n<tr>")
	for _, col := range columns {
		fmt.Fprintf(&b, "<th>%s</th>", html.EscapeString(col))
	}
	b.WriteString("</tr>\n</thead>\n<tbody>\n")
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(&b, "<td>%s</td>", html.EscapeString(cell))
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</tbody>\n</table>")
	return b.String()
}

func markdownTable(columns []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")
	for _, row := range rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatAsListTool() Tool {
	return &FuncTool{
		ToolName:        "format_as_list",
		ToolDescription: "Render data as an HTML unordered list. Objects render as 'key: summary' when those fields exist.",
		Schema: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"data": {Type: "array", Description: "List of strings or objects, or a name-to-count map"},
			},
			Required: []string{"data"},
		},
		NoSideEffects: true,
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			items, err := listItems(args["data"])
			if err != nil {
				return nil, err
			}
			var b strings.Builder
			b.WriteString("<ul>\n")
			for _, item := range items {
				fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(item))
			}
			b.WriteString("</ul>")
			return b.String(), nil
		},
	}
}

func listItems(data any) ([]string, error) {
	if m, ok := countMap(data); ok {
		items := make([]string, 0, len(m))
		for _, key := range sortedKeys(m) {
			items = append(items, fmt.Sprintf("%s: %v", key, m[key]))
		}
		return items, nil
	}

	switch list := data.(type) {
	case []string:
		return list, nil
	case []any:
		items := make([]string, 0, len(list))
		for _, item := range list {
			switch v := item.(type) {
			case string:
				items = append(items, v)
			case map[string]any:
				items = append(items, objectItem(v))
			default:
				items = append(items, fmt.Sprintf("%v", v))
			}
		}
		return items, nil
	default:
		objs, err := asObjectList(data)
		if err != nil {
			return nil, err
		}
		items := make([]string, 0, len(objs))
		for _, obj := range objs {
			items = append(items, objectItem(obj))
		}
		return items, nil
	}
}

func objectItem(obj map[string]any) string {
	key, _ := obj["key"].(string)
	summary, _ := obj["summary"].(string)
	switch {
	case key != "" && summary != "":
		return key + ": " + summary
	case key != "":
		return key
	case summary != "":
		return summary
	default:
		return fmt.Sprintf("%v", obj)
	}
}
