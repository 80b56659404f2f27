// Package template expands {{prompt:N}} placeholders in report
// templates using cached execution artifacts.
package template

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{prompt:(\d+)\}\}`)

// Placeholder sources, in lookup order.
const (
	SourceOverride = "override"
	SourceCache    = "cache"
)

// ArtifactSource supplies the latest cached artifact for a prompt.
// *store.Store satisfies it through the report service adapter.
type ArtifactSource interface {
	LatestArtifact(ctx context.Context, promptID int) (string, bool, error)
}

// Placeholder describes one {{prompt:N}} occurrence in the template.
type Placeholder struct {
	PromptID int    `json:"prompt_id"`
	Found    bool   `json:"found"`
	Source   string `json:"source,omitempty"`
}

// Result is the rendered template plus what was substituted. Missing
// lists prompt ids that had neither an override nor a cached execution.
type Result struct {
	HTML         string        `json:"html"`
	Placeholders []Placeholder `json:"placeholders"`
	Missing      []int         `json:"missing"`
}

// Render substitutes every {{prompt:N}} occurrence. Overrides win over
// the cache; a prompt with neither gets a bounded HTML fallback.
// Artifacts are inserted verbatim: placeholders inside a cached
// artifact are not re-expanded.
func Render(ctx context.Context, tmpl string, overrides map[int]string, source ArtifactSource) (Result, error) {
	result := Result{
		Placeholders: []Placeholder{},
		Missing:      []int{},
	}
	missingSeen := make(map[int]bool)

	var sourceErr error
	html := placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		if sourceErr != nil {
			return match
		}
		digits := placeholderPattern.FindStringSubmatch(match)[1]
		promptID, err := strconv.Atoi(digits)
		if err != nil {
			// Digits beyond int range; leave the placeholder alone.
			return match
		}

		if artifact, ok := overrides[promptID]; ok {
			result.Placeholders = append(result.Placeholders, Placeholder{PromptID: promptID, Found: true, Source: SourceOverride})
			return artifact
		}

		if source != nil {
			artifact, found, err := source.LatestArtifact(ctx, promptID)
			if err != nil {
				sourceErr = fmt.Errorf("failed to look up prompt %d: %w", promptID, err)
				return match
			}
			if found {
				result.Placeholders = append(result.Placeholders, Placeholder{PromptID: promptID, Found: true, Source: SourceCache})
				return artifact
			}
		}

		result.Placeholders = append(result.Placeholders, Placeholder{PromptID: promptID, Found: false})
		if !missingSeen[promptID] {
			missingSeen[promptID] = true
			result.Missing = append(result.Missing, promptID)
		}
		return missingFallback(promptID)
	})
	if sourceErr != nil {
		return Result{}, sourceErr
	}

	result.HTML = html
	return result, nil
}

// PromptIDs returns the distinct prompt ids referenced by a template,
// in order of first occurrence.
func PromptIDs(tmpl string) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, match := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		id, err := strconv.Atoi(match[1])
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func missingFallback(promptID int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="missing-report" data-prompt-id="%d">`, promptID)
	fmt.Fprintf(&b, "No cached execution for prompt %d.", promptID)
	b.WriteString("</div>")
	return b.String()
}
