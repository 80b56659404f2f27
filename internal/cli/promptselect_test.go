package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func samplePrompts() []PromptItem {
	return []PromptItem{
		{ID: 1, Name: "october-summary", Request: "Summarize October's issues"},
		{ID: 2, Name: "team-load", Request: "Issues per assignee as a table"},
		{ID: 3, Name: "release-notes", Request: "Extract fixed versions"},
	}
}

func key(s string) tea.KeyMsg {
	if s == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	if s == "esc" {
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestPromptSelectorNavigation(t *testing.T) {
	m := NewPromptSelector(samplePrompts())

	m.Update(key("j"))
	m.Update(key("j"))
	if m.cursor != 2 {
		t.Errorf("cursor = %d, want 2", m.cursor)
	}

	// clamped at the end
	m.Update(key("j"))
	if m.cursor != 2 {
		t.Errorf("cursor = %d after overshoot, want 2", m.cursor)
	}

	m.Update(key("k"))
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
}

func TestPromptSelectorSelect(t *testing.T) {
	m := NewPromptSelector(samplePrompts())
	m.Update(key("j"))
	m.Update(key("enter"))

	if m.selected == nil || m.selected.ID != 2 {
		t.Errorf("selected = %+v, want prompt 2", m.selected)
	}
	if m.cancelled {
		t.Error("selection should not mark the selector cancelled")
	}
}

func TestPromptSelectorCancel(t *testing.T) {
	m := NewPromptSelector(samplePrompts())
	m.Update(key("esc"))

	if !m.cancelled {
		t.Error("esc should cancel the selector")
	}
	if m.selected != nil {
		t.Errorf("selected = %+v, want nil", m.selected)
	}
}

func TestPromptSelectorView(t *testing.T) {
	m := NewPromptSelector(samplePrompts())
	view := m.View()

	for _, want := range []string{"Select report prompt:", "[1] october-summary", "[3] release-notes"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestRunPromptSelectorEmpty(t *testing.T) {
	if _, err := RunPromptSelector(nil); err == nil {
		t.Error("expected error for empty prompt list")
	}
}
