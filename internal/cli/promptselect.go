// Package cli holds the interactive pieces of the scribe command.
package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PromptItem is one selectable configured prompt.
type PromptItem struct {
	ID      int
	Name    string
	Request string
}

// PromptSelector is a bubbletea model for picking a configured prompt.
type PromptSelector struct {
	prompts   []PromptItem
	cursor    int
	selected  *PromptItem
	cancelled bool
}

// NewPromptSelector creates a selector over the given prompts.
func NewPromptSelector(prompts []PromptItem) *PromptSelector {
	return &PromptSelector{prompts: prompts}
}

// Init implements tea.Model
func (m *PromptSelector) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m *PromptSelector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.prompts)-1 {
				m.cursor++
			}
		case "enter":
			m.selected = &m.prompts[m.cursor]
			return m, tea.Quit
		case "esc", "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model
func (m *PromptSelector) View() string {
	var b strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true)
	b.WriteString(headerStyle.Render("Select report prompt:"))
	b.WriteString("\n")

	for i, prompt := range m.prompts {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}

		line := fmt.Sprintf("%s[%d] %s", cursor, prompt.ID, prompt.Name)
		if i == m.cursor {
			highlightStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("cyan"))
			line = highlightStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")

		if i == m.cursor && prompt.Request != "" {
			requestStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).PaddingLeft(6)
			b.WriteString(requestStyle.Render(truncateRequest(prompt.Request)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	b.WriteString(hintStyle.Render("Use ↑/↓ to navigate, Enter to run, Esc to cancel"))

	return b.String()
}

func truncateRequest(request string) string {
	const max = 70
	request = strings.ReplaceAll(request, "\n", " ")
	if len(request) <= max {
		return request
	}
	return request[:max] + "…"
}

// RunPromptSelector runs the interactive picker. It returns nil when
// the user cancels.
func RunPromptSelector(prompts []PromptItem) (*PromptItem, error) {
	if len(prompts) == 0 {
		return nil, fmt.Errorf("no prompts configured")
	}

	m := NewPromptSelector(prompts)
	p := tea.NewProgram(m)

	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("error running selector: %w", err)
	}

	selector := finalModel.(*PromptSelector)
	if selector.cancelled {
		return nil, nil
	}
	return selector.selected, nil
}
