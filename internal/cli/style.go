package cli

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	accent  = lipgloss.Color("#8BC34A")
	muted   = lipgloss.Color("#6B7280")
	warning = lipgloss.Color("#FFC107")
	danger  = lipgloss.Color("#E53935")

	promptStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	toolStyle    = lipgloss.NewStyle().Foreground(muted)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)
	errorStyle   = lipgloss.NewStyle().Foreground(danger).Bold(true)
	summaryStyle = lipgloss.NewStyle().Foreground(muted).Italic(true)
)

// newRenderer returns nil when glamour cannot build a renderer; callers then
// print raw markdown.
func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

func renderMarkdown(r *glamour.TermRenderer, text string) string {
	if r == nil {
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(muted)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1).MaxWidth(80)
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
