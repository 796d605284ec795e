package tui

import (
	"github.com/charmbracelet/lipgloss"
	dark "github.com/thiagokokada/dark-mode-go"

	"github.com/choislab/hanisearch/internal/highlight"
)

type theme struct {
	header   lipgloss.Style
	box      lipgloss.Style
	result   lipgloss.Style
	andBadge lipgloss.Style
	docName  lipgloss.Style
	status   lipgloss.Style
	selected lipgloss.Style
	marks    []lipgloss.Style
}

// newTheme builds the palette, flipping foregrounds for light terminals.
func newTheme() theme {
	fg := lipgloss.Color("#e5e7eb")
	dim := lipgloss.Color("#9ca3af")
	accent := lipgloss.Color("#38bdf8")
	if isDark, err := dark.IsDarkMode(); err == nil && !isDark {
		fg = lipgloss.Color("#1f2937")
		dim = lipgloss.Color("#6b7280")
		accent = lipgloss.Color("#0369a1")
	}

	marks := make([]lipgloss.Style, len(highlight.PreviewPalette))
	for i, color := range highlight.PreviewPalette {
		marks[i] = lipgloss.NewStyle().
			Background(lipgloss.Color(color)).
			Foreground(lipgloss.Color("#111827")).
			Bold(true)
	}

	return theme{
		header: lipgloss.NewStyle().Foreground(accent).Bold(true),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		result:   lipgloss.NewStyle().Foreground(fg),
		andBadge: lipgloss.NewStyle().Foreground(accent).Bold(true),
		docName:  lipgloss.NewStyle().Foreground(dim),
		status:   lipgloss.NewStyle().Foreground(dim),
		selected: lipgloss.NewStyle().Foreground(accent).Bold(true),
		marks:    marks,
	}
}

// markStyle returns the style for a palette slot, cycling like the
// web highlighter.
func (t theme) markStyle(slot int) lipgloss.Style {
	if slot < 0 || len(t.marks) == 0 {
		return lipgloss.NewStyle()
	}
	return t.marks[slot%len(t.marks)]
}
