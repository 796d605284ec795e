package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"github.com/choislab/hanisearch/internal/docs"
)

// picker is the fuzzy document selector overlay. Typing filters the
// working set by name, space toggles selection, enter closes.
type picker struct {
	input  textinput.Model
	all    []*docs.Document
	shown  []*docs.Document
	cursor int
}

func newPicker() picker {
	ti := textinput.New()
	ti.Placeholder = "문서 이름 필터"
	ti.CharLimit = 100
	ti.Width = 40
	return picker{input: ti}
}

func (p *picker) open(all []*docs.Document) {
	p.all = all
	p.cursor = 0
	p.input.SetValue("")
	p.input.Focus()
	p.filter()
}

// filter recomputes the visible rows from the current filter text.
func (p *picker) filter() {
	q := p.input.Value()
	if q == "" {
		p.shown = p.all
	} else {
		names := make([]string, len(p.all))
		for i, d := range p.all {
			names[i] = d.Name
		}
		matches := fuzzy.Find(q, names)
		p.shown = make([]*docs.Document, len(matches))
		for i, match := range matches {
			p.shown[i] = p.all[match.Index]
		}
	}
	if p.cursor >= len(p.shown) {
		p.cursor = len(p.shown) - 1
	}
	if p.cursor < 0 {
		p.cursor = 0
	}
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "enter", "tab":
		m.mode = modeSearch
		m.input.Focus()
		// Selection changed: rerun the current query against the new set.
		if m.lastQ != "" {
			return m.startSearch(m.lastQ)
		}
		return m, nil

	case "ctrl+c":
		return m, tea.Quit

	case "up":
		if m.picker.cursor > 0 {
			m.picker.cursor--
		}
		return m, nil

	case "down":
		if m.picker.cursor < len(m.picker.shown)-1 {
			m.picker.cursor++
		}
		return m, nil

	case " ":
		if m.picker.cursor < len(m.picker.shown) {
			d := m.picker.shown[m.picker.cursor]
			if err := m.deps.Docs.Select(d.ID, !d.Selected); err != nil {
				m.status = "선택 실패: " + err.Error()
			}
		}
		return m, nil

	default:
		var cmd tea.Cmd
		m.picker.input, cmd = m.picker.input.Update(msg)
		m.picker.filter()
		return m, cmd
	}
}

func (p picker) view(t theme, width, height int) string {
	var b strings.Builder
	b.WriteString(t.header.Render("문서 선택"))
	b.WriteString("  ")
	b.WriteString(t.status.Render("space: 토글 · enter: 닫기"))
	b.WriteString("\n")
	b.WriteString(t.box.Render(p.input.View()))
	b.WriteString("\n")

	if len(p.shown) == 0 {
		b.WriteString(t.status.Render("일치하는 문서 없음"))
		return b.String()
	}

	max := height - 6
	if max < 1 {
		max = len(p.shown)
	}
	for i, d := range p.shown {
		if i >= max {
			b.WriteString(t.status.Render(fmt.Sprintf("… %d개 더", len(p.shown)-max)))
			b.WriteString("\n")
			break
		}
		check := "[ ]"
		if d.Selected {
			check = "[x]"
		}
		name := d.Name
		if width > 12 {
			name = runewidth.Truncate(name, width-12, "…")
		}
		row := fmt.Sprintf("%s %s", check, name)
		if d.Indexed {
			row += t.status.Render(" ·색인")
		}
		if i == p.cursor {
			row = t.selected.Render("▸ ") + row
		} else {
			row = "  " + row
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	return b.String()
}
