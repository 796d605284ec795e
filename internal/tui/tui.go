// Package tui is the terminal search client. It runs against the same
// service layers the HTTP server uses, so searches, selection, and
// exports behave identically in both frontends.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/choislab/hanisearch/internal/docs"
	"github.com/choislab/hanisearch/internal/export"
	"github.com/choislab/hanisearch/internal/highlight"
	"github.com/choislab/hanisearch/internal/logging"
	"github.com/choislab/hanisearch/internal/query"
	"github.com/choislab/hanisearch/internal/store"
	"github.com/choislab/hanisearch/internal/viewport"
)

var tuiLog = logging.ForComponent(logging.CompTUI)

// Deps carries the service layers the model calls into.
type Deps struct {
	Docs     *docs.Adapter
	Engine   *query.Engine
	Store    *store.Store
	Debounce time.Duration
}

type mode int

const (
	modeSearch mode = iota
	modePicker
)

// debounceMsg fires after the settle interval.
type debounceMsg struct {
	query string
}

// resultsMsg delivers async search results back to the model.
type resultsMsg struct {
	query   string
	results []query.DocResult
	err     error
}

// Model is the bubbletea model for the search client.
type Model struct {
	deps   Deps
	theme  theme
	input  textinput.Model
	picker picker

	mode    mode
	width   int
	height  int
	scroll  int
	cursor  int
	status  string
	lastQ   string
	results []query.DocResult
	scheme  *highlight.Scheme

	searching bool
}

func New(deps Deps) Model {
	if deps.Debounce <= 0 {
		deps.Debounce = query.DefaultDebounce
	}
	ti := textinput.New()
	ti.Placeholder = "검색어 (용어1/용어2 …)"
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 60

	return Model{
		deps:   deps,
		theme:  newTheme(),
		input:  ti,
		picker: newPicker(),
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case debounceMsg:
		// Debounce timer fired: search only if the query still matches.
		if msg.query == m.input.Value() && msg.query != "" {
			return m.startSearch(msg.query)
		}
		return m, nil

	case resultsMsg:
		if msg.query != m.input.Value() {
			return m, nil
		}
		m.searching = false
		if msg.err != nil {
			// Keep the last good result set.
			m.status = "검색 실패: " + msg.err.Error()
			return m, nil
		}
		m.results = msg.results
		m.scheme = highlight.Assign(query.Parse(msg.query))
		m.lastQ = msg.query
		m.scroll = 0
		m.cursor = 0
		m.status = fmt.Sprintf("%d개 결과", len(msg.results))
		return m, nil

	case tea.KeyMsg:
		if m.mode == modePicker {
			return m.updatePicker(msg)
		}
		return m.updateSearch(msg)
	}

	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "tab":
		m.mode = modePicker
		m.picker.open(m.deps.Docs.List())
		return m, nil

	case "ctrl+y":
		return m.copyResults()

	case "up":
		if m.cursor > 0 {
			m.cursor--
			m.ensureCursorVisible()
		}
		return m, nil

	case "down":
		if m.cursor < len(m.results)-1 {
			m.cursor++
			m.ensureCursorVisible()
		}
		return m, nil

	case "pgup":
		m.cursor -= m.listHeight()
		if m.cursor < 0 {
			m.cursor = 0
		}
		m.ensureCursorVisible()
		return m, nil

	case "pgdown":
		m.cursor += m.listHeight()
		if m.cursor >= len(m.results) {
			m.cursor = len(m.results) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		m.ensureCursorVisible()
		return m, nil

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		value := m.input.Value()
		if value == m.lastQ {
			return m, cmd
		}
		if value == "" {
			m.results = nil
			m.scheme = nil
			m.lastQ = ""
			m.status = ""
			return m, cmd
		}
		debounce := tea.Tick(m.deps.Debounce, func(time.Time) tea.Msg {
			return debounceMsg{query: value}
		})
		return m, tea.Batch(cmd, debounce)
	}
}

func (m Model) startSearch(raw string) (tea.Model, tea.Cmd) {
	m.searching = true
	m.status = "검색 중…"

	deps := m.deps
	return m, func() tea.Msg {
		terms := query.Parse(raw)
		var refs []query.DocRef
		for _, d := range deps.Docs.Selected() {
			refs = append(refs, query.DocRef{ID: d.ID, Name: d.Name})
		}
		results, err := deps.Engine.SearchAll(context.Background(), deps.Docs, refs, terms)
		if err == nil && deps.Store != nil && len(results) > 0 {
			names := make([]string, len(refs))
			for i, ref := range refs {
				names[i] = ref.Name
			}
			if logErr := deps.Store.AppendSearchLog(raw, names, len(results)); logErr != nil {
				tuiLog.Warn("search log write failed", "error", logErr)
			}
		}
		return resultsMsg{query: raw, results: results, err: err}
	}
}

// copyResults puts the current result list on the clipboard, rich and
// plain flavors together.
func (m Model) copyResults() (tea.Model, tea.Cmd) {
	if len(m.results) == 0 {
		m.status = "복사할 결과 없음"
		return m, nil
	}

	sections := export.SectionsByDocument(m.results)
	res, err := export.CopyRich(
		export.RenderHTML(sections, m.scheme),
		export.RenderPlain(sections),
		true)
	if err != nil {
		m.status = "복사 실패: " + err.Error()
		return m, nil
	}
	m.status = fmt.Sprintf("%d줄 복사됨 (%s)", res.LineCount, res.Method)
	return m, nil
}

func (m *Model) listHeight() int {
	// Header, input box, and status line take the rest.
	h := m.height - 6
	if h < 1 {
		h = 10
	}
	return h
}

func (m *Model) ensureCursorVisible() {
	h := m.listHeight()
	if m.cursor < m.scroll {
		m.scroll = m.cursor
	}
	if m.cursor >= m.scroll+h {
		m.scroll = m.cursor - h + 1
	}
}

func (m Model) View() string {
	if m.mode == modePicker {
		return m.picker.view(m.theme, m.width, m.height)
	}

	var b strings.Builder
	b.WriteString(m.theme.header.Render("hanisearch"))
	b.WriteString("  ")
	b.WriteString(m.theme.status.Render(fmt.Sprintf("선택 문서 %d개 · tab: 문서 선택 · ctrl+y: 결과 복사", len(m.deps.Docs.Selected()))))
	b.WriteString("\n")
	b.WriteString(m.theme.box.Render(m.input.View()))
	b.WriteString("\n")

	b.WriteString(m.renderResults())

	status := m.status
	if m.searching {
		status = "검색 중…"
	}
	b.WriteString("\n")
	b.WriteString(m.theme.status.Render(status))
	return b.String()
}

func (m Model) renderResults() string {
	if len(m.results) == 0 {
		return m.theme.status.Render("결과 없음")
	}

	cfg := viewport.Config{ItemHeight: 1, ViewHeight: m.listHeight(), Overscan: 0}
	win := cfg.Window(m.scroll, len(m.results))

	var b strings.Builder
	for i := win.Start; i < win.End; i++ {
		res := m.results[i]
		line := m.renderLine(res)
		if i == m.cursor {
			line = m.theme.selected.Render("▸ ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// renderLine colors each term occurrence with its palette slot and
// prefixes the source document.
func (m Model) renderLine(res query.DocResult) string {
	prefix := m.theme.docName.Render(res.DocumentName + ":" + fmt.Sprint(res.LineNo+1) + " ")
	badge := ""
	if res.IsAndMatch {
		badge = m.theme.andBadge.Render("∧ ")
	}

	text := res.Text
	maxw := m.width - runewidth.StringWidth(res.DocumentName) - 12
	if maxw > 0 {
		text = runewidth.Truncate(text, maxw, "…")
	}

	if m.scheme == nil {
		return prefix + badge + m.theme.result.Render(text)
	}

	var b strings.Builder
	last := 0
	for _, sp := range m.scheme.Spans(text) {
		b.WriteString(m.theme.result.Render(text[last:sp.Start]))
		b.WriteString(m.theme.markStyle(sp.Color).Render(text[sp.Start:sp.End]))
		last = sp.End
	}
	b.WriteString(m.theme.result.Render(text[last:]))
	return prefix + badge + b.String()
}
