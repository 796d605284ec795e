package highlight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignOrderAndCycle(t *testing.T) {
	s := Assign([]string{"시호", "백호", "갈근", "마황", "계지"})

	assert.Equal(t, 0, s.ColorIndex("시호"))
	assert.Equal(t, 1, s.ColorIndex("백호"))
	assert.Equal(t, -1, s.ColorIndex("없음"))

	// Fifth term wraps to the first palette slot.
	assert.Equal(t, PreviewPalette[0], s.PreviewColor("계지"))
	assert.Equal(t, ExportPalette[0], s.ExportColor("계지"))
	assert.Equal(t, ExportPalette[1], s.ExportColor("백호"))
}

func TestSpansLongestTermWins(t *testing.T) {
	s := Assign([]string{"시호", "시호탕"})
	spans := s.Spans("시호탕 그리고 시호")
	require.Len(t, spans, 2)

	assert.Equal(t, "시호탕", spans[0].Term)
	assert.Equal(t, 1, spans[0].Color)
	assert.Equal(t, "시호", spans[1].Term)
	assert.Equal(t, 0, spans[1].Color)
}

func TestSpansCaseInsensitive(t *testing.T) {
	s := Assign([]string{"sym"})
	spans := s.Spans("SYM and sym")
	require.Len(t, spans, 2)
	assert.Equal(t, "SYM", spans[0].Term)
	assert.Equal(t, 0, spans[0].Color)
	assert.Equal(t, 0, spans[1].Color)
}

func TestMark(t *testing.T) {
	s := Assign([]string{"시호", "백호"})
	got := s.Mark("시호 및 백호 처방")
	assert.Equal(t,
		`<mark style="background-color:#fde047">시호</mark> 및 `+
			`<mark style="background-color:#ffcfdf">백호</mark> 처방`, got)
}

func TestMarkEscapesOutsideText(t *testing.T) {
	s := Assign([]string{"시호"})
	got := s.Mark("<b>시호</b>")
	assert.Contains(t, got, "&lt;b&gt;")
	assert.Contains(t, got, `<mark style="background-color:#fde047">시호</mark>`)
}

func TestMarkNoTerms(t *testing.T) {
	s := Assign(nil)
	assert.Equal(t, "그냥 글", s.Mark("그냥 글"))
	assert.Nil(t, s.Spans("그냥 글"))
}

func TestStripRoundTrip(t *testing.T) {
	s := Assign([]string{"시호", "백호"})
	line := "시호 및 백호 처방"
	assert.Equal(t, line, Strip(s.Mark(line)))
}
