// Package viewport computes which slice of a long result list is worth
// rendering for a given scroll position, so callers never materialize
// more rows than fit the screen plus a small overscan margin.
package viewport

// Config fixes the geometry of a windowed list. ItemHeight and
// ViewHeight share one unit, rows for terminals or pixels for web
// clients.
type Config struct {
	ItemHeight int
	ViewHeight int
	Overscan   int
}

// DefaultOverscan is the number of extra items kept rendered on each
// side of the visible range.
const DefaultOverscan = 5

// Window is the half-open item range [Start, End) to render, with the
// offset of the first rendered item from the top of the full list.
type Window struct {
	Start  int
	End    int
	Offset int
}

// Len returns the number of items in the window.
func (w Window) Len() int { return w.End - w.Start }

// ItemOffset returns the offset of the i-th windowed item from the top
// of the full list.
func (c Config) ItemOffset(w Window, i int) int {
	return (w.Start + i) * c.ItemHeight
}

// TotalHeight is the height of the full list of n items.
func (c Config) TotalHeight(n int) int { return n * c.ItemHeight }

// Window computes the render range for a scroll offset over n items.
func (c Config) Window(scrollOffset, n int) Window {
	if n <= 0 || c.ItemHeight <= 0 {
		return Window{}
	}
	overscan := c.Overscan
	if overscan < 0 {
		overscan = 0
	}
	if scrollOffset < 0 {
		scrollOffset = 0
	}

	start := scrollOffset/c.ItemHeight - overscan
	if start < 0 {
		start = 0
	}

	visible := (c.ViewHeight + c.ItemHeight - 1) / c.ItemHeight
	end := scrollOffset/c.ItemHeight + visible + overscan
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}

	return Window{Start: start, End: end, Offset: start * c.ItemHeight}
}
