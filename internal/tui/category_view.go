package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/rarora2025/pollit/internal/category"
)

// categoryBar is the horizontal category strip. In pick mode a cursor
// moves across the tabs; selecting one triggers a fetch.
type categoryBar struct {
	names      []string
	active     string
	pickMode   bool
	pickCursor int
}

func newCategoryBar(active string) categoryBar {
	all := category.All()
	names := make([]string, len(all))
	cursor := 0
	for i, c := range all {
		names[i] = string(c)
		if string(c) == active {
			cursor = i
		}
	}
	return categoryBar{
		names:      names,
		active:     active,
		pickCursor: cursor,
	}
}

func (b *categoryBar) moveLeft() {
	if b.pickCursor > 0 {
		b.pickCursor--
	}
}

func (b *categoryBar) moveRight() {
	if b.pickCursor < len(b.names)-1 {
		b.pickCursor++
	}
}

// current returns the category name under the pick cursor.
func (b *categoryBar) current() string {
	if b.pickCursor < len(b.names) {
		return b.names[b.pickCursor]
	}
	return b.active
}

// setActive marks name as the live category, or clears the highlight when
// the feed is showing a free-text search instead.
func (b *categoryBar) setActive(name string) {
	b.active = ""
	for i, n := range b.names {
		if n == name {
			b.active = name
			b.pickCursor = i
			return
		}
	}
}

func (b *categoryBar) render(width int) string {
	sep := tabSeparatorStyle.Render(" · ")
	var parts []string

	for i, n := range b.names {
		style := tabInactiveStyle
		if n == b.active {
			style = tabActiveStyle
		}
		label := n
		if b.pickMode && i == b.pickCursor {
			label = "[" + n + "]"
		}
		parts = append(parts, style.Render(label))
	}

	// Build row with · separators, stopping when we'd exceed width
	var row string
	for i, part := range parts {
		candidate := row
		if i > 0 {
			candidate += sep
		}
		candidate += part
		if lipgloss.Width(candidate) > width && row != "" {
			break
		}
		row = candidate
	}

	barStyle := lipgloss.NewStyle().
		Background(colorSurface).
		Width(width).
		PaddingLeft(1)
	return barStyle.Render(row)
}
