package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rarora2025/pollit/internal/feed"
)

func renderStatusBar(cur feed.Cursor, label string, nextReset time.Time, width int, mode mode, loading bool) string {
	var parts []string
	if cur.Total > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d", cur.Index+1, cur.Total))
	}
	if label != "" {
		parts = append(parts, label)
	}
	if !nextReset.IsZero() {
		parts = append(parts, "fresh news in "+untilShort(nextReset))
	}
	left := " " + strings.Join(parts, " · ")
	if loading {
		left += " (loading...)"
	}

	var right string
	switch mode {
	case modeSearch:
		right = " esc cancel  enter search "
	case modeCategory:
		right = " ←/→ move  enter pick  esc close "
	default:
		right = " 1-3 vote  n/p move  c topics  ? help  q quit "
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + fmt.Sprintf("%*s", gap, "") + right

	return statusBarStyle.Width(width).Render(bar)
}

// untilShort formats the time until t as a compact "3h" / "25m" string.
func untilShort(t time.Time) string {
	d := time.Until(t)
	if d < 0 {
		d = 0
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
