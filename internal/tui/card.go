package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rarora2025/pollit/internal/feed"
	"github.com/rarora2025/pollit/internal/poll"
)

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

func truncateStr(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

func wrapText(s string, width int) string {
	if width <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}

	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
		} else {
			line += " " + w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

// cardData is everything the feed view needs for the current card.
type cardData struct {
	article feed.Article
	cursor  feed.Cursor
	imgNote string

	poll        poll.Content
	pollDerived bool
	pollPending bool
	tally       [3]int
}

func renderCard(d cardData, width, height int) string {
	cardWidth := width - 8
	if cardWidth < 30 {
		cardWidth = 30
	}
	innerWidth := cardWidth - 2

	var body []string

	meta := cardSourceStyle.Render(d.article.SourceName) +
		cardTimeStyle.Render(" · "+relativeTime(d.article.PublishedAt))
	body = append(body, meta)
	body = append(body, cardTitleStyle.Width(innerWidth).Render(d.article.Title))
	body = append(body, "")

	for _, line := range strings.Split(wrapText(d.article.Description, innerWidth), "\n") {
		body = append(body, cardBodyStyle.Render(line))
	}

	if d.imgNote != "" {
		body = append(body, "")
		body = append(body, cardTimeStyle.Render(d.imgNote))
	}

	body = append(body, "")
	body = append(body, cardLinkStyle.Render(truncateStr("Read more: "+d.article.URL, innerWidth)))

	cardBox := cardBoxStyle.Width(cardWidth).Render(strings.Join(body, "\n"))
	pollBox := renderPollBox(d, cardWidth)

	counter := cardTimeStyle.Render(fmt.Sprintf("%d/%d", d.cursor.Index+1, d.cursor.Total))

	var lines []string
	lines = append(lines, "", "  "+counter)
	for _, l := range strings.Split(cardBox, "\n") {
		lines = append(lines, "  "+l)
	}
	for _, l := range strings.Split(pollBox, "\n") {
		lines = append(lines, "  "+l)
	}

	return thirdCenter(strings.Join(lines, "\n"), height)
}

func renderPollBox(d cardData, cardWidth int) string {
	innerWidth := cardWidth - 2

	var body []string
	if d.pollPending {
		body = append(body, pollNoteStyle.Render("drafting today's poll..."))
	} else {
		for _, line := range strings.Split(wrapText(d.poll.Question, innerWidth), "\n") {
			body = append(body, pollQuestionStyle.Render(line))
		}
		body = append(body, "")

		votes := d.tally[0] + d.tally[1] + d.tally[2]
		for i, opt := range d.poll.Options {
			line := pollKeyStyle.Render(fmt.Sprintf("%d", i+1)) + " " +
				pollOptionStyle.Render(truncateStr(opt, innerWidth-8))
			if votes > 0 {
				line += pollTallyStyle.Render(fmt.Sprintf("  %d", d.tally[i]))
			}
			body = append(body, line)
		}
		if !d.pollDerived {
			body = append(body, "")
			body = append(body, pollNoteStyle.Render("standard poll"))
		}
	}

	return pollBoxStyle.Width(cardWidth).Render(strings.Join(body, "\n"))
}

var asciiLogo = []string{
	`██████╗  ██████╗ ██╗     ██╗     ██╗████████╗`,
	`██╔══██╗██╔═══██╗██║     ██║     ██║╚══██╔══╝`,
	`██████╔╝██║   ██║██║     ██║     ██║   ██║   `,
	`██╔═══╝ ██║   ██║██║     ██║     ██║   ██║   `,
	`██║     ╚██████╔╝███████╗███████╗██║   ██║   `,
	`╚═╝      ╚═════╝ ╚══════╝╚══════╝╚═╝   ╚═╝   `,
}

func renderSplash(width, height int, status, note string) string {
	logoStyle := lipgloss.NewStyle().Foreground(colorAccent)

	var lines []string
	for _, l := range asciiLogo {
		lines = append(lines, logoStyle.Render(l))
	}
	lines = append(lines, "")
	lines = append(lines, helpDimStyle.Render("news, with a side of opinions"))
	lines = append(lines, "")
	lines = append(lines, status)
	if note != "" {
		lines = append(lines, "")
		lines = append(lines, logoStyle.Render(note))
	}

	content := strings.Join(lines, "\n")
	contentHeight := strings.Count(content, "\n") + 1
	topPad := (height - contentHeight) / 3
	if topPad < 0 {
		topPad = 0
	}

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Top,
		strings.Repeat("\n", topPad)+content)
}

func renderErrorView(err error, width, height int) string {
	cardWidth := width - 8
	if cardWidth < 30 {
		cardWidth = 30
	}

	var body []string
	body = append(body, errTitleStyle.Render("The feed didn't load"))
	body = append(body, "")
	msg := "something went wrong"
	if err != nil {
		msg = err.Error()
	}
	for _, line := range strings.Split(wrapText(msg, cardWidth-2), "\n") {
		body = append(body, cardBodyStyle.Render(line))
	}
	body = append(body, "")
	body = append(body, helpDimStyle.Render("r retry · c categories · q quit"))

	box := cardBoxStyle.Width(cardWidth).Render(strings.Join(body, "\n"))

	var lines []string
	lines = append(lines, "")
	for _, l := range strings.Split(box, "\n") {
		lines = append(lines, "  "+l)
	}

	return thirdCenter(strings.Join(lines, "\n"), height)
}

func thirdCenter(content string, height int) string {
	contentLines := strings.Count(content, "\n") + 1
	topPad := (height - contentLines) / 3
	if topPad < 0 {
		topPad = 0
	}
	return strings.Repeat("\n", topPad) + content
}
