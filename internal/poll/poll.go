// Package poll turns raw model output into displayable poll content. Models
// rarely honor an output format exactly, so parsing is forgiving about
// labels, numbering and bullets, and a fallback poll stands in whenever the
// text is unusable. Parsing never fails.
package poll

import (
	"regexp"
	"strings"
)

// OptionCount is fixed by the card layout: one question, three answers.
const OptionCount = 3

// Content is one opinion poll.
type Content struct {
	Question string
	Options  [OptionCount]string
}

var (
	// labelRe strips leading field labels like "Q:", "Question.", "Option:".
	// The \b keeps single-letter labels from eating words ("Agree" is safe).
	labelRe = regexp.MustCompile(`(?i)^(?:poll question|question|option|answer|choice|q|a|o)\b[:.]?\s*`)
	// enumRe strips list numbering like "1." or "2)".
	enumRe = regexp.MustCompile(`^\d+\s*[.)]\s*`)
)

// Fallback is the poll shown when generation failed or the response was
// unusable. Every card gets a poll one way or the other.
func Fallback() Content {
	return Content{
		Question: "What's your take on this news?",
		Options:  [OptionCount]string{"Agree", "Neutral", "Disagree"},
	}
}

// Parse extracts poll content from raw model output. The first usable line
// becomes the question and the next three become the options; anything
// beyond that is ignored. When fewer than four usable lines remain, Parse
// returns Fallback with derived=false.
func Parse(raw string) (content Content, derived bool) {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = cleanLine(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == OptionCount+1 {
			break
		}
	}
	if len(lines) < OptionCount+1 {
		return Fallback(), false
	}
	content.Question = lines[0]
	copy(content.Options[:], lines[1:])
	return content, true
}

// cleanLine applies the strip rules in order: label, numbering, bullet
// marker, surrounding quotes.
func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = labelRe.ReplaceAllString(line, "")
	line = enumRe.ReplaceAllString(line, "")
	line = strings.TrimLeft(line, "•-*")
	line = strings.TrimSpace(line)
	return strings.Trim(line, "\"“”")
}
