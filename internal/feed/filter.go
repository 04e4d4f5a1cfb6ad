package feed

import (
	"net/url"
	"strings"
)

// DefaultMinDescription is the shortest description the card layout can
// render without looking broken.
const DefaultMinDescription = 30

// Filter decides which upstream articles are usable by the card view. It
// keeps batch order and drops, never repairs: an article missing a usable
// image URL is excluded rather than patched with a placeholder, so every
// surviving card went through the same resolution path.
type Filter struct {
	MinDescription int
}

func NewFilter() Filter {
	return Filter{MinDescription: DefaultMinDescription}
}

// Usable reports whether a single article passes every requirement: a
// non-empty title, a description of at least MinDescription characters, and
// an image URL with a recognized scheme.
func (f Filter) Usable(a Article) bool {
	if strings.TrimSpace(a.Title) == "" {
		return false
	}
	if len(strings.TrimSpace(a.Description)) < f.minDescription() {
		return false
	}
	return HasImageScheme(a.ImageURL)
}

// Apply filters a fetched batch in order and reports how many were dropped.
func (f Filter) Apply(batch []Article) (kept []Article, dropped int) {
	for _, a := range batch {
		if f.Usable(a) {
			kept = append(kept, a)
		} else {
			dropped++
		}
	}
	return kept, dropped
}

func (f Filter) minDescription() int {
	if f.MinDescription > 0 {
		return f.MinDescription
	}
	return DefaultMinDescription
}

// HasImageScheme reports whether raw parses as an absolute http or https
// URL. Relative paths, data URIs and the like all fail.
func HasImageScheme(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
