// Package category maps the feed's category chips to the search expressions
// the relay forwards upstream. Unknown names pass through unchanged so
// free-text search rides the same code path.
package category

import (
	"fmt"
	"strings"
)

// Category is a named feed section.
type Category string

const (
	Top           Category = "top"
	Technology    Category = "technology"
	Business      Category = "business"
	Science       Category = "science"
	Health        Category = "health"
	Sports        Category = "sports"
	Entertainment Category = "entertainment"
	World         Category = "world"
)

// All returns the categories in display order, Top first. Top is the
// headline mode: the relay serves provider headlines instead of a search.
func All() []Category {
	return []Category{Top, Technology, Business, Science, Health, Sports, Entertainment, World}
}

// queries widens each category into an OR expression; single words return
// too few upstream hits to fill a batch after filtering.
var queries = map[Category]string{
	Top:           "top",
	Technology:    "technology OR software OR AI OR startup",
	Business:      "business OR economy OR markets OR finance",
	Science:       "science OR research OR space OR climate",
	Health:        "health OR medicine OR wellness",
	Sports:        "sports OR football OR basketball OR tennis",
	Entertainment: "entertainment OR film OR music OR television",
	World:         "world OR international OR geopolitics",
}

// aliases maps short CLI spellings to categories.
var aliases = map[string]Category{
	"tech":    Technology,
	"biz":     Business,
	"sci":     Science,
	"ent":     Entertainment,
	"news":    Top,
	"default": Top,
}

// Resolve maps user input, an alias or a full name, to a Category.
func Resolve(name string) (Category, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if cat, ok := aliases[name]; ok {
		return cat, nil
	}
	for _, cat := range All() {
		if string(cat) == name {
			return cat, nil
		}
	}
	names := make([]string, 0, len(All()))
	for _, cat := range All() {
		names = append(names, string(cat))
	}
	return "", fmt.Errorf("unknown category %q (valid: %s)", name, strings.Join(names, ", "))
}

// Query returns the upstream search expression for name. Empty input means
// Top; anything unrecognized is treated as free text and returned as-is.
func Query(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return string(Top)
	}
	if q, ok := queries[Category(strings.ToLower(trimmed))]; ok {
		return q
	}
	return trimmed
}

// IsHeadline reports whether query selects headline mode rather than a
// search.
func IsHeadline(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	return q == "" || q == string(Top)
}
