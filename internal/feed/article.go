package feed

import "time"

// Article is one feed item as served by the relay. Identity inside a batch
// is positional: the feed never reorders, deduplicates or repairs what the
// relay returned.
type Article struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"imageUrl"`
	SourceName  string    `json:"sourceName"`
	PublishedAt time.Time `json:"publishedAt"`
}

// The upstream news provider resets its request quota at midnight UTC.
// Refresh logic holds off for a short grace window past the boundary so a
// slightly fast clock never burns a request on the old quota day.
const (
	ResetHourUTC = 0
	ResetGrace   = 5 * time.Minute
)

// Snapshot is the persisted form of a batch: the articles plus the moment
// they were fetched. The two are always written and cleared together.
type Snapshot struct {
	Batch     []Article
	FetchedAt time.Time
}

// Cursor is a position inside the active batch.
type Cursor struct {
	Index int
	Total int
}

// State is the feed lifecycle.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
