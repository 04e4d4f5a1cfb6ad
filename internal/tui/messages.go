package tui

import (
	"github.com/rarora2025/pollit/internal/feed"
)

// eventMsg wraps one controller event for the bubbletea loop.
type eventMsg struct {
	ev feed.Event
}

// imageInfoMsg reports what the image loader found for the card at index.
type imageInfoMsg struct {
	index       int
	size        int
	contentType string
}

type updateAvailableMsg struct {
	version string
}

type errMsg struct {
	err error
}
