package feed

import "github.com/rarora2025/pollit/internal/poll"

// Event is published on Controller.Events whenever the feed changes in a way
// the presentation layer must redraw for. Concrete event types carry
// everything a renderer needs; consumers never reach back into the
// controller mid-event.
type Event interface{ event() }

// StateChanged announces a lifecycle transition. Err is set only when State
// is StateFailed.
type StateChanged struct {
	State State
	Err   error
}

// BatchLoaded announces a new batch entering StateReady, either freshly
// fetched or restored from the persisted snapshot.
type BatchLoaded struct {
	Query     string
	Cursor    Cursor
	FromCache bool
}

// CursorMoved announces the active card changing. ImageRef is already
// resolved: either a proxy URL or the bundled placeholder reference.
type CursorMoved struct {
	Cursor   Cursor
	Article  Article
	ImageRef string
}

// PollReady carries poll content for the card at Cursor. Derived is false
// when the fallback poll stood in for an unusable or failed generation.
type PollReady struct {
	Cursor  Cursor
	Content poll.Content
	Derived bool
}

// VoteCast echoes a recorded vote with the card's updated tally.
type VoteCast struct {
	Cursor Cursor
	Option int
	Tally  [3]int
}

func (StateChanged) event() {}
func (BatchLoaded) event()  {}
func (CursorMoved) event()  {}
func (PollReady) event()    {}
func (VoteCast) event()     {}
