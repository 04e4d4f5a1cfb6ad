package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rarora2025/pollit/internal/poll"
)

// settleWindow is how long the view is given to finish a card transition
// before the next navigation request is accepted. Fixed rather than
// animation-driven: the guard clears on time even if a render stalls.
const settleWindow = 300 * time.Millisecond

// pollTimeout bounds one poll generation round trip.
const pollTimeout = 20 * time.Second

// eventBuffer is sized so a briefly busy renderer never blocks the
// controller. Overflow drops the event and logs it.
const eventBuffer = 64

// NewsSource fetches an article batch for a query.
type NewsSource interface {
	FetchNews(ctx context.Context, query string) ([]Article, error)
}

// PollSource generates raw poll text for one article.
type PollSource interface {
	GeneratePoll(ctx context.Context, a Article) (string, error)
}

// Store persists at most one batch snapshot between runs.
type Store interface {
	Load() (*Snapshot, error)
	Store(Snapshot) error
	IsStale(now time.Time) bool
}

// Resolver rewrites upstream image URLs into displayable references.
type Resolver interface {
	Resolve(raw string) string
}

// Refresher fires a callback once a day at the provider's reset boundary.
type Refresher interface {
	Arm(check func()) error
	Cancel()
}

// Controller owns the feed lifecycle: one active batch, one cursor, at most
// one live fetch. All methods are safe for concurrent use. Async completions
// re-enter through the controller mutex and must present the fetch epoch
// (and, for polls, the cursor index) they were started under; anything
// superseded is discarded without touching state.
type Controller struct {
	news    NewsSource
	polls   PollSource
	store   Store
	images  Resolver
	refresh Refresher
	filter  Filter
	settle  time.Duration
	log     *slog.Logger

	mu          sync.Mutex
	state       State
	lastErr     error
	query       string
	batch       []Article
	cursor      int
	epoch       int
	settling    bool
	settleTimer *time.Timer
	tallies     [][3]int
	started     bool
	closed      bool

	events chan Event
}

// Options wires a Controller. News and Store are required; the rest default
// to inert implementations so tests can leave them out.
type Options struct {
	News    NewsSource
	Polls   PollSource
	Store   Store
	Images  Resolver
	Refresh Refresher
	Filter  Filter
	Query   string
	Settle  time.Duration
	Logger  *slog.Logger
}

func NewController(opts Options) *Controller {
	if opts.Query == "" {
		opts.Query = "top"
	}
	if opts.Settle <= 0 {
		opts.Settle = settleWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Filter == (Filter{}) {
		opts.Filter = NewFilter()
	}
	return &Controller{
		news:    opts.News,
		polls:   opts.Polls,
		store:   opts.Store,
		images:  opts.Images,
		refresh: opts.Refresh,
		filter:  opts.Filter,
		settle:  opts.Settle,
		log:     opts.Logger,
		query:   opts.Query,
		state:   StateIdle,
		events:  make(chan Event, eventBuffer),
	}
}

// Events returns the channel the controller publishes on. It is never
// closed; consumers stop reading once they have called Close.
func (c *Controller) Events() <-chan Event { return c.events }

// Start brings the feed up. A fresh persisted snapshot is served without
// touching the network; otherwise a fetch for the configured query begins.
// Start also arms the daily refresh check. Calling it again is a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	if c.refresh != nil {
		if err := c.refresh.Arm(c.checkRefresh); err != nil {
			c.log.Warn("refresh schedule not armed", "error", err)
		}
	}

	snap, err := c.store.Load()
	if err != nil {
		c.log.Warn("snapshot load failed", "error", err)
	}
	if snap != nil && len(snap.Batch) > 0 && !c.store.IsStale(time.Now().UTC()) {
		c.log.Info("serving cached batch", "articles", len(snap.Batch), "fetched_at", snap.FetchedAt)
		c.mu.Lock()
		c.installBatchLocked(snap.Batch, true)
		c.mu.Unlock()
		return
	}
	c.Fetch(ctx, c.ActiveQuery())
}

// checkRefresh runs at the reset boundary and refetches only when the
// snapshot has actually gone stale.
func (c *Controller) checkRefresh() {
	now := time.Now().UTC()
	if !c.store.IsStale(now) {
		c.log.Debug("reset boundary passed, snapshot still fresh")
		return
	}
	c.log.Info("reset boundary passed, refreshing feed", "at", now)
	c.Fetch(context.Background(), c.ActiveQuery())
}

// Fetch starts a new load for query. The current cursor and any in-flight
// poll are abandoned immediately; a fetch issued while another is running
// supersedes it and the older response is dropped on arrival. An empty
// query reuses the active one.
func (c *Controller) Fetch(ctx context.Context, query string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if query == "" {
		query = c.query
	}
	c.epoch++
	epoch := c.epoch
	c.query = query
	c.state = StateLoading
	c.lastErr = nil
	c.stopSettleLocked()
	c.emitLocked(StateChanged{State: StateLoading})
	c.mu.Unlock()

	go c.runFetch(ctx, epoch, query)
}

func (c *Controller) runFetch(ctx context.Context, epoch int, query string) {
	batch, err := c.news.FetchNews(ctx, query)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.closed {
		c.log.Debug("dropping superseded fetch response", "query", query, "epoch", epoch)
		return
	}
	if err != nil {
		c.failLocked(err)
		return
	}

	kept, dropped := c.filter.Apply(batch)
	if dropped > 0 {
		c.log.Debug("filtered unusable articles", "kept", len(kept), "dropped", dropped)
	}
	if len(kept) == 0 {
		c.failLocked(fmt.Errorf("%w for %q", ErrEmptyBatch, query))
		return
	}

	snap := Snapshot{Batch: kept, FetchedAt: time.Now().UTC()}
	if err := c.store.Store(snap); err != nil {
		// A write failure costs us the cold-start cache, not the session.
		c.log.Warn("snapshot not persisted", "error", err)
	}
	c.installBatchLocked(kept, false)
}

// Retry re-runs the active query after a failure. Outside StateFailed it
// does nothing; retries are always user-initiated.
func (c *Controller) Retry(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateFailed {
		c.mu.Unlock()
		return
	}
	query := c.query
	c.mu.Unlock()
	c.Fetch(ctx, query)
}

// Next advances to the following card; at the last card it does nothing.
func (c *Controller) Next() { c.move(1) }

// Prev steps back one card; at the first card it does nothing.
func (c *Controller) Prev() { c.move(-1) }

// JumpTo selects an arbitrary index, clamped into the batch.
func (c *Controller) JumpTo(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveToLocked(index)
}

func (c *Controller) move(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveToLocked(c.cursor + delta)
}

func (c *Controller) moveToLocked(index int) {
	if c.state != StateReady || c.settling {
		return
	}
	index = clamp(index, 0, len(c.batch)-1)
	if index == c.cursor {
		return
	}
	c.cursor = index
	c.beginSettleLocked()
	c.showCardLocked()
}

// Vote records option (0 to 2) for the current card and auto-advances. At
// the last card the tally still updates but the cursor stays. Votes during
// a settling transition are dropped by the same guard as navigation.
func (c *Controller) Vote(option int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady || c.settling {
		return
	}
	if option < 0 || option >= len(c.tallies[c.cursor]) {
		return
	}
	c.tallies[c.cursor][option]++
	c.emitLocked(VoteCast{Cursor: c.cursorLocked(), Option: option, Tally: c.tallies[c.cursor]})
	c.moveToLocked(c.cursor + 1)
}

// State returns the lifecycle state and, when failed, the error behind it.
func (c *Controller) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.lastErr
}

// Cursor returns the current position in the active batch.
func (c *Controller) Cursor() Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursorLocked()
}

// Current returns the article under the cursor, if any.
func (c *Controller) Current() (Article, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady || len(c.batch) == 0 {
		return Article{}, false
	}
	return c.batch[c.cursor], true
}

// ActiveQuery returns the query behind the current or pending batch.
func (c *Controller) ActiveQuery() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// Close cancels the refresh schedule and silences the controller. Pending
// async completions become no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopSettleLocked()
	if c.refresh != nil {
		c.refresh.Cancel()
	}
}

func (c *Controller) installBatchLocked(batch []Article, fromCache bool) {
	c.state = StateReady
	c.lastErr = nil
	c.batch = batch
	c.cursor = 0
	c.tallies = make([][3]int, len(batch))
	c.emitLocked(BatchLoaded{Query: c.query, Cursor: c.cursorLocked(), FromCache: fromCache})
	c.showCardLocked()
}

func (c *Controller) showCardLocked() {
	a := c.batch[c.cursor]
	ref := a.ImageURL
	if c.images != nil {
		ref = c.images.Resolve(a.ImageURL)
	}
	c.emitLocked(CursorMoved{Cursor: c.cursorLocked(), Article: a, ImageRef: ref})
	c.requestPollLocked()
}

// requestPollLocked starts poll generation for the card under the cursor.
// The goroutine captures the epoch and index it was started for; by the
// time it re-acquires the mutex the user may have moved on, and a response
// for anything but the still-current card is discarded.
func (c *Controller) requestPollLocked() {
	if c.polls == nil {
		c.emitLocked(PollReady{Cursor: c.cursorLocked(), Content: poll.Fallback()})
		return
	}
	epoch, index := c.epoch, c.cursor
	article := c.batch[index]

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		defer cancel()
		raw, err := c.polls.GeneratePoll(ctx, article)

		c.mu.Lock()
		defer c.mu.Unlock()
		if epoch != c.epoch || index != c.cursor || c.closed {
			c.log.Debug("dropping stale poll response", "index", index, "epoch", epoch)
			return
		}
		content, derived := poll.Fallback(), false
		switch {
		case err != nil:
			c.log.Warn("poll generation failed, using fallback", "error", err)
		default:
			if content, derived = poll.Parse(raw); !derived {
				c.log.Debug("poll response unusable, using fallback", "raw_len", len(raw))
			}
		}
		c.emitLocked(PollReady{Cursor: c.cursorLocked(), Content: content, Derived: derived})
	}()
}

func (c *Controller) beginSettleLocked() {
	c.settling = true
	epoch := c.epoch
	c.settleTimer = time.AfterFunc(c.settle, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if epoch != c.epoch || c.closed {
			return
		}
		c.settling = false
	})
}

func (c *Controller) stopSettleLocked() {
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
	c.settling = false
}

func (c *Controller) failLocked(err error) {
	c.state = StateFailed
	c.lastErr = err
	c.batch = nil
	c.tallies = nil
	c.cursor = 0
	c.log.Error("feed fetch failed", "query", c.query, "error", err)
	c.emitLocked(StateChanged{State: StateFailed, Err: err})
}

func (c *Controller) emitLocked(ev Event) {
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event dropped, consumer lagging", "type", fmt.Sprintf("%T", ev))
	}
}

func (c *Controller) cursorLocked() Cursor {
	return Cursor{Index: c.cursor, Total: len(c.batch)}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
