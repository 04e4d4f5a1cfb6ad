// Package schedule fires the daily refresh check at the news provider's
// quota reset boundary. It decides when to ask; whether a refetch actually
// happens is the caller's staleness check.
package schedule

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rarora2025/pollit/internal/feed"
)

// resetSpec fires once a day, ResetGrace past the reset hour, in UTC.
var resetSpec = fmt.Sprintf("%d %d * * *", int(feed.ResetGrace.Minutes()), feed.ResetHourUTC)

// Scheduler arms a single daily callback. Arm is idempotent while armed;
// Cancel stops future firings and permits re-arming.
type Scheduler struct {
	log *slog.Logger

	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
	armed bool
}

func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		log:  log,
		cron: cron.New(cron.WithLocation(time.UTC)),
	}
}

func (s *Scheduler) Arm(check func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed {
		return nil
	}
	id, err := s.cron.AddFunc(resetSpec, check)
	if err != nil {
		return fmt.Errorf("arming reset schedule: %w", err)
	}
	s.entry = id
	s.armed = true
	s.cron.Start()
	s.log.Debug("reset schedule armed", "spec", resetSpec, "next", NextReset(time.Now()))
	return nil
}

func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return
	}
	s.cron.Remove(s.entry)
	s.cron.Stop()
	s.armed = false
}

// NextReset returns the first reset boundary (grace included) after now.
func NextReset(now time.Time) time.Time {
	n := now.UTC()
	next := time.Date(n.Year(), n.Month(), n.Day(), feed.ResetHourUTC, 0, 0, 0, time.UTC).Add(feed.ResetGrace)
	if !next.After(n) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
