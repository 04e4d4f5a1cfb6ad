// Package cache persists the feed's single batch snapshot between runs.
// There is exactly one snapshot: a new batch replaces the old one wholesale,
// and the articles and their fetch time are written in one transaction so a
// reader never sees one without the other.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rarora2025/pollit/internal/feed"
)

const fetchTimeKey = "last_fetch_time" // epoch millis

type Cache struct {
	path    string
	readDB  *sql.DB
	writeDB *sql.DB
}

func Open(dbPath string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	c := &Cache{path: dbPath, readDB: readDB, writeDB: writeDB}
	if err := c.init(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init() error {
	_, err := c.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS snapshot (
			position     INTEGER PRIMARY KEY,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			url          TEXT NOT NULL,
			image_url    TEXT NOT NULL DEFAULT '',
			source_name  TEXT NOT NULL DEFAULT '',
			published_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	var errs []error
	if c.readDB != nil {
		errs = append(errs, c.readDB.Close())
	}
	if c.writeDB != nil {
		errs = append(errs, c.writeDB.Close())
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// Store replaces the snapshot with snap. Article order is the batch order;
// position doubles as identity.
func (c *Cache) Store(snap feed.Snapshot) error {
	tx, err := c.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM snapshot"); err != nil {
		return fmt.Errorf("clearing old snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO snapshot (position, title, description, url, image_url, source_name, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, a := range snap.Batch {
		_, err := stmt.Exec(i, a.Title, a.Description, a.URL, a.ImageURL, a.SourceName, a.PublishedAt.UTC())
		if err != nil {
			return fmt.Errorf("inserting article %d: %w", i, err)
		}
	}

	millis := strconv.FormatInt(snap.FetchedAt.UTC().UnixMilli(), 10)
	_, err = tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, fetchTimeKey, millis)
	if err != nil {
		return fmt.Errorf("recording fetch time: %w", err)
	}

	return tx.Commit()
}

// Load returns the stored snapshot, or nil when nothing usable is stored.
func (c *Cache) Load() (*feed.Snapshot, error) {
	fetchedAt, ok, err := c.fetchTime()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	rows, err := c.readDB.Query(`
		SELECT title, description, url, image_url, source_name, published_at
		FROM snapshot ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	defer rows.Close()

	var batch []feed.Article
	for rows.Next() {
		var a feed.Article
		if err := rows.Scan(&a.Title, &a.Description, &a.URL, &a.ImageURL, &a.SourceName, &a.PublishedAt); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		batch = append(batch, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, nil
	}
	return &feed.Snapshot{Batch: batch, FetchedAt: fetchedAt}, nil
}

// Clear drops the snapshot and its fetch time together.
func (c *Cache) Clear() error {
	tx, err := c.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM snapshot"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM meta WHERE key = ?", fetchTimeKey); err != nil {
		return err
	}
	return tx.Commit()
}

// IsStale reports whether the snapshot predates the provider's most recent
// daily quota reset. No snapshot, or an unreadable fetch time, counts as
// stale.
func (c *Cache) IsStale(now time.Time) bool {
	fetchedAt, ok, err := c.fetchTime()
	if err != nil || !ok {
		return true
	}
	return Stale(fetchedAt, now)
}

// Stale is the staleness rule by itself. A snapshot fetched on an earlier
// UTC day goes stale once now passes the reset boundary plus grace; within
// the same UTC day it is always fresh, however old the clock time gap.
func Stale(fetchedAt, now time.Time) bool {
	f := fetchedAt.UTC()
	n := now.UTC()
	dayStart := time.Date(n.Year(), n.Month(), n.Day(), feed.ResetHourUTC, 0, 0, 0, time.UTC)
	if !f.Before(dayStart) {
		return false
	}
	return !n.Before(dayStart.Add(feed.ResetGrace))
}

// Stats summarizes what the cache holds, for the CLI.
type Stats struct {
	Path      string
	Articles  int
	FetchedAt time.Time
	SizeBytes int64
}

func (c *Cache) Stats() (Stats, error) {
	s := Stats{Path: c.path}

	if err := c.readDB.QueryRow("SELECT COUNT(*) FROM snapshot").Scan(&s.Articles); err != nil {
		return s, fmt.Errorf("counting articles: %w", err)
	}
	if fetchedAt, ok, err := c.fetchTime(); err != nil {
		return s, err
	} else if ok {
		s.FetchedAt = fetchedAt
	}
	if fi, err := os.Stat(c.path); err == nil {
		s.SizeBytes = fi.Size()
	}
	return s, nil
}

func (c *Cache) fetchTime() (time.Time, bool, error) {
	var value string
	err := c.readDB.QueryRow("SELECT value FROM meta WHERE key = ?", fetchTimeKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(millis).UTC(), true, nil
}
