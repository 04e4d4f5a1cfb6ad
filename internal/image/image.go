// Package image resolves upstream image URLs into references the card view
// can display, and fetches them at render time. Failures degrade to a
// bundled placeholder at both stages; a card is never blocked on its image.
package image

import (
	"context"
	_ "embed"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

//go:embed placeholder.svg
var placeholder []byte

// FallbackRef marks the bundled placeholder graphic. Views render it
// locally; it never causes a network round trip.
const FallbackRef = "asset://placeholder"

// PlaceholderContentType is the MIME type of the bundled graphic.
const PlaceholderContentType = "image/svg+xml"

// Placeholder returns the bundled fallback graphic. The relay serves the
// same bytes on its static asset route so web and terminal clients degrade
// identically.
func Placeholder() []byte { return placeholder }

// Resolver rewrites upstream image URLs into displayable references:
// anything http(s) goes through the relay proxy, everything else resolves
// to FallbackRef.
type Resolver struct {
	relayURL string
}

func NewResolver(relayURL string) Resolver {
	return Resolver{relayURL: strings.TrimRight(relayURL, "/")}
}

func (r Resolver) Resolve(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return FallbackRef
	}
	return r.relayURL + "/proxy-image?url=" + url.QueryEscape(raw)
}

const (
	fetchTimeout  = 10 * time.Second
	maxImageBytes = 8 << 20
)

// Loader fetches resolved references at render time.
type Loader struct {
	client *http.Client
	log    *slog.Logger
}

func NewLoader(log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		client: &http.Client{Timeout: fetchTimeout},
		log:    log,
	}
}

// Fetch returns image bytes and content type for ref. Any failure, a
// non-image response included, yields the placeholder instead of an error.
func (l *Loader) Fetch(ctx context.Context, ref string) ([]byte, string) {
	if ref == FallbackRef || ref == "" {
		return placeholder, PlaceholderContentType
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return placeholder, PlaceholderContentType
	}
	resp, err := l.client.Do(req)
	if err != nil {
		l.log.Debug("image fetch failed, using placeholder", "error", err)
		return placeholder, PlaceholderContentType
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(contentType, "image/") {
		l.log.Debug("image response unusable", "status", resp.StatusCode, "content_type", contentType)
		return placeholder, PlaceholderContentType
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil || len(data) == 0 {
		l.log.Debug("image body unreadable, using placeholder", "error", err)
		return placeholder, PlaceholderContentType
	}
	return data, contentType
}
