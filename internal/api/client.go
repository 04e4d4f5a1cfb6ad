// Package api is the feed's only upstream surface: a small JSON client for
// the relay. The relay owns provider credentials and quota; this client owns
// timeouts and translating failures into the feed's error types.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rarora2025/pollit/internal/feed"
)

const (
	newsTimeout = 15 * time.Second
	pollTimeout = 20 * time.Second
	maxBody     = 4 << 20
)

type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func New(baseURL string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: pollTimeout},
		log:     log,
	}
}

type newsEnvelope struct {
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Articles []feed.Article `json:"articles"`
}

// FetchNews retrieves one batch for query. Empty means headline mode; the
// relay treats "top" the same way.
func (c *Client) FetchNews(ctx context.Context, query string) ([]feed.Article, error) {
	if query == "" {
		query = "top"
	}
	ctx, cancel := context.WithTimeout(ctx, newsTimeout)
	defer cancel()

	endpoint := c.baseURL + "/news?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &feed.TransportError{Op: "news", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &feed.TransportError{Op: "news", Err: err}
	}

	var env newsEnvelope
	if resp.StatusCode != http.StatusOK {
		_ = json.Unmarshal(body, &env) // best effort at the relay's message
		return nil, &feed.UpstreamError{Endpoint: "/news", Code: resp.StatusCode, Message: env.Message}
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &feed.UpstreamError{Endpoint: "/news", Code: resp.StatusCode, Message: "malformed response"}
	}
	if env.Status != "ok" {
		return nil, &feed.UpstreamError{Endpoint: "/news", Code: resp.StatusCode, Message: env.Message}
	}

	c.log.Debug("news fetched", "query", query, "count", len(env.Articles))
	return env.Articles, nil
}

type generateRequest struct {
	Article struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"article"`
}

type generateResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GeneratePoll asks the relay for raw poll text for one article. Callers
// parse it; an error here degrades to the fallback poll, never the feed.
func (c *Client) GeneratePoll(ctx context.Context, a feed.Article) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	var gen generateRequest
	gen.Article.Title = a.Title
	gen.Article.Description = a.Description
	payload, err := json.Marshal(gen)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate-content", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &feed.TransportError{Op: "generate-content", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &feed.UpstreamError{
			Endpoint: "/generate-content",
			Code:     resp.StatusCode,
			Message:  strings.TrimSpace(string(b)),
		}
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decoding generate response: %w", err)
	}
	if len(gr.Choices) == 0 {
		return "", &feed.UpstreamError{Endpoint: "/generate-content", Code: resp.StatusCode, Message: "empty choices"}
	}
	return gr.Choices[0].Message.Content, nil
}
