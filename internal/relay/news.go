package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rarora2025/pollit/internal/category"
	"github.com/rarora2025/pollit/internal/feed"
)

// NewsFetcher fetches provider articles for a query.
type NewsFetcher interface {
	Fetch(ctx context.Context, query string) ([]feed.Article, error)
}

// newsAPI talks to a NewsAPI-compatible provider. Headline queries hit
// /top-headlines, everything else /everything sorted by relevancy, so the
// batch order clients see is the provider's relevance order.
type newsAPI struct {
	key      string
	baseURL  string
	country  string
	pageSize int
	http     *http.Client
	log      *slog.Logger
}

func newNewsAPI(cfg Config, log *slog.Logger) *newsAPI {
	return &newsAPI{
		key:      cfg.NewsAPIKey,
		baseURL:  cfg.NewsBaseURL,
		country:  cfg.NewsCountry,
		pageSize: cfg.NewsPageSize,
		http:     &http.Client{Timeout: 12 * time.Second},
		log:      log,
	}
}

type newsAPIResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		URLToImage  string    `json:"urlToImage"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

func (n *newsAPI) Fetch(ctx context.Context, query string) ([]feed.Article, error) {
	var endpoint string
	if category.IsHeadline(query) {
		endpoint = fmt.Sprintf("%s/top-headlines?country=%s&pageSize=%d", n.baseURL, n.country, n.pageSize)
	} else {
		endpoint = fmt.Sprintf("%s/everything?q=%s&language=en&sortBy=relevancy&pageSize=%d",
			n.baseURL, url.QueryEscape(query), n.pageSize)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", n.key)

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("news provider %d: %s", resp.StatusCode, string(b))
	}

	var body newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding provider response: %w", err)
	}
	if body.Status != "ok" {
		return nil, fmt.Errorf("news provider error %s: %s", body.Code, body.Message)
	}

	articles := make([]feed.Article, 0, len(body.Articles))
	for _, a := range body.Articles {
		articles = append(articles, feed.Article{
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			ImageURL:    a.URLToImage,
			SourceName:  a.Source.Name,
			PublishedAt: a.PublishedAt,
		})
	}
	n.log.Debug("provider batch fetched", "query", query, "count", len(articles))
	return articles, nil
}
