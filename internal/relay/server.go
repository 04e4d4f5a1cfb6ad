// Package relay implements the HTTP relay the feed client talks to. It
// wraps the upstream news API and the poll generator behind a stable
// surface so API keys never reach end-user machines.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/rarora2025/pollit/internal/feed"
	"github.com/rarora2025/pollit/internal/image"
)

const (
	newsHandlerTimeout = 15 * time.Second
	pollHandlerTimeout = 25 * time.Second
	imageFetchTimeout  = 10 * time.Second
	maxProxyBytes      = 8 << 20
)

// errRateLimited marks a news fetch rejected before reaching the upstream.
var errRateLimited = errors.New("upstream request budget exhausted")

type newsResponse struct {
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Articles []feed.Article `json:"articles"`
}

type generateRequest struct {
	Article struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"article"`
}

// generateResponse mirrors the chat-completion shape clients already
// parse, so the relay stays a drop-in for a direct OpenAI call.
type generateResponse struct {
	Choices []generateChoice `json:"choices"`
}

type generateChoice struct {
	Message generateMessage `json:"message"`
}

type generateMessage struct {
	Content string `json:"content"`
}

// Server is the relay HTTP server. Concurrent identical news queries are
// collapsed into one upstream call, and that call is what the rate
// limiter meters, so a burst of clients cannot drain the upstream quota.
type Server struct {
	cfg     Config
	echo    *echo.Echo
	news    NewsFetcher
	polls   PollGenerator
	limiter *rate.Limiter
	flight  singleflight.Group
	imgHTTP *http.Client
	log     *slog.Logger
}

// NewServer wires the real upstream clients from cfg. The poll generator
// is optional: without an OpenAI key the relay still serves news and
// images, and /generate-content answers 503.
func NewServer(cfg Config, log *slog.Logger) *Server {
	var polls PollGenerator
	if cfg.OpenAIAPIKey != "" {
		polls = newOpenAIPolls(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	} else {
		log.Warn("OPENAI_API_KEY not set, poll generation disabled")
	}
	return newServerWith(cfg, newNewsAPI(cfg, log), polls, log)
}

func newServerWith(cfg Config, news NewsFetcher, polls PollGenerator, log *slog.Logger) *Server {
	rpm, burst := cfg.UpstreamRPM, cfg.UpstreamBurst
	if rpm <= 0 {
		rpm = 20
	}
	if burst <= 0 {
		burst = 5
	}
	s := &Server{
		cfg:     cfg,
		news:    news,
		polls:   polls,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst),
		imgHTTP: &http.Client{Timeout: imageFetchTimeout},
		log:     log,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/healthz" || p == "/metrics"
		},
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			recordRequest(c.Path(), v.Status)
			if v.Error == nil {
				log.Info("request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				log.Error("request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))

	e.GET("/news", s.handleNews)
	e.POST("/generate-content", s.handleGenerate)
	e.GET("/proxy-image", s.handleProxyImage)
	e.GET("/assets/placeholder.svg", s.handlePlaceholder)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo = e
	return s
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%d", s.cfg.Port))
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleNews(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		query = "top"
	}

	articles, err := s.fetchShared(query)
	if err != nil {
		if errors.Is(err, errRateLimited) {
			rateLimitedTotal.Inc()
			c.Response().Header().Set("Retry-After", "60")
			return c.JSON(http.StatusTooManyRequests, newsResponse{
				Status:  "error",
				Message: "rate limit exceeded, try again shortly",
			})
		}
		recordUpstreamError("newsapi")
		s.log.Error("news fetch failed", "query", query, "error", err)
		return c.JSON(http.StatusBadGateway, newsResponse{
			Status:  "error",
			Message: "news upstream unavailable",
		})
	}

	return c.JSON(http.StatusOK, newsResponse{Status: "ok", Articles: articles})
}

// fetchShared collapses concurrent fetches for the same query. The
// upstream call runs on a detached context: the first caller hanging up
// must not cancel a result other callers are waiting on.
func (s *Server) fetchShared(query string) ([]feed.Article, error) {
	v, err, _ := s.flight.Do("news:"+query, func() (any, error) {
		if !s.limiter.Allow() {
			return nil, errRateLimited
		}
		ctx, cancel := context.WithTimeout(context.Background(), newsHandlerTimeout)
		defer cancel()
		return s.news.Fetch(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return v.([]feed.Article), nil
}

func (s *Server) handleGenerate(c echo.Context) error {
	if s.polls == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "poll generation is not configured",
		})
	}

	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Article.Title) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "article title is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), pollHandlerTimeout)
	defer cancel()

	content, err := s.polls.Generate(ctx, req.Article.Title, req.Article.Description)
	if err != nil {
		recordUpstreamError("openai")
		s.log.Error("poll generation failed", "title", req.Article.Title, "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "poll generation failed"})
	}

	return c.JSON(http.StatusOK, generateResponse{
		Choices: []generateChoice{{Message: generateMessage{Content: content}}},
	})
}

func (s *Server) handleProxyImage(c echo.Context) error {
	raw := c.QueryParam("url")
	if raw == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url parameter is required"})
	}
	if !feed.HasImageScheme(raw) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "only http and https URLs are accepted"})
	}

	data, contentType, err := s.fetchImage(c.Request().Context(), raw)
	if err != nil {
		imageFallbacksTotal.Inc()
		s.log.Warn("image fetch failed, trying fallback", "url", raw, "error", err)
		if s.cfg.FallbackImageURL != "" {
			if fb, fbType, fbErr := s.fetchImage(c.Request().Context(), s.cfg.FallbackImageURL); fbErr == nil {
				c.Response().Header().Set("Cache-Control", "public, max-age=3600")
				return c.Blob(http.StatusOK, fbType, fb)
			}
		}
		c.Response().Header().Set("Cache-Control", "public, max-age=3600")
		return c.Blob(http.StatusOK, image.PlaceholderContentType, image.Placeholder())
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=43200, immutable")
	return c.Blob(http.StatusOK, contentType, data)
}

func (s *Server) fetchImage(ctx context.Context, raw string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, imageFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building request: %w", err)
	}
	resp, err := s.imgHTTP.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("origin returned %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("origin returned %q, not an image", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("reading image body: %w", err)
	}
	return data, contentType, nil
}

func (s *Server) handlePlaceholder(c echo.Context) error {
	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return c.Blob(http.StatusOK, image.PlaceholderContentType, image.Placeholder())
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
