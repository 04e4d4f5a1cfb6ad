package relay

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pollit",
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status code",
		},
		[]string{"route", "status"},
	)

	upstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pollit",
			Subsystem: "relay",
			Name:      "upstream_errors_total",
			Help:      "Failed calls to upstream services",
		},
		[]string{"upstream"},
	)

	imageFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pollit",
			Subsystem: "relay",
			Name:      "image_fallbacks_total",
			Help:      "Image proxy requests answered with the placeholder",
		},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pollit",
			Subsystem: "relay",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the upstream rate limiter",
		},
	)
)

func recordRequest(route string, status int) {
	requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func recordUpstreamError(upstream string) {
	upstreamErrorsTotal.WithLabelValues(upstream).Inc()
}
