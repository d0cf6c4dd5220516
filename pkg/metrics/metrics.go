package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	JinglesGenerated    *prometheus.CounterVec
	TermsExtracted      prometheus.Counter
	TokensDeducted      prometheus.Counter
	TokenDeductsDenied  prometheus.Counter
	SubscriptionsActive *prometheus.CounterVec
	WebhookEvents       *prometheus.CounterVec
	AudioStitches       prometheus.Counter

	// External provider metrics
	ProviderCallDuration *prometheus.HistogramVec
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		JinglesGenerated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jingles_generated_total",
				Help: "Total number of jingles generated",
			},
			[]string{"with_audio"}, // true, false
		),
		TermsExtracted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "terms_extracted_total",
			Help: "Total number of term extraction calls",
		}),
		TokensDeducted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tokens_deducted_total",
			Help: "Total number of generation tokens deducted",
		}),
		TokenDeductsDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "token_deducts_denied_total",
			Help: "Total number of deductions denied for empty balances",
		}),
		SubscriptionsActive: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_changes_total",
				Help: "Total number of subscription tier changes applied",
			},
			[]string{"tier"}, // free, basic, premium
		),
		WebhookEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stripe_webhook_events_total",
				Help: "Total number of Stripe webhook events received",
			},
			[]string{"type", "status"}, // status: processed, duplicate, failed
		),
		AudioStitches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audio_stitches_total",
			Help: "Total number of study set audio stitches",
		}),

		ProviderCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provider_call_duration_seconds",
				Help:    "External provider call duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"provider"}, // openai, music, s3, stripe
		),
	}

	return m
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, not the raw path

			err := next(c)

			status := c.Response().Status
			duration := time.Since(start).Seconds()

			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, strconv.Itoa(status)).Observe(duration)

			return err
		}
	}
}

// RecordJingleGenerated increments the jingle counter
func (m *Metrics) RecordJingleGenerated(withAudio bool) {
	m.JinglesGenerated.WithLabelValues(strconv.FormatBool(withAudio)).Inc()
}

// RecordTermsExtracted increments the term extraction counter
func (m *Metrics) RecordTermsExtracted() {
	m.TermsExtracted.Inc()
}

// RecordTokenDeducted increments the deducted-token counter
func (m *Metrics) RecordTokenDeducted() {
	m.TokensDeducted.Inc()
}

// RecordTokenDeductDenied increments the denied-deduction counter
func (m *Metrics) RecordTokenDeductDenied() {
	m.TokenDeductsDenied.Inc()
}

// RecordSubscriptionChange increments the tier change counter
func (m *Metrics) RecordSubscriptionChange(tier string) {
	m.SubscriptionsActive.WithLabelValues(tier).Inc()
}

// RecordWebhookEvent increments the webhook event counter
func (m *Metrics) RecordWebhookEvent(eventType, status string) {
	m.WebhookEvents.WithLabelValues(eventType, status).Inc()
}

// RecordAudioStitch increments the stitch counter
func (m *Metrics) RecordAudioStitch() {
	m.AudioStitches.Inc()
}

// RecordProviderCall records an external provider call duration
func (m *Metrics) RecordProviderCall(provider string, duration time.Duration) {
	m.ProviderCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
