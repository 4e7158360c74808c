// Package observe provides application-wide observability primitives for
// yomiage: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all yomiage metrics.
const meterName = "github.com/MrWong99/yomiage"

// Queue names used as the "queue" attribute of [Metrics.QueueDepth].
const (
	QueueGeneration = "generation"
	QueuePlayback   = "playback"
)

// Message outcomes used as the "outcome" attribute of [Metrics.Messages].
const (
	OutcomeSpoken      = "spoken"
	OutcomeCommand     = "command"
	OutcomeIgnored     = "ignored"
	OutcomeRateLimited = "rate_limited"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// SynthesisDuration tracks the wall time of one synthesis call,
	// including the time spent waiting for a gate permit.
	SynthesisDuration metric.Float64Histogram

	// SynthesisErrors counts failed synthesis calls. Use with attribute:
	//   attribute.String("voice", ...)
	SynthesisErrors metric.Int64Counter

	// SynthesisInFlight tracks synthesis calls currently holding a permit.
	SynthesisInFlight metric.Int64UpDownCounter

	// PlaybackDuration tracks how long one audio unit took to play.
	PlaybackDuration metric.Float64Histogram

	// PlaybackDropped counts audio units discarded because no voice
	// connection was available, or because playback failed.
	PlaybackDropped metric.Int64Counter

	// QueueDepth tracks items waiting in session queues. Use with attribute:
	//   attribute.String("queue", QueueGeneration|QueuePlayback)
	QueueDepth metric.Int64UpDownCounter

	// ActiveSessions tracks the number of live session pipelines.
	ActiveSessions metric.Int64UpDownCounter

	// Messages counts chat messages seen by the speaker. Use with attribute:
	//   attribute.String("outcome", ...)
	Messages metric.Int64Counter

	// ProviderRequests counts synthesizer backend calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   method, path (bounded by the route list given to [Middleware]) and status_class.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Synthesis
// of a single chunk usually lands between a few hundred milliseconds and a
// few seconds; playback of a 50 character chunk rarely exceeds 15 seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SynthesisDuration, err = m.Float64Histogram("yomiage.synthesis.duration",
		metric.WithDescription("Latency of text-to-speech synthesis per segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("yomiage.playback.duration",
		metric.WithDescription("Time spent playing one audio unit."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("yomiage.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SynthesisErrors, err = m.Int64Counter("yomiage.synthesis.errors",
		metric.WithDescription("Total failed synthesis calls by voice."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDropped, err = m.Int64Counter("yomiage.playback.dropped",
		metric.WithDescription("Total audio units discarded without being played."),
	); err != nil {
		return nil, err
	}
	if met.Messages, err = m.Int64Counter("yomiage.messages",
		metric.WithDescription("Total chat messages by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("yomiage.provider.requests",
		metric.WithDescription("Total synthesizer backend requests by provider and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.SynthesisInFlight, err = m.Int64UpDownCounter("yomiage.synthesis.inflight",
		metric.WithDescription("Number of synthesis calls currently holding a permit."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("yomiage.queue.depth",
		metric.WithDescription("Number of items waiting in session queues."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("yomiage.sessions.active",
		metric.WithDescription("Number of live session pipelines."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordSynthesis records the duration of one synthesis call and, when err
// is non-nil, increments the error counter for voice.
func (m *Metrics) RecordSynthesis(ctx context.Context, voice string, d time.Duration, err error) {
	m.SynthesisDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("voice", voice)),
	)
	if err != nil {
		m.SynthesisErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("voice", voice)),
		)
	}
}

// RecordMessage increments the message counter for outcome.
func (m *Metrics) RecordMessage(ctx context.Context, outcome string) {
	m.Messages.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// AddQueueDepth adjusts the depth gauge of the named queue by delta.
func (m *Metrics) AddQueueDepth(ctx context.Context, queue string, delta int64) {
	if delta == 0 {
		return
	}
	m.QueueDepth.Add(ctx, delta,
		metric.WithAttributes(attribute.String("queue", queue)),
	)
}
