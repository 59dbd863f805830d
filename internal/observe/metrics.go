// Package observe holds the service's OpenTelemetry metric instruments, the
// Prometheus bridge that exposes them on /metrics, and the HTTP middleware
// that records request latency.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/obiente/spendvoice"

// Metrics holds every instrument. All fields are safe for concurrent use.
type Metrics struct {
	// STTDuration tracks transcription latency by backend.
	STTDuration metric.Float64Histogram
	// LLMDuration tracks extraction latency by provider.
	LLMDuration metric.Float64Histogram

	// Sessions counts sessions started.
	Sessions metric.Int64Counter
	// ActiveSessions tracks open session connections.
	ActiveSessions metric.Int64UpDownCounter
	// Extractions counts extraction calls by provider and status.
	Extractions metric.Int64Counter
	// GateResolutions counts edit gate outcomes by reason.
	GateResolutions metric.Int64Counter
	// Failures counts pipeline failures by error code.
	Failures metric.Int64Counter

	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are in seconds and sized for hosted model round trips.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("spendvoice.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("spendvoice.llm.duration",
		metric.WithDescription("Latency of transaction extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("spendvoice.sessions",
		metric.WithDescription("Total sessions started."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("spendvoice.active_sessions",
		metric.WithDescription("Number of open session connections."),
	); err != nil {
		return nil, err
	}
	if met.Extractions, err = m.Int64Counter("spendvoice.extractions",
		metric.WithDescription("Total extraction calls by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.GateResolutions, err = m.Int64Counter("spendvoice.gate.resolutions",
		metric.WithDescription("Edit gate resolutions by reason."),
	); err != nil {
		return nil, err
	}
	if met.Failures, err = m.Int64Counter("spendvoice.failures",
		metric.WithDescription("Pipeline failures by error code."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("spendvoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Discard returns instruments that record nothing.
func Discard() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

// RecordSTT records one transcription attempt.
func (m *Metrics) RecordSTT(ctx context.Context, backend string, d time.Duration) {
	m.STTDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("backend", backend)))
}

// RecordExtraction records one extraction attempt.
func (m *Metrics) RecordExtraction(ctx context.Context, provider string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.LLMDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
	m.Extractions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
}

// RecordFailure counts a failure under its error code.
func (m *Metrics) RecordFailure(ctx context.Context, code string) {
	m.Failures.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordGate counts an edit gate resolution.
func (m *Metrics) RecordGate(ctx context.Context, reason string) {
	m.GateResolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
