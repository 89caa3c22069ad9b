// Package observe provides observability primitives for voxid:
// OpenTelemetry metrics, tracing helpers, and a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// via a standard /metrics endpoint on long-running commands. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to
// avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxid metrics.
const meterName = "github.com/marcant0n/voxid"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// IdentifyDuration tracks the latency of one identification pass.
	IdentifyDuration metric.Float64Histogram

	// Identifications counts identification results. Use with attributes:
	//   attribute.String("confidence", ...), attribute.String("outcome", "identified"|"unidentified")
	Identifications metric.Int64Counter

	// LearnerCommits counts voiceprint batch commits. Use with attribute:
	//   attribute.String("source", ...)
	LearnerCommits metric.Int64Counter

	// BackupsCreated counts snapshot creations. Use with attribute:
	//   attribute.String("reason", ...)
	BackupsCreated metric.Int64Counter

	// RecollectTriggers counts automatic re-collection launches. Use with
	// attribute: attribute.String("group", ...)
	RecollectTriggers metric.Int64Counter

	// CooldownRefusals counts re-collection requests refused by the
	// cooldown gate. Use with attribute: attribute.String("group", ...)
	CooldownRefusals metric.Int64Counter

	// CollectDuration tracks the wall time of one collection run per group.
	CollectDuration metric.Float64Histogram
}

// identifyBuckets covers in-process vector ranking: sub-millisecond to a
// few hundred milliseconds for large rosters.
var identifyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.25,
}

// collectBuckets covers whole collection runs, which wait on the external
// segment supply.
var collectBuckets = []float64{
	0.1, 0.5, 1, 5, 15, 60, 300, 900,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.IdentifyDuration, err = m.Float64Histogram("voxid.identify.duration",
		metric.WithDescription("Latency of one identification pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(identifyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Identifications, err = m.Int64Counter("voxid.identify.results",
		metric.WithDescription("Identification results by confidence class and outcome."),
	); err != nil {
		return nil, err
	}
	if met.LearnerCommits, err = m.Int64Counter("voxid.learner.commits",
		metric.WithDescription("Voiceprint batch commits by provenance source."),
	); err != nil {
		return nil, err
	}
	if met.BackupsCreated, err = m.Int64Counter("voxid.backup.created",
		metric.WithDescription("Snapshots created by reason."),
	); err != nil {
		return nil, err
	}
	if met.RecollectTriggers, err = m.Int64Counter("voxid.recollect.triggers",
		metric.WithDescription("Automatic re-collection launches by group."),
	); err != nil {
		return nil, err
	}
	if met.CooldownRefusals, err = m.Int64Counter("voxid.recollect.cooldown_refusals",
		metric.WithDescription("Re-collection requests refused by the cooldown gate, by group."),
	); err != nil {
		return nil, err
	}
	if met.CollectDuration, err = m.Float64Histogram("voxid.collect.duration",
		metric.WithDescription("Wall time of one collection run per group."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(collectBuckets...),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordIdentification records one identification result with the standard
// attribute set.
func (m *Metrics) RecordIdentification(ctx context.Context, confidence string, identified bool) {
	outcome := "unidentified"
	if identified {
		outcome = "identified"
	}
	m.Identifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("confidence", confidence),
		attribute.String("outcome", outcome),
	))
}
