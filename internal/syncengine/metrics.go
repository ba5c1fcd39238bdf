package syncengine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "walrus/syncengine"

// engineMetrics instruments the apply loop. Instrument creation failures are
// tolerated; nil instruments record nothing.
type engineMetrics struct {
	eventsApplied     metric.Int64Counter
	duplicatesDropped metric.Int64Counter
	malformedDropped  metric.Int64Counter
	resyncs           metric.Int64Counter
	applyDuration     metric.Float64Histogram
}

func newEngineMetrics(meter metric.Meter) *engineMetrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m := &engineMetrics{}
	m.eventsApplied, _ = meter.Int64Counter("sync.events.applied",
		metric.WithDescription("Stream events applied to the caches"))
	m.duplicatesDropped, _ = meter.Int64Counter("sync.events.duplicates",
		metric.WithDescription("Stale or duplicate events dropped"))
	m.malformedDropped, _ = meter.Int64Counter("sync.events.malformed",
		metric.WithDescription("Events dropped for undecodable payloads"))
	m.resyncs, _ = meter.Int64Counter("sync.resyncs",
		metric.WithDescription("Full snapshot resyncs performed"))
	m.applyDuration, _ = meter.Float64Histogram("sync.apply.duration",
		metric.WithDescription("Per-event apply duration"), metric.WithUnit("ms"))
	return m
}

func (m *engineMetrics) applied(ctx context.Context, kind string) {
	if m.eventsApplied != nil {
		m.eventsApplied.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (m *engineMetrics) duplicate(ctx context.Context, kind string) {
	if m.duplicatesDropped != nil {
		m.duplicatesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (m *engineMetrics) malformed(ctx context.Context, kind string) {
	if m.malformedDropped != nil {
		m.malformedDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func (m *engineMetrics) resync(ctx context.Context, reason string) {
	if m.resyncs != nil {
		m.resyncs.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *engineMetrics) observeApply(ctx context.Context, kind string, ms float64) {
	if m.applyDuration != nil {
		m.applyDuration.Record(ctx, ms, metric.WithAttributes(attribute.String("kind", kind)))
	}
}
