package observability

import (
	"context"
	"strconv"

	"ratelimiter/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DecisionMetrics counts limiter decisions and store failures. It implements
// ratelimit.Observer.
type DecisionMetrics struct {
	decisions     metric.Int64Counter
	fallback      metric.Int64Counter
	storeFailures metric.Int64Counter
}

var _ ratelimit.Observer = (*DecisionMetrics)(nil)

func NewDecisionMetrics() (*DecisionMetrics, error) {
	meter := otel.Meter(instrumentationName + "/limiter")
	m := &DecisionMetrics{}

	var err error
	m.decisions, err = meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Rate limit decisions by tier, scope and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	m.fallback, err = meter.Int64Counter(
		"ratelimit.fallback",
		metric.WithDescription("Decisions made by the process-local fallback limiter"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	m.storeFailures, err = meter.Int64Counter(
		"ratelimit.store.failures",
		metric.WithDescription("Limiter operations that could not use the shared store"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *DecisionMetrics) ObserveDecision(ctx context.Context, d ratelimit.Decision) {
	attrs := metric.WithAttributes(
		attribute.String("tier", d.Tier.String()),
		attribute.String("scope", string(d.Scope)),
		attribute.String("algorithm", string(d.Algorithm)),
		attribute.String("allowed", strconv.FormatBool(d.Allowed)),
	)
	m.decisions.Add(ctx, 1, attrs)
	if d.Degraded() {
		m.fallback.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", d.Tier.String())))
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(
			attribute.String("ratelimit.tier", d.Tier.String()),
			attribute.Bool("ratelimit.allowed", d.Allowed),
			attribute.Int64("ratelimit.remaining", d.Remaining),
			attribute.Bool("ratelimit.degraded", d.Degraded()),
		)
	}
}

func (m *DecisionMetrics) ObserveStoreError(ctx context.Context, op string, err error) {
	m.storeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
	}
}
