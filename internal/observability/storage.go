package observability

import (
	"context"
	"time"

	"ratelimiter/internal/models"
	"ratelimiter/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedViolationStore wraps a storage.ViolationStore with tracing and
// latency metrics.
type InstrumentedViolationStore struct {
	inner    storage.ViolationStore
	backend  string
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedViolationStore instruments inner; backend names the storage
// type in telemetry.
func NewInstrumentedViolationStore(inner storage.ViolationStore, backend string) (*InstrumentedViolationStore, error) {
	meter := otel.Meter(instrumentationName + "/violations")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of violation storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of violation storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedViolationStore{
		inner:    inner,
		backend:  backend,
		tracer:   otel.Tracer(instrumentationName + "/violations"),
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedViolationStore) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
			attribute.String("storage.backend", s.backend),
		}, attrs...)...),
	)
}

func (s *InstrumentedViolationStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("backend", s.backend),
	)
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (s *InstrumentedViolationStore) RecordViolation(ctx context.Context, v *models.Violation) error {
	ctx, span := s.startSpan(ctx, "RecordViolation",
		attribute.String("violation.tier", v.Tier),
		attribute.String("violation.scope", v.Scope),
	)
	start := time.Now()
	err := s.inner.RecordViolation(ctx, v)
	s.record(ctx, span, "RecordViolation", start, err)
	return err
}

func (s *InstrumentedViolationStore) RecentViolations(ctx context.Context, limit int) ([]*models.Violation, error) {
	ctx, span := s.startSpan(ctx, "RecentViolations", attribute.Int("limit", limit))
	start := time.Now()
	result, err := s.inner.RecentViolations(ctx, limit)
	s.record(ctx, span, "RecentViolations", start, err)
	return result, err
}

func (s *InstrumentedViolationStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedViolationStore) Close() error {
	return s.inner.Close()
}
