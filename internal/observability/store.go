package observability

import (
	"context"
	"time"

	"ratelimiter/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStore wraps a ratelimit.Store with a span, a latency histogram
// and an error counter per call.
type InstrumentedStore struct {
	inner     ratelimit.Store
	tracer    trace.Tracer
	duration  metric.Float64Histogram
	errors    metric.Int64Counter
	available metric.Int64ObservableGauge
	reg       metric.Registration
}

// NewInstrumentedStore instruments inner using the global providers.
func NewInstrumentedStore(inner ratelimit.Store) (*InstrumentedStore, error) {
	meter := otel.Meter(instrumentationName + "/store")
	s := &InstrumentedStore{
		inner:  inner,
		tracer: otel.Tracer(instrumentationName + "/store"),
	}

	var err error
	s.duration, err = meter.Float64Histogram(
		"ratelimit.store.duration",
		metric.WithDescription("Duration of rate limit store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	s.errors, err = meter.Int64Counter(
		"ratelimit.store.errors",
		metric.WithDescription("Number of failed rate limit store operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	s.available, err = meter.Int64ObservableGauge(
		"ratelimit.store.available",
		metric.WithDescription("1 while the shared store is reachable, 0 while requests use the local fallback"),
	)
	if err != nil {
		return nil, err
	}
	s.reg, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		var v int64
		if s.inner.Available() {
			v = 1
		}
		o.ObserveInt64(s.available, v)
		return nil
	}, s.available)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *InstrumentedStore) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "ratelimit.store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("db.system", "redis"),
			attribute.String("ratelimit.store.operation", operation),
		}, attrs...)...),
	)
}

func (s *InstrumentedStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
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

func (s *InstrumentedStore) Available() bool {
	return s.inner.Available()
}

func (s *InstrumentedStore) Eval(ctx context.Context, script *ratelimit.Script, keys []string, args ...interface{}) ([]int64, error) {
	ctx, span := s.startSpan(ctx, "eval",
		attribute.String("ratelimit.script", script.Name),
		attribute.StringSlice("ratelimit.keys", keys),
	)
	start := time.Now()
	result, err := s.inner.Eval(ctx, script, keys, args...)
	s.record(ctx, span, "eval:"+script.Name, start, err)
	return result, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	ctx, span := s.startSpan(ctx, "delete", attribute.Int("ratelimit.key_count", len(keys)))
	start := time.Now()
	n, err := s.inner.Delete(ctx, keys...)
	span.SetAttributes(attribute.Int64("ratelimit.deleted", n))
	s.record(ctx, span, "delete", start, err)
	return n, err
}

func (s *InstrumentedStore) Stats(ctx context.Context) (ratelimit.StoreStats, error) {
	ctx, span := s.startSpan(ctx, "stats")
	start := time.Now()
	stats, err := s.inner.Stats(ctx)
	s.record(ctx, span, "stats", start, err)
	return stats, err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "ping", start, err)
	return err
}

// Close unregisters the availability gauge and closes the inner store.
func (s *InstrumentedStore) Close() error {
	if s.reg != nil {
		_ = s.reg.Unregister()
	}
	return s.inner.Close()
}
