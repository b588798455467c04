package observability

import (
	"context"
	"rpcguard/internal/models"
	"rpcguard/internal/storage"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage decorates a storage.Storage so that every access-list
// read or write produces a span, a latency sample and, on failure, an error
// count tagged with the operation name.
type InstrumentedStorage struct {
	inner    storage.Storage
	backend  string
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStorage wraps inner. backend is the configured storage type
// and is attached to every span and measurement.
func NewInstrumentedStorage(inner storage.Storage, backend string) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("rpcguard/storage")
	meter := otel.Meter("rpcguard/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		backend:  backend,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
			attribute.String("storage.backend", s.backend),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("backend", s.backend),
	)

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// Ensure InstrumentedStorage implements storage.Storage
var _ storage.Storage = (*InstrumentedStorage)(nil)

func (s *InstrumentedStorage) Whitelist(ctx context.Context) ([]string, error) {
	ctx, span := s.startSpan(ctx, "Whitelist")
	start := time.Now()
	ids, err := s.inner.Whitelist(ctx)
	span.SetAttributes(attribute.Int("storage.result_count", len(ids)))
	s.record(ctx, span, "Whitelist", start, err)
	return ids, err
}

func (s *InstrumentedStorage) SaveWhitelist(ctx context.Context, identifier string) error {
	ctx, span := s.startSpan(ctx, "SaveWhitelist", attribute.String("identifier", identifier))
	start := time.Now()
	err := s.inner.SaveWhitelist(ctx, identifier)
	s.record(ctx, span, "SaveWhitelist", start, err)
	return err
}

func (s *InstrumentedStorage) DeleteWhitelist(ctx context.Context, identifier string) error {
	ctx, span := s.startSpan(ctx, "DeleteWhitelist", attribute.String("identifier", identifier))
	start := time.Now()
	err := s.inner.DeleteWhitelist(ctx, identifier)
	s.record(ctx, span, "DeleteWhitelist", start, err)
	return err
}

func (s *InstrumentedStorage) Blacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	ctx, span := s.startSpan(ctx, "Blacklist")
	start := time.Now()
	entries, err := s.inner.Blacklist(ctx)
	span.SetAttributes(attribute.Int("storage.result_count", len(entries)))
	s.record(ctx, span, "Blacklist", start, err)
	return entries, err
}

func (s *InstrumentedStorage) SaveBlacklist(ctx context.Context, entry models.BlacklistEntry) error {
	ctx, span := s.startSpan(ctx, "SaveBlacklist",
		attribute.String("identifier", entry.Identifier),
		attribute.String("expires_at", entry.ExpiresAt.UTC().Format(time.RFC3339)),
	)
	start := time.Now()
	err := s.inner.SaveBlacklist(ctx, entry)
	s.record(ctx, span, "SaveBlacklist", start, err)
	return err
}

func (s *InstrumentedStorage) DeleteBlacklist(ctx context.Context, identifier string) error {
	ctx, span := s.startSpan(ctx, "DeleteBlacklist", attribute.String("identifier", identifier))
	start := time.Now()
	err := s.inner.DeleteBlacklist(ctx, identifier)
	s.record(ctx, span, "DeleteBlacklist", start, err)
	return err
}

func (s *InstrumentedStorage) PurgeExpiredBlacklist(ctx context.Context, now time.Time) (int, error) {
	ctx, span := s.startSpan(ctx, "PurgeExpiredBlacklist")
	start := time.Now()
	n, err := s.inner.PurgeExpiredBlacklist(ctx, now)
	span.SetAttributes(attribute.Int("storage.purged", n))
	s.record(ctx, span, "PurgeExpiredBlacklist", start, err)
	return n, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

// Close is not traced; it only releases the inner backend.
func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
