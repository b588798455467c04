package observability

import (
	"context"
	"errors"
	"rpcguard/internal/ratelimit"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const limiterMeterName = "rpcguard/ratelimit"

// LimiterSource is the part of the rate limiter the metrics read from.
type LimiterSource interface {
	Metrics() ratelimit.Metrics
	Subscribe(fn func(ratelimit.Event)) func()
}

// LimiterMetrics exports the limiter counters and gauges as observable
// instruments and counts events by type as they are published.
type LimiterMetrics struct {
	registration metric.Registration
	unsubscribe  func()
	closeOnce    sync.Once
}

// NewLimiterMetrics registers the instruments on mp. Counter values are read
// from src on every collection.
func NewLimiterMetrics(mp metric.MeterProvider, src LimiterSource) (*LimiterMetrics, error) {
	meter := mp.Meter(limiterMeterName)

	var errs []error
	counter := func(name, desc string) metric.Int64ObservableCounter {
		c, err := meter.Int64ObservableCounter(name, metric.WithDescription(desc), metric.WithUnit("{request}"))
		errs = append(errs, err)
		return c
	}

	total := counter("rpcguard.requests", "RPC calls seen by the limiter")
	limited := counter("rpcguard.requests.limited", "RPC calls rejected for lack of tokens")
	successful := counter("rpcguard.requests.successful", "Admitted RPC calls the upstream completed")
	failed := counter("rpcguard.requests.failed", "Admitted RPC calls the upstream failed")
	anonymous := counter("rpcguard.requests.anonymous", "RPC calls without a trackable identity")
	blacklistHits := counter("rpcguard.blacklist.hits", "RPC calls rejected by the blacklist")

	bursts, err := meter.Int64ObservableCounter("rpcguard.burst.activations",
		metric.WithDescription("Times a bucket switched to its burst capacity"),
		metric.WithUnit("{activation}"))
	errs = append(errs, err)

	active, err := meter.Int64ObservableGauge("rpcguard.buckets.active",
		metric.WithDescription("Tracked buckets by identity kind"),
		metric.WithUnit("{bucket}"))
	errs = append(errs, err)

	avgUsed, err := meter.Float64ObservableGauge("rpcguard.tokens.used.average",
		metric.WithDescription("Mean of capacity minus available tokens across buckets"),
		metric.WithUnit("{token}"))
	errs = append(errs, err)

	events, err := meter.Int64Counter("rpcguard.events",
		metric.WithDescription("Rate limit events by type"),
		metric.WithUnit("{event}"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	userAttrs := metric.WithAttributes(attribute.String("kind", string(ratelimit.KindUser)))
	ipAttrs := metric.WithAttributes(attribute.String("kind", string(ratelimit.KindIP)))

	registration, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		m := src.Metrics()
		o.ObserveInt64(total, m.TotalRequests)
		o.ObserveInt64(limited, m.LimitedRequests)
		o.ObserveInt64(successful, m.SuccessfulRequests)
		o.ObserveInt64(failed, m.FailedRequests)
		o.ObserveInt64(anonymous, m.AnonymousRequests)
		o.ObserveInt64(blacklistHits, m.BlacklistHits)
		o.ObserveInt64(bursts, m.BurstActivations)
		o.ObserveInt64(active, int64(m.ActiveUsers), userAttrs)
		o.ObserveInt64(active, int64(m.ActiveIPs), ipAttrs)
		o.ObserveFloat64(avgUsed, m.AverageTokensUsed)
		return nil
	}, total, limited, successful, failed, anonymous, blacklistHits, bursts, active, avgUsed)
	if err != nil {
		return nil, err
	}

	unsubscribe := src.Subscribe(func(e ratelimit.Event) {
		events.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("type", string(e.Type)),
			attribute.String("kind", string(e.Kind)),
		))
	})

	return &LimiterMetrics{registration: registration, unsubscribe: unsubscribe}, nil
}

// Close unregisters the callback and the event observer.
func (m *LimiterMetrics) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.unsubscribe()
		err = m.registration.Unregister()
	})
	return err
}
