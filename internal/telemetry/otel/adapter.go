package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"trust-access-layer/backend/internal/telemetry"
)

const scopeName = "trust-layer.security"

// recordLogger is the subset of otellog.Logger used by the emitter.
type recordLogger interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(scopeName))
}

// NewEventEmitterWithLogger returns an emitter writing to l.
func NewEventEmitterWithLogger(l recordLogger) telemetry.EventEmitter {
	return &logEmitter{logger: l}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.SecurityEvent) error { return nil }

type logEmitter struct {
	logger recordLogger
}

// Emit converts the event to an OTel log record. Empty fields are omitted from attributes.
func (e *logEmitter) Emit(ctx context.Context, event *telemetry.SecurityEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(severityFor(event.Type))
	if event.Metadata != "" {
		rec.SetBody(otellog.StringValue(event.Metadata))
	}
	for _, kv := range []struct{ k, v string }{
		{"event_id", event.ID},
		{"event_type", string(event.Type)},
		{"tenant_id", event.TenantID},
		{"subject", event.Subject},
		{"resource", event.Resource},
		{"client_ip", event.IP},
		{"source", event.Source},
	} {
		if kv.v != "" {
			rec.AddAttributes(otellog.String(kv.k, kv.v))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func severityFor(t telemetry.EventType) otellog.Severity {
	switch t {
	case telemetry.EventAccountLocked, telemetry.EventRefreshReuse:
		return otellog.SeverityWarn
	case telemetry.EventLoginFailure, telemetry.EventVaultUnlockFailed, telemetry.EventRateLimited:
		return otellog.SeverityInfo2
	default:
		return otellog.SeverityInfo
	}
}

// MetricsEmitter counts security events per type on a MeterProvider.
type MetricsEmitter struct {
	events metric.Int64Counter
}

// NewMetricsEmitter registers the trust_layer.security_events counter on mp.
func NewMetricsEmitter(mp metric.MeterProvider) (*MetricsEmitter, error) {
	counter, err := mp.Meter(scopeName).Int64Counter(
		"trust_layer.security_events",
		metric.WithDescription("Security events by type"),
	)
	if err != nil {
		return nil, err
	}
	return &MetricsEmitter{events: counter}, nil
}

// Emit increments the counter for event.Type.
func (m *MetricsEmitter) Emit(ctx context.Context, event *telemetry.SecurityEvent) error {
	if m == nil || event == nil {
		return nil
	}
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", string(event.Type))))
	return nil
}
