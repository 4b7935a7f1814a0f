package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"trust-access-layer/backend/internal/telemetry"
)

type recordCapture struct {
	rec otellog.Record
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
}

func attrsOf(rec otellog.Record) map[string]string {
	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	return attrs
}

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("noop Emit(nil): %v", err)
	}
	if err := em.Emit(context.Background(), telemetry.NewSecurityEvent(telemetry.EventLogout, "t1", "u1", "session")); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
}

func TestEmit_WithProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewEventEmitter(provider)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(nil): %v", err)
	}
	if err := em.Emit(context.Background(), telemetry.NewSecurityEvent(telemetry.EventVaultLock, "t1", "u1", "vault")); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

func TestEmit_AttributeAndBodyMapping(t *testing.T) {
	c := &recordCapture{}
	em := NewEventEmitterWithLogger(c)
	ev := telemetry.NewSecurityEvent(telemetry.EventAccountLocked, "t1", "u1", "principal")
	ev.IP = "203.0.113.7"
	ev.Metadata = `{"failed_attempts":5}`
	if err := em.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if got := c.rec.Body().AsString(); got != ev.Metadata {
		t.Errorf("body = %q, want %q", got, ev.Metadata)
	}
	if c.rec.Severity() != otellog.SeverityWarn {
		t.Errorf("severity = %v, want warn", c.rec.Severity())
	}
	want := map[string]string{
		"event_type": "account_locked", "tenant_id": "t1", "subject": "u1",
		"resource": "principal", "client_ip": "203.0.113.7", "event_id": ev.ID,
	}
	attrs := attrsOf(c.rec)
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestEmit_OmitsEmptyFieldsAndDefaultsTimestamp(t *testing.T) {
	c := &recordCapture{}
	em := NewEventEmitterWithLogger(c)
	before := time.Now().UTC()
	if err := em.Emit(context.Background(), &telemetry.SecurityEvent{Type: telemetry.EventRateLimited}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if ts := c.rec.Timestamp(); ts.Before(before) {
		t.Errorf("timestamp %v before %v", ts, before)
	}
	if !c.rec.Body().Empty() {
		t.Error("body should be empty without metadata")
	}
	attrs := attrsOf(c.rec)
	if _, ok := attrs["tenant_id"]; ok {
		t.Error("empty tenant_id should be omitted")
	}
	if attrs["event_type"] != "rate_limited" {
		t.Errorf("event_type = %q", attrs["event_type"])
	}
}

func TestMetricsEmitter_CountsByType(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetricsEmitter(mp)
	if err != nil {
		t.Fatalf("NewMetricsEmitter: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = m.Emit(ctx, telemetry.NewSecurityEvent(telemetry.EventLoginFailure, "t1", "", "auth"))
	}
	_ = m.Emit(ctx, nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	if total != 3 {
		t.Errorf("counted %d events, want 3", total)
	}
}
