package producer

import (
	"context"
	"encoding/json"
	"testing"

	"trust-access-layer/backend/internal/telemetry"
)

func TestNewKafkaProducer_Unconfigured(t *testing.T) {
	for _, tc := range []struct {
		brokers []string
		topic   string
	}{
		{nil, "security-events"},
		{[]string{"localhost:9092"}, ""},
	} {
		p, err := NewKafkaProducer(tc.brokers, tc.topic)
		if err != nil || p != nil {
			t.Errorf("NewKafkaProducer(%v, %q) = (%v, %v), want (nil, nil)", tc.brokers, tc.topic, p, err)
		}
	}
}

func TestKafkaProducer_NilSafe(t *testing.T) {
	var p *KafkaProducer
	if err := p.Emit(context.Background(), telemetry.NewSecurityEvent(telemetry.EventLogout, "t1", "u1", "session")); err != nil {
		t.Errorf("nil Emit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestEncode(t *testing.T) {
	ev := telemetry.NewSecurityEvent(telemetry.EventRateLimited, "t1", "", "login")
	msg, err := encode(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(msg.Key) != "t1" {
		t.Errorf("key = %q, want t1", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "rate_limited" {
		t.Errorf("headers = %v", msg.Headers)
	}
	var decoded telemetry.SecurityEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if decoded.Type != telemetry.EventRateLimited || decoded.ID != ev.ID {
		t.Errorf("decoded = %+v", decoded)
	}

	noTenant, _ := encode(telemetry.NewSecurityEvent(telemetry.EventLoginFailure, "", "", "auth"))
	if noTenant.Key != nil {
		t.Error("events without tenant should have no key")
	}
}
