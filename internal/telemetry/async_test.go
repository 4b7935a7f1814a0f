package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*SecurityEvent
	emitErr error
	done    chan struct{}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *SecurityEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.emitErr
}

func (m *mockEventEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestEmitAsync_NilInputs(t *testing.T) {
	EmitAsync(nil, NewSecurityEvent(EventLogout, "t1", "u1", "session"))
	m := &mockEventEmitter{}
	EmitAsync(m, nil)
	time.Sleep(10 * time.Millisecond)
	if m.count() != 0 {
		t.Error("nil event should not be emitted")
	}
}

func TestEmitAsync_Delivers(t *testing.T) {
	m := &mockEventEmitter{done: make(chan struct{}, 1), emitErr: errors.New("sink down")}
	EmitAsync(m, NewSecurityEvent(EventVaultUnlock, "t1", "u1", "vault"))
	select {
	case <-m.done:
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	if m.count() != 1 {
		t.Errorf("events = %d, want 1", m.count())
	}
}

func TestMultiEmitter(t *testing.T) {
	a := &mockEventEmitter{emitErr: errors.New("a failed")}
	b := &mockEventEmitter{}
	m := MultiEmitter{a, nil, b}
	err := m.Emit(context.Background(), NewSecurityEvent(EventLoginFailure, "t1", "", "auth"))
	if err == nil {
		t.Error("MultiEmitter should report the failing emitter")
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("a=%d b=%d, want both 1", a.count(), b.count())
	}
}

func TestNewSecurityEvent(t *testing.T) {
	ev := NewSecurityEvent(EventAccountLocked, "t1", "u1", "principal")
	if ev.ID == "" || ev.Source == "" || ev.OccurredAt.IsZero() {
		t.Errorf("NewSecurityEvent left fields empty: %+v", ev)
	}
	if ev.Type != EventAccountLocked || ev.TenantID != "t1" || ev.Subject != "u1" {
		t.Errorf("unexpected event: %+v", ev)
	}
}
