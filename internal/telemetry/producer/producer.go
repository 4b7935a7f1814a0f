// Package producer publishes security events to Kafka for downstream consumers
// (cmd/worker forwards them to Loki).
package producer

import (
	"context"

	"trust-access-layer/backend/internal/telemetry"
)

// Producer emits security events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly.
	Emit(ctx context.Context, event *telemetry.SecurityEvent) error
	// Close releases resources. Safe to call if already closed.
	Close() error
}
