// Package audit records security-relevant actions. Writes are best-effort: a failing
// audit sink never fails the request that triggered it.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trust-access-layer/backend/internal/audit/domain"
	auditrepo "trust-access-layer/backend/internal/audit/repository"
	"trust-access-layer/backend/internal/telemetry"
)

// SystemTenantID is recorded for events that have no tenant (e.g. a login with an unknown tenant).
const SystemTenantID = "_system"

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used by the auth,
// session and vault services. LogEvent is best-effort.
type AuditLogger interface {
	LogEvent(ctx context.Context, tenantID, subject, action, resource string, metadata map[string]any)
}

// Logger implements AuditLogger with the audit repository and, optionally, a telemetry
// emitter that receives the same event as a SecurityEvent.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	emitter     telemetry.EventEmitter
	logger      *zap.Logger
}

// NewLogger returns a Logger. repo, ipExtractor and emitter may each be nil.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, emitter telemetry.EventEmitter, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, emitter: emitter, logger: logger}
}

// LogEvent writes one audit log entry and emits the matching security event asynchronously.
func (l *Logger) LogEvent(ctx context.Context, tenantID, subject, action, resource string, metadata map[string]any) {
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	if tenantID == "" {
		tenantID = SystemTenantID
	}
	var meta string
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			meta = string(b)
		}
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Subject:   subject,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	if l.repo != nil {
		if err := l.repo.Create(ctx, entry); err != nil {
			l.logger.Warn("audit: failed to log event",
				zap.String("action", action), zap.String("resource", resource), zap.Error(err))
		}
	}
	if l.emitter != nil {
		ev := telemetry.NewSecurityEvent(telemetry.EventType(action), tenantID, subject, resource)
		ev.IP = ip
		ev.Metadata = meta
		telemetry.EmitAsync(l.emitter, ev)
	}
}

// Nop is an AuditLogger that discards events.
type Nop struct{}

// LogEvent does nothing.
func (Nop) LogEvent(context.Context, string, string, string, string, map[string]any) {}
