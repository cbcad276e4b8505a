// Package ctxkeys defines context keys for passing data through the request pipeline.
// All context keys are unexported to prevent collisions. Use the With*/From accessor pairs.
package ctxkeys

import (
	"context"
	"time"
)

// ── Key types (unexported, collision-proof) ──

type auditEntryKey struct{}
type requestMetaKey struct{}

// ── Data types ──

// AuditEntry holds audit log data accumulated while one inspector
// operation runs. The HTTP layer creates it; the service fills it in.
type AuditEntry struct {
	TraceID      string
	SpanID       string
	Operation    string // "validate-url", "load", "inspect", "send-message"
	Target       string // agent base URL as supplied by the caller
	Generation   string // "legacy" or "sdk"
	DispatchMode string // "unary" or "streaming", send-message only
	Status       string // "ok", "rejected", "error"
	Reason       string // rejection reason or error text
	StartTime    time.Time
	// Streaming-specific
	StreamEvents   int
	StreamDuration time.Duration
}

// RequestMeta holds per-request facts established by the HTTP middleware.
type RequestMeta struct {
	RequestID string
	ClientIP  string
}

// ── Getter/Setter (With*/From pattern) ──

// WithAuditEntry stores an AuditEntry pointer in the context.
func WithAuditEntry(ctx context.Context, entry *AuditEntry) context.Context {
	return context.WithValue(ctx, auditEntryKey{}, entry)
}

// AuditEntryFrom retrieves the AuditEntry pointer from the context.
func AuditEntryFrom(ctx context.Context) (*AuditEntry, bool) {
	entry, ok := ctx.Value(auditEntryKey{}).(*AuditEntry)
	return entry, ok
}

// WithRequestMeta stores RequestMeta in the context.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom retrieves RequestMeta from the context.
func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}
