// Package audit records what the inspector did: one structured audit log
// line per operation and Prometheus metrics.
package audit

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/hybroai/a2a-agent-inspector/internal/config"
	"github.com/hybroai/a2a-agent-inspector/internal/ctxkeys"
)

// Operation outcomes recorded in AuditEntry.Status.
const (
	StatusOK       = "ok"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// Logger provides OpenTelemetry-compatible structured audit logging.
type Logger struct {
	slogger  *slog.Logger
	sampling atomic.Pointer[SamplingConfig]
}

// NewLogger creates an audit logger with the given sampling configuration.
func NewLogger(slogger *slog.Logger, sampling SamplingConfig) *Logger {
	l := &Logger{slogger: slogger}
	l.sampling.Store(&sampling)
	return l
}

// SamplingFromConfig reads the audit section of the logging config.
func SamplingFromConfig(cfg config.AuditConfig) SamplingConfig {
	return SamplingConfig{Rate: cfg.SamplingRate, ErrorRate: cfg.ErrorSamplingRate}
}

// OnConfigReload applies new sampling rates.
func (l *Logger) OnConfigReload(newCfg *config.Config) error {
	s := SamplingFromConfig(newCfg.Logging.Audit)
	l.sampling.Store(&s)
	return nil
}

// LogRequest logs the audit entry carried by ctx, if any.
// Uses OTel semantic convention field names.
func (l *Logger) LogRequest(ctx context.Context) {
	entry, ok := ctxkeys.AuditEntryFrom(ctx)
	if !ok {
		return
	}

	if !l.sampling.Load().ShouldLog(entry.Status) {
		return
	}

	attrs := []slog.Attr{
		slog.String("trace_id", entry.TraceID),
		slog.String("span_id", entry.SpanID),
		slog.Group("attributes",
			slog.String("a2a.operation", entry.Operation),
			slog.String("a2a.target", entry.Target),
			slog.String("a2a.client_generation", entry.Generation),
			slog.String("a2a.dispatch_mode", entry.DispatchMode),
			slog.String("a2a.status", entry.Status),
			slog.String("a2a.reason", entry.Reason),
			slog.Time("a2a.start_time", entry.StartTime),
		),
	}

	if meta, ok := ctxkeys.RequestMetaFrom(ctx); ok {
		attrs = append(attrs,
			slog.String("request_id", meta.RequestID),
			slog.String("client_ip", meta.ClientIP),
		)
	}

	if entry.StreamEvents > 0 {
		attrs = append(attrs, slog.Group("stream",
			slog.Int("events", entry.StreamEvents),
			slog.Int64("duration_ms", entry.StreamDuration.Milliseconds()),
		))
	}

	l.slogger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
