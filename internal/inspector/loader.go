package inspector

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/hybroai/a2a-agent-inspector/internal/audit"
	"github.com/hybroai/a2a-agent-inspector/internal/backend"
	"github.com/hybroai/a2a-agent-inspector/internal/protocol"
	"github.com/hybroai/a2a-agent-inspector/internal/telemetry"
)

// Loader performs agent card discovery. It makes exactly one attempt.
type Loader struct {
	backend backend.Backend
	timeout time.Duration
	metrics *audit.Metrics
	logger  *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(b backend.Backend, timeout time.Duration, metrics *audit.Metrics, logger *slog.Logger) *Loader {
	return &Loader{backend: b, timeout: timeout, metrics: metrics, logger: logger}
}

// Load fetches the card at url. On success Data is the complete card:
// optional fields the agent omitted are present as null.
func (l *Loader) Load(ctx context.Context, url string) Envelope {
	card, err := l.resolve(ctx, url)
	if err != nil {
		return fail(FailureTransport, err)
	}
	return succeed(protocol.CompleteCard(card), MsgCardLoaded)
}

// resolve returns the card as the agent published it.
func (l *Loader) resolve(ctx context.Context, url string) (protocol.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	ctx, span := telemetry.StartAgentCall(ctx, "card", l.backend.Name())
	defer span.End()

	start := time.Now()
	card, err := l.backend.ResolveCard(ctx, url)
	l.metrics.RecordAgentLatency("card", l.backend.Name(), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "card discovery failed")
		l.logger.Warn("failed to load agent card", "url", url, "error", err)
		return nil, err
	}
	l.logger.Debug("agent card loaded", "url", url, "name", protocol.CardName(card))
	return card, nil
}
