package inspector

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hybroai/a2a-agent-inspector/internal/audit"
	"github.com/hybroai/a2a-agent-inspector/internal/backend"
	"github.com/hybroai/a2a-agent-inspector/internal/ctxkeys"
	"github.com/hybroai/a2a-agent-inspector/internal/protocol"
	"github.com/hybroai/a2a-agent-inspector/internal/telemetry"
)

// ErrNoResponse is reported when a stream ends without a terminal chunk.
var ErrNoResponse = errors.New("no response received")

// Dispatcher relays one user message to an agent.
//
// Resolve → Negotiate → Build → Admit endpoint → Dispatch → Normalize.
type Dispatcher struct {
	loader  *Loader
	backend backend.Backend
	admit   backend.Admitter
	timeout time.Duration
	metrics *audit.Metrics
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher. admit vets the service endpoint the
// card names before anything is sent to it.
func NewDispatcher(loader *Loader, b backend.Backend, admit backend.Admitter, timeout time.Duration, metrics *audit.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		loader:  loader,
		backend: b,
		admit:   admit,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// Send delivers text to the agent at url and normalizes the reply.
func (d *Dispatcher) Send(ctx context.Context, url, text string) Envelope {
	// Resolve
	card, err := d.loader.resolve(ctx, url)
	if err != nil {
		return fail(FailureTransport, err)
	}

	// Negotiate: the capability is a hint; anything but true means unary.
	mode := ModeUnary
	if protocol.CardStreaming(card) {
		mode = ModeStreaming
	}
	annotate(ctx, func(e *ctxkeys.AuditEntry) { e.DispatchMode = mode })

	// Build
	msg := protocol.NewOutboundMessage(text, d.backend.RequiresContextID())

	// Admit the agent-supplied endpoint.
	endpoint := protocol.CardEndpoint(card)
	if err := d.admit.Check(ctx, endpoint); err != nil {
		d.logger.Warn("agent card endpoint rejected", "url", url, "endpoint", endpoint, "reason", err)
		env := fail(FailureAdmission, fmt.Errorf("agent card url rejected: %w", err))
		env.Mode = mode
		return env
	}

	// Dispatch
	var reply protocol.Document
	if mode == ModeStreaming {
		reply, err = d.streaming(ctx, card, msg)
	} else {
		reply, err = d.unary(ctx, card, msg)
	}
	d.metrics.RecordDispatch(mode, err == nil)

	// Normalize
	var env Envelope
	if err != nil {
		d.logger.Warn("message dispatch failed", "url", url, "mode", mode, "error", err)
		env = failFrom(err)
	} else {
		env = succeed(reply, MsgMessageSent)
	}
	env.Mode = mode
	return env
}

func (d *Dispatcher) unary(ctx context.Context, card protocol.Document, msg protocol.OutboundMessage) (protocol.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	ctx, span := telemetry.StartAgentCall(ctx, ModeUnary, d.backend.Name())
	defer span.End()

	start := time.Now()
	reply, err := d.backend.SendUnary(ctx, card, msg)
	d.metrics.RecordAgentLatency(ModeUnary, d.backend.Name(), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "message/send failed")
	}
	return reply, err
}

func (d *Dispatcher) streaming(ctx context.Context, card protocol.Document, msg protocol.OutboundMessage) (protocol.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	ctx, span := telemetry.StartAgentCall(ctx, ModeStreaming, d.backend.Name())
	defer span.End()

	d.metrics.IncrActiveStreams()
	defer d.metrics.DecrActiveStreams()

	start := time.Now()
	terminal, events, err := consumeStream(d.backend.SendStreaming(ctx, card, msg))
	elapsed := time.Since(start)

	d.metrics.RecordAgentLatency(ModeStreaming, d.backend.Name(), elapsed)
	d.metrics.ObserveStreamEvents(events)
	span.SetAttributes(attribute.Int("a2a.stream.events", events))
	annotate(ctx, func(e *ctxkeys.AuditEntry) {
		e.StreamEvents = events
		e.StreamDuration = elapsed
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "message/stream failed")
	}
	return terminal, err
}

// consumeStream reads chunks until one is terminal and returns only that
// chunk. Earlier chunks are discarded. A sequence that ends, or fails,
// before a terminal chunk yields no result.
func consumeStream(seq iter.Seq2[protocol.Document, error]) (terminal protocol.Document, events int, err error) {
	for chunk, err := range seq {
		if err != nil {
			return nil, events, err
		}
		events++
		if protocol.IsTerminal(chunk) {
			return chunk, events, nil
		}
	}
	return nil, events, ErrNoResponse
}

// annotate updates the audit entry carried by ctx, if any.
func annotate(ctx context.Context, fn func(*ctxkeys.AuditEntry)) {
	if entry, ok := ctxkeys.AuditEntryFrom(ctx); ok {
		fn(entry)
	}
}
