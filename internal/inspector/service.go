package inspector

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/hybroai/a2a-agent-inspector/internal/agentcard"
	"github.com/hybroai/a2a-agent-inspector/internal/audit"
	"github.com/hybroai/a2a-agent-inspector/internal/backend"
	"github.com/hybroai/a2a-agent-inspector/internal/ctxkeys"
	"github.com/hybroai/a2a-agent-inspector/internal/security"
	"github.com/hybroai/a2a-agent-inspector/internal/telemetry"
)

// Operation names used in metrics, spans and audit entries.
const (
	OpValidateURL = "validate-url"
	OpLoad        = "load"
	OpInspect     = "inspect"
	OpSendMessage = "send-message"
)

// DefaultTimeout bounds every network step when no timeout is configured.
const DefaultTimeout = 180 * time.Second

// Service is the inspector facade. It holds only immutable collaborators
// and is safe for concurrent use. Every operation that touches the
// network runs the admission guard first.
type Service struct {
	guard      backend.Admitter
	backend    backend.Backend
	loader     *Loader
	dispatcher *Dispatcher
	metrics    *audit.Metrics
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	timeout time.Duration
	metrics *audit.Metrics
	logger  *slog.Logger
}

// WithTimeout sets the ceiling applied to each network step.
func WithTimeout(d time.Duration) Option {
	return func(o *serviceOptions) { o.timeout = d }
}

// WithMetrics records operations on m.
func WithMetrics(m *audit.Metrics) Option {
	return func(o *serviceOptions) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *serviceOptions) { o.logger = l }
}

// NewService wires a Service around an admission guard and a backend.
func NewService(guard backend.Admitter, b backend.Backend, opts ...Option) *Service {
	o := serviceOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = audit.NewMetrics()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger.With("component", "inspector")

	loader := NewLoader(b, o.timeout, o.metrics, logger)
	return &Service{
		guard:      guard,
		backend:    b,
		loader:     loader,
		dispatcher: NewDispatcher(loader, b, guard, o.timeout, o.metrics, logger),
		metrics:    o.metrics,
		logger:     logger,
	}
}

// Generation names the client generation in use.
func (s *Service) Generation() string { return s.backend.Name() }

// ValidateURL runs admission control only. It returns nil when url may be
// contacted, otherwise a *security.RejectionError whose message is the
// reason.
func (s *Service) ValidateURL(ctx context.Context, url string) error {
	ctx, span := telemetry.StartOperation(ctx, OpValidateURL, url)
	defer span.End()
	start := time.Now()

	err := s.admit(ctx, url)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.finish(ctx, OpValidateURL, audit.StatusRejected, err.Error(), start)
		return err
	}
	s.finish(ctx, OpValidateURL, audit.StatusOK, "", start)
	return nil
}

// LoadCard admits url and fetches its agent card.
func (s *Service) LoadCard(ctx context.Context, url string) Envelope {
	return s.run(ctx, OpLoad, url, func(ctx context.Context) Envelope {
		return s.loader.Load(ctx, url)
	})
}

// InspectCard loads the card at url and validates it. A card that loads
// always yields success: findings are data, not failure.
func (s *Service) InspectCard(ctx context.Context, url string) Envelope {
	return s.run(ctx, OpInspect, url, func(ctx context.Context) Envelope {
		env := s.loader.Load(ctx, url)
		if !env.Success {
			return env
		}
		report := agentcard.Validate(env.Data)
		return Envelope{
			Success:    true,
			Data:       env.Data,
			Validation: report.Lines(),
			Message:    MsgCardValidated,
		}
	})
}

// SendMessage admits url, then relays text to the agent.
func (s *Service) SendMessage(ctx context.Context, url, text string) Envelope {
	return s.run(ctx, OpSendMessage, url, func(ctx context.Context) Envelope {
		return s.dispatcher.Send(ctx, url, text)
	})
}

// run wraps one operation with admission, tracing, metrics and audit.
func (s *Service) run(ctx context.Context, op, url string, fn func(context.Context) Envelope) Envelope {
	ctx, span := telemetry.StartOperation(ctx, op, url)
	defer span.End()
	start := time.Now()

	annotate(ctx, func(e *ctxkeys.AuditEntry) {
		e.Generation = s.backend.Name()
		e.TraceID, e.SpanID = telemetry.IDs(ctx)
	})

	if err := s.admit(ctx, url); err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.finish(ctx, op, audit.StatusRejected, err.Error(), start)
		return fail(FailureAdmission, err)
	}

	env := fn(ctx)
	switch {
	case env.Success:
		s.finish(ctx, op, audit.StatusOK, "", start)
	case env.Failure == FailureAdmission:
		span.SetStatus(codes.Error, env.Error)
		s.finish(ctx, op, audit.StatusRejected, env.Error, start)
	default:
		span.SetStatus(codes.Error, env.Error)
		s.finish(ctx, op, audit.StatusError, env.Error, start)
	}
	return env
}

func (s *Service) admit(ctx context.Context, url string) error {
	annotate(ctx, func(e *ctxkeys.AuditEntry) { e.Target = url })
	err := s.guard.Check(ctx, url)
	if err != nil {
		s.metrics.RecordURLRejection(security.RejectionLabel(err))
		s.logger.Info("agent url rejected", "url", url, "reason", err.Error())
	}
	return err
}

func (s *Service) finish(ctx context.Context, op, status, reason string, start time.Time) {
	s.metrics.RecordOperation(op, status, time.Since(start))
	annotate(ctx, func(e *ctxkeys.AuditEntry) {
		e.Operation = op
		e.Status = status
		e.Reason = reason
	})
}
