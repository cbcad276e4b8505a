package backend

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	inspectorerrors "github.com/hybroai/a2a-agent-inspector/internal/errors"
	"github.com/hybroai/a2a-agent-inspector/internal/protocol"
)

// GenerationSDK names the a2a-go client generation.
const GenerationSDK = "sdk"

// SDK is the newer client generation: the a2a-go card resolver plus a
// factory-built client that negotiates JSON-RPC or gRPC from the card.
type SDK struct {
	resolver  *agentcard.Resolver
	factory   *a2aclient.Factory
	admit     Admitter
	cardPaths []string
	logger    *slog.Logger

	live atomic.Int32 // clients created and not yet destroyed
}

// NewSDK creates the a2a-go adapter. Card discovery runs on a unary
// transport capped at MaxCardSize; messages use the streaming transport.
func NewSDK(opts Options) *SDK {
	var cardRT http.RoundTripper = NewUnaryTransport(opts.Timeout)
	if opts.MaxCardSize > 0 {
		cardRT = limitBody(cardRT, opts.MaxCardSize)
	}
	return &SDK{
		resolver:  agentcard.NewResolver(NewHTTPClient(cardRT, opts.Timeout, opts.Admitter)),
		factory:   newFactory(NewHTTPClient(NewStreamTransport(), opts.Timeout, opts.Admitter)),
		admit:     opts.Admitter,
		cardPaths: opts.cardPaths(),
		logger:    opts.logger().With("component", "backend", "generation", GenerationSDK),
	}
}

func newFactory(hc *http.Client) *a2aclient.Factory {
	return a2aclient.NewFactory(
		a2aclient.WithDefaultsDisabled(),
		a2aclient.WithJSONRPCTransport(hc),
		a2aclient.WithGRPCTransport(grpc.WithTransportCredentials(
			credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}),
		)),
	)
}

// Name implements Backend.
func (s *SDK) Name() string { return GenerationSDK }

// RequiresContextID implements Backend. The newer generation expects the
// caller to open the conversation.
func (s *SDK) RequiresContextID() bool { return true }

// ResolveCard resolves the card from the first well-known path that
// exists and returns it as a document. A 404 moves on to the next path.
// A card without skills keeps the key absent so the validator sees what
// the agent published.
func (s *SDK) ResolveCard(ctx context.Context, baseURL string) (protocol.Document, error) {
	var card *a2a.AgentCard
	err := errors.New("no agent card paths configured")
	for i, path := range s.cardPaths {
		card, err = s.resolver.Resolve(ctx, baseURL, agentcard.WithPath(path))
		var notOK *agentcard.ErrStatusNotOK
		if errors.As(err, &notOK) && notOK.StatusCode == http.StatusNotFound && i < len(s.cardPaths)-1 {
			s.logger.Debug("agent card not found, trying next path", "base_url", baseURL, "path", path)
			continue
		}
		break
	}
	if err != nil {
		return nil, fmt.Errorf("resolving agent card: %w", err)
	}
	doc, err := protocol.ToDocument(card)
	if err != nil {
		return nil, err
	}
	if v, ok := doc[protocol.CardFieldSkills]; ok && v == nil {
		delete(doc, protocol.CardFieldSkills)
	}
	return doc, nil
}

// SendUnary implements Backend.
func (s *SDK) SendUnary(ctx context.Context, card protocol.Document, msg protocol.OutboundMessage) (protocol.Document, error) {
	client, err := s.newClient(ctx, card)
	if err != nil {
		return nil, err
	}
	defer s.destroy(client)

	result, err := client.SendMessage(ctx, &a2a.MessageSendParams{Message: toSDKMessage(msg)})
	if err != nil {
		return nil, remoteOrTransport(protocol.MethodMessageSend, err)
	}
	return protocol.ToDocument(result)
}

// SendStreaming implements Backend.
func (s *SDK) SendStreaming(ctx context.Context, card protocol.Document, msg protocol.OutboundMessage) iter.Seq2[protocol.Document, error] {
	return func(yield func(protocol.Document, error) bool) {
		client, err := s.newClient(ctx, card)
		if err != nil {
			yield(nil, err)
			return
		}
		defer s.destroy(client)

		params := &a2a.MessageSendParams{Message: toSDKMessage(msg)}
		for event, err := range client.SendStreamingMessage(ctx, params) {
			if err != nil {
				yield(nil, remoteOrTransport(protocol.MethodMessageStream, err))
				return
			}
			doc, err := protocol.ToDocument(event)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

func (s *SDK) newClient(ctx context.Context, card protocol.Document) (*a2aclient.Client, error) {
	typed, err := cardFromDocument(card)
	if err != nil {
		return nil, err
	}
	if err := s.admitInterfaces(ctx, typed); err != nil {
		return nil, err
	}
	client, err := s.factory.CreateFromCard(ctx, typed)
	if err != nil {
		return nil, fmt.Errorf("creating a2a client: %w", err)
	}
	s.live.Add(1)
	return client, nil
}

// admitInterfaces runs every endpoint the factory could connect to
// through the Admitter. A rejected preferred endpoint fails the call.
// Rejected additional interfaces are removed from card, so the factory
// can only select endpoints that passed.
func (s *SDK) admitInterfaces(ctx context.Context, card *a2a.AgentCard) error {
	if s.admit == nil {
		return nil
	}
	if err := s.admitEndpoint(ctx, card.PreferredTransport, card.URL); err != nil {
		return &EndpointRejectedError{URL: card.URL, Err: err}
	}
	kept := make([]a2a.AgentInterface, 0, len(card.AdditionalInterfaces))
	for _, iface := range card.AdditionalInterfaces {
		if err := s.admitEndpoint(ctx, iface.Transport, iface.URL); err != nil {
			s.logger.Warn("agent interface rejected", "url", iface.URL, "transport", string(iface.Transport), "reason", err)
			continue
		}
		kept = append(kept, iface)
	}
	card.AdditionalInterfaces = kept
	return nil
}

func (s *SDK) admitEndpoint(ctx context.Context, transport a2a.TransportProtocol, endpoint string) error {
	return s.admit.Check(ctx, protocol.AdmissionURL(string(transport), endpoint))
}

func (s *SDK) destroy(client *a2aclient.Client) {
	s.live.Add(-1)
	if err := client.Destroy(); err != nil {
		s.logger.Debug("a2a client cleanup failed", "error", err)
	}
}

// cardFromDocument re-derives the typed card the SDK client needs.
func cardFromDocument(doc protocol.Document) (*a2a.AgentCard, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding agent card: %w", err)
	}
	var card a2a.AgentCard
	if err := json.Unmarshal(raw, &card); err != nil {
		return nil, fmt.Errorf("agent card is not usable by the a2a client: %w", err)
	}
	return &card, nil
}

func toSDKMessage(msg protocol.OutboundMessage) *a2a.Message {
	m := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: msg.Text})
	m.ID = msg.MessageID
	m.ContextID = msg.ContextID
	return m
}

// sdkErrorCodes maps the a2a-go error values a JSON-RPC error object is
// decoded into back to their codes.
var sdkErrorCodes = []struct {
	err  error
	code int
}{
	{a2a.ErrParseError, inspectorerrors.CodeParseError},
	{a2a.ErrInvalidRequest, inspectorerrors.CodeInvalidRequest},
	{a2a.ErrMethodNotFound, inspectorerrors.CodeMethodNotFound},
	{a2a.ErrInvalidParams, inspectorerrors.CodeInvalidParams},
	{a2a.ErrInternalError, inspectorerrors.CodeInternalError},
	{a2a.ErrServerError, inspectorerrors.CodeServerError},
	{a2a.ErrTaskNotFound, inspectorerrors.CodeTaskNotFound},
	{a2a.ErrTaskNotCancelable, inspectorerrors.CodeTaskNotCancelable},
	{a2a.ErrPushNotificationNotSupported, inspectorerrors.CodePushNotificationNotSupported},
	{a2a.ErrUnsupportedOperation, inspectorerrors.CodeUnsupportedOperation},
	{a2a.ErrUnsupportedContentType, inspectorerrors.CodeContentTypeNotSupported},
	{a2a.ErrInvalidAgentResponse, inspectorerrors.CodeInvalidAgentResponse},
}

// remoteOrTransport keeps agent error objects (gRPC statuses and JSON-RPC
// errors) distinguishable; anything else is reported as a transport fault.
func remoteOrTransport(method string, err error) error {
	if st, ok := status.FromError(err); ok {
		return inspectorerrors.FromGRPCStatus(st)
	}
	for _, c := range sdkErrorCodes {
		if errors.Is(err, c.err) {
			return &inspectorerrors.RemoteError{Code: c.code, Message: err.Error()}
		}
	}
	return fmt.Errorf("%s: %w", method, err)
}
