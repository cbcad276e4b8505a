package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	inspectorerrors "github.com/hybroai/a2a-agent-inspector/internal/errors"
	"github.com/hybroai/a2a-agent-inspector/internal/protocol"
)

// GenerationLegacy names the explicit JSON-RPC client generation.
const GenerationLegacy = "legacy"

// Legacy is the older client generation: it builds JSON-RPC 2.0 request
// envelopes with explicit ids and reads SSE streams itself.
type Legacy struct {
	opts   Options
	client *http.Client // card discovery and message/send
	stream *http.Client // message/stream
	logger *slog.Logger
}

// NewLegacy creates the legacy adapter.
func NewLegacy(opts Options) *Legacy {
	return &Legacy{
		opts:   opts,
		client: NewHTTPClient(NewUnaryTransport(opts.Timeout), opts.Timeout, opts.Admitter),
		stream: NewHTTPClient(NewStreamTransport(), opts.Timeout, opts.Admitter),
		logger: opts.logger().With("component", "backend", "generation", GenerationLegacy),
	}
}

// Name implements Backend.
func (l *Legacy) Name() string { return GenerationLegacy }

// RequiresContextID implements Backend. Older agents assign the context.
func (l *Legacy) RequiresContextID() bool { return false }

// ── Card discovery ──

// ResolveCard fetches the card from the first well-known path that exists.
// A 404 moves on to the next path; any other failure ends discovery.
func (l *Legacy) ResolveCard(ctx context.Context, baseURL string) (protocol.Document, error) {
	base := strings.TrimRight(baseURL, "/")
	paths := l.opts.cardPaths()

	for i, path := range paths {
		body, status, err := l.fetchCard(ctx, base+path)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNotFound && i < len(paths)-1 {
			l.logger.Debug("agent card not found, trying next path", "url", base+path)
			continue
		}
		if status < 200 || status > 299 {
			return nil, fmt.Errorf("fetching agent card from %s: HTTP %d", base+path, status)
		}
		return l.decodeCard(ctx, body)
	}
	return nil, errors.New("no agent card paths configured")
}

func (l *Legacy) fetchCard(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating card request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/jose")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching agent card: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, nil
	}
	body, err := readLimited(resp.Body, l.opts.MaxCardSize)
	if err != nil {
		return nil, 0, fmt.Errorf("reading agent card: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (l *Legacy) decodeCard(ctx context.Context, body []byte) (protocol.Document, error) {
	payload := body
	if l.opts.Verifier != nil {
		verified, signed, err := l.opts.Verifier.Verify(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("verifying agent card: %w", err)
		}
		if signed {
			l.logger.Debug("agent card signature verified")
		}
		payload = verified
	}
	card, err := protocol.DecodeDocument(payload)
	if err != nil {
		return nil, fmt.Errorf("malformed agent card: %w", err)
	}
	return card, nil
}

// ── message/send ──

// SendUnary posts message/send to the card's url and returns the result.
func (l *Legacy) SendUnary(ctx context.Context, card protocol.Document, msg protocol.OutboundMessage) (protocol.Document, error) {
	resp, err := l.post(ctx, l.client, card, protocol.MethodMessageSend, msg, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readLimited(resp.Body, l.opts.MaxEventSize)
	if err != nil {
		return nil, fmt.Errorf("reading reply: %w", err)
	}
	return decodeReply(body)
}

// ── message/stream ──

// SendStreaming posts message/stream and yields the result of every SSE
// event. An agent that answers with a plain JSON body instead of a stream
// yields that single reply.
func (l *Legacy) SendStreaming(ctx context.Context, card protocol.Document, msg protocol.OutboundMessage) iter.Seq2[protocol.Document, error] {
	return func(yield func(protocol.Document, error) bool) {
		resp, err := l.post(ctx, l.stream, card, protocol.MethodMessageStream, msg, "text/event-stream")
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		if mediaType(resp.Header.Get("Content-Type")) != "text/event-stream" {
			body, err := readLimited(resp.Body, l.opts.MaxEventSize)
			if err != nil {
				yield(nil, fmt.Errorf("reading reply: %w", err))
				return
			}
			yield(decodeReply(body))
			return
		}

		events := protocol.NewEventReader(resp.Body, l.opts.MaxEventSize)
		for {
			data, err := events.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			doc, err := decodeReply(data)
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

// post sends one JSON-RPC request to the card's service endpoint and
// checks the HTTP status.
func (l *Legacy) post(ctx context.Context, client *http.Client, card protocol.Document, method string, msg protocol.OutboundMessage, accept string) (*http.Response, error) {
	endpoint := protocol.CardURL(card)
	if endpoint == "" {
		return nil, errors.New("agent card has no service url")
	}

	rpc := protocol.NewJSONRPCRequest(method, protocol.MessageSendParams{Message: msg.Wire()})
	payload, err := json.Marshal(rpc)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	l.logger.Debug("dispatching", "method", method, "endpoint", endpoint, "rpc_id", rpc.ID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%s: agent returned HTTP %d", method, resp.StatusCode)
	}
	return resp, nil
}

// decodeReply unwraps a JSON-RPC response into its result document, or a
// RemoteError when the agent answered with an error object.
func decodeReply(body []byte) (protocol.Document, error) {
	rpc, err := protocol.DecodeJSONRPCResponse(body)
	if err != nil {
		return nil, err
	}
	if rpc.Error != nil {
		re := &inspectorerrors.RemoteError{Code: rpc.Error.Code, Message: rpc.Error.Message}
		if len(rpc.Error.Data) > 0 {
			re.Data = rpc.Error.Data
		}
		return nil, re
	}
	doc, err := rpc.ResultDocument()
	if err != nil {
		return nil, fmt.Errorf("malformed result: %w", err)
	}
	return doc, nil
}

// readLimited reads r fully, failing when it exceeds limit bytes.
func readLimited(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(body) > limit {
		return nil, fmt.Errorf("response exceeds %d bytes", limit)
	}
	return body, nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}
