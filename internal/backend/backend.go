// Package backend isolates A2A client-generation skew behind one small
// capability interface. Two adapters implement it: Legacy speaks explicit
// JSON-RPC 2.0 envelopes itself, SDK delegates to the a2a-go client.
package backend

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/hybroai/a2a-agent-inspector/internal/config"
	"github.com/hybroai/a2a-agent-inspector/internal/protocol"
)

// Backend is the capability interface the dispatcher is written against.
//
// Protocol-level failures (an explicit error object from the agent) are
// returned as *inspectorerrors.RemoteError. Everything else is a
// transport fault.
type Backend interface {
	// Name identifies the client generation ("legacy" or "sdk").
	Name() string
	// RequiresContextID reports whether outbound messages need a fresh
	// conversation id.
	RequiresContextID() bool
	// ResolveCard performs one card-discovery round trip against baseURL.
	ResolveCard(ctx context.Context, baseURL string) (protocol.Document, error)
	// SendUnary issues one request and awaits one reply.
	SendUnary(ctx context.Context, card protocol.Document, msg protocol.OutboundMessage) (protocol.Document, error)
	// SendStreaming returns a lazy, finite, non-restartable sequence of
	// reply chunks. At most one error is yielded, and it ends the sequence.
	// Stopping the iteration early releases the connection.
	SendStreaming(ctx context.Context, card protocol.Document, msg protocol.OutboundMessage) iter.Seq2[protocol.Document, error]
}

// Admitter decides whether a URL may be contacted. It is consulted on
// every redirect the agent answers with, and by the SDK adapter on every
// interface a card advertises.
type Admitter interface {
	Check(ctx context.Context, rawURL string) error
}

// EndpointRejectedError reports an agent-supplied endpoint the Admitter
// refused. Nothing was sent to it.
type EndpointRejectedError struct {
	URL string
	Err error
}

func (e *EndpointRejectedError) Error() string {
	return fmt.Sprintf("agent endpoint %s rejected: %v", e.URL, e.Err)
}

func (e *EndpointRejectedError) Unwrap() error { return e.Err }

// CardVerifier turns a fetched card body into the JSON payload to decode,
// verifying a signature when the body is signed.
type CardVerifier interface {
	Verify(ctx context.Context, body []byte) (payload []byte, signed bool, err error)
}

// Options carries what both adapters need.
type Options struct {
	Timeout      time.Duration
	CardPaths    []string
	MaxCardSize  int
	MaxEventSize int
	Verifier     CardVerifier // optional; legacy card discovery only
	Admitter     Admitter     // optional; checks redirect targets and card interfaces
	Logger       *slog.Logger
}

// OptionsFromConfig builds Options from the inspector config section.
func OptionsFromConfig(cfg config.InspectorConfig) Options {
	return Options{
		Timeout:      cfg.Timeout.Duration,
		CardPaths:    append([]string(nil), cfg.CardPaths...),
		MaxCardSize:  cfg.MaxCardSize,
		MaxEventSize: cfg.MaxEventSize,
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) cardPaths() []string {
	if len(o.CardPaths) > 0 {
		return o.CardPaths
	}
	return config.DefaultCardPaths
}

// errorSeq is a sequence that yields err once.
func errorSeq(err error) iter.Seq2[protocol.Document, error] {
	return func(yield func(protocol.Document, error) bool) {
		yield(nil, err)
	}
}
