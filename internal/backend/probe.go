package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
)

// GenerationAuto probes for the SDK generation and falls back to legacy.
const GenerationAuto = "auto"

// probeURL is never contacted: building a JSON-RPC client is offline.
const probeURL = "https://probe.invalid/a2a"

// Select returns the adapter for generation. It is called once at
// startup. With "auto" the SDK adapter is used when its factory can
// build a client for a plain JSON-RPC card.
func Select(ctx context.Context, generation string, opts Options) (Backend, error) {
	switch generation {
	case GenerationLegacy:
		return NewLegacy(opts), nil
	case GenerationSDK:
		return NewSDK(opts), nil
	case GenerationAuto, "":
		sdk := NewSDK(opts)
		if err := sdk.probe(ctx); err != nil {
			opts.logger().Warn("a2a sdk client unavailable, using legacy JSON-RPC client", "error", err)
			return NewLegacy(opts), nil
		}
		return sdk, nil
	default:
		return nil, fmt.Errorf("unknown client generation %q (want auto, sdk or legacy)", generation)
	}
}

// probe builds and destroys a client for a synthetic card.
func (s *SDK) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	card := &a2a.AgentCard{
		Name:               "probe",
		URL:                probeURL,
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		Capabilities:       a2a.AgentCapabilities{},
	}
	client, err := s.factory.CreateFromCard(ctx, card)
	if err != nil {
		return fmt.Errorf("probing a2a client factory: %w", err)
	}
	if err := client.Destroy(); err != nil {
		s.logger.Debug("a2a probe client cleanup failed", "error", err)
	}
	return nil
}
