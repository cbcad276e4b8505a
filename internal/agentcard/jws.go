package agentcard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hybroai/a2a-agent-inspector/internal/config"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// ErrSignatureRequired is returned for an unsigned card when signatures are mandatory.
var ErrSignatureRequired = errors.New("card signature required but card is not JWS-signed")

// JWSVerifier verifies JWS-signed Agent Cards against trusted JWKS
// endpoints, using the jwx auto-refresh key cache.
type JWSVerifier struct {
	require  bool
	jwksURLs []string
	cacheTTL time.Duration
	cache    *jwk.Cache
}

// NewJWSVerifier creates a verifier from the card_signature config.
// Call Start before Verify.
func NewJWSVerifier(cfg config.CardSignatureConfig) *JWSVerifier {
	return &JWSVerifier{
		require:  cfg.Require,
		jwksURLs: append([]string(nil), cfg.TrustedJWKSURLs...),
		cacheTTL: cfg.CacheTTL.Duration,
	}
}

// Start initializes the JWKS cache and registers every trusted URL. The
// cache refreshes in the background until ctx is cancelled. With no
// trusted URLs this is a no-op.
func (v *JWSVerifier) Start(ctx context.Context) error {
	if len(v.jwksURLs) == 0 {
		return nil
	}
	c := jwk.NewCache(ctx)
	for _, u := range v.jwksURLs {
		if err := c.Register(u, jwk.WithMinRefreshInterval(v.cacheTTL)); err != nil {
			return fmt.Errorf("registering JWKS URL %s: %w", u, err)
		}
	}
	v.cache = c
	return nil
}

// Verify inspects a fetched card body. A plain JSON object is returned
// unchanged (signed=false) unless signatures are required. A JWS compact
// serialization is verified against the trusted key sets and its payload
// returned (signed=true).
func (v *JWSVerifier) Verify(ctx context.Context, body []byte) (payload []byte, signed bool, err error) {
	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		if v.require {
			return nil, false, ErrSignatureRequired
		}
		return body, false, nil
	}

	if _, err := jws.Parse(body); err != nil {
		return nil, false, fmt.Errorf("card is neither JSON nor a JWS: %w", err)
	}
	if v.cache == nil {
		return nil, true, fmt.Errorf("card is JWS-signed but no trusted JWKS is configured")
	}

	for _, u := range v.jwksURLs {
		keyset, err := v.cache.Get(ctx, u)
		if err != nil {
			continue
		}
		if payload, err := jws.Verify(body, jws.WithKeySet(keyset)); err == nil {
			return payload, true, nil
		}
	}
	return nil, true, fmt.Errorf("card JWS signature verification failed against all trusted JWKS")
}

// IsConfigured reports whether trusted JWKS URLs are configured.
func (v *JWSVerifier) IsConfigured() bool {
	return len(v.jwksURLs) > 0
}
