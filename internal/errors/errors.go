// Package errors defines the inspector's API error types. Every predefined
// error carries a Hint for developer guidance and a DocsURL for reference.
package errors

import "fmt"

// InspectorError is the error type returned by the inspector's HTTP API.
type InspectorError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	DocsURL string `json:"docs_url,omitempty"`
}

// Error implements the error interface.
func (e *InspectorError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("[%d] %s (hint: %s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// WithMessage returns a copy of e with Message replaced. Predefined errors
// are shared values and must not be mutated.
func (e *InspectorError) WithMessage(msg string) *InspectorError {
	c := *e
	c.Message = msg
	return &c
}

// Predefined errors.
var (
	ErrInvalidRequest   = &InspectorError{Code: 400, Message: "Invalid request format", Hint: "Send a JSON body with a 'url' field (and 'message' for send-message)", DocsURL: "https://a2a-inspector.dev/docs/api"}
	ErrURLRejected      = &InspectorError{Code: 400, Message: "Agent URL rejected", Hint: "Use a public http(s) URL; loopback, private and metadata addresses are blocked", DocsURL: "https://a2a-inspector.dev/docs/ssrf"}
	ErrAgentUnreachable = &InspectorError{Code: 502, Message: "Agent could not be reached", Hint: "Check that the agent is running and serves /.well-known/agent-card.json", DocsURL: "https://a2a-inspector.dev/docs/agents"}
	ErrAgentError       = &InspectorError{Code: 502, Message: "Agent returned an error", Hint: "Inspect the error payload returned by the agent", DocsURL: "https://a2a-inspector.dev/docs/agents"}
	ErrRateLimited      = &InspectorError{Code: 429, Message: "Rate limit exceeded", Hint: "Wait before retrying. Configure security.rate_limit in inspector.yaml", DocsURL: "https://a2a-inspector.dev/docs/rate-limit"}
	ErrNotFound         = &InspectorError{Code: 404, Message: "Endpoint not found", Hint: "See GET / for the list of endpoints", DocsURL: "https://a2a-inspector.dev/docs/api"}
	ErrInternal         = &InspectorError{Code: 500, Message: "Internal server error", Hint: "Check the inspector logs for the request id", DocsURL: "https://a2a-inspector.dev/docs/troubleshooting"}
)
