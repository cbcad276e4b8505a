package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NewJSONRPCRequest builds a JSON-RPC 2.0 request with a fresh id.
func NewJSONRPCRequest(method string, params any) *JSONRPCRequest {
	return &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	}
}

// DecodeJSONRPCResponse parses a JSON-RPC 2.0 response. A response must
// carry exactly one of result and error.
func DecodeJSONRPCResponse(body []byte) (*JSONRPCResponse, error) {
	var resp JSONRPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal JSON-RPC response: %w", err)
	}
	if resp.JSONRPC != "2.0" {
		return nil, fmt.Errorf("not a JSON-RPC 2.0 response: jsonrpc=%q", resp.JSONRPC)
	}
	hasResult := len(resp.Result) > 0 && string(resp.Result) != "null"
	if resp.Error == nil && !hasResult {
		return nil, fmt.Errorf("JSON-RPC response has neither result nor error")
	}
	return &resp, nil
}

// ResultDocument decodes the result member as a Document.
func (r *JSONRPCResponse) ResultDocument() (Document, error) {
	return DecodeDocument(r.Result)
}
