// Package protocol holds the A2A wire shapes the inspector needs: loosely
// typed documents for cards and replies, the JSON-RPC 2.0 envelope used by
// the legacy client, and the outbound user message.
// JSON tags are camelCase as in the A2A specification.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Document is a decoded JSON object kept loosely typed so that unknown and
// malformed fields survive for inspection.
type Document map[string]any

// DecodeDocument unmarshals a JSON object into a Document.
func DecodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decoding document: not a JSON object")
	}
	return doc, nil
}

// ToDocument converts any JSON-serializable value into a Document.
func ToDocument(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return DecodeDocument(data)
}

// ── Task States ──

// TaskState represents the state of an A2A task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateRejected      TaskState = "rejected"
	TaskStateUnknown       TaskState = "unknown"
)

// Terminal reports whether no further updates follow this state within
// one request. Interrupted states (input-required, auth-required) count:
// the agent stops and waits for the caller.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected,
		TaskStateInputRequired, TaskStateAuthRequired:
		return true
	}
	return false
}

// ── Event Kinds ──

// Values of the "kind" discriminator on replies and stream events.
const (
	KindMessage        = "message"
	KindTask           = "task"
	KindStatusUpdate   = "status-update"
	KindArtifactUpdate = "artifact-update"
)

// ── Message Types ──

// Message is an A2A message as sent on the wire.
type Message struct {
	Kind      string `json:"kind"`
	MessageID string `json:"messageId"`
	ContextID string `json:"contextId,omitempty"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
}

// Part is a message part. The inspector only ever sends text parts.
type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// MessageSendParams is the params object of message/send and message/stream.
type MessageSendParams struct {
	Message Message `json:"message"`
}

// ── JSON-RPC Types ──

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// A2A JSON-RPC method names.
const (
	MethodMessageSend   = "message/send"
	MethodMessageStream = "message/stream"
)
