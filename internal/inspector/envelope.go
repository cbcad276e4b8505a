// Package inspector implements the inspection pipeline: URL admission,
// agent card loading and validation, and single-message dispatch with
// streaming negotiation. Every operation returns an Envelope; nothing
// escapes as an error.
package inspector

import (
	"errors"

	"github.com/hybroai/a2a-agent-inspector/internal/backend"
	inspectorerrors "github.com/hybroai/a2a-agent-inspector/internal/errors"
	"github.com/hybroai/a2a-agent-inspector/internal/protocol"
)

// FailureKind classifies an unsuccessful envelope for the HTTP layer.
// It is not part of the JSON contract.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureAdmission FailureKind = "admission" // URL rejected before any network call
	FailureTransport FailureKind = "transport" // connection, timeout or malformed document
	FailureProtocol  FailureKind = "protocol"  // the agent answered with an error object
)

// Dispatch modes chosen by capability negotiation.
const (
	ModeUnary     = "unary"
	ModeStreaming = "streaming"
)

// Envelope is the uniform result of every operation.
type Envelope struct {
	Success    bool              `json:"success"`
	Data       protocol.Document `json:"data,omitempty"`
	Error      string            `json:"error,omitempty"`
	Message    string            `json:"message,omitempty"`
	Validation []string          `json:"validation,omitempty"`

	Failure FailureKind `json:"-"`
	Mode    string      `json:"-"` // dispatch mode, send-message only
}

// Success messages.
const (
	MsgCardLoaded    = "Agent card loaded successfully"
	MsgCardValidated = "Agent card validated successfully"
	MsgMessageSent   = "Message sent successfully"
)

func succeed(data protocol.Document, message string) Envelope {
	return Envelope{Success: true, Data: data, Message: message}
}

func fail(kind FailureKind, err error) Envelope {
	return Envelope{Failure: kind, Error: err.Error()}
}

// failFrom classifies err: an agent error object is a protocol failure,
// an endpoint the backend refused to contact an admission failure,
// anything else a transport fault.
func failFrom(err error) Envelope {
	var re *inspectorerrors.RemoteError
	if errors.As(err, &re) {
		return fail(FailureProtocol, err)
	}
	var rejected *backend.EndpointRejectedError
	if errors.As(err, &rejected) {
		return fail(FailureAdmission, err)
	}
	return fail(FailureTransport, err)
}
