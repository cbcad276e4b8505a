package protocol

import (
	"strings"

	"github.com/google/uuid"
)

// RoleUser is the only role the inspector sends as.
const RoleUser = "user"

// OutboundMessage is the single user message relayed to an agent.
type OutboundMessage struct {
	MessageID string
	ContextID string // empty unless the client generation requires one
	Text      string
}

// NewOutboundMessage creates a message with a fresh id. The text is kept
// verbatim. withContext also assigns a fresh conversation id.
func NewOutboundMessage(text string, withContext bool) OutboundMessage {
	m := OutboundMessage{
		MessageID: strings.ReplaceAll(uuid.NewString(), "-", ""),
		Text:      text,
	}
	if withContext {
		m.ContextID = uuid.NewString()
	}
	return m
}

// Wire returns the A2A wire representation.
func (m OutboundMessage) Wire() Message {
	return Message{
		Kind:      KindMessage,
		MessageID: m.MessageID,
		ContextID: m.ContextID,
		Role:      RoleUser,
		Parts:     []Part{{Kind: "text", Text: m.Text}},
	}
}
