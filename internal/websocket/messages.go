package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/satriahrh/arunika/callagent/domain/entities"
)

// MessageType is the type field of a platform websocket message
type MessageType string

// Message types sent by the platform
const (
	MessageTypeSessionNew   MessageType = "session:new"
	MessageTypeSessionRedir MessageType = "session:redirect"
	MessageTypeVerbHook     MessageType = "verb:hook"
	MessageTypeCallStatus   MessageType = "call:status"
	MessageTypeVerbStatus   MessageType = "verb:status"
	MessageTypeJambonzError MessageType = "jambonz:error"
)

// Message types sent back to the platform
const (
	MessageTypeAck     MessageType = "ack"
	MessageTypeCommand MessageType = "command"
)

// CommandRedirect replaces the verbs the platform is currently executing
const CommandRedirect = "redirect"

// Message is an incoming platform message. Data carries the same payload the
// HTTP webhooks receive as their body.
type Message struct {
	Type    MessageType     `json:"type"`
	MsgID   string          `json:"msgid,omitempty"`
	CallSid string          `json:"call_sid,omitempty"`
	Hook    string          `json:"hook,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// AckMessage answers a message that carried a msgid
type AckMessage struct {
	Type  MessageType              `json:"type"`
	MsgID string                   `json:"msgid"`
	Data  entities.InstructionList `json:"data,omitempty"`
}

// CommandMessage pushes verbs to a call outside of a request/ack exchange
type CommandMessage struct {
	Type         MessageType              `json:"type"`
	Command      string                   `json:"command"`
	CallSid      string                   `json:"call_sid,omitempty"`
	QueueCommand bool                     `json:"queueCommand"`
	Data         entities.InstructionList `json:"data"`
}

// ParseMessage decodes and validates a platform message
func ParseMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch msg.Type {
	case "":
		return nil, fmt.Errorf("message type is required")
	case MessageTypeSessionNew, MessageTypeSessionRedir, MessageTypeVerbHook:
		if msg.MsgID == "" {
			return nil, fmt.Errorf("msgid is required for %s", msg.Type)
		}
	}

	if msg.Type == MessageTypeVerbHook && msg.Hook == "" {
		return nil, fmt.Errorf("hook is required for %s", msg.Type)
	}

	return &msg, nil
}

// payload returns Data, or an empty object when the message had none
func (m *Message) payload() json.RawMessage {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return json.RawMessage(`{}`)
	}
	return m.Data
}

// NewAck creates the ack for msgID. A nil list acks without verbs.
func NewAck(msgID string, list entities.InstructionList) *AckMessage {
	return &AckMessage{
		Type:  MessageTypeAck,
		MsgID: msgID,
		Data:  list,
	}
}

// NewRedirect creates a command replacing the call's current verbs
func NewRedirect(callSid string, list entities.InstructionList) *CommandMessage {
	return &CommandMessage{
		Type:    MessageTypeCommand,
		Command: CommandRedirect,
		CallSid: callSid,
		Data:    list,
	}
}
