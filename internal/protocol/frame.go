// Package protocol defines the JSON frame protocol spoken over the live
// chat channel and the codec that validates it. Frames are flat JSON
// objects discriminated by a "type" field.
package protocol

import (
	"encoding/json"
	"fmt"

	"livechat-service/internal/models"
)

// FrameType discriminates the wire frames using a custom enum type so the
// router can match over a closed set instead of raw strings.
type FrameType string

const (
	// Client -> server
	FrameIdentify       FrameType = "identify"
	FrameChat           FrameType = "chat"
	FrameAdminMessage   FrameType = "admin_message"
	FrameTyping         FrameType = "typing"
	FrameGetHistory     FrameType = "get_history"
	FrameGetActiveChats FrameType = "get_active_chats"
	FrameDeleteChat     FrameType = "delete_chat"

	// Server -> client
	FrameClientID      FrameType = "client_id"
	FrameHistory       FrameType = "history"
	FrameActiveChats   FrameType = "active_chats"
	FrameChatDeleted   FrameType = "chat_deleted"
	FrameMessageStatus FrameType = "message_status"
	FrameSystem        FrameType = "system"
	FrameAdminNotice   FrameType = "admin"
)

// String returns the string representation of the FrameType.
func (t FrameType) String() string {
	return string(t)
}

// IsValid checks if the FrameType is a known enum value.
func (t FrameType) IsValid() bool {
	switch t {
	case FrameIdentify, FrameChat, FrameAdminMessage, FrameTyping,
		FrameGetHistory, FrameGetActiveChats, FrameDeleteChat,
		FrameClientID, FrameHistory, FrameActiveChats, FrameChatDeleted,
		FrameMessageStatus, FrameSystem, FrameAdminNotice:
		return true
	default:
		return false
	}
}

// MalformedFrameError reports a frame that failed structural validation.
// The caller logs it and drops the frame; it is never fatal to the
// connection and never forwarded to the peer.
type MalformedFrameError struct {
	Reason string
	Err    error
}

func (e *MalformedFrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed frame: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed frame: %s", e.Reason)
}

func (e *MalformedFrameError) Unwrap() error {
	return e.Err
}

// Payload is the decoded body of one frame. Each frame kind is its own
// struct so the router can switch exhaustively over concrete types.
type Payload interface {
	FrameType() FrameType
	validate() error
}

// Identify binds a connection to a client identity and role.
type Identify struct {
	IsAdmin  bool   `json:"isAdmin"`
	Name     string `json:"name"`
	ClientID string `json:"clientId,omitempty"`
}

func (Identify) FrameType() FrameType { return FrameIdentify }
func (Identify) validate() error      { return nil }

// Chat is a visitor message into its own thread.
type Chat struct {
	ClientID  string `json:"clientId"`
	Message   string `json:"message"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Name      string `json:"name,omitempty"`
}

func (Chat) FrameType() FrameType { return FrameChat }

func (p Chat) validate() error {
	if p.ID == "" {
		return fmt.Errorf("chat frame requires an id")
	}
	if p.Message == "" {
		return fmt.Errorf("chat frame requires a message")
	}
	return nil
}

// AdminMessage is an operator reply targeting one visitor thread.
type AdminMessage struct {
	TargetClientID string `json:"targetClientId"`
	Message        string `json:"message"`
	ID             string `json:"id"`
	Timestamp      string `json:"timestamp"`
}

func (AdminMessage) FrameType() FrameType { return FrameAdminMessage }

func (p AdminMessage) validate() error {
	if p.TargetClientID == "" {
		return fmt.Errorf("admin_message frame requires a targetClientId")
	}
	if p.ID == "" {
		return fmt.Errorf("admin_message frame requires an id")
	}
	if p.Message == "" {
		return fmt.Errorf("admin_message frame requires a message")
	}
	return nil
}

// Typing is an ephemeral indicator; never persisted.
type Typing struct {
	TargetClientID string `json:"targetClientId"`
	Typing         bool   `json:"typing"`
}

func (Typing) FrameType() FrameType { return FrameTyping }
func (Typing) validate() error      { return nil }

// GetHistory requests the ordered messages of one thread.
type GetHistory struct {
	ClientID string `json:"clientId"`
}

func (GetHistory) FrameType() FrameType { return FrameGetHistory }
func (GetHistory) validate() error      { return nil }

// GetActiveChats requests the admin dashboard summaries.
type GetActiveChats struct{}

func (GetActiveChats) FrameType() FrameType { return FrameGetActiveChats }
func (GetActiveChats) validate() error      { return nil }

// DeleteChat removes a thread and its history.
type DeleteChat struct {
	ClientID string `json:"clientId"`
}

func (DeleteChat) FrameType() FrameType { return FrameDeleteChat }

func (p DeleteChat) validate() error {
	if p.ClientID == "" {
		return fmt.Errorf("delete_chat frame requires a clientId")
	}
	return nil
}

// ClientID assigns or confirms a visitor's client id.
type ClientID struct {
	ClientID string `json:"clientId"`
}

func (ClientID) FrameType() FrameType { return FrameClientID }
func (ClientID) validate() error      { return nil }

// History is the response to GetHistory.
type History struct {
	ClientID string               `json:"clientId"`
	Messages []models.ChatMessage `json:"messages"`
}

func (History) FrameType() FrameType { return FrameHistory }
func (History) validate() error      { return nil }

// ActiveChats is the response to GetActiveChats.
type ActiveChats struct {
	Chats []models.ActiveChatSummary `json:"chats"`
}

func (ActiveChats) FrameType() FrameType { return FrameActiveChats }
func (ActiveChats) validate() error      { return nil }

// ChatDeleted notifies admins that a thread was removed.
type ChatDeleted struct {
	ClientID string `json:"clientId"`
	Success  bool   `json:"success"`
}

func (ChatDeleted) FrameType() FrameType { return FrameChatDeleted }
func (ChatDeleted) validate() error      { return nil }

// MessageStatus acknowledges an admin message with its delivery status.
type MessageStatus struct {
	ID     string                `json:"id"`
	Status models.DeliveryStatus `json:"status"`
}

func (MessageStatus) FrameType() FrameType { return FrameMessageStatus }
func (MessageStatus) validate() error      { return nil }

// System is a server-originated notice shown to the receiving client.
type System struct {
	Message string `json:"message"`
}

func (System) FrameType() FrameType { return FrameSystem }
func (System) validate() error      { return nil }

// AdminNotice is a server-originated notice shown as coming from staff.
type AdminNotice struct {
	Message string `json:"message"`
}

func (AdminNotice) FrameType() FrameType { return FrameAdminNotice }
func (AdminNotice) validate() error      { return nil }

// envelope is the discriminator peeled off every inbound frame before the
// typed payload is decoded.
type envelope struct {
	Type FrameType `json:"type"`
}

// Decode parses and validates one raw frame. Any structural failure is
// returned as a MalformedFrameError; the codec has no side effects.
func Decode(raw []byte) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &MalformedFrameError{Reason: "not a JSON object", Err: err}
	}
	if env.Type == "" {
		return nil, &MalformedFrameError{Reason: "missing type field"}
	}
	if !env.Type.IsValid() {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("unknown frame type %q", env.Type)}
	}

	var payload Payload
	switch env.Type {
	case FrameIdentify:
		payload = &Identify{}
	case FrameChat:
		payload = &Chat{}
	case FrameAdminMessage:
		payload = &AdminMessage{}
	case FrameTyping:
		payload = &Typing{}
	case FrameGetHistory:
		payload = &GetHistory{}
	case FrameGetActiveChats:
		payload = &GetActiveChats{}
	case FrameDeleteChat:
		payload = &DeleteChat{}
	case FrameClientID:
		payload = &ClientID{}
	case FrameHistory:
		payload = &History{}
	case FrameActiveChats:
		payload = &ActiveChats{}
	case FrameChatDeleted:
		payload = &ChatDeleted{}
	case FrameMessageStatus:
		payload = &MessageStatus{}
	case FrameSystem:
		payload = &System{}
	case FrameAdminNotice:
		payload = &AdminNotice{}
	}

	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("invalid %s payload", env.Type), Err: err}
	}
	if err := payload.validate(); err != nil {
		return nil, &MalformedFrameError{Reason: err.Error()}
	}
	return payload, nil
}

// Encode serializes one payload into a wire frame with its type field set.
func Encode(p Payload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", p.FrameType(), err)
	}

	// Flatten the payload and splice in the discriminator.
	fields := make(map[string]any)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", p.FrameType(), err)
	}
	fields["type"] = p.FrameType()
	return json.Marshal(fields)
}
