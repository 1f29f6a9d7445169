package event

import (
	"encoding/json"
	"time"

	"github.com/Maruf346/PingMe/internal/model"
)

// Outbound event type tags.
const (
	TypeChatMessage = "chat_message"
	TypeTyping      = "typing"
	TypeReadReceipt = "read_receipt"
	TypePresence    = "presence"
	TypeAck         = "ack"
	TypeError       = "error"
)

// Outbound is an encoded server-to-client frame.
type Outbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes the frame for the transport sink.
func (o Outbound) Encode() ([]byte, error) {
	return json.Marshal(o)
}

// MessagePayload is the wire form of a persisted message.
type MessagePayload struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"` // RFC 3339, UTC
	IsRead         bool   `json:"is_read"`
	AttachmentRef  string `json:"attachment,omitempty"`
	AttachmentType string `json:"attachment_type,omitempty"`
}

// TypingPayload is the wire form of a typing indicator.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// ReadReceiptPayload is the wire form of a read receipt.
type ReadReceiptPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      int64  `json:"message_id"`
	ReaderID       string `json:"reader_id"`
}

// PresencePayload is the wire form of a presence update.
type PresencePayload struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
	LastSeen string `json:"last_seen,omitempty"` // RFC 3339, UTC; empty if never offline
}

// ErrorPayload is the wire form of a per-request error, reported only to
// the connection that issued the request.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func messagePayload(env model.MessageEnvelope) MessagePayload {
	p := MessagePayload{
		ID:             int64(env.ID),
		ConversationID: string(env.ConversationID),
		SenderID:       string(env.SenderID),
		Content:        env.Content,
		Timestamp:      env.Timestamp.UTC().Format(time.RFC3339Nano),
		IsRead:         env.IsRead,
	}
	if env.Attachment != nil {
		p.AttachmentRef = env.Attachment.Ref
		p.AttachmentType = string(env.Attachment.Type)
	}
	return p
}

func mustOutbound(typ string, payload any) Outbound {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payload types are plain structs; a marshal failure is a
		// programming error.
		panic(err)
	}
	return Outbound{Type: typ, Payload: data}
}

// NewChatMessage builds the fan-out frame for a persisted message.
func NewChatMessage(env model.MessageEnvelope) Outbound {
	return mustOutbound(TypeChatMessage, messagePayload(env))
}

// NewAck builds the sender's acknowledgment carrying the canonical envelope.
func NewAck(env model.MessageEnvelope) Outbound {
	return mustOutbound(TypeAck, messagePayload(env))
}

// NewTyping builds the fan-out frame for a typing indicator.
func NewTyping(conversationID model.ConversationID, userID model.UserID) Outbound {
	return mustOutbound(TypeTyping, TypingPayload{
		ConversationID: string(conversationID),
		UserID:         string(userID),
	})
}

// NewReadReceipt builds the fan-out frame for a read receipt.
func NewReadReceipt(conversationID model.ConversationID, messageID model.MessageID, readerID model.UserID) Outbound {
	return mustOutbound(TypeReadReceipt, ReadReceiptPayload{
		ConversationID: string(conversationID),
		MessageID:      int64(messageID),
		ReaderID:       string(readerID),
	})
}

// NewPresence builds a presence update frame.
func NewPresence(rec model.PresenceRecord) Outbound {
	p := PresencePayload{
		UserID:   string(rec.UserID),
		IsOnline: rec.Online,
	}
	if !rec.LastSeen.IsZero() {
		p.LastSeen = rec.LastSeen.UTC().Format(time.RFC3339Nano)
	}
	return mustOutbound(TypePresence, p)
}

// NewError builds a per-request error frame.
func NewError(code, message string) Outbound {
	return mustOutbound(TypeError, ErrorPayload{Code: code, Message: message})
}
