package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Maruf346/PingMe/internal/model"
)

// ErrDecode indicates a malformed inbound frame. Such frames are never
// persisted or routed; the error is reported to the sending connection only.
var ErrDecode = errors.New("malformed event")

// Inbound event type tags.
const (
	inboundMessage     = "message"
	inboundTyping      = "typing"
	inboundReadReceipt = "read_receipt"
)

// Inbound is a decoded client event. The set of variants is closed:
// Send, Typing, ReadReceipt.
type Inbound interface {
	Conversation() model.ConversationID
}

// Send is a request to persist and deliver a message.
type Send struct {
	ConversationID model.ConversationID
	Content        string
	Attachment     *model.Attachment
	Nonce          string
}

// Typing signals that the sender is composing a message.
type Typing struct {
	ConversationID model.ConversationID
}

// ReadReceipt marks a referenced message as read by the sender of the event.
type ReadReceipt struct {
	ConversationID model.ConversationID
	MessageID      model.MessageID
}

func (e *Send) Conversation() model.ConversationID        { return e.ConversationID }
func (e *Typing) Conversation() model.ConversationID      { return e.ConversationID }
func (e *ReadReceipt) Conversation() model.ConversationID { return e.ConversationID }

// inboundEnvelope is the raw frame shape.
type inboundEnvelope struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Payload        json.RawMessage `json:"payload"`
}

type sendPayload struct {
	Content    string             `json:"content"`
	Attachment *attachmentPayload `json:"attachment"`
	Nonce      string             `json:"nonce"`
}

type attachmentPayload struct {
	Ref  string `json:"ref"`
	Type string `json:"type"`
}

type readReceiptPayload struct {
	MessageID int64 `json:"message_id"`
}

// Decode parses a raw inbound frame into its typed variant.
func Decode(raw []byte) (Inbound, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.ConversationID == "" {
		return nil, fmt.Errorf("%w: missing conversation_id", ErrDecode)
	}
	conv := model.ConversationID(env.ConversationID)

	switch env.Type {
	case inboundMessage:
		var p sendPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: message payload: %v", ErrDecode, err)
		}
		ev := &Send{ConversationID: conv, Content: p.Content, Nonce: p.Nonce}
		if p.Attachment != nil {
			at := model.AttachmentType(p.Attachment.Type)
			if p.Attachment.Ref == "" || !model.ValidAttachmentType(at) {
				return nil, fmt.Errorf("%w: invalid attachment", ErrDecode)
			}
			ev.Attachment = &model.Attachment{Ref: p.Attachment.Ref, Type: at}
		}
		if ev.Content == "" && ev.Attachment == nil {
			return nil, fmt.Errorf("%w: empty message", ErrDecode)
		}
		return ev, nil

	case inboundTyping:
		return &Typing{ConversationID: conv}, nil

	case inboundReadReceipt:
		var p readReceiptPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: read_receipt payload: %v", ErrDecode, err)
		}
		if p.MessageID <= 0 {
			return nil, fmt.Errorf("%w: missing message_id", ErrDecode)
		}
		return &ReadReceipt{ConversationID: conv, MessageID: model.MessageID(p.MessageID)}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrDecode)

	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrDecode, env.Type)
	}
}
