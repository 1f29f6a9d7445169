package model

import "time"

// UserID identifies an authenticated principal. Opaque; issued by the
// identity provider, never interpreted by the delivery core.
type UserID string

// ConversationID identifies a one-to-one or group conversation.
type ConversationID string

// MessageID identifies a persisted message. Assigned by the durable store
// at persist time; strictly increasing within a conversation.
type MessageID int64

// AttachmentType classifies a message attachment.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
	AttachmentAudio AttachmentType = "audio"
	AttachmentFile  AttachmentType = "file"
)

// ValidAttachmentType reports whether t is one of the known attachment types.
func ValidAttachmentType(t AttachmentType) bool {
	switch t {
	case AttachmentImage, AttachmentVideo, AttachmentAudio, AttachmentFile:
		return true
	}
	return false
}

// Attachment references stored media attached to a message. The delivery
// core never touches attachment bytes, only the reference.
type Attachment struct {
	Ref  string         // Storage reference (path or object key)
	Type AttachmentType // image, video, audio, file
}

// MessageEnvelope is the canonical persisted form of a chat message.
// Immutable once persisted except IsRead, which is flipped by read-receipt
// events scoped to a non-sender participant.
type MessageEnvelope struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	Attachment     *Attachment // nil for plain text messages
	Nonce          string      // Client-supplied, optional, for idempotent resend
	Timestamp      time.Time   // Assigned by the store at persist time
	IsRead         bool
}

// PresenceRecord captures a user's current reachability.
// Online is true iff the connection registry holds at least one live
// handle for the user.
type PresenceRecord struct {
	UserID   UserID
	Online   bool
	LastSeen time.Time // Zero until the first offline transition
}
