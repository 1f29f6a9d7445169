package store

import (
	"context"
	"errors"
	"time"

	"github.com/Maruf346/PingMe/internal/model"
)

// ErrNotFound indicates the referenced conversation or message does not
// exist in the durable store.
var ErrNotFound = errors.New("not found")

// CreateMessageInput carries a validated send request into the store.
type CreateMessageInput struct {
	ConversationID model.ConversationID
	SenderID       model.UserID
	Content        string
	Attachment     *model.Attachment // nil for plain text
	Nonce          string            // Optional idempotency key, scoped to (conversation, sender)
}

// Store is the durable storage collaborator consumed by the delivery core.
// All methods are safe for concurrent use.
type Store interface {
	// CreateMessage persists a message and returns the canonical envelope
	// with store-assigned ID and timestamp. Message IDs are strictly
	// increasing within a conversation. A repeated (conversation, sender,
	// nonce) triple returns the previously persisted envelope instead of
	// inserting a duplicate.
	CreateMessage(ctx context.Context, in CreateMessageInput) (model.MessageEnvelope, error)

	// ParticipantsOf returns the deduplicated participant set of a
	// conversation. Returns ErrNotFound for an unknown conversation.
	ParticipantsOf(ctx context.Context, conversationID model.ConversationID) ([]model.UserID, error)

	// SetRead marks a message read on behalf of readerID. The update is
	// scoped: it applies only when the reader is a participant of the
	// message's conversation and not its sender.
	SetRead(ctx context.Context, messageID model.MessageID, readerID model.UserID) error

	// SetLastSeen records the user's last-seen timestamp. Best-effort
	// durable; callers log and swallow failures.
	SetLastSeen(ctx context.Context, userID model.UserID, at time.Time) error

	// ContactsOf returns users sharing at least one conversation with
	// userID, excluding userID itself.
	ContactsOf(ctx context.Context, userID model.UserID) ([]model.UserID, error)
}
