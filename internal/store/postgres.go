package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Maruf346/PingMe/internal/model"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// CreateMessage persists a message inside a transaction. The conversation
// row is locked first so concurrent sends to the same conversation are
// assigned strictly increasing IDs; sends to other conversations are not
// serialized behind it.
func (p *Postgres) CreateMessage(ctx context.Context, in CreateMessageInput) (model.MessageEnvelope, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.MessageEnvelope{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const lock = `SELECT 1 FROM conversations WHERE id = $1 FOR UPDATE`
	var one int
	if err := tx.QueryRow(ctx, lock, in.ConversationID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MessageEnvelope{}, ErrNotFound
		}
		return model.MessageEnvelope{}, fmt.Errorf("lock conversation: %w", err)
	}

	// Idempotent resend: return the envelope persisted for this nonce.
	if in.Nonce != "" {
		const sel = `
			SELECT id, content, attachment_ref, attachment_type, is_read, created_at
			FROM messages
			WHERE conversation_id = $1 AND sender_id = $2 AND nonce = $3`
		env, err := p.scanExisting(tx.QueryRow(ctx, sel, in.ConversationID, in.SenderID, in.Nonce), in)
		if err == nil {
			return env, tx.Commit(ctx)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return model.MessageEnvelope{}, fmt.Errorf("nonce lookup: %w", err)
		}
	}

	var attachRef, attachType *string
	if in.Attachment != nil {
		attachRef = &in.Attachment.Ref
		at := string(in.Attachment.Type)
		attachType = &at
	}

	const ins = `
		INSERT INTO messages (conversation_id, sender_id, content, attachment_ref, attachment_type, nonce, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), false, now())
		RETURNING id, created_at`
	var (
		id        int64
		createdAt time.Time
	)
	if err := tx.QueryRow(ctx, ins,
		in.ConversationID, in.SenderID, in.Content, attachRef, attachType, in.Nonce,
	).Scan(&id, &createdAt); err != nil {
		return model.MessageEnvelope{}, fmt.Errorf("insert message: %w", err)
	}

	const touch = `UPDATE conversations SET updated_at = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, touch, in.ConversationID); err != nil {
		return model.MessageEnvelope{}, fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.MessageEnvelope{}, fmt.Errorf("commit: %w", err)
	}

	return model.MessageEnvelope{
		ID:             model.MessageID(id),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Attachment:     in.Attachment,
		Nonce:          in.Nonce,
		Timestamp:      createdAt.UTC(),
	}, nil
}

func (p *Postgres) scanExisting(row pgx.Row, in CreateMessageInput) (model.MessageEnvelope, error) {
	var (
		id         int64
		content    string
		attachRef  *string
		attachType *string
		isRead     bool
		createdAt  time.Time
	)
	if err := row.Scan(&id, &content, &attachRef, &attachType, &isRead, &createdAt); err != nil {
		return model.MessageEnvelope{}, err
	}

	env := model.MessageEnvelope{
		ID:             model.MessageID(id),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        content,
		Nonce:          in.Nonce,
		Timestamp:      createdAt.UTC(),
		IsRead:         isRead,
	}
	if attachRef != nil && attachType != nil {
		env.Attachment = &model.Attachment{Ref: *attachRef, Type: model.AttachmentType(*attachType)}
	}
	return env, nil
}

// ParticipantsOf returns the participant set of a conversation.
func (p *Postgres) ParticipantsOf(ctx context.Context, conversationID model.ConversationID) ([]model.UserID, error) {
	const q = `SELECT user_id FROM conversation_participants WHERE conversation_id = $1`
	rows, err := p.pool.Query(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []model.UserID
	for rows.Next() {
		var uid model.UserID
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read participants: %w", err)
	}

	// Every existing conversation has a non-empty participant set, so an
	// empty result means the conversation does not exist.
	if len(participants) == 0 {
		return nil, ErrNotFound
	}
	return participants, nil
}

// SetRead marks a message read for readerID. The predicate keeps the
// update scoped to non-sender participants; anyone else is a silent no-op
// at the store level.
func (p *Postgres) SetRead(ctx context.Context, messageID model.MessageID, readerID model.UserID) error {
	const q = `
		UPDATE messages m
		SET is_read = true
		WHERE m.id = $1
		  AND m.sender_id <> $2
		  AND EXISTS (
			SELECT 1 FROM conversation_participants cp
			WHERE cp.conversation_id = m.conversation_id AND cp.user_id = $2
		  )`
	tag, err := p.pool.Exec(ctx, q, int64(messageID), readerID)
	if err != nil {
		return fmt.Errorf("set read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing message from an out-of-scope reader.
		const exists = `SELECT 1 FROM messages WHERE id = $1`
		var one int
		if err := p.pool.QueryRow(ctx, exists, int64(messageID)).Scan(&one); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("check message: %w", err)
		}
	}
	return nil
}

// SetLastSeen records the user's last-seen timestamp.
func (p *Postgres) SetLastSeen(ctx context.Context, userID model.UserID, at time.Time) error {
	const q = `UPDATE users SET last_seen = $2 WHERE id = $1`
	if _, err := p.pool.Exec(ctx, q, userID, at.UTC()); err != nil {
		return fmt.Errorf("set last seen: %w", err)
	}
	return nil
}

// ContactsOf returns users sharing at least one conversation with userID.
func (p *Postgres) ContactsOf(ctx context.Context, userID model.UserID) ([]model.UserID, error) {
	const q = `
		SELECT DISTINCT other.user_id
		FROM conversation_participants own
		JOIN conversation_participants other USING (conversation_id)
		WHERE own.user_id = $1 AND other.user_id <> $1`
	rows, err := p.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []model.UserID
	for rows.Next() {
		var uid model.UserID
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read contacts: %w", err)
	}
	return contacts, nil
}
