package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Maruf346/PingMe/internal/directory"
	"github.com/Maruf346/PingMe/internal/event"
	"github.com/Maruf346/PingMe/internal/model"
	"github.com/Maruf346/PingMe/internal/registry"
	"github.com/Maruf346/PingMe/internal/store"
)

// ErrForbidden indicates the sender is not a participant of the target
// conversation. The request has no side effects and the error is reported
// to the sender only.
var ErrForbidden = errors.New("sender is not a conversation participant")

// messageStore is the slice of the durable store the router needs.
type messageStore interface {
	CreateMessage(ctx context.Context, in store.CreateMessageInput) (model.MessageEnvelope, error)
	SetRead(ctx context.Context, messageID model.MessageID, readerID model.UserID) error
}

// Stats contains runtime dispatch statistics.
type Stats struct {
	Dispatched   int64 // Events accepted past authorization
	Delivered    int64 // Successful pushes to recipient handles
	PushFailures int64 // Failed pushes (logged, not fatal)
	Rejected     int64 // Events rejected before any side effect
}

// Router dispatches decoded client events.
type Router struct {
	store  messageStore
	dir    *directory.Directory
	reg    *registry.Registry
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a Message Router.
func New(st messageStore, dir *directory.Directory, reg *registry.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:  st,
		dir:    dir,
		reg:    reg,
		logger: logger,
	}
}

// Stats returns current dispatch statistics.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Dispatch processes one decoded inbound event on behalf of sender. origin
// is the connection the event arrived on; it receives the acknowledgment
// and is excluded from fan-out. A returned error is scoped to the origin
// connection.
func (r *Router) Dispatch(ctx context.Context, sender model.UserID, origin registry.Handle, ev event.Inbound) error {
	parts, err := r.dir.Participants(ctx, ev.Conversation())
	if err != nil {
		r.reject()
		return fmt.Errorf("resolve participants: %w", err)
	}
	if _, ok := parts[sender]; !ok {
		r.reject()
		return ErrForbidden
	}

	switch e := ev.(type) {
	case *event.Send:
		return r.handleSend(ctx, sender, origin, e, parts)
	case *event.Typing:
		r.dispatched()
		r.fanOut(parts, sender, event.NewTyping(e.ConversationID, sender))
		return nil
	case *event.ReadReceipt:
		return r.handleReadReceipt(ctx, sender, e, parts)
	default:
		r.reject()
		return fmt.Errorf("%w: unhandled event %T", event.ErrDecode, ev)
	}
}

func (r *Router) handleSend(ctx context.Context, sender model.UserID, origin registry.Handle, e *event.Send, parts map[model.UserID]struct{}) error {
	// Detach from the sender's connection lifetime: once persisted, the
	// message must fan out even if the sender disconnects right away.
	opCtx := context.WithoutCancel(ctx)

	env, err := r.store.CreateMessage(opCtx, store.CreateMessageInput{
		ConversationID: e.ConversationID,
		SenderID:       sender,
		Content:        e.Content,
		Attachment:     e.Attachment,
		Nonce:          e.Nonce,
	})
	if err != nil {
		r.reject()
		return fmt.Errorf("persist message: %w", err)
	}
	r.dispatched()

	r.fanOut(parts, sender, event.NewChatMessage(env))

	// The sender reconciles its optimistic copy from the ack; a push
	// failure here means the sender is already gone.
	if err := origin.Push(event.NewAck(env)); err != nil {
		r.logger.Debug("ack push failed",
			"conversation_id", e.ConversationID,
			"message_id", env.ID,
			"error", err,
		)
	}
	return nil
}

func (r *Router) handleReadReceipt(ctx context.Context, sender model.UserID, e *event.ReadReceipt, parts map[model.UserID]struct{}) error {
	opCtx := context.WithoutCancel(ctx)

	if err := r.store.SetRead(opCtx, e.MessageID, sender); err != nil {
		r.reject()
		return fmt.Errorf("set read: %w", err)
	}
	r.dispatched()

	r.fanOut(parts, sender, event.NewReadReceipt(e.ConversationID, e.MessageID, sender))
	return nil
}

// fanOut pushes an event to every live handle of every participant except
// the sender. Best-effort per handle: one failed push never aborts
// delivery to the rest.
func (r *Router) fanOut(parts map[model.UserID]struct{}, sender model.UserID, out event.Outbound) {
	for userID := range parts {
		if userID == sender {
			continue
		}
		for _, h := range r.reg.HandlesFor(userID) {
			if err := h.Push(out); err != nil {
				r.logger.Warn("push failed",
					"user_id", userID,
					"conn_id", h.ID(),
					"type", out.Type,
					"error", err,
				)
				r.pushFailure()
				continue
			}
			r.delivered()
		}
	}
}

func (r *Router) dispatched() {
	r.mu.Lock()
	r.stats.Dispatched++
	r.mu.Unlock()
}

func (r *Router) delivered() {
	r.mu.Lock()
	r.stats.Delivered++
	r.mu.Unlock()
}

func (r *Router) pushFailure() {
	r.mu.Lock()
	r.stats.PushFailures++
	r.mu.Unlock()
}

func (r *Router) reject() {
	r.mu.Lock()
	r.stats.Rejected++
	r.mu.Unlock()
}
