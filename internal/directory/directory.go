// Package directory implements the Conversation Directory component, a
// read-through cache from conversation ID to participant set.
//
// The durable store stays authoritative; cached membership may lag it by at
// most the configured TTL. Administrative membership changes invalidate the
// affected entry through Invalidate.
package directory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Maruf346/PingMe/internal/model"
)

// participantSource is the slice of the store the directory needs.
type participantSource interface {
	ParticipantsOf(ctx context.Context, conversationID model.ConversationID) ([]model.UserID, error)
}

type cacheEntry struct {
	participants map[model.UserID]struct{}
	expiresAt    time.Time
}

// Directory resolves conversation membership with bounded staleness.
type Directory struct {
	source participantSource
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[model.ConversationID]cacheEntry

	// Collapses concurrent misses for the same conversation into one
	// store lookup. The cache lock is never held across the lookup.
	group singleflight.Group

	now func() time.Time
}

// New creates a directory backed by the given store.
func New(source participantSource, ttl time.Duration, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		source:  source,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[model.ConversationID]cacheEntry),
		now:     time.Now,
	}
}

// Participants returns the deduplicated participant set of a conversation.
// Serves from cache within the TTL; loads synchronously from the store on
// miss or expiry. Returns store.ErrNotFound for unknown conversations.
func (d *Directory) Participants(ctx context.Context, conversationID model.ConversationID) (map[model.UserID]struct{}, error) {
	d.mu.RLock()
	entry, ok := d.entries[conversationID]
	d.mu.RUnlock()

	if ok && d.now().Before(entry.expiresAt) {
		return copySet(entry.participants), nil
	}

	v, err, _ := d.group.Do(string(conversationID), func() (any, error) {
		users, err := d.source.ParticipantsOf(ctx, conversationID)
		if err != nil {
			return nil, err
		}

		set := make(map[model.UserID]struct{}, len(users))
		for _, u := range users {
			set[u] = struct{}{}
		}

		d.mu.Lock()
		d.entries[conversationID] = cacheEntry{
			participants: set,
			expiresAt:    d.now().Add(d.ttl),
		}
		d.mu.Unlock()

		return set, nil
	})
	if err != nil {
		return nil, err
	}

	return copySet(v.(map[model.UserID]struct{})), nil
}

// Invalidate drops the cached entry for a conversation. Called by the CRUD
// surface when membership changes.
func (d *Directory) Invalidate(conversationID model.ConversationID) {
	d.mu.Lock()
	delete(d.entries, conversationID)
	d.mu.Unlock()

	d.group.Forget(string(conversationID))

	d.logger.Debug("directory entry invalidated", "conversation_id", conversationID)
}

func copySet(set map[model.UserID]struct{}) map[model.UserID]struct{} {
	out := make(map[model.UserID]struct{}, len(set))
	for u := range set {
		out[u] = struct{}{}
	}
	return out
}
