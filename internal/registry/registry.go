package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Maruf346/PingMe/internal/event"
	"github.com/Maruf346/PingMe/internal/model"
)

// TransitionBufferSize is the capacity of the presence transition channel.
const TransitionBufferSize = 1024

// Handle is a live connection's addressable endpoint for outbound pushes.
// Owned by the session gateway; the registry only holds a reference for
// the duration of the connection.
type Handle interface {
	// ID uniquely identifies this handle across all connections.
	ID() uuid.UUID

	// UserID is the authenticated owner of the connection.
	UserID() model.UserID

	// Push encodes and writes an outbound event to the transport sink.
	// Safe to call from many concurrent fan-out operations; writes to a
	// single handle are serialized internally.
	Push(ev event.Outbound) error

	// CreatedAt is the connection establishment time.
	CreatedAt() time.Time
}

// Transition is an edge-triggered presence change: emitted only when a
// user's handle count crosses the 0↔1 boundary.
type Transition struct {
	UserID model.UserID
	Online bool
	At     time.Time
}

// Registry tracks live handles per user.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	handles map[model.UserID]map[uuid.UUID]Handle

	transitions chan Transition
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:      logger,
		handles:     make(map[model.UserID]map[uuid.UUID]Handle),
		transitions: make(chan Transition, TransitionBufferSize),
	}
}

// Register adds a handle under its owning user. Idempotent if the same
// handle is re-registered.
func (r *Registry) Register(h Handle) {
	userID := h.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.handles[userID]
	if !ok {
		set = make(map[uuid.UUID]Handle)
		r.handles[userID] = set
	}
	wasOnline := len(set) > 0
	set[h.ID()] = h

	if !wasOnline {
		r.emit(Transition{UserID: userID, Online: true, At: time.Now().UTC()})
	}
}

// Unregister removes a handle. No-op if the handle is absent. Emits an
// offline transition when the last handle for the user goes away.
func (r *Registry) Unregister(h Handle) {
	userID := h.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.handles[userID]; ok {
		if _, present := set[h.ID()]; present {
			delete(set, h.ID())
			if len(set) == 0 {
				delete(r.handles, userID)
				r.emit(Transition{UserID: userID, Online: false, At: time.Now().UTC()})
			}
		}
	}
}

// HandlesFor returns a snapshot of the user's live handles at call time.
func (r *Registry) HandlesFor(userID model.UserID) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.handles[userID]
	if !ok {
		return nil
	}
	out := make([]Handle, 0, len(set))
	for _, h := range set {
		out = append(out, h)
	}
	return out
}

// IsOnline reports whether the user has at least one live handle.
func (r *Registry) IsOnline(userID model.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handles[userID]) > 0
}

// Transitions returns the edge-triggered presence transition stream.
func (r *Registry) Transitions() <-chan Transition {
	return r.transitions
}

// emit publishes a transition without blocking connection lifecycle paths.
// Called with mu held so channel order always matches registry state order;
// the send is non-blocking, no I/O happens under the lock.
func (r *Registry) emit(tr Transition) {
	select {
	case r.transitions <- tr:
	default:
		r.logger.Warn("transition buffer full, dropping presence event",
			"user_id", tr.UserID,
			"online", tr.Online,
		)
	}
}
