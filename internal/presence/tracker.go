// Package presence implements the Presence Tracker component.
//
// The tracker derives online/offline state from connection registry
// transitions, persists last-seen timestamps best-effort, and broadcasts
// presence updates to users who share a conversation with the affected
// user. Store failures are logged and swallowed: presence stays responsive
// in memory regardless of store health and never blocks the connection
// close path.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Maruf346/PingMe/internal/event"
	"github.com/Maruf346/PingMe/internal/model"
	"github.com/Maruf346/PingMe/internal/registry"
)

// presenceStore is the slice of the durable store the tracker needs.
type presenceStore interface {
	SetLastSeen(ctx context.Context, userID model.UserID, at time.Time) error
	ContactsOf(ctx context.Context, userID model.UserID) ([]model.UserID, error)
}

// Config holds Presence Tracker settings.
type Config struct {
	PersistTimeout   time.Duration // Budget for one last-seen write
	BroadcastTimeout time.Duration // Budget for one contact lookup
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PersistTimeout:   5 * time.Second,
		BroadcastTimeout: 5 * time.Second,
	}
}

// Tracker consumes registry transitions and maintains presence records.
type Tracker struct {
	cfg    Config
	reg    *registry.Registry
	store  presenceStore
	logger *slog.Logger

	mu      sync.RWMutex
	records map[model.UserID]model.PresenceRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTracker creates a Presence Tracker.
func NewTracker(cfg Config, reg *registry.Registry, st presenceStore, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:     cfg,
		reg:     reg,
		store:   st,
		logger:  logger,
		records: make(map[model.UserID]model.PresenceRecord),
	}
}

// Start begins consuming registry transitions.
func (t *Tracker) Start(ctx context.Context) error {
	t.ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)
	go t.run()

	t.logger.Info("presence tracker started")
	return nil
}

// Stop shuts down the tracker, waiting for in-flight persists.
func (t *Tracker) Stop(ctx context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("presence tracker stopped")
	case <-ctx.Done():
		t.logger.Warn("presence tracker stop timed out")
	}
	return nil
}

// Snapshot returns the current presence record for a user.
func (t *Tracker) Snapshot(userID model.UserID) (model.PresenceRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[userID]
	return rec, ok
}

func (t *Tracker) run() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tr := <-t.reg.Transitions():
			t.handle(tr)
		}
	}
}

func (t *Tracker) handle(tr registry.Transition) {
	t.mu.Lock()
	rec := t.records[tr.UserID]
	rec.UserID = tr.UserID
	rec.Online = tr.Online
	if !tr.Online {
		rec.LastSeen = tr.At
	}
	t.records[tr.UserID] = rec
	t.mu.Unlock()

	// Both the store write and the broadcast run off the transition
	// handler so a slow store can never stall connection teardown.
	if !tr.Online {
		t.wg.Add(1)
		go t.persistLastSeen(tr)
	}

	t.wg.Add(1)
	go t.broadcast(rec)
}

func (t *Tracker) persistLastSeen(tr registry.Transition) {
	defer t.wg.Done()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), t.cfg.PersistTimeout)
	defer cancel()

	if err := t.store.SetLastSeen(ctx, tr.UserID, tr.At); err != nil {
		// Best-effort durable: never fatal.
		t.logger.Warn("failed to persist last seen",
			"user_id", tr.UserID,
			"error", err,
		)
	}
}

// broadcast pushes a presence update to every live handle of every user
// sharing a conversation with the affected user.
func (t *Tracker) broadcast(rec model.PresenceRecord) {
	defer t.wg.Done()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), t.cfg.BroadcastTimeout)
	defer cancel()

	contacts, err := t.store.ContactsOf(ctx, rec.UserID)
	if err != nil {
		t.logger.Warn("failed to resolve presence broadcast targets",
			"user_id", rec.UserID,
			"error", err,
		)
		return
	}

	out := event.NewPresence(rec)
	for _, contact := range contacts {
		for _, h := range t.reg.HandlesFor(contact) {
			if err := h.Push(out); err != nil {
				t.logger.Debug("presence push failed",
					"user_id", contact,
					"conn_id", h.ID(),
					"error", err,
				)
			}
		}
	}
}
