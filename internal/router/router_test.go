package router

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Maruf346/PingMe/internal/directory"
	"github.com/Maruf346/PingMe/internal/event"
	"github.com/Maruf346/PingMe/internal/model"
	"github.com/Maruf346/PingMe/internal/registry"
	"github.com/Maruf346/PingMe/internal/store"
)

type captureHandle struct {
	id     uuid.UUID
	userID model.UserID
	fail   bool

	mu     sync.Mutex
	pushed []event.Outbound
}

func newCaptureHandle(userID model.UserID) *captureHandle {
	return &captureHandle{id: uuid.New(), userID: userID}
}

func (h *captureHandle) ID() uuid.UUID        { return h.id }
func (h *captureHandle) UserID() model.UserID { return h.userID }
func (h *captureHandle) CreatedAt() time.Time { return time.Time{} }

func (h *captureHandle) Push(ev event.Outbound) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		return errors.New("peer mid-disconnect")
	}
	h.pushed = append(h.pushed, ev)
	return nil
}

func (h *captureHandle) byType(typ string) []event.Outbound {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []event.Outbound
	for _, ev := range h.pushed {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// fakeStore implements messageStore and the directory's participant source.
type fakeStore struct {
	mu           sync.Mutex
	participants map[model.ConversationID][]model.UserID
	nextID       int64
	saved        []model.MessageEnvelope
	reads        map[model.MessageID]model.UserID
	failCreate   bool
}

func newFakeStore(parts map[model.ConversationID][]model.UserID) *fakeStore {
	return &fakeStore{
		participants: parts,
		reads:        make(map[model.MessageID]model.UserID),
	}
}

func (f *fakeStore) ParticipantsOf(_ context.Context, id model.ConversationID) ([]model.UserID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users, ok := f.participants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return users, nil
}

func (f *fakeStore) CreateMessage(ctx context.Context, in store.CreateMessageInput) (model.MessageEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return model.MessageEnvelope{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return model.MessageEnvelope{}, errors.New("store down")
	}
	f.nextID++
	env := model.MessageEnvelope{
		ID:             model.MessageID(f.nextID),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Attachment:     in.Attachment,
		Nonce:          in.Nonce,
		Timestamp:      time.Now().UTC(),
	}
	f.saved = append(f.saved, env)
	return env, nil
}

func (f *fakeStore) SetRead(ctx context.Context, messageID model.MessageID, readerID model.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[messageID] = readerID
	return nil
}

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func newTestRouter(st *fakeStore) (*Router, *registry.Registry) {
	reg := registry.New(slog.Default())
	dir := directory.New(st, 30*time.Second, slog.Default())
	return New(st, dir, reg, slog.Default()), reg
}

func TestDispatch_SendFanOut(t *testing.T) {
	st := newFakeStore(map[model.ConversationID][]model.UserID{
		"c1": {"alice", "bob", "carol"},
	})
	r, reg := newTestRouter(st)

	a1 := newCaptureHandle("alice")
	a2 := newCaptureHandle("alice") // sender's second device
	b1 := newCaptureHandle("bob")
	b2 := newCaptureHandle("bob") // recipient's second device
	c1 := newCaptureHandle("carol")
	for _, h := range []*captureHandle{a1, a2, b1, b2, c1} {
		reg.Register(h)
	}

	err := r.Dispatch(context.Background(), "alice", a1, &event.Send{
		ConversationID: "c1",
		Content:        "hello",
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	// Exactly one chat_message per live recipient handle.
	for _, h := range []*captureHandle{b1, b2, c1} {
		if got := len(h.byType(event.TypeChatMessage)); got != 1 {
			t.Errorf("handle of %s got %d chat_message pushes, want 1", h.userID, got)
		}
	}

	// Zero pushes to the sender's own handles, on any device.
	for _, h := range []*captureHandle{a1, a2} {
		if got := len(h.byType(event.TypeChatMessage)); got != 0 {
			t.Errorf("sender handle got %d chat_message pushes, want 0", got)
		}
	}

	// The origin receives the ack with the canonical envelope.
	acks := a1.byType(event.TypeAck)
	if len(acks) != 1 {
		t.Fatalf("origin got %d acks, want 1", len(acks))
	}
	if got := string(acks[0].Payload); !strings.Contains(got, `"id":1`) || !strings.Contains(got, `"content":"hello"`) {
		t.Errorf("ack payload = %s, want id 1 and content hello", got)
	}

	// The non-origin sender device gets no ack either.
	if got := len(a2.byType(event.TypeAck)); got != 0 {
		t.Errorf("non-origin sender handle got %d acks, want 0", got)
	}
}

func TestDispatch_OfflineRecipientIsNoop(t *testing.T) {
	st := newFakeStore(map[model.ConversationID][]model.UserID{
		"c1": {"alice", "bob"},
	})
	r, reg := newTestRouter(st)

	a1 := newCaptureHandle("alice")
	reg.Register(a1)
	// bob has no live handles.

	err := r.Dispatch(context.Background(), "alice", a1, &event.Send{
		ConversationID: "c1",
		Content:        "hi",
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if st.savedCount() != 1 {
		t.Errorf("saved = %d, want 1", st.savedCount())
	}
	if got := len(a1.byType(event.TypeAck)); got != 1 {
		t.Errorf("acks = %d, want 1", got)
	}
}

func TestDispatch_Forbidden(t *testing.T) {
	st := newFakeStore(map[model.ConversationID][]model.UserID{
		"c1": {"bob", "carol"},
	})
	r, reg := newTestRouter(st)

	a1 := newCaptureHandle("alice")
	b1 := newCaptureHandle("bob")
	reg.Register(a1)
	reg.Register(b1)

	err := r.Dispatch(context.Background(), "alice", a1, &event.Send{
		ConversationID: "c1",
		Content:        "sneaky",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("Dispatch error = %v, want ErrForbidden", err)
	}

	if st.savedCount() != 0 {
		t.Errorf("saved = %d, want 0 (no side effects)", st.savedCount())
	}
	if got := len(b1.byType(event.TypeChatMessage)); got != 0 {
		t.Errorf("bob received %d pushes, want 0", got)
	}
}

func TestDispatch_UnknownConversation(t *testing.T) {
	st := newFakeStore(map[model.ConversationID][]model.UserID{})
	r, reg := newTestRouter(st)

	a1 := newCaptureHandle("alice")
	reg.Register(a1)

	err := r.Dispatch(context.Background(), "alice", a1, &event.Send{
		ConversationID: "missing",
		Content:        "hi",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Dispatch error = %v, want store.ErrNotFound", err)
	}
	if st.savedCount() != 0 {
		t.Errorf("saved = %d, want 0", st.savedCount())
	}
}

func TestDispatch_StorageErrorAbortsRouting(t *testing.T) {
	st := newFakeStore(map[model.ConversationID][]model.UserID{
		"c1": {"alice", "bob"},
	})
	st.failCreate = true
	r, reg := newTestRouter(st)

	a1 := newCaptureHandle("alice")
	b1 := newCaptureHandle("bob")
	reg.Register(a1)
	reg.Register(b1)

	err := r.Dispatch(context.Background(), "alice", a1, &event.Send{
		ConversationID: "c1",
		Content:        "hi",
	})
	if err == nil {
		t.Fatal("Dispatch succeeded, want storage error")
	}

	if got := len(b1.byType(event.TypeChatMessage)); got != 0 {
		t.Errorf("bob received %d pushes after storage failure, want 0", got)
	}
	if got := len(a1.byType(event.TypeAck)); got != 0 {
		t.Errorf("sender received %d acks after storage failure, want 0", got)
	}
}

func TestDispatch_SenderTeardownRace(t *testing.T) {
	st := newFakeStore(map[model.ConversationID][]model.UserID{
		"c1": {"alice", "bob"},
	})
	r, reg := newTestRouter(st)

	a1 := newCaptureHandle("alice")
	b1 := newCaptureHandle("bob")
	reg.Register(a1)
	reg.Register(b1)

	// Warm the directory cache so authorization does not depend on the
	// canceled context.
	if _, err := r.dir.Participants(context.Background(), "c1"); err != nil {
		t.Fatalf("warm directory: %v", err)
	}

	// The sender's connection context is already canceled, as if the
	// connection dropped right after the frame arrived.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Dispatch(ctx, "alice", a1, &event.Send{
		ConversationID: "c1",
		Content:        "parting words",
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if st.savedCount() != 1 {
		t.Errorf("saved = %d, want 1 (persist survives sender teardown)", st.savedCount())
	}
	if got := len(b1.byType(event.TypeChatMessage)); got != 1 {
		t.Errorf("bob received %d pushes, want 1", got)
	}
}

func TestDispatch_PushFailureDoesNotAbortFanOut(t *testing.T) {
	st := newFakeStore(map[model.ConversationID][]model.UserID{
		"c1": {"alice", "bob", "carol"},
	})
	r, reg := newTestRouter(st)

	a1 := newCaptureHandle("alice")
	b1 := newCaptureHandle("bob")
	b1.fail = true
	c1 := newCaptureHandle("carol")
	for _, h := range []*captureHandle{a1, b1, c1} {
		reg.Register(h)
	}

	err := r.Dispatch(context.Background(), "alice", a1, &event.Send{
		ConversationID: "c1",
		Content:        "hi",
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if got := len(c1.byType(event.TypeChatMessage)); got != 1 {
		t.Errorf("carol received %d pushes, want 1 despite bob's failure", got)
	}
	if stats := r.Stats(); stats.PushFailures != 1 {
		t.Errorf("PushFailures = %d, want 1", stats.PushFailures)
	}
}

func TestDispatch_MessageIDsIncrease(t *testing.T) {
	st := newFakeStore(map[model.ConversationID][]model.UserID{
		"c1": {"alice", "bob"},
	})
	r, reg := newTestRouter(st)

	a1 := newCaptureHandle("alice")
	reg.Register(a1)

	for i := 0; i < 3; i++ {
		if err := r.Dispatch(context.Background(), "alice", a1, &event.Send{
			ConversationID: "c1",
			Content:        "msg",
		}); err != nil {
			t.Fatalf("Dispatch %d failed: %v", i, err)
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for i := 1; i < len(st.saved); i++ {
		if st.saved[i].ID <= st.saved[i-1].ID {
			t.Errorf("message IDs not strictly increasing: %d then %d", st.saved[i-1].ID, st.saved[i].ID)
		}
	}
}

func TestDispatch_Typing(t *testing.T) {
	st := newFakeStore(map[model.ConversationID][]model.UserID{
		"c1": {"alice", "bob"},
	})
	r, reg := newTestRouter(st)

	a1 := newCaptureHandle("alice")
	b1 := newCaptureHandle("bob")
	reg.Register(a1)
	reg.Register(b1)

	err := r.Dispatch(context.Background(), "alice", a1, &event.Typing{ConversationID: "c1"})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if st.savedCount() != 0 {
		t.Errorf("saved = %d, want 0 (typing is not persisted)", st.savedCount())
	}
	if got := len(b1.byType(event.TypeTyping)); got != 1 {
		t.Errorf("bob received %d typing pushes, want 1", got)
	}
	if got := len(a1.byType(event.TypeTyping)); got != 0 {
		t.Errorf("alice received %d typing pushes, want 0", got)
	}
}

func TestDispatch_ReadReceipt(t *testing.T) {
	st := newFakeStore(map[model.ConversationID][]model.UserID{
		"c1": {"alice", "bob"},
	})
	r, reg := newTestRouter(st)

	a1 := newCaptureHandle("alice")
	b1 := newCaptureHandle("bob")
	reg.Register(a1)
	reg.Register(b1)

	err := r.Dispatch(context.Background(), "bob", b1, &event.ReadReceipt{
		ConversationID: "c1",
		MessageID:      7,
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	st.mu.Lock()
	reader := st.reads[7]
	st.mu.Unlock()
	if reader != "bob" {
		t.Errorf("reads[7] = %q, want %q", reader, "bob")
	}

	if got := len(a1.byType(event.TypeReadReceipt)); got != 1 {
		t.Errorf("alice received %d read_receipt pushes, want 1", got)
	}
	if got := len(b1.byType(event.TypeReadReceipt)); got != 0 {
		t.Errorf("bob received %d read_receipt pushes, want 0", got)
	}
}
