package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Maruf346/PingMe/internal/directory"
	"github.com/Maruf346/PingMe/internal/event"
	"github.com/Maruf346/PingMe/internal/identity"
	"github.com/Maruf346/PingMe/internal/model"
	"github.com/Maruf346/PingMe/internal/registry"
	"github.com/Maruf346/PingMe/internal/router"
	"github.com/Maruf346/PingMe/internal/store"
)

var testKey = []byte("gateway-test-key")

type fakeStore struct {
	mu           sync.Mutex
	participants map[model.ConversationID][]model.UserID
	nextID       int64
	saved        int
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

func (f *fakeStore) CreateMessage(_ context.Context, in store.CreateMessageInput) (model.MessageEnvelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.saved++
	return model.MessageEnvelope{
		ID:             model.MessageID(f.nextID),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Attachment:     in.Attachment,
		Nonce:          in.Nonce,
		Timestamp:      time.Now().UTC(),
	}, nil
}

func (f *fakeStore) SetRead(context.Context, model.MessageID, model.UserID) error {
	return nil
}

func startTestServer(t *testing.T, st *fakeStore) (*httptest.Server, *registry.Registry) {
	t.Helper()

	reg := registry.New(slog.Default())
	dir := directory.New(st, 30*time.Second, slog.Default())
	rt := router.New(st, dir, reg, slog.Default())

	cfg := DefaultConfig()
	cfg.WriteTimeout = time.Second
	srv := NewServer(cfg, identity.NewJWTVerifier(testKey), reg, rt, slog.Default())

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Shutdown()
		ts.Close()
	})
	return ts, reg
}

func dial(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func dialAs(t *testing.T, ts *httptest.Server, userID model.UserID) *websocket.Conn {
	t.Helper()
	token, err := identity.Issue(testKey, userID, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return dial(t, ts, token)
}

func readFrame(t *testing.T, conn *websocket.Conn) event.Outbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var out event.Outbound
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal frame %s: %v", data, err)
	}
	return out
}

func waitOnline(t *testing.T, reg *registry.Registry, userID model.UserID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reg.IsOnline(userID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s never came online", userID)
}

func TestServer_RejectsBadToken(t *testing.T) {
	st := &fakeStore{participants: map[model.ConversationID][]model.UserID{}}
	ts, reg := startTestServer(t, st)

	conn := dial(t, ts, "bogus-token")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected close, got frame")
	}
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("close error = %v, want policy violation", err)
	}

	if reg.IsOnline("alice") {
		t.Error("rejected connection was registered")
	}
}

func TestServer_SendDelivery(t *testing.T) {
	st := &fakeStore{participants: map[model.ConversationID][]model.UserID{
		"c1": {"alice", "bob"},
	}}
	ts, reg := startTestServer(t, st)

	alice := dialAs(t, ts, "alice")
	bob := dialAs(t, ts, "bob")
	waitOnline(t, reg, "alice")
	waitOnline(t, reg, "bob")

	frame := `{"type":"message","conversation_id":"c1","payload":{"content":"hello"}}`
	if err := alice.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Bob receives the delivery push.
	got := readFrame(t, bob)
	if got.Type != event.TypeChatMessage {
		t.Errorf("bob frame type = %q, want %q", got.Type, event.TypeChatMessage)
	}
	var payload event.MessagePayload
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Content != "hello" || payload.SenderID != "alice" || payload.ID != 1 {
		t.Errorf("payload = %+v, want id 1 from alice with content hello", payload)
	}

	// Alice receives the ack, not a duplicate push.
	ack := readFrame(t, alice)
	if ack.Type != event.TypeAck {
		t.Errorf("alice frame type = %q, want %q", ack.Type, event.TypeAck)
	}

	alice.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := alice.ReadMessage(); err == nil {
		t.Error("alice received an unexpected second frame")
	}
}

func TestServer_DecodeErrorKeepsConnectionOpen(t *testing.T) {
	st := &fakeStore{participants: map[model.ConversationID][]model.UserID{
		"c1": {"alice", "bob"},
	}}
	ts, reg := startTestServer(t, st)

	alice := dialAs(t, ts, "alice")
	waitOnline(t, reg, "alice")

	if err := alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport","conversation_id":"c1"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := readFrame(t, alice)
	if got.Type != event.TypeError {
		t.Fatalf("frame type = %q, want %q", got.Type, event.TypeError)
	}
	var payload event.ErrorPayload
	json.Unmarshal(got.Payload, &payload)
	if payload.Code != "decode_error" {
		t.Errorf("error code = %q, want %q", payload.Code, "decode_error")
	}

	// The connection is still usable.
	frame := `{"type":"message","conversation_id":"c1","payload":{"content":"still here"}}`
	if err := alice.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write after error failed: %v", err)
	}
	if got := readFrame(t, alice); got.Type != event.TypeAck {
		t.Errorf("frame type = %q, want %q", got.Type, event.TypeAck)
	}
}

func TestServer_ForbiddenReportedToSenderOnly(t *testing.T) {
	st := &fakeStore{participants: map[model.ConversationID][]model.UserID{
		"c1": {"bob", "carol"},
	}}
	ts, reg := startTestServer(t, st)

	alice := dialAs(t, ts, "alice")
	bob := dialAs(t, ts, "bob")
	waitOnline(t, reg, "alice")
	waitOnline(t, reg, "bob")

	frame := `{"type":"message","conversation_id":"c1","payload":{"content":"intrusion"}}`
	if err := alice.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := readFrame(t, alice)
	if got.Type != event.TypeError {
		t.Fatalf("alice frame type = %q, want %q", got.Type, event.TypeError)
	}
	var payload event.ErrorPayload
	json.Unmarshal(got.Payload, &payload)
	if payload.Code != "forbidden" {
		t.Errorf("error code = %q, want %q", payload.Code, "forbidden")
	}

	st.mu.Lock()
	saved := st.saved
	st.mu.Unlock()
	if saved != 0 {
		t.Errorf("saved = %d, want 0", saved)
	}

	bob.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := bob.ReadMessage(); err == nil {
		t.Error("bob received a frame for a forbidden send")
	}
}

func TestServer_DisconnectUnregisters(t *testing.T) {
	st := &fakeStore{participants: map[model.ConversationID][]model.UserID{}}
	ts, reg := startTestServer(t, st)

	alice := dialAs(t, ts, "alice")
	waitOnline(t, reg, "alice")

	alice.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !reg.IsOnline("alice") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("alice still online after disconnect")
}

func TestHandle_PushAfterClose(t *testing.T) {
	h := newHandle("alice", nil, time.Second)
	h.markClosed()

	err := h.Push(event.NewError("x", "y"))
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Push error = %v, want ErrConnectionClosed", err)
	}
}
