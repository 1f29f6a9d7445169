package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Maruf346/PingMe/internal/event"
	"github.com/Maruf346/PingMe/internal/model"
)

// ErrConnectionClosed indicates a push arrived after the connection was
// torn down. Fan-out callers treat it as a skipped delivery, never as a
// client-visible failure.
var ErrConnectionClosed = errors.New("connection closed")

// wsHandle is the registry-facing endpoint of one live WebSocket
// connection. The session owns the handle; the registry only references it.
type wsHandle struct {
	id        uuid.UUID
	userID    model.UserID
	createdAt time.Time

	conn         *websocket.Conn
	writeTimeout time.Duration

	// Serializes writes from concurrent fan-out callers.
	writeMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

func newHandle(userID model.UserID, conn *websocket.Conn, writeTimeout time.Duration) *wsHandle {
	return &wsHandle{
		id:           uuid.New(),
		userID:       userID,
		createdAt:    time.Now().UTC(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (h *wsHandle) ID() uuid.UUID        { return h.id }
func (h *wsHandle) UserID() model.UserID { return h.userID }
func (h *wsHandle) CreatedAt() time.Time { return h.createdAt }

// Push encodes and writes one outbound event. Safe for concurrent callers;
// an interleaved pair of pushes can never corrupt the stream.
func (h *wsHandle) Push(ev event.Outbound) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrConnectionClosed
	}
	h.mu.RUnlock()

	data, err := ev.Encode()
	if err != nil {
		return err
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	h.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	if err := h.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	return nil
}

// writeControl sends a control frame under the same write serialization.
func (h *wsHandle) writeControl(messageType int, data []byte) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrConnectionClosed
	}
	h.mu.RUnlock()

	return h.conn.WriteControl(messageType, data, time.Now().Add(h.writeTimeout))
}

// markClosed makes all subsequent pushes fail with ErrConnectionClosed.
// Idempotent.
func (h *wsHandle) markClosed() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}
