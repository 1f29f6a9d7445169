package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Maruf346/PingMe/internal/event"
	"github.com/Maruf346/PingMe/internal/router"
	"github.com/Maruf346/PingMe/internal/store"
)

// session owns one connection through its lifecycle: connecting until the
// token is verified, open once registered, closed terminally. closeOnce
// makes the closed state a one-way door from either direction.
type session struct {
	srv    *Server
	conn   *websocket.Conn
	token  string
	logger *slog.Logger

	handle    *wsHandle
	closeOnce sync.Once
	done      chan struct{}
}

func newSession(srv *Server, conn *websocket.Conn, token string) *session {
	return &session{
		srv:    srv,
		conn:   conn,
		token:  token,
		logger: srv.logger,
		done:   make(chan struct{}),
	}
}

// run drives the session to completion. Called on the connection's own
// goroutine; returns when the session is Closed.
func (s *session) run(ctx context.Context) {
	userID, err := s.srv.verifier.VerifyToken(s.token)
	if err != nil {
		s.logger.Warn("handshake rejected", "error", err)
		// Never registered: close directly, skipping teardown.
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
		s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.srv.cfg.WriteTimeout))
		s.conn.Close()
		return
	}

	s.handle = newHandle(userID, s.conn, s.srv.cfg.WriteTimeout)
	s.logger = s.logger.With("conn_id", s.handle.ID(), "user_id", userID)

	s.srv.registry.Register(s.handle)
	s.logger.Debug("session open")

	defer s.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		// Server shutdown: unblock the read loop.
		s.close()
	}()

	s.conn.SetReadLimit(s.srv.cfg.MaxMessageBytes)
	s.conn.SetReadDeadline(time.Now().Add(s.srv.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.srv.cfg.PongWait))
	})

	go s.pingLoop()

	s.readLoop(ctx)
}

// readLoop decodes inbound frames and forwards them to the router. One
// worker per connection; dispatch runs inline so a connection's own events
// stay ordered.
func (s *session) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("connection closed", "error", err)
			}
			return
		}

		ev, err := event.Decode(data)
		if err != nil {
			// Malformed frame: report to this connection, stay open.
			s.logger.Warn("decode failed", "error", err)
			s.reportError(err)
			continue
		}

		if err := s.srv.router.Dispatch(ctx, s.handle.UserID(), s.handle, ev); err != nil {
			s.logger.Warn("dispatch failed", "conversation_id", ev.Conversation(), "error", err)
			s.reportError(err)
		}
	}
}

// reportError maps a per-request error to an error frame on this
// connection only. Push failures here mean the connection is going away.
func (s *session) reportError(err error) {
	var out event.Outbound
	switch {
	case errors.Is(err, event.ErrDecode):
		out = event.NewError("decode_error", err.Error())
	case errors.Is(err, router.ErrForbidden):
		out = event.NewError("forbidden", "not a participant of this conversation")
	case errors.Is(err, store.ErrNotFound):
		out = event.NewError("not_found", "unknown conversation or message")
	default:
		out = event.NewError("storage_error", "message could not be processed")
	}
	if pushErr := s.handle.Push(out); pushErr != nil && !errors.Is(pushErr, ErrConnectionClosed) {
		s.logger.Debug("error report push failed", "error", pushErr)
	}
}

// pingLoop keeps the connection alive until close.
func (s *session) pingLoop() {
	ticker := time.NewTicker(s.srv.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.handle.writeControl(websocket.PingMessage, nil); err != nil {
				if !errors.Is(err, ErrConnectionClosed) {
					s.logger.Debug("ping failed", "error", err)
				}
				return
			}
		}
	}
}

// close unregisters the handle, invalidates its sink, and releases the
// transport. Terminal and idempotent.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.srv.registry.Unregister(s.handle)
		s.handle.markClosed()
		s.conn.Close()
		s.logger.Debug("session closed")
	})
}
