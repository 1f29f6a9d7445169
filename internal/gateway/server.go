package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Maruf346/PingMe/internal/identity"
	"github.com/Maruf346/PingMe/internal/registry"
	"github.com/Maruf346/PingMe/internal/router"
)

// Config holds Session Gateway settings.
type Config struct {
	WriteTimeout    time.Duration // Write deadline for outbound pushes
	PingInterval    time.Duration // Keepalive ping cadence
	PongWait        time.Duration // Read deadline extension per pong
	MaxMessageBytes int64         // Inbound frame size limit
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    5 * time.Second,
		PingInterval:    25 * time.Second,
		PongWait:        60 * time.Second,
		MaxMessageBytes: 64 * 1024,
	}
}

// Server accepts WebSocket connections and runs one session per connection.
type Server struct {
	cfg      Config
	verifier identity.Verifier
	registry *registry.Registry
	router   *router.Router
	logger   *slog.Logger

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a Session Gateway server.
func NewServer(cfg Config, verifier identity.Verifier, reg *registry.Registry, rt *router.Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		verifier: verifier,
		registry: reg,
		router:   rt,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Shutdown stops accepting work on existing sessions. In-flight dispatches
// already past the persist step still complete their fan-out.
func (s *Server) Shutdown() {
	s.cancel()
}

// ServeHTTP upgrades the request and runs the session on the handler's
// goroutine, one worker per connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := newSession(s, conn, token)
	sess.run(s.ctx)
}

// bearerToken extracts the handshake token from the Authorization header,
// falling back to the token query parameter for browser clients that
// cannot set headers on WebSocket requests.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
