package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Maruf346/PingMe/internal/config"
	"github.com/Maruf346/PingMe/internal/directory"
	"github.com/Maruf346/PingMe/internal/gateway"
	"github.com/Maruf346/PingMe/internal/identity"
	"github.com/Maruf346/PingMe/internal/model"
	"github.com/Maruf346/PingMe/internal/presence"
	"github.com/Maruf346/PingMe/internal/registry"
	"github.com/Maruf346/PingMe/internal/router"
	"github.com/Maruf346/PingMe/internal/store"
	"github.com/Maruf346/PingMe/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/chatd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting chatd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.Addr,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to the durable store
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := store.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	st := store.NewPostgres(pool, logger)

	// Assemble the delivery core, leaf-first
	reg := registry.New(logger)

	tracker := presence.NewTracker(presence.Config{
		PersistTimeout:   cfg.Presence.PersistTimeout,
		BroadcastTimeout: cfg.Presence.BroadcastTimeout,
	}, reg, st, logger)
	if err := tracker.Start(ctx); err != nil {
		logger.Error("failed to start presence tracker", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		tracker.Stop(stopCtx)
	}()

	dir := directory.New(st, cfg.Directory.TTL, logger)
	rt := router.New(st, dir, reg, logger)

	verifier := identity.NewJWTVerifier([]byte(cfg.Auth.SigningKey))
	gw := gateway.NewServer(gateway.Config{
		WriteTimeout:    cfg.Server.WriteTimeout,
		PingInterval:    cfg.Server.PingInterval,
		PongWait:        cfg.Server.PongWait,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
	}, verifier, reg, rt, logger)
	defer gw.Shutdown()

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WSPath, gw)
	mux.Handle("/healthz", healthHandler(pool, rt))
	// Membership changes from the CRUD surface invalidate cached
	// participant sets here.
	mux.HandleFunc("/internal/invalidate", invalidateHandler(dir))

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "ws_path", cfg.Server.WSPath)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	logger.Info("chatd stopped")
}

// healthHandler reports store connectivity and dispatch statistics.
func healthHandler(pool interface {
	Ping(ctx context.Context) error
}, rt *router.Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		stats := rt.Stats()
		health.Components["router"] = map[string]int64{
			"dispatched":    stats.Dispatched,
			"delivered":     stats.Delivered,
			"push_failures": stats.PushFailures,
			"rejected":      stats.Rejected,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}

// invalidateHandler is the cache invalidation hook for the CRUD surface.
func invalidateHandler(dir *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		conversationID := r.URL.Query().Get("conversation_id")
		if conversationID == "" {
			http.Error(w, "conversation_id is required", http.StatusBadRequest)
			return
		}
		dir.Invalidate(model.ConversationID(conversationID))
		w.WriteHeader(http.StatusNoContent)
	}
}
