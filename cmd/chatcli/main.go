// chatcli connects to a chatd instance and exchanges messages from the
// console. Intended for local smoke testing, not production use: it signs
// its own token with the shared key instead of going through the identity
// provider.
//
// Usage:
//
//	go run ./cmd/chatcli --url ws://localhost:8080/ws --key dev-secret \
//	    --user alice --conversation c1 --message "hello"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Maruf346/PingMe/internal/identity"
	"github.com/Maruf346/PingMe/internal/model"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "chatd WebSocket URL")
	key := flag.String("key", "", "token signing key (shared with chatd)")
	user := flag.String("user", "", "user ID to connect as")
	conversation := flag.String("conversation", "", "conversation ID to send into")
	message := flag.String("message", "", "message to send after connecting (optional)")
	verbose := flag.Bool("verbose", false, "print full frame JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *key == "" || *user == "" {
		logger.Error("--key and --user are required")
		os.Exit(1)
	}

	token, err := identity.Issue([]byte(*key), model.UserID(*user), time.Hour)
	if err != nil {
		logger.Error("failed to issue token", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, *url, header)
	if err != nil {
		logger.Error("dial failed", "url", *url, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	logger.Info("connected", "url", *url, "user", *user)

	if *message != "" {
		if *conversation == "" {
			logger.Error("--conversation is required with --message")
			os.Exit(1)
		}
		frame := map[string]any{
			"type":            "message",
			"conversation_id": *conversation,
			"payload": map[string]any{
				"content": *message,
			},
		}
		data, _ := json.Marshal(frame)
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Error("send failed", "error", err)
			os.Exit(1)
		}
		logger.Info("sent", "conversation", *conversation, "content", *message)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("read failed", "error", err)
			os.Exit(1)
		}

		if *verbose {
			fmt.Println(string(data))
			continue
		}

		var frame struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Warn("unparseable frame", "data", string(data))
			continue
		}
		logger.Info("received", "type", frame.Type, "payload", string(frame.Payload))
	}
}
