// Interactive terminal chat client for the agent hub server. It drives
// the streaming endpoint with live fallback, printing deltas as they
// arrive.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/kcwrites/agenthub/internal/domain"
	"github.com/kcwrites/agenthub/internal/stream"
)

func main() {
	var (
		serverURL = flag.String("server", envOr("AGENTHUB_SERVER_URL", "http://localhost:8080"), "agent hub server base URL")
		agentID   = flag.String("agent", "", "agent persona to chat with")
		timeout   = flag.Duration("timeout", 120*time.Second, "per-attempt timeout")
		verbose   = flag.Bool("verbose", false, "log pipeline diagnostics")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env")
	}

	base := strings.TrimRight(*serverURL, "/")
	transport := stream.NewTransport(stream.TransportConfig{
		StreamURL:      base + "/api/chat/stream",
		FallbackURL:    base + "/api/chat",
		AttemptTimeout: *timeout,
		SessionID:      "cli-" + uuid.NewString(),
	})

	conv := stream.NewConversation()
	pipeline := stream.NewPipeline(transport, conv, stream.Hooks{
		OnFallback: func(reason error) {
			fmt.Fprintf(os.Stderr, "\n[stream unavailable, retrying without streaming: %v]\n", reason)
		},
		OnError: func(err error) {
			slog.Debug("pipeline error", "error", err)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("agenthub chat. Type a message, or /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		if err := runTurn(ctx, pipeline, line, *agentID); err != nil {
			fmt.Fprintln(os.Stderr, "\n[turn canceled]")
			return
		}
	}
}

// runTurn sends one message and prints the answer incrementally. The
// printed prefix tracking keeps redraws append-only: each update shows
// only the newly arrived suffix.
func runTurn(ctx context.Context, pipeline *stream.Pipeline, message, agentID string) error {
	printed := 0
	conv := pipeline.Conversation()
	conv.Observe(func(messages []domain.Message) {
		if len(messages) == 0 {
			return
		}
		last := messages[len(messages)-1]
		if last.Role != domain.RoleAssistant {
			return
		}
		if len(last.Text) > printed {
			fmt.Print(last.Text[printed:])
			printed = len(last.Text)
		}
	})
	defer conv.Observe(nil)

	_, err := pipeline.Send(ctx, message, agentID)
	fmt.Println()
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
