// Package llm provides the upstream chat-completion provider client.
package llm

import (
	"context"
	"errors"
	"iter"

	"github.com/kcwrites/agenthub/internal/domain"
)

// ErrNotConfigured is returned when no usable provider credential is set.
// It is detected before any request is sent and is never retried.
var ErrNotConfigured = errors.New("llm: provider API key not configured")

// Request describes one completion call. History carries prior turns in
// order; the final User message is appended after it.
type Request struct {
	System      string
	History     []domain.Message
	User        string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Client is the interface the HTTP and WebSocket handlers speak to the
// provider through. Implemented by the OpenAI client; tests substitute
// their own.
type Client interface {
	// Configured reports whether the client holds a usable credential.
	Configured() bool

	// Stream yields answer fragments in arrival order until the
	// provider completes or fails.
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]

	// Complete returns the full answer in one piece.
	Complete(ctx context.Context, req Request) (string, error)
}
