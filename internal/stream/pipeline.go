package stream

import (
	"context"
	"errors"
	"log/slog"
)

// ApologyText is the fixed answer shown when both the streaming and
// fallback attempts fail. It must stay stable; tests and the UI rely on
// the turn always finalizing with something user-safe.
const ApologyText = "Sorry, I'm having trouble connecting right now. Please try again."

// noReplyText is shown when an endpoint answered successfully but with
// an empty response field.
const noReplyText = "Sorry, I couldn't generate a response."

// Hooks expose pipeline transitions for diagnostics and tests, replacing
// scattered print-style tracing.
type Hooks struct {
	// OnFrame is called for every decoded frame in arrival order.
	OnFrame func(Frame)
	// OnFallback is called once when the turn switches to the
	// non-streaming endpoint, with the failure that caused it.
	OnFallback func(reason error)
	// OnError is called for failures the pipeline absorbs.
	OnError func(err error)
}

// Pipeline runs one full chat turn: streaming attempt, incremental
// assembly, and fallback. All failures are recovered here; the caller
// sees a finalized message, never a propagated error, except when the
// turn is abandoned via context cancellation.
type Pipeline struct {
	transport *Transport
	conv      *Conversation
	hooks     Hooks
}

// NewPipeline creates a pipeline writing into conv.
func NewPipeline(transport *Transport, conv *Conversation, hooks Hooks) *Pipeline {
	return &Pipeline{transport: transport, conv: conv, hooks: hooks}
}

// Conversation returns the conversation this pipeline writes into.
func (p *Pipeline) Conversation() *Conversation {
	return p.conv
}

// Send runs one user turn and returns the finalized assistant text.
// Exactly one message is finalized per call on every path. The only
// error returned is context cancellation, in which case the turn is
// abandoned without finalizing (no zombie writes after the user walks
// away).
func (p *Pipeline) Send(ctx context.Context, message, agentID string) (string, error) {
	req := ChatRequest{Message: message, AgentID: agentID}

	p.conv.AppendUser(message)
	index := p.conv.BeginAssistantTurn()

	attempt, err := p.transport.Open(ctx, req)
	if err != nil {
		if canceled(ctx) {
			return "", ctx.Err()
		}
		p.reportError(err)
		return p.fallback(ctx, req, index, err)
	}

	// Plain JSON from the streaming endpoint is the simple success
	// path, not a fallback: the provider answered in one piece.
	if attempt.Stream == nil {
		return p.finalize(index, orNoReply(attempt.Response)), nil
	}
	defer func() {
		if closeErr := attempt.Stream.Close(); closeErr != nil {
			slog.Debug("failed to close chat stream", "error", closeErr)
		}
	}()

	decoder := NewDecoder()
	result := assemble(
		decoder.Frames(ctx, attempt.Stream),
		func(text string) {
			if updateErr := p.conv.UpdateAssistant(index, text); updateErr != nil {
				slog.Warn("failed to publish streaming update", "error", updateErr)
			}
		},
		p.hooks.OnFrame,
	)

	switch {
	case result.readErr != nil:
		if canceled(ctx) {
			return "", ctx.Err()
		}
		// Mid-stream failure: the accumulated partial text is discarded
		// so nothing from the failed attempt leaks into the final answer.
		p.reportError(result.readErr)
		return p.fallback(ctx, req, index, result.readErr)

	case result.providerErr != "":
		// Provider error events are terminal, not transport failures:
		// the failure is surfaced as the assistant's reply, no fallback.
		p.reportError(errors.New("provider error: " + result.providerErr))
		return p.finalize(index, result.providerErr), nil

	default:
		// Explicit terminal frame, or stream closed without one; either
		// way the turn finalizes with whatever was assembled.
		return p.finalize(index, orNoReply(result.text)), nil
	}
}

// fallback retries the turn against the non-streaming endpoint and
// finalizes the message directly, with the fixed apology when the
// fallback itself fails.
func (p *Pipeline) fallback(ctx context.Context, req ChatRequest, index int, reason error) (string, error) {
	if p.hooks.OnFallback != nil {
		p.hooks.OnFallback(reason)
	}

	text, err := p.transport.Fallback(ctx, req)
	if err != nil {
		if canceled(ctx) {
			return "", ctx.Err()
		}
		p.reportError(err)
		return p.finalize(index, ApologyText), nil
	}
	return p.finalize(index, orNoReply(text)), nil
}

func (p *Pipeline) finalize(index int, text string) string {
	if err := p.conv.FinalizeAssistant(index, text); err != nil {
		slog.Warn("failed to finalize assistant message", "error", err)
	}
	return text
}

func (p *Pipeline) reportError(err error) {
	if p.hooks.OnError != nil {
		p.hooks.OnError(err)
	}
}

func orNoReply(text string) string {
	if text == "" {
		return noReplyText
	}
	return text
}

func canceled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}
