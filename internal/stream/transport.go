package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBodySize caps how much of an error response body is retained.
const maxErrorBodySize = 8 << 10

// TransportError reports an HTTP or network-level failure. Status is 0
// for network failures that never produced a response.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("chat transport: %v", e.Err)
	}
	return fmt.Sprintf("chat transport: status %d: %s", e.Status, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ChatRequest is the request shape both chat endpoints accept.
type ChatRequest struct {
	Message string `json:"message"`
	AgentID string `json:"agent_id"`
}

// chatReply is the plain-JSON reply shape of both endpoints.
type chatReply struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Attempt is the outcome of opening one streaming request: either a
// readable event stream or a complete plain-JSON answer.
type Attempt struct {
	// Stream is non-nil when the endpoint answered with an event stream.
	// The caller owns it and must close it.
	Stream io.ReadCloser
	// Response holds the final answer when the endpoint answered with
	// plain JSON instead of a stream.
	Response string
}

// TransportConfig configures a Transport.
type TransportConfig struct {
	StreamURL   string
	FallbackURL string
	// AttemptTimeout bounds one attempt, request plus stream read. Hung
	// connections must fail the attempt rather than block the turn.
	AttemptTimeout time.Duration
	// SessionID, when set, is sent on every request for identity routing.
	SessionID  string
	HTTPClient *http.Client
}

// Transport issues chat requests against the streaming and fallback
// endpoints. It performs no retries; that is the pipeline's job.
type Transport struct {
	client         *http.Client
	streamURL      string
	fallbackURL    string
	attemptTimeout time.Duration
	sessionID      string
}

// sessionHeaderName matches the server's per-tab session header.
const sessionHeaderName = "X-Agenthub-Session-ID"

// NewTransport creates a transport from the given configuration.
func NewTransport(cfg TransportConfig) *Transport {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Transport{
		client:         client,
		streamURL:      cfg.StreamURL,
		fallbackURL:    cfg.FallbackURL,
		attemptTimeout: timeout,
		sessionID:      cfg.SessionID,
	}
}

// Open posts req to the streaming endpoint. The attempt deadline covers
// the request and the entire stream read; closing the returned stream
// releases it.
func (t *Transport) Open(ctx context.Context, req ChatRequest) (*Attempt, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, t.attemptTimeout)

	resp, err := t.post(attemptCtx, t.streamURL, req)
	if err != nil {
		cancel()
		return nil, err
	}

	if isEventStream(resp.Header.Get("Content-Type")) {
		return &Attempt{Stream: &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}}, nil
	}

	defer cancel()
	reply, err := decodeReply(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return &Attempt{Response: reply.Response}, nil
}

// Fallback posts req to the non-streaming endpoint and returns the
// response field as the complete final answer.
func (t *Transport) Fallback(ctx context.Context, req ChatRequest) (string, error) {
	fallbackCtx, cancel := context.WithTimeout(ctx, t.attemptTimeout)
	defer cancel()

	resp, err := t.post(fallbackCtx, t.fallbackURL, req)
	if err != nil {
		return "", err
	}
	reply, err := decodeReply(resp.Body)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	if reply.Error != "" {
		return "", &TransportError{Status: resp.StatusCode, Body: reply.Error}
	}
	return reply.Response, nil
}

// post issues the request and normalizes failures to TransportError.
// On success the caller owns resp.Body.
func (t *Transport) post(ctx context.Context, url string, req ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.sessionID != "" {
		httpReq.Header.Set(sessionHeaderName, t.sessionID)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		_ = resp.Body.Close()
		return nil, &TransportError{Status: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
	}

	return resp, nil
}

func decodeReply(body io.ReadCloser) (chatReply, error) {
	defer func() { _ = body.Close() }()
	var reply chatReply
	if err := json.NewDecoder(body).Decode(&reply); err != nil {
		return chatReply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

func isEventStream(contentType string) bool {
	return strings.Contains(contentType, "text/event-stream")
}

// cancelReadCloser ties the attempt's context cancellation to the
// stream body so abandoning the stream releases the connection.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	c.cancel()
	return c.ReadCloser.Close()
}
