package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcwrites/agenthub/internal/domain"
)

// chatServer is a fake upstream with scriptable stream and fallback
// endpoints.
type chatServer struct {
	streamHandler http.HandlerFunc
	fallback      http.HandlerFunc
	fallbackHits  atomic.Int64
	srv           *httptest.Server
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	cs := &chatServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, cs.streamHandler, "unexpected stream request")
		cs.streamHandler(w, r)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		cs.fallbackHits.Add(1)
		require.NotNil(t, cs.fallback, "unexpected fallback request")
		cs.fallback(w, r)
	})
	cs.srv = httptest.NewServer(mux)
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *chatServer) pipeline(timeout time.Duration) (*Pipeline, *Conversation) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := NewTransport(TransportConfig{
		StreamURL:      cs.srv.URL + "/api/chat/stream",
		FallbackURL:    cs.srv.URL + "/api/chat",
		AttemptTimeout: timeout,
	})
	conv := NewConversation()
	return NewPipeline(transport, conv, Hooks{}), conv
}

func writeSSEBody(t *testing.T, w http.ResponseWriter, lines ...string) {
	t.Helper()
	w.Header().Set("Content-Type", "text/event-stream")
	for _, line := range lines {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}
}

func assertSingleFinalAssistant(t *testing.T, conv *Conversation, wantText string) {
	t.Helper()
	messages := conv.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	require.Equal(t, domain.RoleAssistant, messages[1].Role)
	assert.True(t, messages[1].Final)
	assert.Equal(t, wantText, messages[1].Text)
}

func TestPipelineAssemblesDeltas(t *testing.T) {
	cs := newChatServer(t)
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		writeSSEBody(t, w,
			"data: {\"type\":\"text_delta\",\"content\":\"Hi\"}\n\n",
			"data: {\"type\":\"text_delta\",\"content\":\" there\"}\n\n",
			"data: {\"type\":\"done\"}\n\n",
		)
	}

	p, conv := cs.pipeline(0)
	text, err := p.Send(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
	assertSingleFinalAssistant(t, conv, "Hi there")
	assert.Zero(t, cs.fallbackHits.Load())
}

func TestPipelinePublishesIncrementalUpdates(t *testing.T) {
	cs := newChatServer(t)
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		writeSSEBody(t, w,
			"data: {\"type\":\"text_delta\",\"content\":\"a\"}\n\n",
			"data: {\"type\":\"text_delta\",\"content\":\"b\"}\n\n",
			"data: {\"type\":\"done\"}\n\n",
		)
	}

	p, conv := cs.pipeline(0)

	var seen []string
	conv.Observe(func(messages []domain.Message) {
		last := messages[len(messages)-1]
		if last.Role == domain.RoleAssistant && last.Text != "" {
			seen = append(seen, last.Text)
		}
	})

	_, err := p.Send(context.Background(), "hello", "")
	require.NoError(t, err)
	// Growing prefixes in order: "a", "ab", then the final write.
	assert.Equal(t, []string{"a", "ab", "ab"}, seen)
}

func TestPipelineFinalizesWhenStreamEndsWithoutTerminal(t *testing.T) {
	cs := newChatServer(t)
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		writeSSEBody(t, w,
			"data: {\"type\":\"text_delta\",\"content\":\"truncated\"}\n\n",
		)
	}

	p, conv := cs.pipeline(0)
	text, err := p.Send(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "truncated", text)
	assertSingleFinalAssistant(t, conv, "truncated")
	assert.Zero(t, cs.fallbackHits.Load(), "implicit finalize must not trigger fallback")
}

func TestPipelineSkipsMalformedFrames(t *testing.T) {
	cs := newChatServer(t)
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		writeSSEBody(t, w,
			"data: {\"type\":\"text_delta\",\"content\":\"Hi\"}\n\n",
			"data: {definitely not json\n\n",
			"data: {\"type\":\"text_delta\",\"content\":\" there\"}\n\n",
			"data: {\"type\":\"done\"}\n\n",
		)
	}

	p, _ := cs.pipeline(0)
	text, err := p.Send(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text, "malformed frames must be dropped transparently")
}

func TestPipelineProviderErrorDoesNotFallBack(t *testing.T) {
	cs := newChatServer(t)
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		writeSSEBody(t, w,
			"data: {\"type\":\"text_delta\",\"content\":\"partial\"}\n\n",
			"data: {\"type\":\"error\",\"error\":\"rate limited\"}\n\n",
		)
	}

	p, conv := cs.pipeline(0)
	text, err := p.Send(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "rate limited", text)
	assertSingleFinalAssistant(t, conv, "rate limited")
	assert.Zero(t, cs.fallbackHits.Load(), "provider errors are terminal, not transport failures")
}

func TestPipelineAcceptsPlainJSONFromStreamEndpoint(t *testing.T) {
	cs := newChatServer(t)
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "buffered answer"})
	}

	p, conv := cs.pipeline(0)
	text, err := p.Send(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "buffered answer", text)
	assertSingleFinalAssistant(t, conv, "buffered answer")
	assert.Zero(t, cs.fallbackHits.Load())
}

func TestPipelineFallsBackOnTransportFailure(t *testing.T) {
	cs := newChatServer(t)
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}
	cs.fallback = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "fallback ok"})
	}

	var fallbackReason error
	transport := NewTransport(TransportConfig{
		StreamURL:      cs.srv.URL + "/api/chat/stream",
		FallbackURL:    cs.srv.URL + "/api/chat",
		AttemptTimeout: 5 * time.Second,
	})
	conv := NewConversation()
	p := NewPipeline(transport, conv, Hooks{
		OnFallback: func(reason error) { fallbackReason = reason },
	})

	text, err := p.Send(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "fallback ok", text)
	assertSingleFinalAssistant(t, conv, "fallback ok")
	assert.Equal(t, int64(1), cs.fallbackHits.Load())
	require.Error(t, fallbackReason)

	var terr *TransportError
	require.ErrorAs(t, fallbackReason, &terr)
	assert.Equal(t, http.StatusInternalServerError, terr.Status)
}

func TestPipelineDiscardsPartialTextOnMidStreamFailure(t *testing.T) {
	cs := newChatServer(t)
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		writeSSEBody(t, w, "data: {\"type\":\"text_delta\",\"content\":\"doomed partial\"}\n\n")
		// Panic aborts the response mid-body, which surfaces to the
		// client as a read failure on the open stream.
		panic(http.ErrAbortHandler)
	}
	cs.fallback = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "clean answer"})
	}

	p, conv := cs.pipeline(0)
	text, err := p.Send(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "clean answer", text)
	assertSingleFinalAssistant(t, conv, "clean answer")
	assert.NotContains(t, conv.Messages()[1].Text, "doomed partial")
}

func TestPipelineApologyWhenBothPathsFail(t *testing.T) {
	cs := newChatServer(t)
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"stream down"}`, http.StatusBadGateway)
	}
	cs.fallback = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"fallback down"}`, http.StatusBadGateway)
	}

	p, conv := cs.pipeline(0)
	text, err := p.Send(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, ApologyText, text)
	assertSingleFinalAssistant(t, conv, ApologyText)
}

func TestPipelineNoReplyWhenStreamIsEmpty(t *testing.T) {
	cs := newChatServer(t)
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		writeSSEBody(t, w, "data: {\"type\":\"done\"}\n\n")
	}

	p, conv := cs.pipeline(0)
	text, err := p.Send(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I couldn't generate a response.", text)
	assertSingleFinalAssistant(t, conv, text)
}

func TestPipelineCancellationAbandonsTurn(t *testing.T) {
	release := make(chan struct{})
	cs := newChatServer(t)
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		writeSSEBody(t, w, "data: {\"type\":\"text_delta\",\"content\":\"never finished\"}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}
	t.Cleanup(func() { close(release) })

	p, conv := cs.pipeline(0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := p.Send(ctx, "hello", "")
	require.ErrorIs(t, err, context.Canceled)

	messages := conv.Messages()
	require.Len(t, messages, 2)
	assert.False(t, messages[1].Final, "canceled turns must not finalize")
	assert.Zero(t, cs.fallbackHits.Load(), "canceled turns must not fall back")
}

func TestPipelineAttemptTimeoutFallsBack(t *testing.T) {
	release := make(chan struct{})
	cs := newChatServer(t)
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		writeSSEBody(t, w, "data: {\"type\":\"text_delta\",\"content\":\"hung\"}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}
	t.Cleanup(func() { close(release) })
	cs.fallback = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "rescued"})
	}

	p, conv := cs.pipeline(100 * time.Millisecond)
	text, err := p.Send(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "rescued", text)
	assertSingleFinalAssistant(t, conv, "rescued")
}

func TestPipelineSequentialTurns(t *testing.T) {
	cs := newChatServer(t)
	turn := 0
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		turn++
		if turn == 1 {
			writeSSEBody(t, w,
				"data: {\"type\":\"text_delta\",\"content\":\"first\"}\n\n",
				"data: {\"type\":\"done\"}\n\n",
			)
			return
		}
		writeSSEBody(t, w,
			"data: {\"type\":\"text_delta\",\"content\":\"second\"}\n\n",
			"data: {\"type\":\"done\"}\n\n",
		)
	}

	p, conv := cs.pipeline(0)
	first, err := p.Send(context.Background(), "one", "")
	require.NoError(t, err)
	second, err := p.Send(context.Background(), "two", "")
	require.NoError(t, err)

	assert.Equal(t, "first", first)
	assert.Equal(t, "second", second)

	messages := conv.Messages()
	require.Len(t, messages, 4)
	assert.Equal(t, "first", messages[1].Text)
	assert.Equal(t, "second", messages[3].Text)
	for _, m := range messages {
		assert.True(t, m.Final)
	}
}

func TestPipelineFallbackTimeoutIsIndependent(t *testing.T) {
	// The streaming attempt burns its full timeout; the fallback gets a
	// fresh one rather than inheriting an exhausted deadline.
	release := make(chan struct{})
	cs := newChatServer(t)
	cs.streamHandler = func(w http.ResponseWriter, r *http.Request) {
		<-release
	}
	t.Cleanup(func() { close(release) })
	cs.fallback = func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(60 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "slow but fine"})
	}

	p, _ := cs.pipeline(100 * time.Millisecond)
	text, err := p.Send(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "slow but fine", text)
}
