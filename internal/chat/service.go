// Package chat implements the conversational agent service behind the
// chat endpoints. It selects the agent persona, carries per-session
// history, streams provider output and persists the transcript.
package chat

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/kcwrites/agenthub/internal/agent"
	"github.com/kcwrites/agenthub/internal/domain"
	"github.com/kcwrites/agenthub/internal/llm"
	"github.com/kcwrites/agenthub/internal/store"
)

// maxHistoryMessages bounds how many prior turns are replayed upstream.
const maxHistoryMessages = 20

// Turn identifies one chat exchange.
type Turn struct {
	UserID    string
	SessionID string
	AgentID   string
	Message   string
}

// Service answers chat turns against the provider.
type Service struct {
	client llm.Client
	repo   store.Repository
}

// NewService creates the chat service.
func NewService(client llm.Client, repo store.Repository) *Service {
	return &Service{client: client, repo: repo}
}

// Configured reports whether the underlying provider is usable.
func (s *Service) Configured() bool {
	return s.client.Configured()
}

// Respond answers a turn in one piece and persists the transcript.
func (s *Service) Respond(ctx context.Context, turn Turn) (string, error) {
	req, conv, err := s.prepare(ctx, turn)
	if err != nil {
		return "", err
	}

	answer, err := s.client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	s.persist(ctx, conv, turn, answer)
	return answer, nil
}

// Stream answers a turn as a sequence of answer fragments. The full
// transcript is persisted once the provider stream ends, including the
// partial answer when the stream fails midway.
func (s *Service) Stream(ctx context.Context, turn Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req, conv, err := s.prepare(ctx, turn)
		if err != nil {
			yield("", err)
			return
		}

		var answer strings.Builder
		for fragment, err := range s.client.Stream(ctx, req) {
			if err != nil {
				if answer.Len() > 0 {
					s.persist(ctx, conv, turn, answer.String())
				}
				yield("", err)
				return
			}
			answer.WriteString(fragment)
			if !yield(fragment, nil) {
				return
			}
		}

		s.persist(ctx, conv, turn, answer.String())
	}
}

// History returns the stored transcript for a user/session pair.
func (s *Service) History(ctx context.Context, userID, sessionID string) ([]domain.Message, error) {
	conv, err := s.repo.GetConversation(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return nil, nil
	}
	return conv.Messages, nil
}

// Reset removes the stored transcript for a user/session pair.
func (s *Service) Reset(ctx context.Context, userID, sessionID string) error {
	return s.repo.DeleteConversation(ctx, userID, sessionID)
}

func (s *Service) prepare(ctx context.Context, turn Turn) (llm.Request, *domain.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, turn.UserID, turn.SessionID)
	if err != nil {
		return llm.Request{}, nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		now := time.Now()
		conv = &domain.Conversation{
			UserID:    turn.UserID,
			SessionID: turn.SessionID,
			AgentID:   turn.AgentID,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	history := conv.Messages
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}

	req := llm.Request{
		System:  agent.SystemPrompt(turn.AgentID),
		History: history,
		User:    turn.Message,
	}
	return req, conv, nil
}

func (s *Service) persist(ctx context.Context, conv *domain.Conversation, turn Turn, answer string) {
	now := time.Now()
	conv.AgentID = turn.AgentID
	conv.Messages = append(conv.Messages,
		domain.Message{Role: domain.RoleUser, Text: turn.Message, Final: true},
		domain.Message{Role: domain.RoleAssistant, Text: answer, Final: true},
	)
	conv.UpdatedAt = now

	// Persistence runs on its own context so a client disconnect after the
	// answer completed does not lose the transcript.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.repo.UpsertConversation(saveCtx, conv); err != nil {
		slog.Warn("Failed to persist conversation transcript",
			"error", err,
			"user_id", turn.UserID,
			"session_id", turn.SessionID,
		)
	}
}
