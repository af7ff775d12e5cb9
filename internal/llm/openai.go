package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kcwrites/agenthub/internal/config"
	"github.com/kcwrites/agenthub/internal/domain"
)

// OpenAI implements Client against the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
	cfg    config.OpenAIConfig
	ready  bool
}

// NewOpenAI creates a provider client from configuration. A missing or
// placeholder key produces a client that fails fast with ErrNotConfigured
// instead of sending a bogus credential upstream.
func NewOpenAI(cfg *config.Config) *OpenAI {
	c := &OpenAI{cfg: cfg.OpenAI, ready: cfg.HasProviderKey()}
	if c.ready {
		c.client = openai.NewClient(cfg.OpenAI.APIKey)
	}
	return c
}

// Configured reports whether a usable credential is present.
func (c *OpenAI) Configured() bool {
	return c.ready
}

// Stream yields answer fragments as the provider produces them.
func (c *OpenAI) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !c.ready {
			yield("", ErrNotConfigured)
			return
		}

		stream, err := c.client.CreateChatCompletionStream(ctx, c.completionRequest(req, true))
		if err != nil {
			yield("", fmt.Errorf("open completion stream: %w", err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("completion stream: %w", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

// Complete returns the full answer in one request.
func (c *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if !c.ready {
		return "", ErrNotConfigured
	}

	resp, err := c.client.CreateChatCompletion(ctx, c.completionRequest(req, false))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAI) completionRequest(req Request, streaming bool) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.cfg.ChatModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxOutputTokens
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    providerRole(m.Role),
			Content: m.Text,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      streaming,
	}
}

func providerRole(r domain.Role) string {
	switch r {
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

var _ Client = (*OpenAI)(nil)
