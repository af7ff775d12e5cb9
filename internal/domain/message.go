// Package domain contains core domain types for the agent hub.
package domain

import (
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser marks a message submitted by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the assistant.
	RoleAssistant Role = "assistant"
	// RoleSystem marks an initial seed message; the pipeline never produces one.
	RoleSystem Role = "system"
)

// Message is one exchanged unit in a conversation.
type Message struct {
	Role      Role     `json:"role"`
	Text      string   `json:"text"`
	ToolsUsed []string `json:"tools_used,omitempty"`
	Final     bool     `json:"final"`
}

// Conversation is a persisted transcript owned by one user/session pair.
type Conversation struct {
	UserID    string
	SessionID string
	AgentID   string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}
