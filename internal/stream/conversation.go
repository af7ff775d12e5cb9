package stream

import (
	"errors"
	"sync"

	"github.com/kcwrites/agenthub/internal/domain"
)

var (
	// ErrBadIndex reports an assistant index that names no message.
	ErrBadIndex = errors.New("conversation: message index out of range")
	// ErrFinalized reports a write to an already-finalized message.
	ErrFinalized = errors.New("conversation: message already finalized")
)

// Conversation owns the ordered log of exchanged messages. Message order
// is strictly the order of AppendUser/BeginAssistantTurn calls; the
// pipeline is the only writer for the turn it owns.
type Conversation struct {
	mu       sync.Mutex
	messages []domain.Message

	// onChange receives a snapshot after every mutation so a UI can
	// re-render live "typing" updates. May be nil.
	onChange func([]domain.Message)
}

// NewConversation creates a conversation, optionally seeded with initial
// messages (a system prompt or an assistant welcome line).
func NewConversation(seed ...domain.Message) *Conversation {
	c := &Conversation{}
	c.messages = append(c.messages, seed...)
	return c
}

// Observe registers the change observer. Pass nil to detach.
func (c *Conversation) Observe(fn func([]domain.Message)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// AppendUser appends a final user message and returns its index.
func (c *Conversation) AppendUser(text string) int {
	c.mu.Lock()
	c.messages = append(c.messages, domain.Message{Role: domain.RoleUser, Text: text, Final: true})
	idx := len(c.messages) - 1
	fn, snapshot := c.onChange, c.snapshotLocked()
	c.mu.Unlock()

	notify(fn, snapshot)
	return idx
}

// BeginAssistantTurn appends an empty assistant message under
// construction and returns its index. The index is fixed for the life of
// the turn so a later session can never race onto another message.
func (c *Conversation) BeginAssistantTurn() int {
	c.mu.Lock()
	c.messages = append(c.messages, domain.Message{Role: domain.RoleAssistant})
	idx := len(c.messages) - 1
	fn, snapshot := c.onChange, c.snapshotLocked()
	c.mu.Unlock()

	notify(fn, snapshot)
	return idx
}

// UpdateAssistant overwrites the text of the assistant message at index.
// Used for streaming updates; rejected once the message is final.
func (c *Conversation) UpdateAssistant(index int, text string) error {
	return c.write(index, text, false, nil)
}

// FinalizeAssistant sets the final text of the assistant message at
// index and marks it immutable.
func (c *Conversation) FinalizeAssistant(index int, text string) error {
	return c.write(index, text, true, nil)
}

// FinalizeAssistantWithTools finalizes the message and records the
// capability tags the provider reported for the turn.
func (c *Conversation) FinalizeAssistantWithTools(index int, text string, tools []string) error {
	return c.write(index, text, true, tools)
}

func (c *Conversation) write(index int, text string, final bool, tools []string) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.messages) {
		c.mu.Unlock()
		return ErrBadIndex
	}
	if c.messages[index].Final {
		c.mu.Unlock()
		return ErrFinalized
	}
	c.messages[index].Text = text
	c.messages[index].Final = final
	if len(tools) > 0 {
		c.messages[index].ToolsUsed = append(c.messages[index].ToolsUsed[:0], tools...)
	}
	fn, snapshot := c.onChange, c.snapshotLocked()
	c.mu.Unlock()

	notify(fn, snapshot)
	return nil
}

// Messages returns a copy of the current log.
func (c *Conversation) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Len returns the number of messages in the log.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *Conversation) snapshotLocked() []domain.Message {
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func notify(fn func([]domain.Message), snapshot []domain.Message) {
	if fn != nil {
		fn(snapshot)
	}
}
