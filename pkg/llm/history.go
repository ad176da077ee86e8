package llm

import (
	"sync"
)

// ChatHistory is the append-only turn list of one conversation.
type ChatHistory struct {
	messages []Message
	mu       sync.RWMutex
}

// NewChatHistory creates an empty history.
func NewChatHistory() *ChatHistory {
	return &ChatHistory{
		messages: make([]Message, 0),
	}
}

// Add appends msg.
func (h *ChatHistory) Add(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
}

// EnsureSystemMessage puts prompt at the head of the history, replacing an
// existing system message.
func (h *ChatHistory) EnsureSystemMessage(prompt string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sys := NewSystemMessage(prompt)
	if len(h.messages) > 0 && h.messages[0].Role == RoleSystem {
		h.messages[0] = sys
		return
	}
	h.messages = append([]Message{sys}, h.messages...)
}

// GetMessages returns a copy of the history.
func (h *ChatHistory) GetMessages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cp := make([]Message, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// Len returns the number of stored messages.
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}
