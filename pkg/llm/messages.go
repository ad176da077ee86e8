package llm

import (
	"strings"
	"time"
)

//----------------------------------------------------------------
// Message - provider-neutral conversation turn
//----------------------------------------------------------------

// Message is one turn of a conversation.
type Message struct {
	ID        string         `json:"id,omitempty"`
	Role      string         `json:"role"`    // "system", "user", "assistant", "tool"
	Content   []ContentBlock `json:"content"` // ordered content blocks
	Timestamp int64          `json:"timestamp,omitempty"`

	// ToolCalls holds the tool invocations requested by the model (assistant only).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool result to the call it answers (tool only).
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName is the name of the tool that produced this result (tool only).
	ToolName string `json:"tool_name,omitempty"`

	Usage *LLMUsage `json:"usage,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Function FunctionCall `json:"function"`

	// Meta carries provider-specific data needed to replay the call
	// (e.g. Gemini thought signatures). Never serialized.
	Meta map[string]any `json:"-"`
}

// FunctionCall holds the tool name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

//----------------------------------------------------------------
// ContentBlock
//----------------------------------------------------------------

// ContentBlock is one typed piece of message content.
type ContentBlock struct {
	Type string `json:"type"` // "text", "thinking", "error"
	Text string `json:"text,omitempty"`
}

//----------------------------------------------------------------
// StreamChunk - incremental engine output
//----------------------------------------------------------------

// StreamChunk is one increment of a streamed model response.
type StreamChunk struct {
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`
	ToolCalls     []ToolCall     `json:"tool_calls,omitempty"`

	IsFinal      bool      `json:"is_final"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Usage        *LLMUsage `json:"usage,omitempty"`

	// Error is a provider-reported, user-visible failure description.
	Error string `json:"error,omitempty"`
	// RawError is the underlying failure when the stream cannot continue.
	RawError error `json:"-"`
}

//----------------------------------------------------------------
// Helpers - Message
//----------------------------------------------------------------

// NewTextMessage builds a single-block text message.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:      role,
		Content:   []ContentBlock{NewTextBlock(text)},
		Timestamp: time.Now().Unix(),
	}
}

func NewSystemMessage(text string) Message {
	return NewTextMessage(RoleSystem, text)
}

func NewUserMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

// NewToolMessage builds the history entry answering call.
func NewToolMessage(call ToolCall, result string) Message {
	m := NewTextMessage(RoleTool, result)
	m.ToolCallID = call.ID
	m.ToolName = call.Name
	return m
}

// AddContentBlock appends block to the message.
func (m *Message) AddContentBlock(block ContentBlock) {
	m.Content = append(m.Content, block)
}

// GetTextContent concatenates the text blocks (thinking excluded).
func (m *Message) GetTextContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// GetThinkingContent concatenates the thinking blocks.
func (m *Message) GetThinkingContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockTypeThinking {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

//----------------------------------------------------------------
// Helpers - ContentBlock / StreamChunk
//----------------------------------------------------------------

func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

func NewThinkingBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeThinking, Text: text}
}

func NewErrorBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeError, Text: text}
}

func NewTextChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{NewTextBlock(text)}}
}

func NewThinkingChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{NewThinkingBlock(text)}}
}

// NewFinalChunk marks the end of a stream.
func NewFinalChunk(reason string, usage *LLMUsage) StreamChunk {
	return StreamChunk{
		IsFinal:      true,
		FinishReason: reason,
		Usage:        usage,
	}
}

// NewErrorChunk reports a failure. When fatal is true the stream ends with
// err as its RawError.
func NewErrorChunk(msg string, err error, fatal bool) StreamChunk {
	c := StreamChunk{Error: msg}
	if fatal {
		c.RawError = err
		if c.RawError == nil {
			c.RawError = &StreamError{Message: msg}
		}
	}
	return c
}

// StreamError is the error carried by fatal chunks that had no underlying cause.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return e.Message
}
