package llm

// StopReason constants define normalized reasons for generation termination.
// Every provider maps its native stop reason onto these values.
const (
	StopReasonStop     = "stop"      // Normal completion
	StopReasonLength   = "length"    // Output truncated due to token limit
	StopReasonToolCall = "tool_call" // Model paused to call tools
)

// ContentBlock types used throughout the message pipeline.
const (
	BlockTypeText     = "text"     // Plain text content
	BlockTypeThinking = "thinking" // Internal reasoning/chain-of-thought
	BlockTypeError    = "error"    // Error message displayed to user
)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type contextKey string

// DebugDirContextKey carries the per-connection directory name used by the
// stream debugger.
const DebugDirContextKey contextKey = "llm_debug_dir"
