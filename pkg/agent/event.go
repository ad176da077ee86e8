// Package agent runs conversations against a reasoning engine and the tool
// registry.
package agent

import (
	"plutus/pkg/api"
	"plutus/pkg/llm"
)

// EventKind tags a turn event.
type EventKind string

const (
	EventTextChunk         EventKind = "text_chunk"
	EventToolCallRequested EventKind = "tool_call_requested"
	EventToolResult        EventKind = "tool_result"
	EventEndOfTurn         EventKind = "end_of_turn"
	EventFailed            EventKind = "failed"
)

// Event is one step of a turn. Which fields are set depends on Kind:
// Text for text_chunk, Call for tool events, Result for tool_result and Err
// for failed.
type Event struct {
	Kind   EventKind
	Text   string
	Call   llm.ToolCall
	Result api.ToolResult
	Err    error
}

// Terminal reports whether the event ends the turn.
func (e Event) Terminal() bool {
	return e.Kind == EventEndOfTurn || e.Kind == EventFailed
}
