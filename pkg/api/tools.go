package api

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Tool is a capability the reasoning engine can invoke by name.
type Tool interface {
	// Name is the identifier the engine calls the tool by.
	Name() string
	// Description is shown to the engine.
	Description() string
	// Schema is the JSON schema object the arguments must satisfy.
	Schema() map[string]any
	// Execute runs the tool on schema-valid arguments. Failures are
	// reported through the result, never through a panic or an error.
	Execute(ctx context.Context, args jsoniter.RawMessage) ToolResult
}

// ToolResult is either a JSON payload or a structured failure.
type ToolResult struct {
	Payload any
	Failure *ToolFailure
}

// ToolFailure is the wire shape of a failed tool call.
type ToolFailure struct {
	Error     bool   `json:"error"`
	Message   string `json:"message"`
	Operation string `json:"operation,omitempty"`
}

// Success wraps payload.
func Success(payload any) ToolResult {
	return ToolResult{Payload: payload}
}

// Failure builds a failed result for operation.
func Failure(operation, message string) ToolResult {
	return ToolResult{Failure: &ToolFailure{Error: true, Message: message, Operation: operation}}
}

// Failuref is Failure with a formatted message.
func Failuref(operation, format string, args ...any) ToolResult {
	return Failure(operation, fmt.Sprintf(format, args...))
}

// IsError reports whether the result is a failure.
func (r ToolResult) IsError() bool {
	return r.Failure != nil
}

// MarshalJSON encodes the failure object or the payload.
func (r ToolResult) MarshalJSON() ([]byte, error) {
	if r.Failure != nil {
		return json.Marshal(r.Failure)
	}
	if r.Payload == nil {
		return []byte("null"), nil
	}
	return json.Marshal(r.Payload)
}

// String encodes the result for the conversation history.
func (r ToolResult) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf(`{"error":true,"message":%q}`, "unencodable tool result: "+err.Error())
	}
	return string(b)
}
