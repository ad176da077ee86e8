package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"plutus/pkg/llm"
	"plutus/pkg/utils"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OllamaClient streams from a local or remote Ollama server.
type OllamaClient struct {
	client       *api.Client
	model        string
	options      map[string]any
	debugEnabled bool
	bufferSize   int
}

func (o *OllamaClient) SetDebug(enabled bool) {
	o.debugEnabled = enabled
}

// NewOllamaClient creates a client for model at baseURL. The HTTP client sets
// no overall timeout; the caller's context bounds each request.
func NewOllamaClient(model, baseURL string, options map[string]any) (*OllamaClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("invalid ollama base URL %q", baseURL)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	httpClient := &http.Client{Transport: &JSONFixingRoundTripper{Proxied: transport}}

	slog.Info("Ollama client initialized", "model", model, "base_url", baseURL)

	return &OllamaClient{
		client:     api.NewClient(u, httpClient),
		model:      model,
		options:    options,
		bufferSize: 100,
	}, nil
}

func (o *OllamaClient) Provider() string {
	return "ollama"
}

func (o *OllamaClient) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) (<-chan llm.StreamChunk, error) {
	ollamaTools, err := convertTools(tools)
	if err != nil {
		return nil, err
	}

	stream := true
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: convertMessages(messages),
		Options:  o.options,
		Tools:    ollamaTools,
		Stream:   &stream,
	}

	chunkCh := make(chan llm.StreamChunk, o.bufferSize)
	startCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)

		debugger := llm.NewStreamDebugger(ctx, "ollama", o.debugEnabled)
		defer debugger.Close()

		started := false
		sawToolCall := false

		err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			debugger.WriteJSON(resp)
			if !started {
				started = true
				startCh <- nil
			}

			if resp.Message.Thinking != "" {
				chunkCh <- llm.NewThinkingChunk(resp.Message.Thinking)
			}
			if resp.Message.Content != "" {
				chunkCh <- llm.NewTextChunk(resp.Message.Content)
			}
			if calls := convertToolCalls(resp.Message.ToolCalls); len(calls) > 0 {
				sawToolCall = true
				chunkCh <- llm.StreamChunk{ToolCalls: calls}
			}

			if resp.Done {
				reason := normalizeStopReason(resp.DoneReason)
				if sawToolCall {
					reason = llm.StopReasonToolCall
				}
				usage := &llm.LLMUsage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
					StopReason:       reason,
				}
				llm.LogUsage(o.model, usage)
				chunkCh <- llm.NewFinalChunk(reason, usage)
			}
			return nil
		})

		switch {
		case err != nil && !started:
			startCh <- err
		case err != nil:
			slog.Error("Stream error", "provider", "ollama", "model", o.model, "error", err)
			chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true)
		case !started:
			startCh <- nil
		}
	}()

	select {
	case err := <-startCh:
		if err != nil {
			return nil, err
		}
		return chunkCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// convertTools maps tool specs onto api.Tool through JSON, which matches the
// wire shape and works across SDK type changes.
func convertTools(tools []llm.ToolSpec) (api.Tools, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	wire := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		wire = append(wire, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal tools: %w", err)
	}
	var out api.Tools
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("convert tools: %w", err)
	}
	return out, nil
}

func convertToolCalls(calls []api.ToolCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llm.ToolCall, 0, len(calls))
	for _, tc := range calls {
		args, err := json.Marshal(tc.Function.Arguments)
		if err != nil || string(args) == "null" {
			args = []byte("{}")
		}
		id := tc.ID
		if id == "" {
			id = "call_" + utils.GenerateID()
		}
		out = append(out, llm.ToolCall{
			ID:   id,
			Name: tc.Function.Name,
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: string(args),
			},
		})
	}
	return out
}

func convertMessages(messages []llm.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))

	for _, m := range messages {
		msg := api.Message{
			Role:     m.Role,
			Content:  m.GetTextContent(),
			Thinking: m.GetThinkingContent(),
		}

		for _, tc := range m.ToolCalls {
			var args api.ToolCallFunctionArguments
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				slog.Warn("Dropping unparsable tool arguments from history", "provider", "ollama", "tool", tc.Name, "error", err)
			}
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				ID: tc.ID,
				Function: api.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: args,
				},
			})
		}

		if m.Role == llm.RoleTool {
			msg.ToolCallID = m.ToolCallID
			msg.ToolName = m.ToolName
		}

		out = append(out, msg)
	}
	return out
}

func normalizeStopReason(reason string) string {
	switch reason {
	case "", "stop":
		return llm.StopReasonStop
	case "length":
		return llm.StopReasonLength
	default:
		return reason
	}
}

func (o *OllamaClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "overloaded")
}
