package openailm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"plutus/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client streams from an OpenAI-compatible Responses endpoint
// (OpenAI itself, OpenRouter).
type Client struct {
	client       *openai.Client
	provider     string
	model        string
	debugEnabled bool
	bufferSize   int
	options      map[string]any
}

// NewClient creates a client for model. An empty baseURL targets OpenAI.
func NewClient(provider, apiKey, model, baseURL string, options map[string]any) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &Client{
		client:     &client,
		provider:   provider,
		model:      model,
		bufferSize: 100,
		options:    options,
	}
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	for _, s := range []string{
		"connection refused", "connection reset", "timeout",
		"429", "500 internal", "502 bad gateway", "503 service unavailable", "overloaded",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) (<-chan llm.StreamChunk, error) {
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: convertMessages(messages),
		},
	}
	if converted := convertTools(tools); len(converted) > 0 {
		params.Tools = converted
	}

	opts := c.requestOptions(&params)
	chunkCh := make(chan llm.StreamChunk, c.bufferSize)

	go func() {
		defer close(chunkCh)

		stream := c.client.Responses.NewStreaming(ctx, params, opts...)
		defer stream.Close()

		debugger := llm.NewStreamDebugger(ctx, c.provider, c.debugEnabled)
		defer debugger.Close()

		calls := newCallCollector()
		var usage *llm.LLMUsage
		reason := llm.StopReasonStop
		failed := false

		for stream.Next() {
			event := stream.Current()
			if raw := event.RawJSON(); raw != "" {
				debugger.WriteString(raw)
			}

			switch variant := event.AsAny().(type) {
			case responses.ResponseTextDeltaEvent:
				chunkCh <- llm.NewTextChunk(variant.Delta)

			case responses.ResponseReasoningTextDeltaEvent:
				chunkCh <- llm.NewThinkingChunk(variant.Delta)

			case responses.ResponseReasoningSummaryTextDeltaEvent:
				chunkCh <- llm.NewThinkingChunk(variant.Delta)

			case responses.ResponseOutputItemAddedEvent:
				if variant.Item.Type == "function_call" {
					calls.open(variant.Item.ID, variant.Item.CallID, variant.Item.Name)
				}

			case responses.ResponseFunctionCallArgumentsDeltaEvent:
				calls.appendArgs(variant.ItemID, variant.Delta)

			case responses.ResponseFunctionCallArgumentsDoneEvent:
				calls.finish(variant.ItemID, "", variant.Arguments)

			case responses.ResponseOutputItemDoneEvent:
				if variant.Item.Type == "function_call" {
					calls.open(variant.Item.ID, variant.Item.CallID, variant.Item.Name)
				}

			case responses.ResponseCompletedEvent:
				u := variant.Response.Usage
				if u.TotalTokens > 0 {
					usage = &llm.LLMUsage{
						PromptTokens:     int(u.InputTokens),
						CompletionTokens: int(u.OutputTokens),
						TotalTokens:      int(u.TotalTokens),
						ThoughtsTokens:   int(u.OutputTokensDetails.ReasoningTokens),
						CachedTokens:     int(u.InputTokensDetails.CachedTokens),
					}
				}

			case responses.ResponseIncompleteEvent:
				reason = llm.StopReasonLength

			case responses.ResponseFailedEvent:
				failed = true
				msg := variant.Response.Error.Message
				if msg == "" {
					msg = "response failed"
				}
				chunkCh <- llm.NewErrorChunk(fmt.Sprintf("API Error: %s", msg), nil, true)

			case responses.ResponseErrorEvent:
				failed = true
				chunkCh <- llm.NewErrorChunk(fmt.Sprintf("API Error: %s", variant.Message), nil, true)
			}
			if failed {
				return
			}
		}

		if err := stream.Err(); err != nil {
			chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream error: %v", err), err, true)
			return
		}

		if found := calls.list(); len(found) > 0 {
			reason = llm.StopReasonToolCall
			chunkCh <- llm.StreamChunk{ToolCalls: found}
		}
		if usage != nil {
			usage.StopReason = reason
			llm.LogUsage(c.model, usage)
		}
		chunkCh <- llm.NewFinalChunk(reason, usage)
	}()

	return chunkCh, nil
}

// requestOptions maps the provider-neutral options onto the request.
func (c *Client) requestOptions(params *responses.ResponseNewParams) []option.RequestOption {
	var opts []option.RequestOption

	if effort, ok := c.options["thinking_effort"].(string); ok && effort != "" && effort != "off" {
		e := shared.ReasoningEffortMedium
		switch effort {
		case "low":
			e = shared.ReasoningEffortLow
		case "high":
			e = shared.ReasoningEffortHigh
		}
		params.Reasoning = shared.ReasoningParam{Effort: e}
	}
	if t, ok := c.options["temperature"].(float64); ok {
		params.Temperature = openai.Float(t)
	}
	if p, ok := c.options["top_p"].(float64); ok {
		params.TopP = openai.Float(p)
	}
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		params.MaxOutputTokens = openai.Int(int64(maxTok))
	}
	if headers, ok := c.options["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				opts = append(opts, option.WithHeader(k, s))
			}
		}
	}
	return opts
}

// callCollector assembles streamed function calls in the order the engine
// opened them.
type callCollector struct {
	order []string
	byID  map[string]*llm.ToolCall
}

func newCallCollector() *callCollector {
	return &callCollector{byID: make(map[string]*llm.ToolCall)}
}

func (cc *callCollector) get(itemID string) *llm.ToolCall {
	tc, ok := cc.byID[itemID]
	if !ok {
		tc = &llm.ToolCall{ID: itemID}
		cc.byID[itemID] = tc
		cc.order = append(cc.order, itemID)
	}
	return tc
}

func (cc *callCollector) open(itemID, callID, name string) {
	tc := cc.get(itemID)
	if callID != "" {
		tc.ID = callID
	}
	if name != "" {
		tc.Name = name
		tc.Function.Name = name
	}
}

func (cc *callCollector) appendArgs(itemID, delta string) {
	tc := cc.get(itemID)
	tc.Function.Arguments += delta
}

// finish replaces the accumulated deltas with the complete arguments.
func (cc *callCollector) finish(itemID, name, args string) {
	tc := cc.get(itemID)
	if args != "" {
		tc.Function.Arguments = args
	}
	if name != "" {
		tc.Name = name
		tc.Function.Name = name
	}
}

func (cc *callCollector) list() []llm.ToolCall {
	out := make([]llm.ToolCall, 0, len(cc.order))
	for _, id := range cc.order {
		tc := cc.byID[id]
		if tc.Name == "" {
			slog.Warn("Dropping unnamed function call", "item", id)
			continue
		}
		out = append(out, *tc)
	}
	return out
}

func convertMessages(messages []llm.Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.GetTextContent(),
				responses.EasyInputMessageRoleSystem,
			))
		case llm.RoleUser:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.GetTextContent(),
				responses.EasyInputMessageRoleUser,
			))
		case llm.RoleAssistant:
			if text := m.GetTextContent(); text != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(
					text,
					responses.EasyInputMessageRoleAssistant,
				))
			}
			for _, tc := range m.ToolCalls {
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(
					normalizeArgs(tc.Function.Arguments),
					tc.ID,
					tc.Name,
				))
			}
		case llm.RoleTool:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(
				m.ToolCallID,
				m.GetTextContent(),
			))
		}
	}
	return items
}

func convertTools(tools []llm.ToolSpec) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
				Strict:      openai.Bool(false),
			},
		})
	}
	return out
}

// normalizeArgs replays invalid argument text as an empty object so the
// endpoint accepts the history.
func normalizeArgs(args string) string {
	if strings.TrimSpace(args) == "" || !json.Valid([]byte(args)) {
		return "{}"
	}
	return args
}
