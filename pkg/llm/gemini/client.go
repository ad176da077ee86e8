package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"plutus/pkg/llm"
	"plutus/pkg/utils"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const metaFunctionCall = "gemini_function_call"

// GeminiClient streams from the Gemini API.
type GeminiClient struct {
	client       *genai.Client
	model        string
	useThought   bool
	debugEnabled bool
	bufferSize   int
}

// NewGeminiClient creates a client bound to one model and API key.
func NewGeminiClient(ctx context.Context, apiKey, model string, useThought bool) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClient{
		client:     client,
		model:      model,
		useThought: useThought,
		bufferSize: 100,
	}, nil
}

func (g *GeminiClient) Provider() string {
	return "gemini"
}

func (g *GeminiClient) SetDebug(enabled bool) {
	g.debugEnabled = enabled
}

// StreamChat blocks until the first response arrives so that setup errors
// surface as an error return (and reach the fallback chain).
func (g *GeminiClient) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) (<-chan llm.StreamChunk, error) {
	contents, systemInstruction := convertMessages(messages)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Tools:             convertTools(tools),
	}
	if g.useThought {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}

	chunkCh := make(chan llm.StreamChunk, g.bufferSize)
	startCh := make(chan error, 1)

	slog.Debug("Gemini streaming", "model", g.model, "messages", len(contents))

	go func() {
		defer close(chunkCh)

		debugger := llm.NewStreamDebugger(ctx, "gemini", g.debugEnabled)
		defer debugger.Close()

		started := false
		sawToolCall := false
		reason := llm.StopReasonStop
		var usage *llm.LLMUsage

		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if resp != nil {
				debugger.WriteJSON(resp)
			}
			if err != nil && resp == nil {
				if !started {
					startCh <- err
					return
				}
				chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true)
				return
			}
			if !started {
				started = true
				startCh <- nil
			}

			if u := resp.UsageMetadata; u != nil {
				usage = &llm.LLMUsage{
					PromptTokens:     int(u.PromptTokenCount),
					CompletionTokens: int(u.CandidatesTokenCount),
					TotalTokens:      int(u.TotalTokenCount),
					ThoughtsTokens:   int(u.ThoughtsTokenCount),
					CachedTokens:     int(u.CachedContentTokenCount),
				}
			}

			for _, candidate := range resp.Candidates {
				if candidate.FinishReason == genai.FinishReasonMaxTokens {
					reason = llm.StopReasonLength
				}
				if candidate.Content == nil {
					continue
				}

				chunk := convertParts(candidate.Content.Parts)
				if len(chunk.ToolCalls) > 0 {
					sawToolCall = true
				}
				if len(chunk.ContentBlocks) > 0 || len(chunk.ToolCalls) > 0 {
					chunkCh <- chunk
				}
			}
		}

		if !started {
			startCh <- nil
		}
		if sawToolCall {
			reason = llm.StopReasonToolCall
		}
		if usage != nil {
			usage.StopReason = reason
			llm.LogUsage(g.model, usage)
		}
		chunkCh <- llm.NewFinalChunk(reason, usage)
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

// convertParts maps the parts of one candidate onto a chunk.
func convertParts(parts []*genai.Part) llm.StreamChunk {
	var chunk llm.StreamChunk
	for _, part := range parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			if part.Thought {
				chunk.ContentBlocks = append(chunk.ContentBlocks, llm.NewThinkingBlock(part.Text))
			} else {
				chunk.ContentBlocks = append(chunk.ContentBlocks, llm.NewTextBlock(part.Text))
			}
		}
		if fc := part.FunctionCall; fc != nil {
			args, _ := json.Marshal(fc.Args)
			if fc.Args == nil {
				args = []byte("{}")
			}
			id := fc.ID
			if id == "" {
				id = "call_" + utils.GenerateID()
			}
			chunk.ToolCalls = append(chunk.ToolCalls, llm.ToolCall{
				ID:   id,
				Name: fc.Name,
				Function: llm.FunctionCall{
					Name:      fc.Name,
					Arguments: string(args),
				},
				// keeps the thought signature for replay
				Meta: map[string]any{metaFunctionCall: part},
			})
		}
	}
	return chunk
}

func convertTools(tools []llm.ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	fds := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		fds = append(fds, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}
}

// convertMessages maps the history onto Gemini contents. The system message
// becomes the system instruction; tool results are user-role function responses.
func convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if text := msg.GetTextContent(); text != "" {
				systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: text}}}
			}

		case llm.RoleTool:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.ToolName,
						Response: responseMap(msg.GetTextContent()),
					},
				}},
			})

		default:
			role := genai.RoleUser
			if msg.Role == llm.RoleAssistant {
				role = genai.RoleModel
			}

			var parts []*genai.Part
			for _, block := range msg.Content {
				if block.Text == "" {
					continue
				}
				switch block.Type {
				case llm.BlockTypeText:
					parts = append(parts, &genai.Part{Text: block.Text})
				case llm.BlockTypeThinking:
					parts = append(parts, &genai.Part{Text: block.Text, Thought: true})
				}
			}
			for _, tc := range msg.ToolCalls {
				if orig, ok := tc.Meta[metaFunctionCall].(*genai.Part); ok {
					parts = append(parts, orig)
					continue
				}
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
				})
			}

			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: role, Parts: parts})
			}
		}
	}

	return contents, systemInstruction
}

// responseMap wraps a tool result for FunctionResponse, which must be an object.
func responseMap(result string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(result), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"output": result}
}

func (g *GeminiClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"503", "overloaded", "429", "resource exhausted", "500", "internal error"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
