package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"plutus/pkg/api"
	"plutus/pkg/config"
	"plutus/pkg/llm"
	"plutus/pkg/utils"
)

var (
	// ErrTurnInFlight is returned by Submit while a previous turn is still running.
	ErrTurnInFlight = errors.New("agent: turn already in flight")
	// ErrTooManyRounds ends a turn whose engine kept requesting tools.
	ErrTooManyRounds = errors.New("agent: tool round limit reached")
	// ErrEngineTimeout ends a turn whose engine round-trip exceeded llm_timeout_ms.
	ErrEngineTimeout = errors.New("agent: engine round-trip timed out")
	// ErrEmptyResponse ends a turn whose engine kept answering with nothing.
	ErrEmptyResponse = errors.New("agent: engine returned an empty response")
)

// Invoker is the tool surface a session drives.
type Invoker interface {
	Specs() []llm.ToolSpec
	Invoke(ctx context.Context, name, rawArgs string) api.ToolResult
}

// Session is one conversation with the reasoning engine. The history lives
// as long as the session; turns never overlap.
type Session struct {
	id       string
	client   llm.LLMClient
	tools    Invoker
	system   *config.SystemHolder
	history  *llm.ChatHistory
	inFlight atomic.Bool
}

// NewSession creates a session whose history starts with prompt (when set).
// tools may be nil for an engine without tool calling.
func NewSession(id string, client llm.LLMClient, tools Invoker, system *config.SystemHolder, prompt string) *Session {
	if system == nil {
		system = config.NewSystemHolder(nil)
	}
	s := &Session{
		id:      id,
		client:  client,
		tools:   tools,
		system:  system,
		history: llm.NewChatHistory(),
	}
	if prompt != "" {
		s.history.EnsureSystemMessage(prompt)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// History returns a copy of the conversation so far.
func (s *Session) History() []llm.Message {
	return s.history.GetMessages()
}

// Submit appends text as a user turn and runs the turn. The returned channel
// yields the turn's events and is closed after end_of_turn or failed. If ctx
// is cancelled the turn stops and the channel is closed without a terminal
// event.
func (s *Session) Submit(ctx context.Context, text string) (<-chan Event, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}

	sys := s.system.Get()
	out := make(chan Event, sys.InternalChannelBuffer)

	user := llm.NewUserMessage(text)
	user.ID = utils.GenerateID()
	s.history.Add(user)

	go func() {
		defer close(out)
		defer s.inFlight.Store(false)
		s.run(ctx, sys, out)
	}()
	return out, nil
}

func (s *Session) run(ctx context.Context, sys *config.SystemConfig, out chan<- Event) {
	start := time.Now()
	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var specs []llm.ToolSpec
	if sys.EnableTools && s.tools != nil {
		specs = s.tools.Specs()
	}

	for round := 1; round <= sys.MaxToolRounds; round++ {
		reply, err := s.roundTrip(ctx, sys, specs)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.ErrorContext(ctx, "Turn failed", "session", s.id, "round", round, "error", err)
			emit(Event{Kind: EventFailed, Err: err})
			return
		}

		if len(reply.ToolCalls) == 0 {
			if len(reply.Content) > 0 {
				s.history.Add(reply)
			}
			if text := finalText(reply, sys.ShowThinking); text != "" {
				if !emit(Event{Kind: EventTextChunk, Text: text}) {
					return
				}
			}
			slog.InfoContext(ctx, "Turn finished", "session", s.id, "rounds", round, "duration", time.Since(start).String())
			emit(Event{Kind: EventEndOfTurn})
			return
		}

		s.history.Add(reply)
		for _, call := range reply.ToolCalls {
			if !emit(Event{Kind: EventToolCallRequested, Call: call}) {
				return
			}
			res := s.invoke(ctx, sys, call)
			s.history.Add(llm.NewToolMessage(call, res.String()))
			if !emit(Event{Kind: EventToolResult, Call: call, Result: res}) {
				return
			}
		}
	}

	slog.WarnContext(ctx, "Tool round limit reached", "session", s.id, "max", sys.MaxToolRounds)
	emit(Event{Kind: EventFailed, Err: fmt.Errorf("%w (%d)", ErrTooManyRounds, sys.MaxToolRounds)})
}

// roundTrip asks the engine for one response, retrying transient stream
// failures and empty answers up to max_retries times.
func (s *Session) roundTrip(ctx context.Context, sys *config.SystemConfig, specs []llm.ToolSpec) (llm.Message, error) {
	attempts := max(sys.MaxRetries, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return llm.Message{}, ctx.Err()
			case <-time.After(time.Duration(sys.RetryDelayMs) * time.Millisecond):
			}
		}

		reply, err := s.stream(ctx, sys, specs)
		if err == nil {
			if len(reply.ToolCalls) > 0 || len(reply.Content) > 0 || stopReason(reply) == llm.StopReasonLength {
				return reply, nil
			}
			err = ErrEmptyResponse
		} else if errors.Is(err, ErrEngineTimeout) || ctx.Err() != nil || !s.client.IsTransientError(err) {
			return llm.Message{}, err
		}

		lastErr = err
		slog.WarnContext(ctx, "Abnormal engine response, retrying",
			"session", s.id,
			"error", err,
			"retry", fmt.Sprintf("%d/%d", attempt, attempts))
	}
	return llm.Message{}, lastErr
}

// stream performs a single engine round-trip bounded by llm_timeout_ms and
// folds the chunks into one assistant message.
func (s *Session) stream(ctx context.Context, sys *config.SystemConfig, specs []llm.ToolSpec) (llm.Message, error) {
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(sys.LLMTimeoutMs)*time.Millisecond)
	defer cancel()

	msg := llm.Message{
		ID:        utils.GenerateID(),
		Role:      llm.RoleAssistant,
		Content:   []llm.ContentBlock{},
		Timestamp: time.Now().Unix(),
	}

	timedOut := func(err error) error {
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %dms", ErrEngineTimeout, sys.LLMTimeoutMs)
		}
		return err
	}

	chunkCh, err := s.client.StreamChat(runCtx, s.history.GetMessages(), specs)
	if err != nil {
		return msg, timedOut(err)
	}

	for {
		select {
		case <-runCtx.Done():
			return msg, timedOut(runCtx.Err())
		case chunk, ok := <-chunkCh:
			if !ok {
				return msg, nil
			}
			if chunk.RawError != nil {
				return msg, timedOut(chunk.RawError)
			}
			if chunk.Error != "" {
				slog.WarnContext(ctx, "Engine reported an error", "session", s.id, "error", chunk.Error)
			}
			for _, b := range chunk.ContentBlocks {
				if b.Type == llm.BlockTypeText || b.Type == llm.BlockTypeThinking {
					msg.AddContentBlock(b)
				}
			}
			for _, call := range chunk.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, normalizeCall(call))
			}
			if chunk.Usage != nil {
				msg.Usage = chunk.Usage
			}
			if chunk.IsFinal {
				return msg, nil
			}
		}
	}
}

func (s *Session) invoke(ctx context.Context, sys *config.SystemConfig, call llm.ToolCall) api.ToolResult {
	if s.tools == nil {
		return api.Failure("", "Unknown operation: "+call.Name)
	}
	toolCtx, cancel := context.WithTimeout(ctx, time.Duration(sys.ToolTimeoutMs)*time.Millisecond)
	defer cancel()

	started := time.Now()
	slog.InfoContext(ctx, "Executing tool", "session", s.id, "tool", call.Name, "args", call.Function.Arguments)
	res := s.tools.Invoke(toolCtx, call.Name, call.Function.Arguments)
	if res.IsError() {
		slog.WarnContext(ctx, "Tool returned an error", "session", s.id, "tool", call.Name, "message", res.Failure.Message)
	} else {
		slog.DebugContext(ctx, "Tool finished", "session", s.id, "tool", call.Name, "duration", time.Since(started).String())
	}
	return res
}

// normalizeCall strips the "functions." prefix some engines emit and fills
// in a missing call id.
func normalizeCall(call llm.ToolCall) llm.ToolCall {
	name := strings.TrimPrefix(call.Name, "functions.")
	if name == "" {
		name = strings.TrimPrefix(call.Function.Name, "functions.")
	}
	call.Name = name
	call.Function.Name = name
	if call.ID == "" {
		call.ID = "call_" + utils.GenerateID()
	}
	return call
}

func stopReason(m llm.Message) string {
	if m.Usage == nil {
		return ""
	}
	return m.Usage.StopReason
}

func finalText(m llm.Message, showThinking bool) string {
	text := m.GetTextContent()
	if !showThinking {
		return text
	}
	thinking := strings.TrimSpace(m.GetThinkingContent())
	if thinking == "" {
		return text
	}
	return "> " + strings.ReplaceAll(thinking, "\n", "\n> ") + "\n\n" + text
}
