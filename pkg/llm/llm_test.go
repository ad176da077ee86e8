package llm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeClient struct {
	errs      []error
	calls     int
	transient bool
}

func (f *fakeClient) StreamChat(ctx context.Context, messages []Message, tools []ToolSpec) (<-chan StreamChunk, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	ch := make(chan StreamChunk, 2)
	ch <- NewTextChunk("ok")
	ch <- NewFinalChunk(StopReasonStop, nil)
	close(ch)
	return ch, nil
}

func (f *fakeClient) IsTransientError(err error) bool { return f.transient }

func TestFallbackRetriesTransient(t *testing.T) {
	t.Parallel()

	boom := errors.New("503")
	first := &fakeClient{errs: []error{boom, nil}, transient: true}
	f := &FallbackClient{Clients: []LLMClient{first}, MaxRetries: 3}

	ch, err := f.StreamChat(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if first.calls != 2 {
		t.Fatalf("calls = %d, want 2", first.calls)
	}
	for range ch {
	}
}

func TestFallbackMovesToNextClient(t *testing.T) {
	t.Parallel()

	first := &fakeClient{errs: []error{errors.New("401")}}
	second := &fakeClient{}
	f := &FallbackClient{Clients: []LLMClient{first, second}, MaxRetries: 3}

	if _, err := f.StreamChat(context.Background(), nil, nil); err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", first.calls, second.calls)
	}
}

func TestFallbackAllFailed(t *testing.T) {
	t.Parallel()

	last := errors.New("last")
	f := &FallbackClient{Clients: []LLMClient{
		&fakeClient{errs: []error{errors.New("first")}},
		&fakeClient{errs: []error{last}},
	}}

	_, err := f.StreamChat(context.Background(), nil, nil)
	if !errors.Is(err, ErrAllProvidersFailed) || !errors.Is(err, last) {
		t.Fatalf("err = %v", err)
	}
}

func TestHistorySystemMessage(t *testing.T) {
	t.Parallel()

	h := NewChatHistory()
	h.Add(NewUserMessage("hi"))
	h.EnsureSystemMessage("one")
	h.EnsureSystemMessage("two")

	msgs := h.GetMessages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[0].GetTextContent() != "two" {
		t.Fatalf("system message = %+v", msgs[0])
	}
	msgs[1].Role = "mutated"
	if h.GetMessages()[1].Role != RoleUser {
		t.Fatal("GetMessages must return a copy")
	}
}

func TestMessageContentSplit(t *testing.T) {
	t.Parallel()

	m := NewTextMessage(RoleAssistant, "a")
	m.AddContentBlock(NewThinkingBlock("t"))
	m.AddContentBlock(NewTextBlock("b"))
	if m.GetTextContent() != "ab" || m.GetThinkingContent() != "t" {
		t.Fatalf("text=%q thinking=%q", m.GetTextContent(), m.GetThinkingContent())
	}

	tm := NewToolMessage(ToolCall{ID: "c1", Name: "lido"}, `{"x":1}`)
	if tm.ToolCallID != "c1" || tm.ToolName != "lido" || tm.Role != RoleTool {
		t.Fatalf("tool message = %+v", tm)
	}
}

func TestErrorChunkFatal(t *testing.T) {
	t.Parallel()

	if c := NewErrorChunk("soft", nil, false); c.RawError != nil {
		t.Fatal("non-fatal chunk must not carry RawError")
	}
	c := NewErrorChunk("hard", nil, true)
	if c.RawError == nil || c.RawError.Error() != "hard" {
		t.Fatalf("RawError = %v", c.RawError)
	}
}

func TestStreamDebuggerWritesUnderConnectionDir(t *testing.T) {
	root := t.TempDir()
	prev := DebugRoot
	DebugRoot = root
	t.Cleanup(func() { DebugRoot = prev })

	ctx := context.WithValue(context.Background(), DebugDirContextKey, "conn-1")
	d := NewStreamDebugger(ctx, "openai", true)
	d.WriteJSON(map[string]int{"n": 1})
	d.Close()

	entries, err := os.ReadDir(filepath.Join(root, "conn-1", "openai"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries=%v err=%v", entries, err)
	}

	off := NewStreamDebugger(ctx, "openai", false)
	off.WriteString("ignored")
	off.Close()
}
