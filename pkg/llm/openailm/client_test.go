package openailm

import (
	"errors"
	"testing"

	"plutus/pkg/config"
	"plutus/pkg/llm"
)

func TestCallCollectorKeepsEngineOrder(t *testing.T) {
	t.Parallel()

	cc := newCallCollector()
	cc.open("item_b", "call_b", "cookie")
	cc.open("item_a", "call_a", "lido")
	cc.appendArgs("item_b", `{"operation":`)
	cc.appendArgs("item_b", `"getAgentsList"}`)
	cc.finish("item_a", "", `{"operation":"getBalances"}`)
	cc.appendArgs("item_orphan", `{}`)

	got := cc.list()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (unnamed call dropped)", len(got))
	}
	if got[0].ID != "call_b" || got[0].Name != "cookie" || got[0].Function.Arguments != `{"operation":"getAgentsList"}` {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].ID != "call_a" || got[1].Function.Arguments != `{"operation":"getBalances"}` {
		t.Fatalf("second = %+v", got[1])
	}
}

func TestConvertMessages(t *testing.T) {
	t.Parallel()

	assistant := llm.NewTextMessage(llm.RoleAssistant, "checking")
	assistant.ToolCalls = []llm.ToolCall{
		{ID: "c1", Name: "lido", Function: llm.FunctionCall{Name: "lido", Arguments: "{}"}},
		{ID: "c2", Name: "cookie", Function: llm.FunctionCall{Name: "cookie", Arguments: "not json"}},
	}
	msgs := []llm.Message{
		llm.NewSystemMessage("sys"),
		llm.NewUserMessage("hi"),
		assistant,
		llm.NewToolMessage(assistant.ToolCalls[0], `{"ok":1}`),
		llm.NewToolMessage(assistant.ToolCalls[1], `{"ok":2}`),
	}

	items := convertMessages(msgs)
	// system, user, assistant text, 2 function calls, 2 outputs
	if len(items) != 7 {
		t.Fatalf("items = %d, want 7", len(items))
	}
	if items[4].OfFunctionCall == nil || items[4].OfFunctionCall.Arguments != "{}" {
		t.Fatalf("invalid args not normalized: %+v", items[4].OfFunctionCall)
	}
	if items[5].OfFunctionCallOutput == nil || items[5].OfFunctionCallOutput.CallID != "c1" {
		t.Fatalf("output item = %+v", items[5])
	}
}

func TestConvertTools(t *testing.T) {
	t.Parallel()

	tools := convertTools([]llm.ToolSpec{{
		Name:        "lido",
		Description: "staking",
		Parameters:  map[string]any{"type": "object"},
	}})
	if len(tools) != 1 || tools[0].OfFunction == nil || tools[0].OfFunction.Name != "lido" {
		t.Fatalf("tools = %+v", tools)
	}
}

func TestIsTransientError(t *testing.T) {
	t.Parallel()

	c := NewClient("openai", "k", "m", "", nil)
	cases := map[string]bool{
		"503 Service Unavailable":  true,
		"429 Too Many Requests":    true,
		"dial: connection refused": true,
		"401 Unauthorized":         false,
	}
	for msg, want := range cases {
		if got := c.IsTransientError(errors.New(msg)); got != want {
			t.Fatalf("%q: got %v, want %v", msg, got, want)
		}
	}
	if c.IsTransientError(nil) {
		t.Fatal("nil error is not transient")
	}
}

func TestFactoryCreate(t *testing.T) {
	t.Parallel()

	f, ok := llm.GetProviderFactory("openrouter")
	if !ok {
		t.Fatal("openrouter factory not registered")
	}
	clients, err := f.Create(llm.ProviderGroupConfig{
		Type:    "openrouter",
		APIKeys: []string{"k1", "k2"},
		Models:  []string{"a", "b", "c"},
	}, config.DefaultSystemConfig())
	if err != nil || len(clients) != 3 {
		t.Fatalf("clients=%d err=%v", len(clients), err)
	}
	if c := clients[0].(*Client); c.Model() != "a" || c.Provider() != "openrouter" {
		t.Fatalf("client = %+v", c)
	}

	if _, err := f.Create(llm.ProviderGroupConfig{Models: []string{"a"}}, nil); err == nil {
		t.Fatal("expected missing key error")
	}
}
