package web_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"plutus/pkg/agent"
	"plutus/pkg/api"
	"plutus/pkg/channels/web"
	"plutus/pkg/config"
	"plutus/pkg/control"
	"plutus/pkg/gateway"
	"plutus/pkg/llm"
	"plutus/pkg/provider"
	"plutus/pkg/relay"
	"plutus/pkg/tools"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

// assetsEngine asks for getTopAssets once, then answers with text.
type assetsEngine struct{}

func (e *assetsEngine) StreamChat(_ context.Context, msgs []llm.Message, _ []llm.ToolSpec) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	if msgs[len(msgs)-1].Role == llm.RoleUser {
		ch <- llm.StreamChunk{ToolCalls: []llm.ToolCall{{
			ID:       "call_1",
			Name:     "getTopAssets",
			Function: llm.FunctionCall{Name: "getTopAssets", Arguments: `{}`},
		}}}
	} else {
		ch <- llm.NewTextChunk("ETH leads with 4.2%.")
	}
	ch <- llm.NewFinalChunk(llm.StopReasonStop, nil)
	close(ch)
	return ch, nil
}

func (e *assetsEngine) IsTransientError(error) bool { return false }

type topAssets struct{}

func (topAssets) Name() string           { return "getTopAssets" }
func (topAssets) Description() string    { return "top staking assets" }
func (topAssets) Schema() map[string]any { return map[string]any{"type": "object"} }
func (topAssets) Execute(context.Context, jsoniter.RawMessage) api.ToolResult {
	return api.Success(map[string]any{
		"type":  "assets",
		"items": []any{map[string]any{"name": "ETH", "rewardRate": "4.2", "logo": "..."}},
	})
}

func startStack(t *testing.T) (*web.WebChannel, *provider.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := tools.NewRegistry()
	if err := reg.Register(topAssets{}); err != nil {
		t.Fatal(err)
	}
	system := config.NewSystemHolder(nil)
	engine := &assetsEngine{}

	rel, err := relay.New(ctx, func(id string) relay.Turner {
		return agent.NewSession(id, engine, reg, system, "You are plutus.")
	}, system)
	if err != nil {
		t.Fatal(err)
	}

	providers := provider.NewRegistry()
	ch := web.NewWebChannel(web.WebConfig{Addr: "127.0.0.1:0"})
	gw, err := gateway.NewGatewayBuilder().
		WithRelay(rel).
		WithRoutes(control.New(providers, nil).Routes()...).
		WithChannel(ch).
		Build(ctx)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(gw.StopAll)
	return ch, providers
}

func readEvent(t *testing.T, conn *websocket.Conn) api.OutboundEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev api.OutboundEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestWebsocketTopAssets(t *testing.T) {
	t.Parallel()

	ch, _ := startStack(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ch.Addr()+"/ws?session=tab-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"content": "show me top staking assets"}); err != nil {
		t.Fatal(err)
	}

	first := readEvent(t, conn)
	if first.Type != api.EventTools {
		t.Fatalf("first = %+v", first)
	}
	var card struct {
		Kind    string           `json:"kind"`
		Payload []map[string]any `json:"payload"`
	}
	if err := jsoniter.Unmarshal([]byte(first.Content), &card); err != nil {
		t.Fatal(err)
	}
	if card.Kind != "assets" || len(card.Payload) != 1 || card.Payload[0]["name"] != "ETH" || card.Payload[0]["rewardRate"] != "4.2" {
		t.Fatalf("card = %+v", card)
	}
	if _, err := time.Parse(time.RFC3339Nano, first.Timestamp); err != nil {
		t.Fatalf("timestamp %q: %v", first.Timestamp, err)
	}

	second := readEvent(t, conn)
	if second.Type != api.EventMessage || second.Content != "ETH leads with 4.2%." {
		t.Fatalf("second = %+v", second)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, conn); ev.Type != api.EventError {
		t.Fatalf("malformed frame answered with %+v", ev)
	}
}

func TestSetProviderOverHTTP(t *testing.T) {
	t.Parallel()

	ch, providers := startStack(t)
	base := "http://" + ch.Addr()

	resp, err := http.Post(base+"/api/set-provider", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp, err = http.Post(base+"/api/set-provider", "application/json",
		strings.NewReader(`{"provider":{"rpcUrl":"http://localhost:8545"},"sessionId":"tab-1"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h, err := providers.Provider(ctx, "tab-1")
	if err != nil {
		t.Fatal(err)
	}
	if url, _ := h.Endpoint(); url != "http://localhost:8545" {
		t.Fatalf("endpoint = %s", url)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	ch, _ := startStack(t)
	req, _ := http.NewRequest(http.MethodOptions, "http://"+ch.Addr()+"/api/set-provider", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("status = %d headers = %v", resp.StatusCode, resp.Header)
	}
}
