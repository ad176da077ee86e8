package stakingrewards

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"plutus/pkg/cards"

	jsoniter "github.com/json-iterator/go"
)

func graphQLServer(t *testing.T, respond func(query string) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "sr-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b, _ := io.ReadAll(r.Body)
		var req struct {
			Query string `json:"query"`
		}
		_ = jsoniter.Unmarshal(b, &req)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, respond(req.Query))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// classify round-trips a result through JSON the way the relay does.
func classify(t *testing.T, v any) cards.Envelope {
	t.Helper()
	b, err := jsoniter.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return cards.Default().ClassifyJSON(b)
}

func TestTopAssetsClassifiesAsAssets(t *testing.T) {
	t.Parallel()

	srv := graphQLServer(t, func(q string) string {
		if !strings.Contains(q, "TopAssets") {
			t.Errorf("unexpected query %q", q)
		}
		return `{"data":{"assets":[{"name":"Ethereum","slug":"ethereum-2-0","logoUrl":"eth.png","metrics":[{"defaultValue":3.1}]},{"name":"NoMetric","metrics":[]}]}}`
	})
	tool := New(srv.URL, "sr-key")

	res := tool.Execute(context.Background(), []byte(`{"operation":"getTopAssets","params":{"limit":2}}`))
	if res.IsError() {
		t.Fatalf("res = %s", res)
	}
	env := classify(t, res)
	if env.Kind != cards.KindAssets {
		t.Fatalf("kind = %s", env.Kind)
	}
	rows := env.Payload.([]map[string]any)
	if len(rows) != 2 || rows[0]["rewardRate"] != 3.1 || rows[1]["rewardRate"] != nil {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestProvidersAndMetrics(t *testing.T) {
	t.Parallel()

	srv := graphQLServer(t, func(q string) string {
		if strings.Contains(q, "Providers") {
			return `{"data":{"providers":[{"name":"Lido","logoUrl":"lido.png","metrics":[{"defaultValue":1000000}]}]}}`
		}
		return `{"data":{"assets":[{"name":"Ethereum","metrics":[{"defaultValue":3.2,"createdAt":"2024-02-02"},{"defaultValue":3.0,"createdAt":"2024-02-01"}]}]}}`
	})
	tool := New(srv.URL, "sr-key")

	env := classify(t, tool.Execute(context.Background(), []byte(`{"operation":"getProviders"}`)))
	if env.Kind != cards.KindProviders {
		t.Fatalf("providers kind = %s", env.Kind)
	}

	env = classify(t, tool.Execute(context.Background(), []byte(`{"operation":"getEthMetrics"}`)))
	if env.Kind != cards.KindMetrics {
		t.Fatalf("metrics kind = %s", env.Kind)
	}
	m := env.Payload.(map[string]any)
	if m["currentRate"] != 3.2 || len(m["historicalRates"].([]map[string]any)) != 2 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestErrorsBecomeFailures(t *testing.T) {
	t.Parallel()

	srv := graphQLServer(t, func(string) string {
		return `{"errors":[{"message":"rate limited"}]}`
	})

	res := New(srv.URL, "sr-key").Execute(context.Background(), []byte(`{"operation":"getTopAssets"}`))
	if !res.IsError() || !strings.Contains(res.Failure.Message, "rate limited") || res.Failure.Operation != "getTopAssets" {
		t.Fatalf("res = %s", res)
	}

	res = New(srv.URL, "wrong").Execute(context.Background(), []byte(`{"operation":"getProviders"}`))
	if !res.IsError() || !strings.Contains(res.Failure.Message, "HTTP 401") {
		t.Fatalf("res = %s", res)
	}

	res = New(srv.URL, "sr-key").Execute(context.Background(), []byte(`{"operation":"getTopAssets","params":{"limit":0}}`))
	if !res.IsError() || !strings.Contains(res.Failure.Message, "Invalid params") {
		t.Fatalf("res = %s", res)
	}
}
