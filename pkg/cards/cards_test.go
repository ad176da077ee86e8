package cards

import (
	"reflect"
	"testing"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func TestClassifyIsTotal(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`null`, `{}`, `[]`, `[1,2]`, `"text"`, `42`, `true`,
		`{"type":"assets"}`,
		`{"type":"assets","items":"nope"}`,
		`{"type":"assets","items":[1,"x",null]}`,
		`{"ok":null}`,
		`{"ok":[]}`,
		`{"ok":{"currentPage":"1","data":[]}}`,
		`{"ok":{"currentPage":0,"data":[]}}`,
		`{"ok":{"currentPage":1,"data":{}}}`,
		`{"ok":{"currentPage":1,"data":[null,{"agentName":3}]}}`,
		`{"ok":{"agentName":""}}`,
		`{"ok":{"agentName":7}}`,
		`{"type":"metrics","historicalRates":"x"}`,
		`{"error":false}`,
		`{"error":0,"ok":{"agentName":"a"}}`,
	}
	for _, raw := range inputs {
		env := Classify(decode(t, raw))
		if env.Kind == "" {
			t.Fatalf("input %s: empty kind", raw)
		}
	}
}

func TestClassifyErrorShortCircuits(t *testing.T) {
	t.Parallel()

	cases := []string{
		`{"error":true,"message":"x"}`,
		`{"error":true,"message":"x","type":"assets","items":[]}`,
		`{"error":true,"message":"x","ok":{"currentPage":1,"data":[]}}`,
		`{"error":"yes","message":"x","ok":{"agentName":"a"}}`,
	}
	for _, raw := range cases {
		env := Classify(decode(t, raw))
		if env.Kind != KindError {
			t.Fatalf("input %s: expected error kind, got %s", raw, env.Kind)
		}
		payload := env.Payload.(map[string]any)
		if payload["message"] != "x" {
			t.Fatalf("input %s: unexpected payload %+v", raw, payload)
		}
	}
}

func TestClassifyAssets(t *testing.T) {
	t.Parallel()

	env := Classify(decode(t, `{"type":"assets","items":[{"name":"ETH","rewardRate":"4.2","logo":"l","symbol":"ETH"}]}`))
	if env.Kind != KindAssets {
		t.Fatalf("expected assets, got %s", env.Kind)
	}
	want := []map[string]any{{"name": "ETH", "rewardRate": "4.2", "logo": "l"}}
	if !reflect.DeepEqual(env.Payload, want) {
		t.Fatalf("unexpected payload %+v", env.Payload)
	}
}

func TestClassifyProvidersAndMetrics(t *testing.T) {
	t.Parallel()

	env := Classify(decode(t, `{"type":"providers","items":[{"name":"Lido","aum":"1B","logo":"x"}]}`))
	if env.Kind != KindProviders {
		t.Fatalf("expected providers, got %s", env.Kind)
	}

	env = Classify(decode(t, `{"type":"metrics","currentRate":"3.1","historicalRates":[{"rate":"3.0","date":"2024-01-01"}]}`))
	if env.Kind != KindMetrics {
		t.Fatalf("expected metrics, got %s", env.Kind)
	}
	payload := env.Payload.(map[string]any)
	if payload["currentRate"] != "3.1" {
		t.Fatalf("unexpected metrics payload %+v", payload)
	}
}

func TestClassifyAgentsListRoundsToTwoDecimals(t *testing.T) {
	t.Parallel()

	env := Classify(decode(t, `{"ok":{"currentPage":2,"totalPages":5,"data":[{"agentName":"aixbt","mindshare":12.3456,"mindshareDeltaPercent":-1.005}]}}`))
	if env.Kind != KindAgentsList {
		t.Fatalf("expected agents_list, got %s", env.Kind)
	}
	got := env.Payload.([]map[string]any)
	if len(got) != 1 || got[0]["name"] != "aixbt" || got[0]["mindshare"] != "12.35" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestAgentsListWinsOverAgentDetails(t *testing.T) {
	t.Parallel()

	raw := `{"ok":{"currentPage":1,"data":[],"agentName":"both"}}`
	if env := Classify(decode(t, raw)); env.Kind != KindAgentsList {
		t.Fatalf("expected agents_list first, got %s", env.Kind)
	}

	reordered, err := NewClassifier(KindAgentDetails, KindAgentsList)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	if env := reordered.Classify(decode(t, raw)); env.Kind != KindAgentDetails {
		t.Fatalf("expected configured order to win, got %s", env.Kind)
	}
}

func TestClassifyAgentDetails(t *testing.T) {
	t.Parallel()

	env := Classify(decode(t, `{"ok":{"agentName":"aixbt","mindshare":5,"marketCap":100,"price":0.3,"holdersCount":42}}`))
	if env.Kind != KindAgentDetails {
		t.Fatalf("expected agent_details, got %s", env.Kind)
	}
	payload := env.Payload.(map[string]any)
	if payload["holdersCount"] != float64(42) {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestNewClassifierRejectsBadOrder(t *testing.T) {
	t.Parallel()

	if _, err := NewClassifier(KindAssets, "charts"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
	if _, err := NewClassifier(KindAssets, KindAssets); err == nil {
		t.Fatalf("expected duplicate kind error")
	}
	if _, err := NewClassifier(KindError); err == nil {
		t.Fatalf("error kind is fixed and must not be configurable")
	}
}

func TestClassifyJSONHandlesGarbage(t *testing.T) {
	t.Parallel()

	env := defaultClassifier.ClassifyJSON([]byte(`{not json`))
	if env.Kind != KindUnknown || env.Payload != "{not json" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}
