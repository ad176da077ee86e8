// Package cards maps tool results onto the fixed set of card kinds the chat
// client knows how to render.
package cards

import (
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind names a card renderer on the client.
type Kind string

const (
	KindAssets       Kind = "assets"
	KindProviders    Kind = "providers"
	KindAgentDetails Kind = "agent_details"
	KindAgentsList   Kind = "agents_list"
	KindMetrics      Kind = "metrics"
	KindError        Kind = "error"
	KindUnknown      Kind = "unknown"
)

// Envelope is the classified form of one tool result.
type Envelope struct {
	Kind    Kind `json:"kind"`
	Payload any  `json:"payload"`
}

// rule inspects a JSON object and returns the card payload when it matches.
type rule func(obj map[string]any) (any, bool)

var builtin = map[Kind]rule{
	KindAssets:       matchAssets,
	KindProviders:    matchProviders,
	KindMetrics:      matchMetrics,
	KindAgentsList:   matchAgentsList,
	KindAgentDetails: matchAgentDetails,
}

// DefaultOrder is the cascade used when no order is configured. agents_list
// must precede agent_details because both inspect the "ok" object.
var DefaultOrder = []Kind{KindAssets, KindProviders, KindMetrics, KindAgentsList, KindAgentDetails}

type orderedRule struct {
	kind  Kind
	match rule
}

// Classifier runs the rule cascade. The error check always runs first and is
// not part of the configurable order.
type Classifier struct {
	rules []orderedRule
}

// NewClassifier builds a classifier with the given rule order. An empty order
// selects DefaultOrder.
func NewClassifier(order ...Kind) (*Classifier, error) {
	if len(order) == 0 {
		order = DefaultOrder
	}
	seen := make(map[Kind]bool, len(order))
	c := &Classifier{}
	for _, k := range order {
		r, ok := builtin[k]
		if !ok {
			return nil, fmt.Errorf("unknown card kind %q in order", k)
		}
		if seen[k] {
			return nil, fmt.Errorf("card kind %q listed twice", k)
		}
		seen[k] = true
		c.rules = append(c.rules, orderedRule{kind: k, match: r})
	}
	return c, nil
}

var defaultClassifier, _ = NewClassifier()

// Default returns the classifier using DefaultOrder.
func Default() *Classifier {
	return defaultClassifier
}

// Classify runs the default cascade.
func Classify(result any) Envelope {
	return defaultClassifier.Classify(result)
}

// Classify maps a decoded JSON value onto a card. It never panics: values that
// are not objects, or objects no rule recognises, become KindUnknown.
func (c *Classifier) Classify(result any) Envelope {
	obj, ok := result.(map[string]any)
	if !ok {
		return Envelope{Kind: KindUnknown, Payload: result}
	}

	if truthy(obj["error"]) {
		return Envelope{Kind: KindError, Payload: map[string]any{
			"message":   stringOr(obj["message"], ""),
			"operation": stringOr(obj["operation"], ""),
		}}
	}

	for _, r := range c.rules {
		if payload, ok := r.match(obj); ok {
			return Envelope{Kind: r.kind, Payload: payload}
		}
	}
	return Envelope{Kind: KindUnknown, Payload: obj}
}

// ClassifyJSON decodes raw and classifies it. Undecodable input is returned
// as an unknown card carrying the raw text.
func (c *Classifier) ClassifyJSON(raw []byte) Envelope {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Envelope{Kind: KindUnknown, Payload: string(raw)}
	}
	return c.Classify(v)
}

func matchAssets(obj map[string]any) (any, bool) {
	items, ok := typedItems(obj, "assets")
	if !ok {
		return nil, false
	}
	return pick(items, "name", "rewardRate", "logo"), true
}

func matchProviders(obj map[string]any) (any, bool) {
	items, ok := typedItems(obj, "providers")
	if !ok {
		return nil, false
	}
	return pick(items, "name", "aum", "logo"), true
}

func matchMetrics(obj map[string]any) (any, bool) {
	if t, _ := obj["type"].(string); t != "metrics" {
		return nil, false
	}
	history, _ := obj["historicalRates"].([]any)
	if history == nil {
		history = []any{}
	}
	return map[string]any{
		"currentRate":     obj["currentRate"],
		"historicalRates": pick(history, "rate", "date"),
	}, true
}

func matchAgentsList(obj map[string]any) (any, bool) {
	inner, _ := obj["ok"].(map[string]any)
	if inner == nil {
		return nil, false
	}
	page, isNum := inner["currentPage"].(float64)
	if !isNum || page < 1 {
		return nil, false
	}
	data, isArr := inner["data"].([]any)
	if !isArr {
		return nil, false
	}
	agents := make([]map[string]any, 0, len(data))
	for _, d := range data {
		agent, _ := d.(map[string]any)
		if agent == nil {
			continue
		}
		agents = append(agents, map[string]any{
			"name":      agent["agentName"],
			"mindshare": fixed2(agent["mindshare"]),
			"marketCap": fixed2(agent["mindshareDeltaPercent"]),
		})
	}
	return agents, true
}

func matchAgentDetails(obj map[string]any) (any, bool) {
	inner, _ := obj["ok"].(map[string]any)
	if inner == nil {
		return nil, false
	}
	name, _ := inner["agentName"].(string)
	if name == "" {
		return nil, false
	}
	return map[string]any{
		"agentName":    name,
		"mindshare":    inner["mindshare"],
		"marketCap":    inner["marketCap"],
		"price":        inner["price"],
		"holdersCount": inner["holdersCount"],
	}, true
}

func typedItems(obj map[string]any, typ string) ([]any, bool) {
	if t, _ := obj["type"].(string); t != typ {
		return nil, false
	}
	items, ok := obj["items"].([]any)
	return items, ok
}

// pick projects every object in items onto the named fields. Non-object
// entries are dropped.
func pick(items []any, fields ...string) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		m, _ := it.(map[string]any)
		if m == nil {
			continue
		}
		row := make(map[string]any, len(fields))
		for _, f := range fields {
			row[f] = m[f]
		}
		out = append(out, row)
	}
	return out
}

// fixed2 formats a number with two decimals, like the client's toFixed(2).
func fixed2(v any) any {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}
