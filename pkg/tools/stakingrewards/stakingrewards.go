// Package stakingrewards queries the StakingRewards GraphQL API.
package stakingrewards

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"plutus/pkg/api"
	"plutus/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

const (
	Name       = "StakingRewardsTool"
	DefaultURL = "https://api.stakingrewards.com/public/query"
)

const topAssetsQuery = `query TopAssets($limit: Int!) {
  assets(where: {isActive: true}, order: {rewardOptionsWithAssetAsInput: desc}, limit: $limit) {
    name
    slug
    logoUrl
    metrics(where: {metricKeys: ["reward_rate"]}, limit: 1) { defaultValue }
  }
}`

const providersQuery = `query Providers($limit: Int!) {
  providers(where: {isVerified: true}, order: {metricKey_desc: "assets_under_management"}, limit: $limit) {
    name
    slug
    logoUrl
    metrics(where: {metricKeys: ["assets_under_management"]}, limit: 1) { defaultValue }
  }
}`

const ethMetricsQuery = `query EthRewardRate($limit: Int!) {
  assets(where: {symbols: ["ETH"]}, limit: 1) {
    name
    metrics(where: {metricKeys: ["reward_rate"]}, order: {createdAt: desc}, limit: $limit) {
      defaultValue
      createdAt
    }
  }
}`

type metric struct {
	DefaultValue float64 `json:"defaultValue"`
	CreatedAt    string  `json:"createdAt"`
}

type entity struct {
	Name    string   `json:"name"`
	Slug    string   `json:"slug"`
	LogoURL string   `json:"logoUrl"`
	Metrics []metric `json:"metrics"`
}

func (e entity) firstMetric() any {
	if len(e.Metrics) == 0 {
		return nil
	}
	return e.Metrics[0].DefaultValue
}

type gqlResponse struct {
	Data struct {
		Assets    []entity `json:"assets"`
		Providers []entity `json:"providers"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Tool is the StakingRewards tool.
type Tool struct {
	http       *tools.HTTPClient
	dispatcher *tools.Dispatcher
}

// New creates the tool against url (DefaultURL when empty).
func New(url, apiKey string) *Tool {
	if url == "" {
		url = DefaultURL
	}
	h := make(http.Header)
	h.Set("X-API-KEY", apiKey)

	t := &Tool{http: tools.NewHTTPClient(url, h)}

	limit := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{"type": "integer", "minimum": 1, "maximum": 50},
		},
	}
	t.dispatcher = tools.MustDispatcher(Name,
		tools.Operation{
			Name:        "getTopAssets",
			Description: "Top staking assets with their reward rates. Start here.",
			Params:      limit,
			Run:         tools.Bind(t.getTopAssets),
		},
		tools.Operation{
			Name:        "getProviders",
			Description: "Top verified staking providers by assets under management.",
			Params:      limit,
			Run:         tools.Bind(t.getProviders),
		},
		tools.Operation{
			Name:        "getEthMetrics",
			Description: "Current and historical ETH staking reward rate.",
			Params:      limit,
			Run:         tools.Bind(t.getEthMetrics),
		},
	)
	return t
}

func (t *Tool) Name() string { return Name }

func (t *Tool) Description() string {
	return t.dispatcher.Describe("Query staking reward data from the StakingRewards API.")
}

func (t *Tool) Schema() map[string]any { return t.dispatcher.Schema() }

func (t *Tool) Execute(ctx context.Context, args jsoniter.RawMessage) api.ToolResult {
	return t.dispatcher.Dispatch(ctx, args)
}

type limitParams struct {
	Limit int `json:"limit"`
}

func (p limitParams) or(def int) int {
	if p.Limit > 0 {
		return p.Limit
	}
	return def
}

func (t *Tool) query(ctx context.Context, q string, limit int) (*gqlResponse, error) {
	var out gqlResponse
	body := map[string]any{
		"query":     q,
		"variables": map[string]any{"limit": limit},
	}
	if err := t.http.PostJSON(ctx, "", body, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, errors.New(strings.Join(msgs, "; "))
	}
	return &out, nil
}

func (t *Tool) getTopAssets(ctx context.Context, p limitParams) api.ToolResult {
	resp, err := t.query(ctx, topAssetsQuery, p.or(10))
	if err != nil {
		return api.Failuref("", "Failed to fetch top assets: %v", err)
	}
	items := make([]map[string]any, 0, len(resp.Data.Assets))
	for _, a := range resp.Data.Assets {
		items = append(items, map[string]any{
			"name":       a.Name,
			"slug":       a.Slug,
			"rewardRate": a.firstMetric(),
			"logo":       a.LogoURL,
		})
	}
	return api.Success(map[string]any{"type": "assets", "items": items})
}

func (t *Tool) getProviders(ctx context.Context, p limitParams) api.ToolResult {
	resp, err := t.query(ctx, providersQuery, p.or(10))
	if err != nil {
		return api.Failuref("", "Failed to fetch providers: %v", err)
	}
	items := make([]map[string]any, 0, len(resp.Data.Providers))
	for _, pr := range resp.Data.Providers {
		items = append(items, map[string]any{
			"name": pr.Name,
			"slug": pr.Slug,
			"aum":  pr.firstMetric(),
			"logo": pr.LogoURL,
		})
	}
	return api.Success(map[string]any{"type": "providers", "items": items})
}

func (t *Tool) getEthMetrics(ctx context.Context, p limitParams) api.ToolResult {
	resp, err := t.query(ctx, ethMetricsQuery, p.or(30))
	if err != nil {
		return api.Failuref("", "Failed to fetch ETH metrics: %v", err)
	}
	if len(resp.Data.Assets) == 0 {
		return api.Failure("", "No ETH metrics available")
	}
	metrics := resp.Data.Assets[0].Metrics
	history := make([]map[string]any, 0, len(metrics))
	for _, m := range metrics {
		history = append(history, map[string]any{"rate": m.DefaultValue, "date": m.CreatedAt})
	}
	var current any
	if len(metrics) > 0 {
		current = metrics[0].DefaultValue
	}
	return api.Success(map[string]any{
		"type":            "metrics",
		"currentRate":     current,
		"historicalRates": history,
	})
}
