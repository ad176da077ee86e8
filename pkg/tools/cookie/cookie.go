// Package cookie queries the Cookie DAO agent analytics API.
package cookie

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"plutus/pkg/api"
	"plutus/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

const (
	Name       = "CookieAPITool"
	DefaultURL = "https://api.cookie.fun"
)

var intervalSchema = map[string]any{
	"type": "string",
	"enum": []string{"_3Days", "_7Days"},
}

var dateSchema = map[string]any{
	"type":    "string",
	"pattern": `^\d{4}-\d{2}-\d{2}$`,
}

// Tool is the Cookie DAO tool. Responses are returned as the API sends them
// ({"ok": ..., "success": ..., "error": ...}).
type Tool struct {
	http       *tools.HTTPClient
	dispatcher *tools.Dispatcher
}

// New creates the tool against baseURL (DefaultURL when empty).
func New(baseURL, apiKey string) *Tool {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	h := make(http.Header)
	h.Set("x-api-key", apiKey)

	t := &Tool{http: tools.NewHTTPClient(baseURL, h)}
	t.dispatcher = tools.MustDispatcher(Name,
		tools.Operation{
			Name:        "getAgentByTwitter",
			Description: "Agent details by Twitter username.",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"username": map[string]any{"type": "string", "minLength": 1},
					"interval": intervalSchema,
				},
				"required": []string{"username"},
			},
			Run: tools.Bind(t.getAgentByTwitter),
		},
		tools.Operation{
			Name:        "getAgentByContract",
			Description: "Agent details by token contract address.",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"address":  map[string]any{"type": "string", "minLength": 1},
					"interval": intervalSchema,
				},
				"required": []string{"address"},
			},
			Run: tools.Bind(t.getAgentByContract),
		},
		tools.Operation{
			Name:        "getAgentsList",
			Description: "Paged agents ranked by mindshare (interval _7Days, page 1, pageSize 10 by default).",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"interval": intervalSchema,
					"page":     map[string]any{"type": "integer", "minimum": 1},
					"pageSize": map[string]any{"type": "integer", "minimum": 1, "maximum": 25},
				},
			},
			Run: tools.Bind(t.getAgentsList),
		},
		tools.Operation{
			Name:        "searchTweets",
			Description: "Search tweets by query between two dates (YYYY-MM-DD).",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "minLength": 1},
					"from":  dateSchema,
					"to":    dateSchema,
				},
				"required": []string{"query", "from", "to"},
			},
			Run: tools.Bind(t.searchTweets),
		},
	)
	return t
}

func (t *Tool) Name() string { return Name }

func (t *Tool) Description() string {
	return t.dispatcher.Describe("Query AI agent analytics from the Cookie DAO API. Respect pagination and date ranges.")
}

func (t *Tool) Schema() map[string]any { return t.dispatcher.Schema() }

func (t *Tool) Execute(ctx context.Context, args jsoniter.RawMessage) api.ToolResult {
	return t.dispatcher.Dispatch(ctx, args)
}

type agentParams struct {
	Username string `json:"username"`
	Address  string `json:"address"`
	Interval string `json:"interval"`
}

type listParams struct {
	Interval string `json:"interval"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

type searchParams struct {
	Query string `json:"query"`
	From  string `json:"from"`
	To    string `json:"to"`
}

func interval(s string) string {
	if s == "" {
		return "_7Days"
	}
	return s
}

func (t *Tool) get(ctx context.Context, path string, q url.Values) api.ToolResult {
	var out any
	if err := t.http.GetJSON(ctx, path, q, &out); err != nil {
		return api.Failuref("", "Cookie API request failed: %v", err)
	}
	return api.Success(out)
}

func (t *Tool) getAgentByTwitter(ctx context.Context, p agentParams) api.ToolResult {
	return t.get(ctx, "/v2/agents/twitterUsername/"+url.PathEscape(p.Username),
		url.Values{"interval": {interval(p.Interval)}})
}

func (t *Tool) getAgentByContract(ctx context.Context, p agentParams) api.ToolResult {
	return t.get(ctx, "/v2/agents/contractAddress/"+url.PathEscape(p.Address),
		url.Values{"interval": {interval(p.Interval)}})
}

func (t *Tool) getAgentsList(ctx context.Context, p listParams) api.ToolResult {
	page, size := p.Page, p.PageSize
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = 10
	}
	return t.get(ctx, "/v2/agents/agentsPaged", url.Values{
		"interval": {interval(p.Interval)},
		"page":     {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(size)},
	})
}

func (t *Tool) searchTweets(ctx context.Context, p searchParams) api.ToolResult {
	return t.get(ctx, "/v1/hackathon/search/"+url.PathEscape(p.Query),
		url.Values{"from": {p.From}, "to": {p.To}})
}
