package telegram

import (
	"fmt"
	"strings"

	"plutus/pkg/api"
	"plutus/pkg/cards"
)

// maxCardRows bounds how many rows of a list card are written to a chat.
const maxCardRows = 10

// renderEvent turns one outbound event into chat bubbles of at most limit runes.
func renderEvent(ev api.OutboundEvent, limit int) []string {
	var text string
	switch ev.Type {
	case api.EventMessage:
		text = ev.Content
	case api.EventTools:
		text = renderCard(ev.Content)
	case api.EventError:
		text = "⚠️ " + ev.Content
	default:
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return splitRunes(text, limit)
}

// splitRunes cuts s into pieces of at most limit runes.
func splitRunes(s string, limit int) []string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return []string{s}
	}
	parts := make([]string, 0, len(runes)/limit+1)
	for i := 0; i < len(runes); i += limit {
		end := min(i+limit, len(runes))
		parts = append(parts, string(runes[i:end]))
	}
	return parts
}

type cardEnvelope struct {
	Kind    cards.Kind `json:"kind"`
	Payload any        `json:"payload"`
}

// renderCard writes a classified tool card as plain text.
func renderCard(content string) string {
	var env cardEnvelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return content
	}

	var b strings.Builder
	switch env.Kind {
	case cards.KindAssets:
		b.WriteString("📈 Top staking assets\n")
		writeRows(&b, env.Payload, func(row map[string]any) string {
			return fmt.Sprintf("• %s: %s%%", field(row, "name"), field(row, "rewardRate"))
		})
	case cards.KindProviders:
		b.WriteString("🏦 Staking providers\n")
		writeRows(&b, env.Payload, func(row map[string]any) string {
			return fmt.Sprintf("• %s (AUM %s)", field(row, "name"), field(row, "aum"))
		})
	case cards.KindAgentsList:
		b.WriteString("🤖 Top agents\n")
		writeRows(&b, env.Payload, func(row map[string]any) string {
			return fmt.Sprintf("• %s: mindshare %s, change %s%%", field(row, "name"), field(row, "mindshare"), field(row, "marketCap"))
		})
	case cards.KindMetrics:
		m, _ := env.Payload.(map[string]any)
		fmt.Fprintf(&b, "📊 Current reward rate: %s%%", field(m, "currentRate"))
		if hist, _ := m["historicalRates"].([]any); len(hist) > 0 {
			fmt.Fprintf(&b, " (%d historical points)", len(hist))
		}
	case cards.KindAgentDetails:
		m, _ := env.Payload.(map[string]any)
		fmt.Fprintf(&b, "🤖 %s\nMindshare: %s\nMarket cap: %s\nPrice: %s\nHolders: %s",
			field(m, "agentName"), field(m, "mindshare"), field(m, "marketCap"), field(m, "price"), field(m, "holdersCount"))
	case cards.KindError:
		m, _ := env.Payload.(map[string]any)
		if op := field(m, "operation"); op != "" {
			fmt.Fprintf(&b, "⚠️ %s failed: %s", op, field(m, "message"))
		} else {
			fmt.Fprintf(&b, "⚠️ %s", field(m, "message"))
		}
	default:
		raw, err := json.MarshalIndent(env.Payload, "", "  ")
		if err != nil {
			return content
		}
		b.Write(raw)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeRows(b *strings.Builder, payload any, line func(map[string]any) string) {
	rows, _ := payload.([]any)
	for i, r := range rows {
		if i == maxCardRows {
			fmt.Fprintf(b, "… and %d more\n", len(rows)-maxCardRows)
			break
		}
		if m, ok := r.(map[string]any); ok {
			b.WriteString(line(m))
			b.WriteByte('\n')
		}
	}
}

func field(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
