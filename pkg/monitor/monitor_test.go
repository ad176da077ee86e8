package monitor

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"plutus/pkg/llm"
)

func TestCustomHandlerFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lv := new(slog.LevelVar)
	logger := slog.New(NewCustomHandler(&buf, slog.HandlerOptions{Level: lv})).With("component", "relay")

	ctx := context.WithValue(context.Background(), llm.DebugDirContextKey, "conn-1")
	logger.InfoContext(ctx, "Turn finished", "rounds", 2)
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "[INFO] [conn-1] Turn finished") {
		t.Fatalf("out = %q", out)
	}
	if !strings.Contains(out, `component="relay" rounds=2`) {
		t.Fatalf("attrs missing: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatal("debug record written at info level")
	}

	lv.Set(slog.LevelDebug)
	logger.Debug("shown")
	if !strings.Contains(buf.String(), "[DEBUG] shown") {
		t.Fatalf("out = %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "warning": slog.LevelWarn,
		"error": slog.LevelError, "": slog.LevelInfo, "verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCLIMonitor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	m := NewCLIMonitor(&buf)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	m.OnMessage(MonitorMessage{Timestamp: ts, Direction: DirectionIn, ChannelID: "web", ConnID: "0123456789abcdef", Content: "hello"})
	m.OnMessage(MonitorMessage{Timestamp: ts, Direction: DirectionOut, ChannelID: "web", ConnID: "c", Type: "tools", Content: strings.Repeat("x", 500)})

	out := buf.String()
	if !strings.Contains(out, "[web/01234567] hello") {
		t.Fatalf("inbound line missing: %q", out)
	}
	if !strings.Contains(out, "[AI:tools -> web/c] ") || !strings.Contains(out, "...") {
		t.Fatalf("outbound line missing: %q", out)
	}
	if strings.Contains(out, strings.Repeat("x", 300)) {
		t.Fatal("content not truncated")
	}
}
