package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchConfigSignalsOnWrite(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "system.json")
	if err := os.WriteFile(p, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := WatchConfig(ctx, p)
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(p, []byte(`{"max_tool_rounds":2}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload signal")
	}
}

func TestSystemHolderWatchReloads(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "system.json")
	if err := os.WriteFile(p, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewSystemHolder(nil)
	got := make(chan *SystemConfig, 4)
	h.Watch(ctx, p, func(c *SystemConfig) { got <- c })
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(p, []byte(`{"max_tool_rounds":2}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.MaxToolRounds != 2 || h.Get().MaxToolRounds != 2 {
			t.Fatalf("reload not applied: %+v", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}
}
