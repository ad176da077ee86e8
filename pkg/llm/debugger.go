package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugRoot is the directory raw stream chunks are dumped under.
var DebugRoot = filepath.Join("debug", "chunks")

// StreamDebugger appends raw provider chunks to a per-stream log file.
// A disabled debugger is a no-op.
type StreamDebugger struct {
	mu   sync.Mutex
	file *os.File
}

// NewStreamDebugger opens debug/chunks/[<conn>/]<provider>/<timestamp>.log
// when enabled. The connection directory is read from DebugDirContextKey.
func NewStreamDebugger(ctx context.Context, provider string, enabled bool) *StreamDebugger {
	if !enabled {
		return &StreamDebugger{}
	}

	dir := filepath.Join(DebugRoot, provider)
	if conn, ok := ctx.Value(DebugDirContextKey).(string); ok && conn != "" {
		dir = filepath.Join(DebugRoot, conn, provider)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("Failed to create debug directory", "dir", dir, "error", err)
		return &StreamDebugger{}
	}

	name := filepath.Join(dir, fmt.Sprintf("%s.log", time.Now().Format("20060102_150405.000")))
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("Failed to open debug file", "file", name, "error", err)
		return &StreamDebugger{}
	}

	slog.Debug("Stream debug file opened", "provider", provider, "file", name)
	return &StreamDebugger{file: f}
}

// Write appends data followed by a newline.
func (d *StreamDebugger) Write(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return
	}
	if _, err := d.file.Write(append(data, '\n')); err != nil {
		slog.Warn("Failed to write debug file", "error", err)
	}
}

// WriteString appends s followed by a newline.
func (d *StreamDebugger) WriteString(s string) {
	d.Write([]byte(s))
}

// WriteJSON appends v encoded as JSON.
func (d *StreamDebugger) WriteJSON(v any) {
	d.mu.Lock()
	enabled := d.file != nil
	d.mu.Unlock()
	if !enabled {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		d.WriteString(fmt.Sprintf("unencodable chunk: %v", err))
		return
	}
	d.Write(b)
}

// Close closes the debug file.
func (d *StreamDebugger) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
}
