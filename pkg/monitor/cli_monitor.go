package monitor

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// previewLimit truncates long card payloads in the terminal.
const previewLimit = 240

// CLIMonitor prints relay traffic to a terminal.
type CLIMonitor struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewCLIMonitor writes to w, or stdout when w is nil.
func NewCLIMonitor(w io.Writer) *CLIMonitor {
	if w == nil {
		w = os.Stdout
	}
	return &CLIMonitor{writer: w}
}

func (m *CLIMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	fmt.Fprintln(m.writer, "CLI Monitor active: relay traffic will appear here")
	fmt.Fprintln(m.writer, "----------------------------------------------------------------")
	return nil
}

func (m *CLIMonitor) Stop() error {
	return nil
}

func (m *CLIMonitor) OnMessage(msg MonitorMessage) {
	timestamp := msg.Timestamp.Format("2006-01-02 15:04:05")

	content := msg.Content
	if r := []rune(content); len(r) > previewLimit {
		content = string(r[:previewLimit]) + "..."
	}

	var line string
	if msg.Direction == DirectionOut {
		line = fmt.Sprintf("[AI:%s -> %s/%s] %s", msg.Type, msg.ChannelID, shortID(msg.ConnID), content)
	} else {
		line = fmt.Sprintf("[%s/%s] %s", msg.ChannelID, shortID(msg.ConnID), content)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(m.writer, "\033[90m[%s]\033[0m %s\n", timestamp, line)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
