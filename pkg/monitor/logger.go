package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"plutus/pkg/llm"
)

// level is shared by every handler installed through SetupSlog so that
// SetLevel takes effect without reinstalling the logger.
var level = new(slog.LevelVar)

// CustomHandler implements slog.Handler with a [TIME] [LEVEL] [CONN] format.
type CustomHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	opts  slog.HandlerOptions
	attrs []slog.Attr
}

func NewCustomHandler(w io.Writer, opts slog.HandlerOptions) *CustomHandler {
	return &CustomHandler{
		mu:   &sync.Mutex{},
		w:    w,
		opts: opts,
	}
}

func (h *CustomHandler) Enabled(ctx context.Context, l slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}
	return l >= threshold
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := bytes.NewBuffer(nil)

	fmt.Fprintf(buf, "[%s] [%s]",
		r.Time.Format("2006-01-02 15:04:05"),
		r.Level,
	)

	// The connection id doubles as the stream debug directory.
	if ctx != nil {
		if id, ok := ctx.Value(llm.DebugDirContextKey).(string); ok && id != "" {
			fmt.Fprintf(buf, " [%s]", id)
		}
	}

	fmt.Fprintf(buf, " %s", r.Message)

	for _, a := range h.attrs {
		h.appendAttr(buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, a)
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *CustomHandler) appendAttr(buf *bytes.Buffer, a slog.Attr) {
	buf.WriteString(" ")
	buf.WriteString(a.Key)
	buf.WriteString("=")

	val := a.Value.Resolve()
	switch val.Kind() {
	case slog.KindString:
		fmt.Fprintf(buf, "%q", val.String())
	case slog.KindTime:
		buf.WriteString(val.Time().Format(time.RFC3339))
	default:
		fmt.Fprintf(buf, "%v", val.Any())
	}
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &CustomHandler{
		mu:    h.mu,
		w:     h.w,
		opts:  h.opts,
		attrs: merged,
	}
}

// WithGroup is not supported; attributes stay flat.
func (h *CustomHandler) WithGroup(name string) slog.Handler {
	return h
}

// ParseLevel maps "debug", "warn", "error" to slog levels; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupSlog installs the CustomHandler on stderr as the default logger.
func SetupSlog(levelStr string) {
	level.Set(ParseLevel(levelStr))
	handler := NewCustomHandler(os.Stderr, slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// SetLevel changes the level of the logger installed by SetupSlog.
func SetLevel(levelStr string) {
	level.Set(ParseLevel(levelStr))
}

// PrintBanner prints the startup banner.
func PrintBanner() {
	banner := `
 ____  _     _   _ _____ _   _ ____
|  _ \| |   | | | |_   _| | | / ___|
| |_) | |   | | | | | | | | | \___ \
|  __/| |___| |_| | | | | |_| |___) |
|_|   |_____|\___/  |_|  \___/|____/
`
	fmt.Println(banner)
}
