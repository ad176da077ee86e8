package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"plutus/pkg/api"
	"plutus/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type (
	Tool   = api.Tool
	Result = api.ToolResult
)

var (
	ErrDuplicateTool = errors.New("tools: duplicate tool name")
	ErrSchema        = errors.New("tools: invalid schema")
	ErrEmptyName     = errors.New("tools: empty tool name")
)

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry is the closed set of tools offered to the engine. Schemas are
// compiled once at registration.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*entry
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*entry),
	}
}

// Register adds tool after compiling its schema.
func (r *Registry) Register(tool Tool) error {
	name := strings.TrimSpace(tool.Name())
	if name == "" {
		return ErrEmptyName
	}

	compiled, err := compileSchema("mem://tools/"+name+".json", tool.Schema())
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = &entry{tool: tool, schema: compiled}
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// All returns the tools in registration order.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].tool)
	}
	return out
}

// Specs returns the engine-facing declarations in registration order.
func (r *Registry) Specs() []llm.ToolSpec {
	all := r.All()
	specs := make([]llm.ToolSpec, 0, len(all))
	for _, t := range all {
		specs = append(specs, llm.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return specs
}

// Invoke validates rawArgs against the tool schema and executes it. It never
// panics and never returns a Go error: unknown tools, invalid arguments,
// panics and ctx expiry all become failure results.
func (r *Registry) Invoke(ctx context.Context, name, rawArgs string) Result {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return api.Failure("", "Unknown operation: "+name)
	}

	args := jsoniter.RawMessage(strings.TrimSpace(rawArgs))
	if len(args) == 0 {
		args = jsoniter.RawMessage("{}")
	}

	v, err := decodeValue(args)
	if err != nil {
		return api.Failuref(name, "Invalid arguments: %v", err)
	}
	if err := e.schema.Validate(v); err != nil {
		return api.Failuref(name, "Invalid arguments: %v", err)
	}

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("Tool panicked", "tool", name, "panic", p, "stack", string(debug.Stack()))
				done <- api.Failure(name, fmt.Sprint(p))
			}
		}()
		done <- e.tool.Execute(ctx, args)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return api.Failuref(name, "Tool %s timed out", name)
		}
		return api.Failuref(name, "Tool %s cancelled", name)
	}
}
