package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"plutus/pkg/api"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// OperationRequest is the argument shape of the built-in tools:
// {"operation": "<name>", "params": {...}}.
type OperationRequest struct {
	Operation string              `json:"operation"`
	Params    jsoniter.RawMessage `json:"params,omitempty"`
}

// OperationFunc handles one operation. params is schema-valid.
type OperationFunc func(ctx context.Context, params jsoniter.RawMessage) Result

// Operation is one named action of a tool.
type Operation struct {
	Name        string
	Description string
	// Params is the JSON schema of the params object; nil accepts any object.
	Params map[string]any
	Run    OperationFunc
}

// Dispatcher routes an OperationRequest to its handler.
type Dispatcher struct {
	tool    string
	names   []string
	ops     map[string]Operation
	schemas map[string]*jsonschema.Schema
}

// NewDispatcher compiles the params schema of every operation.
func NewDispatcher(tool string, ops ...Operation) (*Dispatcher, error) {
	d := &Dispatcher{
		tool:    tool,
		ops:     make(map[string]Operation, len(ops)),
		schemas: make(map[string]*jsonschema.Schema, len(ops)),
	}
	for _, op := range ops {
		if _, dup := d.ops[op.Name]; dup {
			return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateTool, tool, op.Name)
		}
		compiled, err := compileSchema(fmt.Sprintf("mem://tools/%s/%s.json", tool, op.Name), op.Params)
		if err != nil {
			return nil, err
		}
		d.ops[op.Name] = op
		d.schemas[op.Name] = compiled
		d.names = append(d.names, op.Name)
	}
	return d, nil
}

// MustDispatcher is NewDispatcher for static operation tables.
func MustDispatcher(tool string, ops ...Operation) *Dispatcher {
	d, err := NewDispatcher(tool, ops...)
	if err != nil {
		panic(err)
	}
	return d
}

// Names returns the operation names in declaration order.
func (d *Dispatcher) Names() []string {
	return append([]string(nil), d.names...)
}

// Schema is the tool-level schema: an operation enum plus a params object.
func (d *Dispatcher) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        d.Names(),
				"description": "Operation to perform.",
			},
			"params": map[string]any{
				"type":        "object",
				"description": "Operation parameters.",
			},
		},
		"required": []string{"operation"},
	}
}

// Describe renders a tool description that lists every operation and its
// parameters.
func (d *Dispatcher) Describe(summary string) string {
	var sb strings.Builder
	sb.WriteString(summary)
	sb.WriteString("\nOperations:")
	for _, name := range d.names {
		op := d.ops[name]
		fmt.Fprintf(&sb, "\n- %s: %s", name, op.Description)
		if props, ok := op.Params["properties"].(map[string]any); ok && len(props) > 0 {
			keys := make([]string, 0, len(props))
			for k := range props {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(&sb, " (params: %s)", strings.Join(keys, ", "))
		}
	}
	return sb.String()
}

// Dispatch decodes args, validates params and runs the operation. Failures
// without an operation are stamped with the requested one.
func (d *Dispatcher) Dispatch(ctx context.Context, args jsoniter.RawMessage) Result {
	var req OperationRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return api.Failuref("", "Invalid request: %v", err)
	}

	op, ok := d.ops[req.Operation]
	if !ok {
		return api.Failure(req.Operation, "Unknown operation: "+req.Operation)
	}

	params := req.Params
	if len(params) == 0 || string(params) == "null" {
		params = jsoniter.RawMessage("{}")
	}
	v, err := decodeValue(params)
	if err != nil {
		return api.Failuref(req.Operation, "Invalid params: %v", err)
	}
	if err := d.schemas[req.Operation].Validate(v); err != nil {
		return api.Failuref(req.Operation, "Invalid params: %v", err)
	}

	res := op.Run(ctx, params)
	if res.Failure != nil && res.Failure.Operation == "" {
		res.Failure.Operation = req.Operation
	}
	return res
}

// Bind adapts a typed handler into an OperationFunc.
func Bind[T any](fn func(ctx context.Context, p T) Result) OperationFunc {
	return func(ctx context.Context, params jsoniter.RawMessage) Result {
		var p T
		if err := json.Unmarshal(params, &p); err != nil {
			return api.Failuref("", "Invalid params: %v", err)
		}
		return fn(ctx, p)
	}
}

// Fail converts err into a failure result.
func Fail(operation string, err error) Result {
	return api.Failure(operation, err.Error())
}
