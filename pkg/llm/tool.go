package llm

// ToolSpec declares a callable tool to the model. Parameters is a JSON
// schema object.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
