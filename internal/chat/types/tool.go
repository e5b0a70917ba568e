package types

// ToolInputSchema is the JSON-schema fragment describing a tool's input.
type ToolInputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

// ToolSpec declares a tool the model may invoke. A spec without an input
// schema is not translatable and is skipped when building proxy requests.
type ToolSpec struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	InputSchema *ToolInputSchema `json:"input_schema,omitempty"`
}
