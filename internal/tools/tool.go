package tools

import (
	"context"
	"encoding/json"
	"errors"
)

// Tool is a capability the triage engine can invoke to gather context or take an action.
// Execute validates params against the tool's fixed input schema before doing any work.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage // JSON Schema
	Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
}

var (
	// ErrInvalidInput wraps every input validation failure.
	ErrInvalidInput = errors.New("invalid tool input")

	// ErrUnavailable is returned by simulated integrations configured as down.
	ErrUnavailable = errors.New("integration unavailable")
)

// ToolDef is the format for tool definitions expected by the model API, derived from the Tool interface.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Registry holds the tools enabled for one engine configuration.
// Enabled and ToToolDefs report tools in registration order.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry, keyed by its Name.
// Re-registering a name replaces the tool and keeps its original position.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, ok := r.tools[name]; !ok {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get retrieves a tool by name, returns the tool and a boolean indicating if it was found.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Enabled returns the names of all registered tools in registration order.
func (r *Registry) Enabled() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ToToolDefs returns the tool definitions in registration order.
func (r *Registry) ToToolDefs() []ToolDef {
	out := make([]ToolDef, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Parameters(),
		})
	}
	return out
}
