package tools

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jaimegago/scribe/internal/llm"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	// ErrUnknownTool is returned when a tool name does not resolve in
	// the registry.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrSchemaViolation is returned when resolved arguments do not
	// satisfy a tool's parameter schema.
	ErrSchemaViolation = errors.New("arguments violate tool schema")
)

// Registry manages available tools. It is read-only after construction
// and safe to share; per-session tools are added to a Clone.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry, compiling its parameter schema
// for argument validation.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	schema, err := compileSchema(tool.Parameters())
	if err != nil {
		return fmt.Errorf("invalid parameter schema for tool %q: %w", name, err)
	}
	r.tools[name] = tool
	r.schemas[name] = schema
	return nil
}

// MustRegister registers a tool and panics on failure. For use with the
// builtin tool set whose schemas are fixed at compile time.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool, nil
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Schemas converts all registered tools to LLM tool definitions, in
// name order so the schema list is deterministic across calls.
func (r *Registry) Schemas() []llm.ToolDefinition {
	tools := r.List()
	definitions := make([]llm.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		definitions = append(definitions, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return definitions
}

// ValidateArgs checks resolved arguments against the tool's compiled
// parameter schema. Values are normalized through JSON first since
// resolved arguments may hold arbitrary Go values from the blackboard.
func (r *Registry) ValidateArgs(name string, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	normalized, err := normalizeJSON(args)
	if err != nil {
		// Non-serializable values cannot be schema-checked; the
		// executor's own coercion will reject them if unusable.
		return nil
	}
	if err := schema.Validate(normalized); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

// Clone returns a shallow copy of the registry that can take
// session-scoped registrations without mutating the shared one.
func (r *Registry) Clone() *Registry {
	c := NewRegistry()
	for name, tool := range r.tools {
		c.tools[name] = tool
		c.schemas[name] = r.schemas[name]
	}
	return c
}
