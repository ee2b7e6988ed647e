// Package tool holds declarative tool definitions and dispatches model
// requested invocations against them.
package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/loom/internal/observability"
)

// Parameter describes a single tool argument.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler is the function signature for tool execution. Handlers are
// synchronous; the arguments have already passed schema validation.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Definition declares a tool: its name, the description the model uses
// for selection, the argument schema, and the handler.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Schema is the wire form of a tool definition bound into a model call.
type Schema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type entry struct {
	def      Definition
	compiled *gojsonschema.Schema
	input    map[string]interface{}
}

// Registry is a closed lookup table of tools. Registration order is
// preserved so schema listings stay stable across calls within a
// session; a shuffled tool order between calls confuses models.
type Registry struct {
	entries map[string]*entry
	order   []string
	mu      sync.RWMutex
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register adds a tool. It fails with ErrDuplicateTool if the name is
// already taken and validates the definition eagerly so a malformed
// schema is caught at startup, not mid-turn.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	input := inputSchema(def)
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(input))
	if err != nil {
		return fmt.Errorf("failed to compile schema for tool %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}

	r.entries[def.Name] = &entry{def: def, compiled: compiled, input: input}
	r.order = append(r.order, def.Name)

	log.Info().Str("tool", def.Name).Msg("Tool registered")

	return nil
}

// Describe returns the schemas of all registered tools in registration
// order. The returned slice is a fresh copy.
func (r *Registry) Describe() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		schemas = append(schemas, Schema{
			Name:        e.def.Name,
			Description: e.def.Description,
			InputSchema: e.input,
		})
	}

	return schemas
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Definition{}, false
	}
	return e.def, true
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Invoke validates args against the tool's schema and runs its handler.
// Failure modes: ErrUnknownTool for an absent name, *ArgumentError for
// schema violations, *ExecutionError wrapping whatever the handler
// raised. No retries happen here.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if args == nil {
		args = map[string]interface{}{}
	}

	if err := r.validateArgs(e, name, args); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := e.def.Handler(ctx, args)
	duration := time.Since(start)

	observability.RecordToolExecution(name, duration, err == nil)

	if err != nil {
		log.Error().
			Str("tool", name).
			Dur("duration", duration).
			Err(err).
			Msg("Tool execution failed")
		return nil, &ExecutionError{Tool: name, Err: err}
	}

	log.Debug().
		Str("tool", name).
		Dur("duration", duration).
		Msg("Tool execution completed")

	return out, nil
}

func (r *Registry) validateArgs(e *entry, name string, args map[string]interface{}) error {
	result, err := e.compiled.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &ArgumentError{Tool: name, Issues: []string{err.Error()}}
	}

	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, issue := range result.Errors() {
			issues = append(issues, issue.String())
		}
		return &ArgumentError{Tool: name, Issues: issues}
	}

	return nil
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}

	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
	}

	return nil
}

func inputSchema(def Definition) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}
