package node

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Factory constructs a fresh Node instance. Registry calls Factory once per
// node-per-session: node instances are never shared across sessions.
type Factory func() Node

// registration pairs a Descriptor with the Factory that builds instances of
// that node type, plus a precompiled schema loader for ValidateParams.
type registration struct {
	descriptor Descriptor
	factory    Factory
	schema     *gojsonschema.Schema
}

// Registry maps manifest node "type" strings to constructors, and validates
// node params against each type's declared JSON Schema before Init is
// called.
type Registry struct {
	mu    sync.RWMutex
	types map[string]registration
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]registration)}
}

// Register adds a node type. It returns an error if the type name is
// already registered, or if descriptor.ParamSchema does not compile as a
// JSON Schema.
func (r *Registry) Register(descriptor Descriptor, factory Factory) error {
	if descriptor.Type == "" {
		return fmt.Errorf("node registry: descriptor.Type must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("node registry: factory for %q must not be nil", descriptor.Type)
	}

	var compiled *gojsonschema.Schema
	if descriptor.ParamSchema != nil {
		raw, err := json.Marshal(descriptor.ParamSchema)
		if err != nil {
			return fmt.Errorf("node registry: marshal param schema for %q: %w", descriptor.Type, err)
		}
		compiled, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return fmt.Errorf("node registry: compile param schema for %q: %w", descriptor.Type, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[descriptor.Type]; exists {
		return fmt.Errorf("node registry: type %q already registered", descriptor.Type)
	}
	r.types[descriptor.Type] = registration{descriptor: descriptor, factory: factory, schema: compiled}
	return nil
}

// Lookup returns the Descriptor for a registered type.
func (r *Registry) Lookup(nodeType string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[nodeType]
	return reg.descriptor, ok
}

// Types returns the registered node type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// New constructs a fresh Node instance of nodeType. It returns an error if
// the type is not registered.
func (r *Registry) New(nodeType string) (Node, error) {
	r.mu.RLock()
	reg, ok := r.types[nodeType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("node registry: unknown node type %q", nodeType)
	}
	return reg.factory(), nil
}

// ValidateParams checks params against nodeType's declared JSON Schema. A
// node type registered with a nil ParamSchema accepts any params. Returns
// a *ParamValidationError aggregating every violation found.
func (r *Registry) ValidateParams(nodeType string, params map[string]any) error {
	r.mu.RLock()
	reg, ok := r.types[nodeType]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("node registry: unknown node type %q", nodeType)
	}
	if reg.schema == nil {
		return nil
	}

	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("node registry: marshal params for %q: %w", nodeType, err)
	}

	result, err := reg.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("node registry: validate params for %q: %w", nodeType, err)
	}
	if result.Valid() {
		return nil
	}

	perr := &ParamValidationError{NodeType: nodeType}
	for _, e := range result.Errors() {
		perr.Violations = append(perr.Violations, ParamViolation{
			Field:       e.Field(),
			Description: e.Description(),
		})
	}
	return perr
}

// ParamViolation describes one JSON Schema validation failure.
type ParamViolation struct {
	Field       string
	Description string
}

// ParamValidationError aggregates every param schema violation for a single
// node instance, so a manifest author sees all mistakes in one pass.
type ParamValidationError struct {
	NodeType   string
	Violations []ParamViolation
}

func (e *ParamValidationError) Error() string {
	msg := fmt.Sprintf("invalid params for node type %q (%d violation(s)):", e.NodeType, len(e.Violations))
	for _, v := range e.Violations {
		msg += fmt.Sprintf("\n  - %s: %s", v.Field, v.Description)
	}
	return msg
}
