// Package tools implements the permission-gated tool surface of the
// copilot core: the registry of tool descriptors, the tier-aware
// confirmation messages, and the two-phase execution engine
// (invoke → pending activity → resume/reject).
package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pressmill/pressmill/copilot-core/pkg/contracts"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Descriptor is the immutable definition of one tool. Registered once at
// process start; never mutated afterwards.
type Descriptor struct {
	Name        string
	Description string
	Tier        models.PermissionTier
	// Schema is a JSON Schema describing the accepted arguments. Used
	// both for validation and for exposing the tool to the agent.
	Schema  map[string]interface{}
	Handler contracts.ToolHandler

	compiled *gojsonschema.Schema
}

// Registry maps tool names to descriptors.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Descriptor
	names []string // registration order
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Descriptor)}
}

// Register adds a tool descriptor. Registering a duplicate name or a
// broken schema is a programmer error and fails loudly at startup.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if d.Handler == nil {
		return fmt.Errorf("register tool %s: nil handler", d.Name)
	}
	if d.Tier == "" {
		d.Tier = models.TierConfirm // safe default: never auto-execute unclassified tools
	}

	if d.Schema != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(d.Schema))
		if err != nil {
			return fmt.Errorf("register tool %s: invalid schema: %w", d.Name, err)
		}
		d.compiled = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("register tool %s: already registered", d.Name)
	}
	r.tools[d.Name] = &d
	r.names = append(r.names, d.Name)

	log.Info().Str("tool", d.Name).Str("tier", string(d.Tier)).Msg("Tool registered")
	return nil
}

// Get returns the descriptor for a tool name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, *r.tools[name])
	}
	return out
}

// ValidateArgs checks args against the tool's parameter schema.
// Tools without a schema accept anything.
func (r *Registry) ValidateArgs(name string, args map[string]interface{}) error {
	d, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("tool not found: %s", name)
	}
	if d.compiled == nil {
		return nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := d.compiled.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("validate arguments: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		sort.Strings(msgs)
		return fmt.Errorf("invalid arguments for %s: %v", name, msgs)
	}
	return nil
}

// Declarations returns OpenAI-style function definitions for every
// registered tool, so the external agent can discover what it may call.
// The permission tier rides along so the agent can warn the user about
// gated actions before invoking them.
func (r *Registry) Declarations() []map[string]interface{} {
	list := r.List()
	defs := make([]map[string]interface{}, 0, len(list))
	for _, d := range list {
		schema := d.Schema
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		defs = append(defs, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  schema,
			},
			"permission_tier": string(d.Tier),
		})
	}
	return defs
}
