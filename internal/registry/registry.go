// Package registry holds the console's known tools: their parameter
// schemas, categories, and invokers. The orchestration core treats every
// invoker as an opaque contract; it does not know how infrastructure is
// provisioned or how a compliance scan runs.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Category groups tools by the operational concern they serve.
type Category string

const (
	CategoryProvision  Category = "provision"
	CategoryCompliance Category = "compliance"
	CategoryCost       Category = "cost"
	CategoryPrivilege  Category = "privilege"
	CategoryReporting  Category = "reporting"
)

// ParamSpec describes one tool parameter. Pattern, when set, is a regex
// the classifier uses to extract the value from free-form input.
type ParamSpec struct {
	Name     string
	Required bool
	Default  any
	Pattern  string
	Prompt   string
}

// ToolSpec describes a registered tool.
type ToolSpec struct {
	Name        string
	Category    Category
	Action      string
	Description string
	Keywords    []string
	Params      []ParamSpec
}

// RequiredParams returns the names of parameters that must be present and
// have no default.
func (s *ToolSpec) RequiredParams() []string {
	var names []string
	for _, p := range s.Params {
		if p.Required && p.Default == nil {
			names = append(names, p.Name)
		}
	}
	return names
}

// InvokerFunc executes a tool. A non-nil error is the explicit failure
// signal; the result value is opaque to the orchestration core.
type InvokerFunc func(ctx context.Context, args map[string]any) (any, error)

// Registry stores tool specs and invokers keyed by tool name.
type Registry struct {
	mu       sync.RWMutex
	specs    map[string]*ToolSpec
	invokers map[string]InvokerFunc
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:    make(map[string]*ToolSpec),
		invokers: make(map[string]InvokerFunc),
	}
}

// Register adds a tool spec with its invoker.
func (r *Registry) Register(spec *ToolSpec, invoke InvokerFunc) error {
	if spec == nil || spec.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if invoke == nil {
		return fmt.Errorf("invoker is required for %s", spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("tool already registered: %s", spec.Name)
	}
	r.specs[spec.Name] = spec
	r.invokers[spec.Name] = invoke
	return nil
}

// MustRegister registers a tool or panics. For static builtin sets.
func (r *Registry) MustRegister(spec *ToolSpec, invoke InvokerFunc) {
	if err := r.Register(spec, invoke); err != nil {
		panic(err)
	}
}

// Lookup returns the spec for a tool name.
func (r *Registry) Lookup(name string) (*ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// All returns every registered spec, ordered by name.
func (r *Registry) All() []*ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]*ToolSpec, 0, len(r.specs))
	for _, s := range r.specs {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Invoke runs the invoker for the tool name.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	invoke := r.invokers[name]
	r.mu.RUnlock()
	if invoke == nil {
		return nil, fmt.Errorf("no invoker registered for %s", name)
	}
	return invoke(ctx, args)
}
