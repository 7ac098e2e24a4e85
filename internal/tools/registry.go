package tools

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// Registry is the single source of truth for which operations exist.
// It is immutable after construction.
type Registry struct {
	specs  []ToolSpec
	byName map[ToolName]ToolSpec
}

// NewRegistry builds a registry. Two specs with the same name is a
// configuration error.
func NewRegistry(specs ...ToolSpec) (*Registry, error) {
	r := &Registry{byName: make(map[ToolName]ToolSpec, len(specs))}
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("tool spec without name")
		}
		if _, dup := r.byName[s.Name]; dup {
			return nil, fmt.Errorf("tool %q declared twice", s.Name)
		}
		r.byName[s.Name] = s
		r.specs = append(r.specs, s)
	}
	return r, nil
}

// DefaultRegistry returns the registry of built-in task operations.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinSpecs()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Describe returns the declared tools in declaration order.
func (r *Registry) Describe() []ToolSpec {
	out := make([]ToolSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Lookup returns the spec for name.
func (r *Registry) Lookup(name ToolName) (ToolSpec, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Names returns the declared tool names in declaration order.
func (r *Registry) Names() []ToolName {
	names := make([]ToolName, len(r.specs))
	for i, s := range r.specs {
		names[i] = s.Name
	}
	return names
}

// ToolInfos returns the catalogue handed to a function-calling model.
func (r *Registry) ToolInfos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, len(r.specs))
	for i, s := range r.specs {
		infos[i] = s.ToolInfo()
	}
	return infos
}
