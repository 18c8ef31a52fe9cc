package tools

import (
	"fmt"

	"github.com/mohammad-safakhou/hously/internal/turn"
)

// Registry holds the tools available to agent branches, in registration
// order so the prompt listing stays stable.
type Registry struct {
	order  []string
	byName map[string]turn.Tool
}

func NewRegistry(tools ...turn.Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]turn.Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(t turn.Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("tool %q registered twice", name)
	}
	r.byName[name] = t
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Lookup(name string) (turn.Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// All returns the tools in registration order.
func (r *Registry) All() []turn.Tool {
	out := make([]turn.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
