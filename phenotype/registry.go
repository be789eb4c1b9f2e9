package phenotype

import (
	"fmt"

	"github.com/pthm-cable/ecmigrate/config"
)

// Registry looks definitions up by index and by name. It is built once and
// never mutated afterwards.
type Registry struct {
	defs   []*Definition
	byName map[string]*Definition
}

// NewRegistry indexes the given definitions in order.
func NewRegistry(defs ...*Definition) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Definition, len(defs))}
	for i, d := range defs {
		if _, dup := r.byName[d.name]; dup {
			return nil, fmt.Errorf("duplicate cell definition %q", d.name)
		}
		d.index = i
		r.defs = append(r.defs, d)
		r.byName[d.name] = d
	}
	return r, nil
}

// RegistryFromConfig builds one definition per configured entry, sharing the
// motility parameters and the injected velocity updater and hooks.
func RegistryFromConfig(cfg *config.Config, velocity VelocityUpdater, hooks ...Behavior) (*Registry, error) {
	defs := make([]*Definition, 0, len(cfg.Definitions))
	for _, dc := range cfg.Definitions {
		motile := true
		if dc.Motile != nil {
			motile = *dc.Motile
		}
		opts := []Option{
			WithMotility(MotilityParams{
				Motile:              motile,
				PersistenceTime:     cfg.Motility.PersistenceTime,
				LateralRestriction:  cfg.Motility.LateralRestriction,
				VerticalRestriction: cfg.Motility.VerticalRestriction,
				ForwardBias:         cfg.Motility.ForwardBias,
			}),
			WithVelocityUpdater(velocity),
		}
		for _, h := range hooks {
			opts = append(opts, WithHook(h))
		}
		defs = append(defs, NewDefinition(dc.Name, dc.Radius, opts...))
	}
	return NewRegistry(defs...)
}

// Len returns the number of definitions.
func (r *Registry) Len() int { return len(r.defs) }

// Default returns the first definition.
func (r *Registry) Default() *Definition { return r.defs[0] }

// ByIndex returns the definition at i, or nil.
func (r *Registry) ByIndex(i int) *Definition {
	if i < 0 || i >= len(r.defs) {
		return nil
	}
	return r.defs[i]
}

// ByName returns the named definition.
func (r *Registry) ByName(name string) (*Definition, bool) {
	d, ok := r.byName[name]
	return d, ok
}
