// Package phenotype holds cell definitions: immutable templates shared by many
// agents, with behavior objects injected at construction time.
package phenotype

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/ecmigrate/components"
	"github.com/pthm-cable/ecmigrate/random"
)

// Agent is the per-step view of one agent handed to behavior objects.
// Only the invocation that owns it may write Velocity and Motility.
type Agent struct {
	ID         uint32
	Position   r3.Vec
	Velocity   r3.Vec
	Motility   components.Motility
	Definition *Definition
}

// VelocityUpdater computes an agent's velocity for one step.
type VelocityUpdater interface {
	UpdateVelocity(a *Agent, dt float64, rng random.Uniform)
}

// MotilityParams are the default locomotion parameters of a definition.
type MotilityParams struct {
	Motile              bool
	PersistenceTime     float64 // minutes
	LateralRestriction  float64 // [0,1], damping of the x direction component
	VerticalRestriction float64 // [0,1], damping of the z direction component
	ForwardBias         float64 // [0,1], weight of the +y bias direction
}

// Definition is an immutable template shared by many agents.
type Definition struct {
	name     string
	index    int
	radius   float64
	motility MotilityParams
	velocity VelocityUpdater
	hooks    [numHookKinds]Behavior
}

// Option configures a Definition during construction.
type Option func(*Definition)

// WithMotility sets the motility defaults.
func WithMotility(p MotilityParams) Option {
	return func(d *Definition) { d.motility = p }
}

// WithVelocityUpdater injects the velocity update behavior.
func WithVelocityUpdater(v VelocityUpdater) Option {
	return func(d *Definition) { d.velocity = v }
}

// WithHook installs a behavior in the slot named by its Kind.
func WithHook(b Behavior) Option {
	return func(d *Definition) {
		if k := b.Kind(); k > HookNone && k < numHookKinds {
			d.hooks[k] = b
		}
	}
}

// NewDefinition creates a definition. Unset hooks are no-ops; an unset
// velocity updater leaves velocities untouched.
func NewDefinition(name string, radius float64, opts ...Option) *Definition {
	d := &Definition{name: name, radius: radius}
	for k := range d.hooks {
		d.hooks[k] = NoOp{kind: HookKind(k)}
	}
	d.velocity = stationary{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the definition name.
func (d *Definition) Name() string { return d.name }

// Index returns the registry index.
func (d *Definition) Index() int { return d.index }

// Radius returns the default cell radius in microns.
func (d *Definition) Radius() float64 { return d.radius }

// Motility returns the motility defaults.
func (d *Definition) Motility() MotilityParams { return d.motility }

// VelocityUpdater returns the injected velocity behavior.
func (d *Definition) VelocityUpdater() VelocityUpdater { return d.velocity }

// Hook returns the behavior installed for kind, or a no-op.
func (d *Definition) Hook(kind HookKind) Behavior {
	if kind <= HookNone || kind >= numHookKinds {
		return NoOp{}
	}
	return d.hooks[kind]
}

// stationary leaves the velocity as it is.
type stationary struct{}

func (stationary) UpdateVelocity(*Agent, float64, random.Uniform) {}
