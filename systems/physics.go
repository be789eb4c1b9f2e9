// Package systems contains the seeding, locomotion and integration systems.
package systems

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/ecmigrate/components"
	"github.com/pthm-cable/ecmigrate/field"
)

// PhysicsSystem advances agent positions from their velocities.
type PhysicsSystem struct {
	filter *ecs.Filter2[components.Position, components.Velocity]
	bounds field.BoundingBox
}

// NewPhysicsSystem creates a new physics system. Agents are kept inside bounds.
func NewPhysicsSystem(w *ecs.World, bounds field.BoundingBox) *PhysicsSystem {
	return &PhysicsSystem{
		filter: ecs.NewFilter2[components.Position, components.Velocity](w),
		bounds: bounds,
	}
}

// Update runs the physics system for one step of length dt.
func (s *PhysicsSystem) Update(dt float64) {
	query := s.filter.Query()
	for query.Next() {
		pos, vel := query.Get()
		pos.Vec = Integrate(pos.Vec, vel.Vec, dt, s.bounds)
	}
}

// Integrate takes one explicit Euler step and clamps the result to bounds
// (the mesh faces act as walls).
func Integrate(p, v r3.Vec, dt float64, bounds field.BoundingBox) r3.Vec {
	return bounds.Clamp(r3.Add(p, r3.Scale(dt, v)))
}
