// Package components defines ECS components for the simulation.
package components

import "gonum.org/v1/gonum/spatial/r3"

// Cell bundles identity and the immutable template an agent was created from.
type Cell struct {
	ID         uint32
	Definition int     // index into the phenotype registry
	InitialY   float64 // y at seeding, the origin of traveled distance
}

// Motility is the mutable per-step locomotion state of an agent.
type Motility struct {
	MigrationSpeed float64 // nominal speed, overwritten every step
	Direction      r3.Vec  // persistent unit direction of active motion
	Viscosity      float64 // drag divisor applied on the last step
}
