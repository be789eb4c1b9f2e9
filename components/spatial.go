package components

import "gonum.org/v1/gonum/spatial/r3"

// Position represents an agent's position in microns.
type Position struct {
	r3.Vec
}

// Velocity represents an agent's velocity in microns per minute.
type Velocity struct {
	r3.Vec
}
