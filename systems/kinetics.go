package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/ecmigrate/phenotype"
	"github.com/pthm-cable/ecmigrate/random"
)

// ChannelAxis is the forward direction of the chip channel.
var ChannelAxis = r3.Vec{X: 0, Y: 1, Z: 0}

// StandardKinetics is a biased persistent random walk. The direction is
// renewed with probability dt/persistence_time per step, restricted
// laterally (x) and vertically (z), then blended with Bias by forward_bias.
// Velocity is migration_speed along the current direction.
type StandardKinetics struct {
	Bias r3.Vec
}

// NewStandardKinetics biases motion along the channel axis.
func NewStandardKinetics() StandardKinetics {
	return StandardKinetics{Bias: ChannelAxis}
}

// UpdateKinetics writes a.Velocity from a.Motility.
func (s StandardKinetics) UpdateKinetics(a *phenotype.Agent, dt float64, rng random.Uniform) {
	p := a.Definition.Motility()
	if !p.Motile {
		a.Velocity = r3.Vec{}
		return
	}

	if a.Motility.Direction == (r3.Vec{}) || rng.Open() < dt/p.PersistenceTime {
		a.Motility.Direction = s.turn(p, rng)
	}

	a.Velocity = r3.Scale(a.Motility.MigrationSpeed, a.Motility.Direction)
}

// turn draws a new unit direction.
func (s StandardKinetics) turn(p phenotype.MotilityParams, rng random.Uniform) r3.Vec {
	d := RandomUnit(rng)
	d.X *= 1 - p.LateralRestriction
	d.Z *= 1 - p.VerticalRestriction
	if n := r3.Norm(d); n > 0 {
		d = r3.Scale(1/n, d)
	}

	dir := r3.Add(r3.Scale(1-p.ForwardBias, d), r3.Scale(p.ForwardBias, s.Bias))
	n := r3.Norm(dir)
	if n == 0 {
		return s.Bias
	}
	return r3.Scale(1/n, dir)
}

// RandomUnit returns a direction uniformly distributed on the unit sphere.
func RandomUnit(rng random.Uniform) r3.Vec {
	theta := 2 * math.Pi * rng.Open()
	cosPhi := 2*rng.Open() - 1
	sinPhi := math.Sqrt(1 - cosPhi*cosPhi)
	return r3.Vec{
		X: sinPhi * math.Cos(theta),
		Y: sinPhi * math.Sin(theta),
		Z: cosPhi,
	}
}
