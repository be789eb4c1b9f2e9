package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/ecmigrate/field"
	"github.com/pthm-cable/ecmigrate/phenotype"
)

// AgentCreator is the host call that instantiates one agent from a definition
// and assigns its position.
type AgentCreator interface {
	CreateAgent(def *phenotype.Definition, pos r3.Vec)
}

// Lattice holds the spacing derived from a cell radius.
type Lattice struct {
	Radius    float64
	Spacing   float64 // distance between neighbors in a row (two diameters)
	HalfSpace float64 // x shift of odd planes
	RowOffset float64 // distance between planes along z
}

// NewLattice derives HCP spacing from a radius. Spacing is two diameters,
// leaving a gap of one diameter between neighbors.
func NewLattice(radius float64) Lattice {
	spacing := 2.0 * radius * 2.0
	half := 0.5 * spacing
	return Lattice{
		Radius:    radius,
		Spacing:   spacing,
		HalfSpace: half,
		RowOffset: math.Sqrt(3.0) * half,
	}
}

// Positions returns the lattice points inside box, ordered by plane then x.
// Planes run along z from zmin+r to zmax-r; rows run along x from xmin+r,
// shifted by HalfSpace on odd planes. y is pinned to ymin+r for every point.
// A box too narrow for one point yields an empty slice.
func (l Lattice) Positions(box field.BoundingBox) []r3.Vec {
	r := l.Radius
	if r <= 0 {
		return nil
	}
	y := box.Min.Y + r
	xStart := box.Min.X + r
	xEnd := box.Max.X - r
	zStart := box.Min.Z + r
	zEnd := box.Max.Z - r

	var out []r3.Vec
	planes := latticeCount(zEnd-zStart, l.RowOffset)
	for plane := range planes {
		// Multiply rather than accumulate so positions do not drift.
		z := min(zStart+float64(plane)*l.RowOffset, zEnd)
		x0 := xStart
		if plane%2 == 1 {
			x0 += l.HalfSpace
		}
		for i := range latticeCount(xEnd-x0, l.Spacing) {
			x := min(x0+float64(i)*l.Spacing, xEnd)
			out = append(out, r3.Vec{X: x, Y: y, Z: z})
		}
	}
	return out
}

// latticeTolerance is the fraction of a step by which a span may fall short
// and still fit one more point.
const latticeTolerance = 1e-9

// latticeCount returns how many points spaced step apart fit in span,
// counting both ends.
func latticeCount(span, step float64) int {
	n := math.Floor(span/step + latticeTolerance)
	if n < 0 {
		return 0
	}
	return int(n) + 1
}

// TissueSeeder places the initial population on an HCP lattice.
type TissueSeeder struct {
	Box field.BoundingBox
}

// Seed creates one agent of def per lattice point and returns the count.
func (s TissueSeeder) Seed(def *phenotype.Definition, creator AgentCreator) int {
	points := NewLattice(def.Radius()).Positions(s.Box)
	for _, p := range points {
		creator.CreateAgent(def, p)
	}
	return len(points)
}
