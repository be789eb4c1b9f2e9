package systems

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/ecmigrate/config"
	"github.com/pthm-cable/ecmigrate/phenotype"
	"github.com/pthm-cable/ecmigrate/random"
)

// ErrUnmatchedDensity is returned when strict lookup meets a density with no table entry.
var ErrUnmatchedDensity = errors.New("density has no viscosity entry")

// FieldSampler returns the nearest reading of a substrate at a position.
type FieldSampler interface {
	NearestDensity(p r3.Vec, substrate int) float64
}

// KineticUpdater is the standard velocity update: it turns the nominal
// migration speed and the directional state into a velocity vector.
type KineticUpdater interface {
	UpdateKinetics(a *phenotype.Agent, dt float64, rng random.Uniform)
}

// ForceGenerator draws active migration speeds from a Rayleigh distribution
// with scale Sigma, matching the observed cell-speed distribution.
type ForceGenerator struct {
	Sigma float64
}

// Sample returns sigma*sqrt(-2 ln u) for u drawn from (0, 1).
func (g ForceGenerator) Sample(rng random.Uniform) float64 {
	return g.Sigma * math.Sqrt(-2*math.Log(rng.Open()))
}

// FallbackPolicy decides the viscosity of a density that is not a table key.
type FallbackPolicy uint8

const (
	FallbackNearest     FallbackPolicy = iota // snap to the closest key
	FallbackInterpolate                       // linear between neighbors, clamped at the ends
	FallbackStrict                            // reject unmatched field levels at initialization
)

// ParseFallback maps a config string to a policy.
func ParseFallback(s string) (FallbackPolicy, error) {
	switch s {
	case "nearest", "":
		return FallbackNearest, nil
	case "interpolate":
		return FallbackInterpolate, nil
	case "strict":
		return FallbackStrict, nil
	}
	return 0, fmt.Errorf("unknown viscosity fallback %q", s)
}

// ViscosityTable maps exact density values to drag coefficients.
type ViscosityTable struct {
	points []config.ViscosityPoint // ascending by density
	policy FallbackPolicy
}

// NewViscosityTable validates and sorts the table. Every coefficient must be positive.
func NewViscosityTable(points []config.ViscosityPoint, policy FallbackPolicy) (*ViscosityTable, error) {
	if len(points) == 0 {
		return nil, errors.New("empty viscosity table")
	}
	sorted := append([]config.ViscosityPoint(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Density < sorted[j].Density })
	for i, p := range sorted {
		if !(p.Viscosity > 0) {
			return nil, fmt.Errorf("viscosity for density %v must be positive, got %v", p.Density, p.Viscosity)
		}
		if i > 0 && sorted[i-1].Density == p.Density {
			return nil, fmt.Errorf("duplicate viscosity entry for density %v", p.Density)
		}
	}
	return &ViscosityTable{points: sorted, policy: policy}, nil
}

// Lookup returns the coefficient of an exact table key.
func (t *ViscosityTable) Lookup(density float64) (float64, bool) {
	for _, p := range t.points {
		if p.Density == density {
			return p.Viscosity, true
		}
	}
	return 0, false
}

// Coefficient returns the drag divisor for density, always positive.
// Exact keys win; otherwise the policy applies. Strict tables snap to the
// nearest key, which only happens if Validate was skipped.
func (t *ViscosityTable) Coefficient(density float64) float64 {
	if v, ok := t.Lookup(density); ok {
		return v
	}
	if t.policy == FallbackInterpolate {
		return t.interpolate(density)
	}
	return t.nearest(density)
}

func (t *ViscosityTable) nearest(density float64) float64 {
	best := t.points[0]
	for _, p := range t.points[1:] {
		if math.Abs(p.Density-density) < math.Abs(best.Density-density) {
			best = p
		}
	}
	return best.Viscosity
}

func (t *ViscosityTable) interpolate(density float64) float64 {
	first, last := t.points[0], t.points[len(t.points)-1]
	if !(density > first.Density) {
		return first.Viscosity
	}
	if density >= last.Density {
		return last.Viscosity
	}
	i := sort.Search(len(t.points), func(i int) bool { return t.points[i].Density >= density })
	lo, hi := t.points[i-1], t.points[i]
	frac := (density - lo.Density) / (hi.Density - lo.Density)
	return lo.Viscosity + frac*(hi.Viscosity-lo.Viscosity)
}

// Validate checks the density levels a field can produce. Under the strict
// policy every level must be an exact key.
func (t *ViscosityTable) Validate(levels []float64) error {
	if t.policy != FallbackStrict {
		return nil
	}
	for _, d := range levels {
		if _, ok := t.Lookup(d); !ok {
			return fmt.Errorf("%w: %v", ErrUnmatchedDensity, d)
		}
	}
	return nil
}

// ApplyDrag divides v component-wise by k.
func ApplyDrag(v r3.Vec, k float64) r3.Vec {
	return r3.Vec{X: v.X / k, Y: v.Y / k, Z: v.Z / k}
}

// DragVelocityUpdate is the per-agent velocity hook: it samples the ECM,
// draws a migration speed, delegates to the standard kinetic update and
// divides the result by the local viscosity.
type DragVelocityUpdate struct {
	Field     FieldSampler
	Substrate int
	Table     *ViscosityTable
	Force     ForceGenerator
	Kinetics  KineticUpdater
}

// UpdateVelocity mutates a's velocity and motility state in place.
func (m *DragVelocityUpdate) UpdateVelocity(a *phenotype.Agent, dt float64, rng random.Uniform) {
	density := m.Field.NearestDensity(a.Position, m.Substrate)
	viscosity := m.Table.Coefficient(density)

	a.Motility.MigrationSpeed = m.Force.Sample(rng)

	m.Kinetics.UpdateKinetics(a, dt, rng)

	// 1/viscosity accounts for friction with the matrix
	a.Velocity = ApplyDrag(a.Velocity, viscosity)
	a.Motility.Viscosity = viscosity
}
