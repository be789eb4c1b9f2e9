package field

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ojrac/opensimplex-go"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/ecmigrate/config"
)

// ErrUnknownSubstrate is returned when a named field does not exist.
var ErrUnknownSubstrate = errors.New("unknown substrate")

// DensityField stores one static scalar value per voxel for each named substrate.
// It is read-only once built, so concurrent sampling needs no locking.
type DensityField struct {
	mesh       *Mesh
	substrates []string
	values     [][]float64
}

// NewDensityField allocates zeroed fields for the given substrates.
func NewDensityField(mesh *Mesh, substrates ...string) *DensityField {
	f := &DensityField{
		mesh:       mesh,
		substrates: append([]string(nil), substrates...),
		values:     make([][]float64, len(substrates)),
	}
	for i := range f.values {
		f.values[i] = make([]float64, mesh.NumVoxels())
	}
	return f
}

// Index returns the index of a named substrate.
func (f *DensityField) Index(name string) (int, error) {
	for i, s := range f.substrates {
		if s == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownSubstrate, name)
}

// NearestDensity returns the value of substrate idx in the voxel nearest to p.
func (f *DensityField) NearestDensity(p r3.Vec, idx int) float64 {
	return f.values[idx][f.mesh.NearestVoxel(p)]
}

// Fill sets every voxel of substrate idx to v.
func (f *DensityField) Fill(idx int, v float64) {
	vals := f.values[idx]
	for i := range vals {
		vals[i] = v
	}
}

// FillPatches fills substrate idx with OpenSimplex noise quantized onto levels,
// so every voxel holds exactly one of the given values.
func (f *DensityField) FillPatches(idx int, levels []float64, scale float64, seed int64) {
	noise := opensimplex.NewNormalized(seed)
	m := f.mesh
	n := len(levels)
	for k := 0; k < m.NZ; k++ {
		for j := 0; j < m.NY; j++ {
			for i := 0; i < m.NX; i++ {
				c := m.VoxelCenter(i, j, k)
				v := noise.Eval3(c.X*scale, c.Y*scale, c.Z*scale)
				level := min(int(math.Floor(v*float64(n))), n-1)
				f.values[idx][m.VoxelIndex(i, j, k)] = levels[max(level, 0)]
			}
		}
	}
}

// Levels returns the distinct values present in substrate idx, ascending.
func (f *DensityField) Levels(idx int) []float64 {
	seen := make(map[float64]struct{})
	for _, v := range f.values[idx] {
		seen[v] = struct{}{}
	}
	levels := make([]float64, 0, len(seen))
	for v := range seen {
		levels = append(levels, v)
	}
	sort.Float64s(levels)
	return levels
}

// NewECMField builds the mesh-backed ECM field described by cfg.
func NewECMField(mesh *Mesh, cfg config.ECMConfig) (*DensityField, error) {
	f := NewDensityField(mesh, cfg.Substrate)
	switch cfg.Mode {
	case "uniform":
		f.Fill(0, cfg.Density)
	case "patches":
		f.FillPatches(0, cfg.Levels, cfg.Scale, cfg.Seed)
	default:
		return nil, fmt.Errorf("unknown ecm mode %q", cfg.Mode)
	}
	return f, nil
}
