// Package field holds the voxel mesh and the static scalar fields sampled by agents.
package field

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/ecmigrate/config"
)

// BoundingBox is an axis-aligned box given by its min and max corners.
type BoundingBox struct {
	Min, Max r3.Vec
}

// Bounds returns the box as [xmin, ymin, zmin, xmax, ymax, zmax].
func (b BoundingBox) Bounds() [6]float64 {
	return [6]float64{b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z}
}

// Clamp returns p moved onto the nearest point of the box.
func (b BoundingBox) Clamp(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: math.Min(math.Max(p.X, b.Min.X), b.Max.X),
		Y: math.Min(math.Max(p.Y, b.Min.Y), b.Max.Y),
		Z: math.Min(math.Max(p.Z, b.Min.Z), b.Max.Z),
	}
}

// Mesh is a regular voxel grid covering Box.
type Mesh struct {
	Box        BoundingBox
	DX, DY, DZ float64
	NX, NY, NZ int
}

// NewMesh builds a mesh from its configuration. Partial voxels at the upper
// faces are rounded up so the grid always covers the whole box.
func NewMesh(cfg config.MeshConfig) *Mesh {
	box := BoundingBox{
		Min: r3.Vec{X: cfg.XMin, Y: cfg.YMin, Z: cfg.ZMin},
		Max: r3.Vec{X: cfg.XMax, Y: cfg.YMax, Z: cfg.ZMax},
	}
	return &Mesh{
		Box: box,
		DX:  cfg.DX, DY: cfg.DY, DZ: cfg.DZ,
		NX: voxelCount(cfg.XMax-cfg.XMin, cfg.DX),
		NY: voxelCount(cfg.YMax-cfg.YMin, cfg.DY),
		NZ: voxelCount(cfg.ZMax-cfg.ZMin, cfg.DZ),
	}
}

func voxelCount(extent, d float64) int {
	return max(1, int(math.Ceil(extent/d)))
}

// NumVoxels returns the total voxel count.
func (m *Mesh) NumVoxels() int {
	return m.NX * m.NY * m.NZ
}

// NearestVoxel returns the index of the voxel containing p.
// Positions outside the mesh map to the nearest boundary voxel.
func (m *Mesh) NearestVoxel(p r3.Vec) int {
	i := clampIndex(int(math.Floor((p.X-m.Box.Min.X)/m.DX)), m.NX)
	j := clampIndex(int(math.Floor((p.Y-m.Box.Min.Y)/m.DY)), m.NY)
	k := clampIndex(int(math.Floor((p.Z-m.Box.Min.Z)/m.DZ)), m.NZ)
	return m.VoxelIndex(i, j, k)
}

// VoxelIndex flattens grid coordinates, x fastest.
func (m *Mesh) VoxelIndex(i, j, k int) int {
	return i + m.NX*(j+m.NY*k)
}

// VoxelCenter returns the center of voxel (i, j, k).
func (m *Mesh) VoxelCenter(i, j, k int) r3.Vec {
	return r3.Vec{
		X: m.Box.Min.X + (float64(i)+0.5)*m.DX,
		Y: m.Box.Min.Y + (float64(j)+0.5)*m.DY,
		Z: m.Box.Min.Z + (float64(k)+0.5)*m.DZ,
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// SeedingBox derives the tissue seeding region: x and z extents are fixed by
// the domain, y extents come from the mesh bounding box.
func SeedingBox(m *Mesh, domain config.DomainConfig) BoundingBox {
	return BoundingBox{
		Min: r3.Vec{X: domain.XMin, Y: m.Box.Min.Y, Z: domain.ZMin},
		Max: r3.Vec{X: domain.XMax, Y: m.Box.Max.Y, Z: domain.ZMax},
	}
}
