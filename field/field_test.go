package field

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/ecmigrate/config"
)

func testMesh() *Mesh {
	return NewMesh(config.MeshConfig{
		XMin: -100, XMax: 100,
		YMin: 0, YMax: 200,
		ZMin: -50, ZMax: 50,
		DX: 20, DY: 20, DZ: 20,
	})
}

func TestMeshDimensions(t *testing.T) {
	m := testMesh()
	if m.NX != 10 || m.NY != 10 || m.NZ != 5 {
		t.Errorf("mesh dims = %dx%dx%d, want 10x10x5", m.NX, m.NY, m.NZ)
	}
	if m.NumVoxels() != 500 {
		t.Errorf("NumVoxels = %d, want 500", m.NumVoxels())
	}
}

func TestNearestVoxelClampsOutside(t *testing.T) {
	m := testMesh()
	inside := m.NearestVoxel(r3.Vec{X: -99, Y: 1, Z: -49})
	if inside != 0 {
		t.Errorf("corner voxel = %d, want 0", inside)
	}
	outside := m.NearestVoxel(r3.Vec{X: -1000, Y: -1000, Z: -1000})
	if outside != 0 {
		t.Errorf("outside point maps to %d, want boundary voxel 0", outside)
	}
	far := m.NearestVoxel(r3.Vec{X: 1000, Y: 1000, Z: 1000})
	if far != m.NumVoxels()-1 {
		t.Errorf("far point maps to %d, want %d", far, m.NumVoxels()-1)
	}
}

func TestSeedingBoxTakesYFromMesh(t *testing.T) {
	m := testMesh()
	box := SeedingBox(m, config.DomainConfig{XMin: -400, XMax: 400, ZMin: -75, ZMax: 75})
	want := [6]float64{-400, 0, -75, 400, 200, 75}
	if box.Bounds() != want {
		t.Errorf("Bounds() = %v, want %v", box.Bounds(), want)
	}
}

func TestBoundingBoxClamp(t *testing.T) {
	box := BoundingBox{Min: r3.Vec{X: -1, Y: -1, Z: -1}, Max: r3.Vec{X: 1, Y: 1, Z: 1}}
	got := box.Clamp(r3.Vec{X: 5, Y: -5, Z: 0.5})
	want := r3.Vec{X: 1, Y: -1, Z: 0.5}
	if got != want {
		t.Errorf("Clamp = %v, want %v", got, want)
	}
	if inside := box.Clamp(r3.Vec{X: 0.25, Y: -0.5}); inside != (r3.Vec{X: 0.25, Y: -0.5}) {
		t.Errorf("Clamp moved an inside point to %v", inside)
	}
}

func TestDensityFieldIndex(t *testing.T) {
	f := NewDensityField(testMesh(), "oxygen", "ECM")
	idx, err := f.Index("ECM")
	if err != nil || idx != 1 {
		t.Errorf("Index(ECM) = %d, %v; want 1, nil", idx, err)
	}
	if _, err := f.Index("collagen"); !errors.Is(err, ErrUnknownSubstrate) {
		t.Errorf("Index(collagen) error = %v, want ErrUnknownSubstrate", err)
	}
}

func TestUniformECMField(t *testing.T) {
	f, err := NewECMField(testMesh(), config.ECMConfig{Substrate: "ECM", Mode: "uniform", Density: 4.0})
	if err != nil {
		t.Fatal(err)
	}
	if got := f.NearestDensity(r3.Vec{X: 12, Y: 34, Z: 5}, 0); got != 4.0 {
		t.Errorf("NearestDensity = %v, want 4.0", got)
	}
	levels := f.Levels(0)
	if len(levels) != 1 || levels[0] != 4.0 {
		t.Errorf("Levels = %v, want [4]", levels)
	}
}

func TestPatchesUseOnlyConfiguredLevels(t *testing.T) {
	levels := []float64{2.5, 4.0, 6.0}
	f, err := NewECMField(testMesh(), config.ECMConfig{
		Substrate: "ECM", Mode: "patches", Levels: levels, Scale: 0.02, Seed: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	allowed := map[float64]bool{2.5: true, 4.0: true, 6.0: true}
	for _, v := range f.Levels(0) {
		if !allowed[v] {
			t.Errorf("unexpected density level %v", v)
		}
	}
}
