package systems

import (
	"math"
	"testing"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/ecmigrate/components"
)

func TestIntegrate(t *testing.T) {
	b := box(-100, 100, 0, 500, -50, 50)
	tests := []struct {
		name string
		p, v r3.Vec
		dt   float64
		want r3.Vec
	}{
		{"free", r3.Vec{Y: 10}, r3.Vec{X: 1, Y: 2, Z: -3}, 0.5, r3.Vec{X: 0.5, Y: 11, Z: -1.5}},
		{"at rest", r3.Vec{X: 4, Y: 4, Z: 4}, r3.Vec{}, 1, r3.Vec{X: 4, Y: 4, Z: 4}},
		{"top wall", r3.Vec{Y: 499}, r3.Vec{Y: 10}, 1, r3.Vec{Y: 500}},
		{"side walls", r3.Vec{X: -99, Y: 1, Z: 49}, r3.Vec{X: -10, Z: 10}, 1, r3.Vec{X: -100, Y: 1, Z: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Integrate(tt.p, tt.v, tt.dt, b)
			if r3.Norm(r3.Sub(got, tt.want)) > 1e-12 {
				t.Errorf("Integrate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPhysicsSystemUpdate(t *testing.T) {
	world := ecs.NewWorld()
	mapper := ecs.NewMap2[components.Position, components.Velocity](world)
	posMap := ecs.NewMap[components.Position](world)

	b := box(-400, 400, 0, 1200, -75, 75)
	moving := mapper.NewEntity(
		&components.Position{Vec: r3.Vec{X: 10, Y: 20, Z: 0}},
		&components.Velocity{Vec: r3.Vec{Y: 0.5}},
	)
	walled := mapper.NewEntity(
		&components.Position{Vec: r3.Vec{X: 399, Y: 20, Z: 0}},
		&components.Velocity{Vec: r3.Vec{X: 100}},
	)

	sys := NewPhysicsSystem(world, b)
	for i := 0; i < 10; i++ {
		sys.Update(0.1)
	}

	if got := posMap.Get(moving).Y; math.Abs(got-20.5) > 1e-12 {
		t.Errorf("moving y = %v, want 20.5", got)
	}
	if got := posMap.Get(walled).X; got != 400 {
		t.Errorf("walled x = %v, want 400", got)
	}
}
