package sim

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/grasp"
)

// Grid returns rows*cols positions on the XZ plane starting at origin,
// row-major.
func Grid(rows, cols int, spacing float64, origin r3.Vec) []r3.Vec {
	if rows <= 0 || cols <= 0 {
		return nil
	}
	out := make([]r3.Vec, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out = append(out, r3.Add(origin, r3.Vec{X: float64(c) * spacing, Z: float64(r) * spacing}))
		}
	}
	return out
}

// ClothLoader places a flat cloth into the solver for each object. Only one
// cloth exists at a time.
type ClothLoader struct {
	Solver  *Solver
	Rows    int
	Cols    int
	Spacing float64
	Origin  r3.Vec

	current grasp.ActorID
	loaded  bool
}

// Load replaces the current cloth with a fresh one.
func (l *ClothLoader) Load(object string) (grasp.ActorID, error) {
	if l.Rows <= 0 || l.Cols <= 0 {
		return 0, fmt.Errorf("load %s: cloth grid %dx%d is empty", object, l.Rows, l.Cols)
	}
	l.Unload()
	l.current = l.Solver.AddActor(Grid(l.Rows, l.Cols, l.Spacing, l.Origin))
	l.loaded = true
	return l.current, nil
}

// Unload removes the current cloth.
func (l *ClothLoader) Unload() {
	if l.loaded {
		l.Solver.RemoveActor(l.current)
		l.loaded = false
	}
}
