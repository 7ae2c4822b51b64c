package sim

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"
)

// SphereConfig drives the automatic grasp sphere.
type SphereConfig struct {
	Step      float64 `json:"step"`
	Tolerance float64 `json:"tolerance"`
	End       r3.Vec  `json:"end"`
	Park      r3.Vec  `json:"park"`
	HoldTicks int     `json:"hold_ticks"`
}

// DefaultSphereConfig moves 8 mm per tick and holds for two seconds at 50 Hz.
func DefaultSphereConfig() SphereConfig {
	return SphereConfig{
		Step:      0.008,
		Tolerance: 0.005,
		End:       r3.Vec{X: 0.1, Y: 0.9, Z: 0.3},
		Park:      r3.Vec{X: 0.1, Y: 0.51, Z: 0.3},
		HoldTicks: 100,
	}
}

// SphereReleaser receives the sphere's release signal.
type SphereReleaser interface {
	ReleaseSphere()
	ArmSphere()
}

type spherePhase int

const (
	sphereIdle spherePhase = iota
	sphereApproach
	sphereLift
	sphereSettle
	sphereRelease
)

// SphereDriver moves the grasp sphere onto a particle, lifts it to End,
// waits HoldTicks and then signals release. The sphere is parked one tick
// later, once the pins are gone, so the cloth stays where it was let go.
type SphereDriver struct {
	solver   *Solver
	handle   int
	cfg      SphereConfig
	releaser SphereReleaser

	phase  spherePhase
	target r3.Vec
	wait   int
}

// NewSphereDriver creates a driver for the collider at handle.
func NewSphereDriver(s *Solver, handle int, cfg SphereConfig, releaser SphereReleaser) *SphereDriver {
	return &SphereDriver{solver: s, handle: handle, cfg: cfg, releaser: releaser}
}

// Begin starts a new cycle toward particle.
func (d *SphereDriver) Begin(particle int) {
	d.releaser.ArmSphere()
	d.target = d.solver.ParticlePosition(particle)
	d.phase = sphereApproach
}

// Active reports whether a cycle is running.
func (d *SphereDriver) Active() bool {
	return d.phase != sphereIdle
}

// Stop abandons the cycle and parks the sphere without signaling release.
func (d *SphereDriver) Stop() {
	d.phase = sphereIdle
	d.solver.MoveCollider(d.handle, d.cfg.Park)
}

// Tick advances the sphere by one step.
func (d *SphereDriver) Tick() {
	switch d.phase {
	case sphereApproach:
		if d.moveToward(d.target) {
			d.phase = sphereLift
		}
	case sphereLift:
		if d.moveToward(d.cfg.End) {
			d.phase = sphereSettle
			d.wait = d.cfg.HoldTicks
		}
	case sphereSettle:
		if d.wait > 0 {
			d.wait--
			return
		}
		d.releaser.ReleaseSphere()
		d.phase = sphereRelease
	case sphereRelease:
		d.solver.MoveCollider(d.handle, d.cfg.Park)
		d.phase = sphereIdle
	}
}

func (d *SphereDriver) moveToward(goal r3.Vec) bool {
	info, ok := d.solver.Collider(d.handle)
	if !ok {
		d.phase = sphereIdle
		return false
	}
	delta := r3.Sub(goal, info.Position)
	dist := r3.Norm(delta)
	if dist <= d.cfg.Tolerance {
		return true
	}
	step := math.Min(d.cfg.Step, dist)
	d.solver.MoveCollider(d.handle, r3.Add(info.Position, r3.Scale(step/dist, delta)))
	return false
}

// PickGraspParticle chooses a random particle, preferring one stacked
// directly above it (within 2 cm in x and z, more than 3 cm higher) so the
// sphere grabs the top layer of a folded cloth.
func PickGraspParticle(indices []int, positions []r3.Vec, rng *rand.Rand) int {
	if len(indices) == 0 {
		return -1
	}
	i := rng.IntN(len(indices))
	cand := positions[i]
	for j, p := range positions {
		if math.Abs(p.X-cand.X) < 0.02 && math.Abs(p.Z-cand.Z) < 0.02 && p.Y-cand.Y > 0.03 {
			return indices[j]
		}
	}
	return indices[i]
}
