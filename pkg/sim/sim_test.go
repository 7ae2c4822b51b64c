package sim

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/gesture"
	"github.com/gwillem/graspcap/pkg/grasp"
)

func TestGrid(t *testing.T) {
	g := Grid(2, 3, 0.5, r3.Vec{Y: 1})
	require.Len(t, g, 6)
	assert.Equal(t, r3.Vec{Y: 1}, g[0])
	assert.Equal(t, r3.Vec{X: 1, Y: 1}, g[2])
	assert.Equal(t, r3.Vec{X: 0.5, Y: 1, Z: 0.5}, g[4])
	assert.Nil(t, Grid(0, 3, 1, r3.Vec{}))
}

func TestSolver_StepGeneratesContacts(t *testing.T) {
	s := New()
	a := s.AddActor([]r3.Vec{{}, {X: 1}})
	h := s.AddCollider(grasp.ColliderInfo{Name: "GraspSphere"}, 0.02, grasp.SphereFilterBit)

	s.Step()
	contacts := s.ContactBatch()
	require.Len(t, contacts, 1)
	assert.Equal(t, 0, contacts[0].BodyA)
	assert.Equal(t, h, contacts[0].BodyB)
	assert.InDelta(t, -0.02, contacts[0].Separation, 1e-12)

	// a toggled filter bit hides the particle from that collider
	s.ToggleFilter(0, grasp.SphereFilterBit)
	s.Step()
	assert.Empty(t, s.ContactBatch())

	p, ok := s.ParticleActor(1)
	require.True(t, ok)
	assert.Equal(t, a, p)
}

func TestSolver_RemovedColliderIsMissing(t *testing.T) {
	s := New()
	s.AddActor([]r3.Vec{{}})
	h := s.AddCollider(grasp.ColliderInfo{Name: "GraspSphere"}, 0.02, 0)

	s.SetParticlePosition(0, r3.Vec{X: 1})
	s.Step()
	assert.Empty(t, s.ContactBatch())

	s.SetParticlePosition(0, r3.Vec{})
	s.Step()
	assert.Len(t, s.ContactBatch(), 1)

	s.RemoveCollider(h)
	s.Step()
	assert.Empty(t, s.ContactBatch())
	_, ok := s.Collider(h)
	assert.False(t, ok)
}

func TestSolver_PinsFollowCollider(t *testing.T) {
	s := New()
	a := s.AddActor([]r3.Vec{{}, {X: 1}})
	h := s.AddCollider(grasp.ColliderInfo{Name: "GraspSphere"}, 0, 0)

	set, ok := s.PinConstraints(a)
	require.True(t, ok)
	set.AddBatch(&grasp.PinBatch{Constraints: []grasp.PinConstraint{{Particle: 1, Collider: h, Offset: r3.Vec{Y: 0.1}}}})
	s.MarkConstraintsDirty(a, grasp.ConstraintPin)
	assert.True(t, s.Dirty(a))

	s.MoveCollider(h, r3.Vec{X: 2, Y: 2})
	s.Step()
	assert.False(t, s.Dirty(a))
	assert.Equal(t, 1, s.Rebuilds())
	assert.Equal(t, r3.Vec{X: 2, Y: 2.1}, s.ParticlePosition(1))
	assert.Equal(t, r3.Vec{}, s.ParticlePosition(0))
}

func TestSolver_RemoveActor(t *testing.T) {
	s := New()
	a := s.AddActor([]r3.Vec{{}})
	b := s.AddActor([]r3.Vec{{X: 1}})
	s.RemoveActor(a)

	_, ok := s.ActorParticles(a)
	assert.False(t, ok)
	_, ok = s.ParticleActor(0)
	assert.False(t, ok)
	idx, ok := s.ActorParticles(b)
	require.True(t, ok)
	assert.Equal(t, []int{1}, idx)
}

func TestClothLoader_ReplacesActor(t *testing.T) {
	s := New()
	l := &ClothLoader{Solver: s, Rows: 2, Cols: 2, Spacing: 0.1}

	first, err := l.Load("shirt-0001")
	require.NoError(t, err)
	second, err := l.Load("shirt-0002")
	require.NoError(t, err)

	_, ok := s.ActorParticles(first)
	assert.False(t, ok)
	idx, ok := s.ActorParticles(second)
	require.True(t, ok)
	assert.Len(t, idx, 4)

	_, err = (&ClothLoader{Solver: s}).Load("empty")
	assert.Error(t, err)
}

func TestPickGraspParticle_PrefersTopLayer(t *testing.T) {
	idx := []int{10, 11}
	pos := []r3.Vec{{Y: 0.5}, {X: 0.01, Y: 0.6}}
	rng := rand.New(rand.NewPCG(3, 4))

	for i := 0; i < 20; i++ {
		assert.Equal(t, 11, PickGraspParticle(idx, pos, rng))
	}
	assert.Equal(t, -1, PickGraspParticle(nil, nil, rng))
}

func TestSphereDriver_FullCycle(t *testing.T) {
	s := New()
	a := s.AddActor(Grid(4, 4, 0.01, r3.Vec{Y: 0.5}))
	h := s.AddCollider(grasp.ColliderInfo{Name: "GraspSphere", Position: r3.Vec{X: 0.1, Y: 0.55}}, 0.005, grasp.SphereFilterBit)

	ctrl, err := grasp.NewController(s, gesture.NewDebouncer(gesture.DefaultPinchWindow), nil, grasp.DefaultConfig(), nil)
	require.NoError(t, err)

	cfg := DefaultSphereConfig()
	cfg.End = r3.Vec{X: 0.1, Y: 0.6}
	cfg.HoldTicks = 3
	d := NewSphereDriver(s, h, cfg, ctrl)

	idx, _ := s.ActorParticles(a)
	d.Begin(idx[5])
	require.True(t, d.Active())

	var attachedAt, releasedAt = -1, -1
	var held []int
	for tick := 0; tick < 200 && (d.Active() || releasedAt < 0); tick++ {
		d.Tick()
		s.Step()
		for _, ev := range ctrl.Tick() {
			switch ev.Kind {
			case grasp.Attached:
				attachedAt = tick
				held = ev.Particles
			case grasp.Released:
				releasedAt = tick
				// pins are gone before the sphere leaves End
				info, _ := s.Collider(h)
				assert.NotEqual(t, cfg.Park, info.Position)
			}
		}
	}
	require.GreaterOrEqual(t, attachedAt, 0, "sphere never attached")
	require.Greater(t, releasedAt, attachedAt, "sphere never released")
	assert.False(t, ctrl.IsHeld(grasp.SlotSphere))

	info, _ := s.Collider(h)
	assert.Equal(t, cfg.Park, info.Position)
	for _, p := range idx {
		assert.Zero(t, s.Filter(p))
	}

	// parking the sphere leaves the released cloth at the end point
	require.NotEmpty(t, held)
	s.Step()
	for _, p := range held {
		assert.LessOrEqual(t, r3.Norm(r3.Sub(s.ParticlePosition(p), cfg.End)), cfg.Tolerance+1e-9, "particle %d", p)
	}
}
