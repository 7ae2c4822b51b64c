package grasp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/gesture"
)

// ActorID identifies a deformable body in the solver.
type ActorID int

// Contact is one solver contact between a particle simplex (BodyA) and a
// collider handle (BodyB). Separation is negative when penetrating.
type Contact struct {
	BodyA      int
	BodyB      int
	Separation float64
}

// ConstraintKind selects an actor's constraint set.
type ConstraintKind int

const (
	ConstraintPin ConstraintKind = iota
)

// Solver is the part of the physics engine the controller drives. The
// solver owns particle state and runs the actual solve; the controller only
// reads contacts and positions and edits pin constraints and filter bits.
type Solver interface {
	// ContactBatch returns this tick's contacts in emission order.
	ContactBatch() []Contact
	// Collider returns metadata for a collider handle.
	Collider(handle int) (ColliderInfo, bool)
	// SimplexStart returns the first particle of a simplex.
	SimplexStart(simplex int) (int, bool)
	// ParticleActor returns the actor owning a particle.
	ParticleActor(particle int) (ActorID, bool)
	// ActorParticles returns an actor's solver indices in local vertex
	// order. It reports false once the actor is removed.
	ActorParticles(actor ActorID) ([]int, bool)
	ParticlePosition(particle int) r3.Vec
	// PinConstraints returns the actor's mutable pin constraint set.
	PinConstraints(actor ActorID) (*ConstraintSet, bool)
	// MarkConstraintsDirty makes the solver rebuild the actor's constraints
	// before its next step.
	MarkConstraintsDirty(actor ActorID, kind ConstraintKind)
	// ToggleFilter XORs bits into a particle's collision filter.
	ToggleFilter(particle int, bits uint32)
}

// Haptics is the input layer's feedback channel. Vibrate must not block.
type Haptics interface {
	Vibrate(hand gesture.Hand)
}

// PinConstraint fixes a particle to a collider at Offset. Zero compliance
// with an infinite break threshold gives the collider side infinite mass.
type PinConstraint struct {
	Particle       int
	Collider       int
	Offset         r3.Vec
	Compliance     float64
	BreakThreshold float64
}

func newPin(particle, collider int) PinConstraint {
	return PinConstraint{
		Particle:       particle,
		Collider:       collider,
		BreakThreshold: math.Inf(1),
	}
}

// PinBatch is an ordered batch of pin constraints.
type PinBatch struct {
	Constraints []PinConstraint
}

// Len returns the number of constraints in the batch.
func (b *PinBatch) Len() int {
	return len(b.Constraints)
}

// Add appends a constraint.
func (b *PinBatch) Add(c PinConstraint) {
	b.Constraints = append(b.Constraints, c)
}

// RemoveAt removes the constraint at i, shifting later entries down.
func (b *PinBatch) RemoveAt(i int) error {
	if i < 0 || i >= len(b.Constraints) {
		return fmt.Errorf("remove pin %d of %d: %w", i, len(b.Constraints), ErrInvariantViolation)
	}
	b.Constraints = append(b.Constraints[:i], b.Constraints[i+1:]...)
	return nil
}

// ConstraintSet is an actor's list of pin batches.
type ConstraintSet struct {
	Batches []*PinBatch
}

// AddBatch appends a batch.
func (s *ConstraintSet) AddBatch(b *PinBatch) {
	s.Batches = append(s.Batches, b)
}

// RemoveBatch removes b and reports whether it was present.
func (s *ConstraintSet) RemoveBatch(b *PinBatch) bool {
	for i, cur := range s.Batches {
		if cur == b {
			s.Batches = append(s.Batches[:i], s.Batches[i+1:]...)
			return true
		}
	}
	return false
}

// Count returns the number of constraints across all batches.
func (s *ConstraintSet) Count() int {
	n := 0
	for _, b := range s.Batches {
		n += b.Len()
	}
	return n
}
