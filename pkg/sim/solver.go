// Package sim is an in-memory stand-in for the physics solver.
//
// It stores particles, actors, colliders and pin constraints, and finds
// contacts by brute-force proximity. It does not integrate anything:
// particles stay where they were placed unless a pin drags them along with
// its collider. It exists to drive the grasp controller in tests and in
// the capture tool when no engine is attached.
package sim

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/grasp"
)

// DefaultContactMargin is how far outside a collider's radius a particle
// still produces a contact.
const DefaultContactMargin = 0.05

type actor struct {
	indices []int
	pins    *grasp.ConstraintSet
	dirty   bool
}

type collider struct {
	info   grasp.ColliderInfo
	radius float64
	ignore uint32
	active bool
}

// Solver implements grasp.Solver over plain slices.
type Solver struct {
	// ContactMargin widens every collider when generating contacts.
	ContactMargin float64

	positions []r3.Vec
	filters   []uint32
	owner     []grasp.ActorID

	actors    map[grasp.ActorID]*actor
	nextActor grasp.ActorID

	colliders []collider
	contacts  []grasp.Contact
	rebuilds  int
}

var _ grasp.Solver = (*Solver)(nil)

// New creates an empty solver.
func New() *Solver {
	return &Solver{
		ContactMargin: DefaultContactMargin,
		actors:        make(map[grasp.ActorID]*actor),
	}
}

// AddActor appends particles at positions and returns the new actor. Each
// particle is its own simplex.
func (s *Solver) AddActor(positions []r3.Vec) grasp.ActorID {
	id := s.nextActor
	s.nextActor++

	a := &actor{pins: &grasp.ConstraintSet{}}
	for _, p := range positions {
		a.indices = append(a.indices, len(s.positions))
		s.positions = append(s.positions, p)
		s.filters = append(s.filters, 0)
		s.owner = append(s.owner, id)
	}
	s.actors[id] = a
	return id
}

// RemoveActor drops an actor. Its particle slots are not reused.
func (s *Solver) RemoveActor(id grasp.ActorID) {
	a, ok := s.actors[id]
	if !ok {
		return
	}
	for _, p := range a.indices {
		s.owner[p] = -1
	}
	delete(s.actors, id)
}

// AddCollider registers a collider. Particles whose filter shares a bit
// with ignore never touch it.
func (s *Solver) AddCollider(info grasp.ColliderInfo, radius float64, ignore uint32) int {
	s.colliders = append(s.colliders, collider{info: info, radius: radius, ignore: ignore, active: true})
	return len(s.colliders) - 1
}

// RemoveCollider deactivates a collider handle.
func (s *Solver) RemoveCollider(handle int) {
	if handle >= 0 && handle < len(s.colliders) {
		s.colliders[handle].active = false
	}
}

// MoveCollider sets a collider's position.
func (s *Solver) MoveCollider(handle int, pos r3.Vec) {
	if handle >= 0 && handle < len(s.colliders) {
		s.colliders[handle].info.Position = pos
	}
}

// SetParticlePosition moves a particle.
func (s *Solver) SetParticlePosition(particle int, pos r3.Vec) {
	if particle >= 0 && particle < len(s.positions) {
		s.positions[particle] = pos
	}
}

// SetContacts replaces the current contact batch.
func (s *Solver) SetContacts(contacts []grasp.Contact) {
	s.contacts = append(s.contacts[:0], contacts...)
}

// Step advances one tick: dirty constraint sets are rebuilt, pinned
// particles follow their colliders and contacts are regenerated.
func (s *Solver) Step() {
	ids := make([]grasp.ActorID, 0, len(s.actors))
	for id := range s.actors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		a := s.actors[id]
		if a.dirty {
			a.dirty = false
			s.rebuilds++
		}
		for _, b := range a.pins.Batches {
			for _, pc := range b.Constraints {
				if c, ok := s.activeCollider(pc.Collider); ok {
					s.positions[pc.Particle] = r3.Add(c.info.Position, pc.Offset)
				}
			}
		}
	}
	s.detect(ids)
}

func (s *Solver) detect(ids []grasp.ActorID) {
	s.contacts = s.contacts[:0]
	for h, c := range s.colliders {
		if !c.active || c.radius <= 0 {
			continue
		}
		for _, id := range ids {
			for _, p := range s.actors[id].indices {
				if s.filters[p]&c.ignore != 0 {
					continue
				}
				sep := r3.Norm(r3.Sub(s.positions[p], c.info.Position)) - c.radius
				if sep <= s.ContactMargin {
					s.contacts = append(s.contacts, grasp.Contact{BodyA: p, BodyB: h, Separation: sep})
				}
			}
		}
	}
}

func (s *Solver) activeCollider(handle int) (collider, bool) {
	if handle < 0 || handle >= len(s.colliders) || !s.colliders[handle].active {
		return collider{}, false
	}
	return s.colliders[handle], true
}

// ContactBatch implements grasp.Solver.
func (s *Solver) ContactBatch() []grasp.Contact {
	return append([]grasp.Contact(nil), s.contacts...)
}

// Collider implements grasp.Solver.
func (s *Solver) Collider(handle int) (grasp.ColliderInfo, bool) {
	c, ok := s.activeCollider(handle)
	return c.info, ok
}

// SimplexStart implements grasp.Solver.
func (s *Solver) SimplexStart(simplex int) (int, bool) {
	if simplex < 0 || simplex >= len(s.positions) {
		return 0, false
	}
	return simplex, true
}

// ParticleActor implements grasp.Solver.
func (s *Solver) ParticleActor(particle int) (grasp.ActorID, bool) {
	if particle < 0 || particle >= len(s.owner) || s.owner[particle] < 0 {
		return 0, false
	}
	return s.owner[particle], true
}

// ActorParticles implements grasp.Solver.
func (s *Solver) ActorParticles(id grasp.ActorID) ([]int, bool) {
	a, ok := s.actors[id]
	if !ok {
		return nil, false
	}
	return a.indices, true
}

// ParticlePosition implements grasp.Solver.
func (s *Solver) ParticlePosition(particle int) r3.Vec {
	if particle < 0 || particle >= len(s.positions) {
		return r3.Vec{}
	}
	return s.positions[particle]
}

// PinConstraints implements grasp.Solver.
func (s *Solver) PinConstraints(id grasp.ActorID) (*grasp.ConstraintSet, bool) {
	a, ok := s.actors[id]
	if !ok {
		return nil, false
	}
	return a.pins, true
}

// MarkConstraintsDirty implements grasp.Solver.
func (s *Solver) MarkConstraintsDirty(id grasp.ActorID, _ grasp.ConstraintKind) {
	if a, ok := s.actors[id]; ok {
		a.dirty = true
	}
}

// ToggleFilter implements grasp.Solver.
func (s *Solver) ToggleFilter(particle int, bits uint32) {
	if particle >= 0 && particle < len(s.filters) {
		s.filters[particle] ^= bits
	}
}

// Filter returns a particle's collision filter.
func (s *Solver) Filter(particle int) uint32 {
	if particle < 0 || particle >= len(s.filters) {
		return 0
	}
	return s.filters[particle]
}

// Filters returns a copy of every particle filter.
func (s *Solver) Filters() []uint32 {
	return append([]uint32(nil), s.filters...)
}

// Dirty reports whether an actor's constraints await a rebuild.
func (s *Solver) Dirty(id grasp.ActorID) bool {
	a, ok := s.actors[id]
	return ok && a.dirty
}

// Rebuilds counts constraint rebuilds performed by Step.
func (s *Solver) Rebuilds() int {
	return s.rebuilds
}
