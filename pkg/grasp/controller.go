// Package grasp decides when a tracked hand or the grasp sphere attaches to
// a deformable actor, which particles it pins, and when it lets go.
//
// The controller runs synchronously inside the simulation tick. Each tick it
// releases slots whose release condition holds, then scans the solver's
// contact batch and starts at most one new hold.
package grasp

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/gesture"
)

// DefaultContactThreshold is the largest |separation| counted as a touch.
const DefaultContactThreshold = 0.03

// Config holds controller parameters.
type Config struct {
	MaxPinned        int        `json:"max_pinned"`
	ContactThreshold float64    `json:"contact_threshold"`
	Envelope         Envelope   `json:"envelope"`
	Filters          FilterBits `json:"filters"`
	Rules            []Rule     `json:"rules,omitempty"`
	LeftAnchor       r3.Vec     `json:"left_anchor"`
	RightAnchor      r3.Vec     `json:"right_anchor"`
}

// DefaultConfig returns the rig defaults. Anchors sit 0.6 m apart on x.
func DefaultConfig() Config {
	return Config{
		MaxPinned:        DefaultMaxPinned,
		ContactThreshold: DefaultContactThreshold,
		Envelope:         DefaultEnvelope(),
		Filters:          DefaultFilterBits(),
		LeftAnchor:       r3.Vec{X: -0.3},
		RightAnchor:      r3.Vec{X: 0.3},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxPinned < 1 {
		return fmt.Errorf("max pinned must be at least 1, got %d", c.MaxPinned)
	}
	if c.ContactThreshold < 0 {
		return fmt.Errorf("contact threshold must be non-negative, got %g", c.ContactThreshold)
	}
	if err := c.Envelope.Validate(); err != nil {
		return fmt.Errorf("envelope: %w", err)
	}
	if err := c.Filters.Validate(); err != nil {
		return fmt.Errorf("filters: %w", err)
	}
	return nil
}

// Controller owns the three grasp slots.
type Controller struct {
	solver     Solver
	gestures   *gesture.Debouncer
	haptics    Haptics
	classifier *Classifier
	cfg        Config
	logger     *zap.Logger

	holds         [slotCount]*Hold
	states        [slotCount]SlotState
	pinColliders  [2]int
	sphereRelease bool
}

// NewController creates a controller. haptics and logger may be nil.
func NewController(solver Solver, gestures *gesture.Debouncer, haptics Haptics, cfg Config, logger *zap.Logger) (*Controller, error) {
	if solver == nil {
		return nil, fmt.Errorf("nil solver")
	}
	if gestures == nil {
		return nil, fmt.Errorf("nil gesture debouncer")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("grasp config: %w", err)
	}
	classifier, err := NewClassifier(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("classification table: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		solver:       solver,
		gestures:     gestures,
		haptics:      haptics,
		classifier:   classifier,
		cfg:          cfg,
		logger:       logger,
		pinColliders: [2]int{-1, -1},
	}, nil
}

// SetPinCollider makes hand grasps pin to handle (the fingertip) instead
// of whichever hand collider was touched. A negative handle clears it.
func (c *Controller) SetPinCollider(hand gesture.Hand, handle int) {
	if hand != gesture.Left && hand != gesture.Right {
		return
	}
	c.pinColliders[hand] = handle
}

// ReleaseSphere requests release of the sphere hold. The request stays
// latched, blocking new sphere holds, until ArmSphere or Reset.
func (c *Controller) ReleaseSphere() {
	c.sphereRelease = true
}

// ArmSphere clears a latched sphere release.
func (c *Controller) ArmSphere() {
	c.sphereRelease = false
}

// Tick runs one controller step against the solver's current contacts.
func (c *Controller) Tick() []Event {
	var events []Event

	for _, slot := range []Slot{SlotLeft, SlotRight} {
		hand, _ := slot.Hand()
		if c.holds[slot] != nil && c.gestures.IsReleased(hand) {
			events = append(events, c.release(slot))
		}
	}
	if c.holds[SlotSphere] != nil && c.sphereRelease {
		events = append(events, c.release(SlotSphere))
	}

	if ev, ok := c.scan(c.solver.ContactBatch()); ok {
		events = append(events, ev)
	}
	return events
}

// scan picks the first admissible contact and runs acceptance on it.
func (c *Controller) scan(contacts []Contact) (Event, bool) {
	for _, ct := range contacts {
		if math.Abs(ct.Separation) > c.cfg.ContactThreshold {
			continue
		}
		info, ok := c.solver.Collider(ct.BodyB)
		if !ok {
			c.logger.Debug("skipping contact",
				zap.Int("collider", ct.BodyB), zap.Error(ErrClassificationMiss))
			continue
		}
		slot, ok := c.classifier.Classify(info).Slot()
		if !ok || c.holds[slot] != nil {
			continue
		}
		if slot == SlotSphere && c.sphereRelease {
			continue
		}
		return c.accept(ct, info, slot)
	}
	return Event{}, false
}

func (c *Controller) accept(ct Contact, info ColliderInfo, slot Slot) (Event, bool) {
	c.states[slot] = PendingContact
	defer func() {
		if c.holds[slot] == nil {
			c.states[slot] = Idle
		}
	}()

	pin := ct.BodyB
	if hand, ok := slot.Hand(); ok {
		if !c.gestures.IsPinching(hand) {
			return Event{}, false
		}
		if !c.cfg.Envelope.Valid(hand, info.Position, c.cfg.LeftAnchor, c.cfg.RightAnchor) {
			c.logger.Info("invalid grasp point",
				zap.Stringer("slot", slot), zap.String("collider", info.Name))
			if c.haptics != nil {
				c.haptics.Vibrate(hand)
			}
			return Event{Kind: Rejected, Slot: slot}, true
		}
		if h := c.pinColliders[hand]; h >= 0 {
			pin = h
		}
	}

	hold, err := c.attach(ct, info, slot, pin)
	if err != nil {
		c.logger.Warn("grasp not attached", zap.Stringer("slot", slot), zap.Error(err))
		return Event{}, false
	}
	c.logger.Info("grasp attached",
		zap.Stringer("slot", slot),
		zap.Int("actor", int(hold.Actor)),
		zap.String("collider", info.Name),
		zap.Ints("particles", hold.Particles))
	return Event{Kind: Attached, Slot: slot, Actor: hold.Actor, Particles: clone(hold.Particles)}, true
}

func (c *Controller) attach(ct Contact, info ColliderInfo, slot Slot, pin int) (*Hold, error) {
	if c.holds[slot] != nil {
		return nil, fmt.Errorf("slot %s already held: %w", slot, ErrInvariantViolation)
	}
	start, ok := c.solver.SimplexStart(ct.BodyA)
	if !ok {
		return nil, fmt.Errorf("simplex %d has no particles", ct.BodyA)
	}
	actor, ok := c.solver.ParticleActor(start)
	if !ok {
		return nil, fmt.Errorf("particle %d has no actor", start)
	}
	particles, ok := c.solver.ActorParticles(actor)
	if !ok {
		return nil, fmt.Errorf("actor %d: %w", actor, ErrStaleActor)
	}
	set, ok := c.solver.PinConstraints(actor)
	if !ok {
		return nil, fmt.Errorf("actor %d pin constraints: %w", actor, ErrStaleActor)
	}

	positions := make([]r3.Vec, len(particles))
	for i, p := range particles {
		positions[i] = c.solver.ParticlePosition(p)
	}
	selected := SelectNearestExcluding(particles, positions, info.Position, c.cfg.MaxPinned, c.heldSet())
	if len(selected) == 0 {
		return nil, fmt.Errorf("actor %d has no free particles", actor)
	}

	bit := c.cfg.Filters.forSlot(slot)
	batch := &PinBatch{Constraints: make([]PinConstraint, 0, len(selected))}
	for _, p := range selected {
		batch.Add(newPin(p, pin))
		c.solver.ToggleFilter(p, bit)
	}
	set.AddBatch(batch)
	c.solver.MarkConstraintsDirty(actor, ConstraintPin)

	hold := &Hold{
		Slot:      slot,
		Actor:     actor,
		Collider:  pin,
		Particles: selected,
		Batch:     batch,
		FilterBit: bit,
	}
	c.holds[slot] = hold
	c.states[slot] = Held
	return hold, nil
}

// release undoes a hold: pins removed, filter toggles inverted, slot idle.
// A removed actor only loses local bookkeeping.
func (c *Controller) release(slot Slot) Event {
	h := c.holds[slot]
	ev := Event{Kind: Released, Slot: slot, Actor: h.Actor, Particles: clone(h.Particles)}

	set, ok := c.solver.PinConstraints(h.Actor)
	if _, live := c.solver.ActorParticles(h.Actor); !live || !ok {
		ev.Err = fmt.Errorf("release %s from actor %d: %w", slot, h.Actor, ErrStaleActor)
		c.logger.Warn("held actor gone, clearing grasp", zap.Stringer("slot", slot), zap.Error(ev.Err))
	} else {
		c.removePins(set, h)
		for _, p := range h.Particles {
			c.solver.ToggleFilter(p, h.FilterBit)
		}
		c.solver.MarkConstraintsDirty(h.Actor, ConstraintPin)
		c.logger.Info("grasp released", zap.Stringer("slot", slot), zap.Int("actor", int(h.Actor)))
	}

	c.holds[slot] = nil
	c.states[slot] = Idle
	return ev
}

// removePins deletes the hold's constraints from every batch of the set.
// Indices are collected first and removed highest first so earlier
// removals never shift a pending index.
func (c *Controller) removePins(set *ConstraintSet, h *Hold) {
	held := make(map[int]bool, len(h.Particles))
	for _, p := range h.Particles {
		held[p] = true
	}
	found := make(map[int]bool, len(h.Particles))

	for _, b := range set.Batches {
		var idx []int
		for i, pc := range b.Constraints {
			if pc.Collider == h.Collider && held[pc.Particle] {
				idx = append(idx, i)
				found[pc.Particle] = true
			}
		}
		for j := len(idx) - 1; j >= 0; j-- {
			if err := b.RemoveAt(idx[j]); err != nil {
				c.logger.Error("pin removal skipped", zap.Stringer("slot", h.Slot), zap.Error(err))
			}
		}
	}
	if h.Batch != nil && h.Batch.Len() == 0 {
		set.RemoveBatch(h.Batch)
	}

	for _, p := range h.Particles {
		if !found[p] {
			c.logger.Error("held particle had no pin",
				zap.Stringer("slot", h.Slot),
				zap.Int("particle", p),
				zap.Error(ErrInvariantViolation))
		}
	}
}

// Reset clears all three slots and the gesture windows. Holds on actors
// still in the solver are released properly.
func (c *Controller) Reset() {
	for _, slot := range Slots() {
		if c.holds[slot] != nil {
			c.release(slot)
		}
		c.states[slot] = Idle
	}
	c.gestures.Clear()
	c.sphereRelease = false
}

func (c *Controller) heldSet() map[int]bool {
	set := make(map[int]bool)
	for _, h := range c.holds {
		if h == nil {
			continue
		}
		for _, p := range h.Particles {
			set[p] = true
		}
	}
	return set
}

// IsHeld reports whether a slot has an active hold.
func (c *Controller) IsHeld(slot Slot) bool {
	return slot >= 0 && slot < slotCount && c.holds[slot] != nil
}

// State returns the lifecycle state of a slot.
func (c *Controller) State(slot Slot) SlotState {
	if slot < 0 || slot >= slotCount {
		return Idle
	}
	return c.states[slot]
}

// Hold returns a copy of the slot's hold.
func (c *Controller) Hold(slot Slot) (Hold, bool) {
	if !c.IsHeld(slot) {
		return Hold{}, false
	}
	h := *c.holds[slot]
	h.Particles = clone(h.Particles)
	return h, true
}

// LeftHeldParticles returns a snapshot of the left hold's particles.
func (c *Controller) LeftHeldParticles() []int { return c.heldParticles(SlotLeft) }

// RightHeldParticles returns a snapshot of the right hold's particles.
func (c *Controller) RightHeldParticles() []int { return c.heldParticles(SlotRight) }

// SphereHeldParticles returns a snapshot of the sphere hold's particles.
func (c *Controller) SphereHeldParticles() []int { return c.heldParticles(SlotSphere) }

func (c *Controller) heldParticles(slot Slot) []int {
	if h := c.holds[slot]; h != nil {
		return clone(h.Particles)
	}
	return []int{}
}

func clone(s []int) []int {
	return append([]int(nil), s...)
}
