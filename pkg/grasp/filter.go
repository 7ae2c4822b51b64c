package grasp

import "fmt"

// Collision filter bits toggled on held particles. The hand colliders'
// masks exclude HandFilterBit and the sphere's mask excludes
// SphereFilterBit, so a pinned particle stops colliding with whatever
// holds it.
const (
	HandFilterBit   uint32 = 1 << 19
	SphereFilterBit uint32 = 1 << 20
)

// FilterBits assigns a filter bit to each slot. Left and right may share a
// bit since a particle is never held by both; the sphere bit must be
// disjoint from both hand bits.
type FilterBits struct {
	Left   uint32 `json:"left"`
	Right  uint32 `json:"right"`
	Sphere uint32 `json:"sphere"`
}

// DefaultFilterBits returns the rig's filter layout.
func DefaultFilterBits() FilterBits {
	return FilterBits{Left: HandFilterBit, Right: HandFilterBit, Sphere: SphereFilterBit}
}

// Validate checks that every slot has a bit and the sphere bit is disjoint
// from the hand bits.
func (f FilterBits) Validate() error {
	if f.Left == 0 || f.Right == 0 || f.Sphere == 0 {
		return fmt.Errorf("filter bits must be non-zero: %+v", f)
	}
	if f.Sphere&(f.Left|f.Right) != 0 {
		return fmt.Errorf("sphere filter bit %#x overlaps hand bits %#x/%#x", f.Sphere, f.Left, f.Right)
	}
	return nil
}

func (f FilterBits) forSlot(s Slot) uint32 {
	switch s {
	case SlotLeft:
		return f.Left
	case SlotRight:
		return f.Right
	case SlotSphere:
		return f.Sphere
	}
	return 0
}
