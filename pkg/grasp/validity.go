package grasp

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/gesture"
)

// Envelope is the workspace a gripper may grasp in, measured from the arm
// bases. A point must lie within [SelfMin, Max] of the grasping side's base
// and at least OtherMin from the other side's base.
type Envelope struct {
	SelfMin  float64 `json:"self_min"`
	OtherMin float64 `json:"other_min"`
	Max      float64 `json:"max"`
}

// DefaultEnvelope returns the SO-101 workspace limits in meters.
func DefaultEnvelope() Envelope {
	return Envelope{SelfMin: 0.2, OtherMin: 0.15, Max: 0.84}
}

// Validate checks the envelope bounds are ordered.
func (e Envelope) Validate() error {
	if e.SelfMin < 0 || e.OtherMin < 0 {
		return fmt.Errorf("envelope minimums must be non-negative: self=%g other=%g", e.SelfMin, e.OtherMin)
	}
	if e.Max < e.SelfMin {
		return fmt.Errorf("envelope max %g below self minimum %g", e.Max, e.SelfMin)
	}
	return nil
}

// Valid reports whether point is graspable by hand given both anchors.
func (e Envelope) Valid(hand gesture.Hand, point, leftAnchor, rightAnchor r3.Vec) bool {
	return IsValid(hand, point, leftAnchor, rightAnchor, e.SelfMin, e.OtherMin, e.Max)
}

// IsValid is the envelope check with explicit limits.
func IsValid(hand gesture.Hand, point, leftAnchor, rightAnchor r3.Vec, selfMin, otherMin, maxRange float64) bool {
	self, other := leftAnchor, rightAnchor
	if hand == gesture.Right {
		self, other = rightAnchor, leftAnchor
	}
	selfDist := r3.Norm(r3.Sub(point, self))
	otherDist := r3.Norm(r3.Sub(point, other))
	return selfDist >= selfMin && selfDist <= maxRange && otherDist >= otherMin
}
