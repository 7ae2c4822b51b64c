package robot

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ArmConfig holds configuration for a single leader arm.
type ArmConfig struct {
	Port        string      `json:"port"`
	Calibration Calibration `json:"calibration,omitempty"`
	Hand        HandConfig  `json:"hand"`
}

// IsCalibrated returns true if the arm has calibration data
func (a *ArmConfig) IsCalibrated() bool {
	return len(a.Calibration) > 0
}

// HandConfig maps joint readings to a hand pose. Thresholds are in
// normalized units [-100, 100].
type HandConfig struct {
	// Base is the arm's mounting point in scene coordinates. It is also the
	// hand's validity anchor.
	Base r3.Vec `json:"base"`
	// Heading rotates the arm's zero pan direction about the vertical axis (radians).
	Heading float64 `json:"heading"`
	// Scale maps arm meters to scene units.
	Scale float64 `json:"scale"`
	// JointSpan is the angle covered by a joint's full calibrated range (radians).
	JointSpan float64 `json:"joint_span"`

	PinchBelow float64 `json:"pinch_below"`
	PointAbove float64 `json:"point_above"`
	FistBelow  float64 `json:"fist_below"`

	// PulseAmount and PulseMillis shape the haptic pulse on the gripper.
	PulseAmount float64 `json:"pulse_amount"`
	PulseMillis int     `json:"pulse_millis"`
}

// DefaultHandConfig returns the mapping for an arm mounted at base.
func DefaultHandConfig(base r3.Vec) HandConfig {
	return HandConfig{
		Base:        base,
		Scale:       1,
		JointSpan:   math.Pi,
		PinchBelow:  -60,
		PointAbove:  70,
		FistBelow:   -70,
		PulseAmount: 15,
		PulseMillis: 80,
	}
}

// Validate checks the thresholds and geometry.
func (h HandConfig) Validate() error {
	if h.Scale <= 0 {
		return fmt.Errorf("hand scale must be positive, got %v", h.Scale)
	}
	if h.JointSpan <= 0 || h.JointSpan > 2*math.Pi {
		return fmt.Errorf("joint span %v out of (0, 2π]", h.JointSpan)
	}
	for name, v := range map[string]float64{"pinch_below": h.PinchBelow, "point_above": h.PointAbove, "fist_below": h.FistBelow} {
		if v < -100 || v > 100 {
			return fmt.Errorf("%s %v outside [-100, 100]", name, v)
		}
	}
	if h.FistBelow >= h.PointAbove {
		return fmt.Errorf("fist_below (%v) must be under point_above (%v)", h.FistBelow, h.PointAbove)
	}
	if h.PulseMillis < 0 {
		return fmt.Errorf("pulse_millis must not be negative")
	}
	return nil
}
