package robot

import (
	"fmt"
)

// MotorCalibration holds calibration data for a single motor.
type MotorCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Calibration holds calibration data for all motors, keyed by motor name.
type Calibration map[MotorName]MotorCalibration

// Normalize converts a raw servo position to a normalized value in the range [-100, 100].
func (c MotorCalibration) Normalize(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	return (float64(raw-c.RangeMin)/rangeSize)*200 - 100
}

// Denormalize converts a normalized value [-100, 100] to a raw servo position.
func (c MotorCalibration) Denormalize(norm float64) int {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int((norm+100)/200*rangeSize) + c.RangeMin
}

// Validate checks that every SO-101 motor is present with a usable range.
func (c Calibration) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("not calibrated")
	}
	seen := make(map[int]MotorName, len(c))
	for _, name := range AllMotors() {
		mc, ok := c[name]
		if !ok {
			return fmt.Errorf("calibration missing motor %s", name)
		}
		if mc.RangeMax <= mc.RangeMin {
			return fmt.Errorf("motor %s: empty range [%d, %d]", name, mc.RangeMin, mc.RangeMax)
		}
		if other, dup := seen[mc.ID]; dup {
			return fmt.Errorf("motors %s and %s share servo id %d", other, name, mc.ID)
		}
		seen[mc.ID] = name
	}
	return nil
}

// MotorIDs returns the servo IDs for all motors in the calibration.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	// Use AllMotors() to ensure consistent ordering
	for _, name := range AllMotors() {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns motor name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (MotorName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}

// FromRanges builds a calibration from the ranges recorded during setup.
// Servo IDs follow AllMotors order starting at 1.
func FromRanges(minPositions, maxPositions map[MotorName]int) Calibration {
	cal := make(Calibration, len(AllMotors()))
	for i, name := range AllMotors() {
		cal[name] = MotorCalibration{
			ID:       i + 1,
			RangeMin: minPositions[name],
			RangeMax: maxPositions[name],
		}
	}
	return cal
}
