package robot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// Arm represents an SO-101 arm with multiple servos. Bus access is
// serialized so a haptic pulse can run next to the tracking loop.
type Arm struct {
	mu          sync.Mutex
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
}

// NewArm creates and initializes an arm connection.
func NewArm(port string, cal Calibration) (*Arm, error) {
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("arm on %s: %w", port, err)
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	// Create servo group from calibration IDs
	group := feetech.NewServoGroupByIDs(bus, cal.MotorIDs()...)

	return &Arm{
		bus:         bus,
		group:       group,
		calibration: cal,
	}, nil
}

// Close closes the arm's bus connection.
func (a *Arm) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bus.Close()
}

// Disable disables torque on all servos so the operator can move the arm.
func (a *Arm) Disable(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.group.DisableAll(ctx)
}

// ReadPositions reads current positions from all motors.
// Returns normalized positions in the range [-100, 100].
func (a *Arm) ReadPositions(ctx context.Context) (map[MotorName]float64, error) {
	a.mu.Lock()
	rawPositions, err := a.group.Positions(ctx)
	a.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	positions := make(map[MotorName]float64, len(rawPositions))
	for id, raw := range rawPositions {
		name, cal, ok := a.calibration.ByID(id)
		if !ok {
			continue
		}
		positions[name] = cal.Normalize(raw)
	}
	return positions, nil
}

// Pulse briefly drives one motor by amount (normalized units) and lets it
// go again. The operator feels it as a tug on that joint.
func (a *Arm) Pulse(ctx context.Context, motor MotorName, amount float64, hold time.Duration) error {
	cal, ok := a.calibration[motor]
	if !ok {
		return fmt.Errorf("pulse: motor %s not calibrated", motor)
	}
	servo := feetech.NewServoGroupByIDs(a.bus, cal.ID)

	a.mu.Lock()
	raw, err := servo.Positions(ctx)
	if err == nil {
		err = servo.EnableAll(ctx)
	}
	if err == nil {
		target := cal.Denormalize(clampNorm(cal.Normalize(raw[cal.ID]) + amount))
		err = servo.SetPositions(ctx, feetech.PositionMap{cal.ID: target})
	}
	a.mu.Unlock()
	if err != nil {
		a.mu.Lock()
		_ = servo.DisableAll(ctx)
		a.mu.Unlock()
		return fmt.Errorf("pulse %s: %w", motor, err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(hold):
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := servo.SetPositions(context.WithoutCancel(ctx), feetech.PositionMap{cal.ID: raw[cal.ID]}); err != nil {
		_ = servo.DisableAll(context.WithoutCancel(ctx))
		return fmt.Errorf("pulse %s return: %w", motor, err)
	}
	return servo.DisableAll(context.WithoutCancel(ctx))
}

func clampNorm(v float64) float64 {
	return max(-100, min(100, v))
}
