package robot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/gesture"
)

// HandPose is one tracked sample of a hand.
type HandPose struct {
	Position r3.Vec
	// Joints are base, elbow and wrist in scene coordinates.
	Joints  []r3.Vec
	Gesture gesture.Gesture
	// Grip is the normalized gripper reading.
	Grip float64
}

// Forward computes the fingertip position from normalized joint readings.
// The arm is treated as planar: pan yaws the plane, shoulder lift and
// elbow flex bend within it. Zero lift points the upper arm straight up.
func Forward(positions map[MotorName]float64, cfg HandConfig) (tip r3.Vec, joints []r3.Vec) {
	angle := func(m MotorName) float64 {
		return positions[m] / 100 * cfg.JointSpan / 2
	}
	yaw := angle(ShoulderPan) + cfg.Heading
	lift := angle(ShoulderLift)
	elbow := lift + angle(ElbowFlex)

	dir := r3.Vec{X: math.Cos(yaw), Z: math.Sin(yaw)}
	at := func(reach, height float64) r3.Vec {
		local := r3.Add(r3.Scale(reach, dir), r3.Vec{Y: height})
		return r3.Add(cfg.Base, r3.Scale(cfg.Scale, local))
	}

	r1, h1 := UpperArmLength*math.Sin(lift), UpperArmLength*math.Cos(lift)
	r2, h2 := r1+ForearmLength*math.Sin(elbow), h1+ForearmLength*math.Cos(elbow)

	joints = []r3.Vec{cfg.Base, at(r1, h1), at(r2, h2)}
	return joints[2], joints
}

// GestureOf classifies the gripper and wrist roll readings.
func GestureOf(positions map[MotorName]float64, cfg HandConfig) gesture.Gesture {
	g := gesture.None
	if positions[Gripper] <= cfg.PinchBelow {
		g |= gesture.Pinch
	}
	switch roll := positions[WristRoll]; {
	case roll >= cfg.PointAbove:
		g |= gesture.Point
	case roll <= cfg.FistBelow:
		g |= gesture.Fist
	}
	return g
}

// PoseOf builds a full pose from normalized joint readings.
func PoseOf(positions map[MotorName]float64, cfg HandConfig) HandPose {
	tip, joints := Forward(positions, cfg)
	return HandPose{
		Position: tip,
		Joints:   joints,
		Gesture:  GestureOf(positions, cfg),
		Grip:     positions[Gripper],
	}
}

// PositionReader reads normalized joint positions.
type PositionReader interface {
	ReadPositions(ctx context.Context) (map[MotorName]float64, error)
}

// Pulser drives a short haptic pulse.
type Pulser interface {
	Pulse(ctx context.Context, motor MotorName, amount float64, hold time.Duration) error
}

type handInput struct {
	reader  PositionReader
	pulser  Pulser
	cfg     HandConfig
	pulsing atomic.Bool
}

// Hands tracks both leader arms and buzzes them on request.
type Hands struct {
	hands  [2]*handInput
	closer []func() error
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHands wraps two arm readers. A reader that also implements Pulser
// gets haptics.
func NewHands(left, right PositionReader, leftCfg, rightCfg HandConfig, logger *zap.Logger) (*Hands, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := leftCfg.Validate(); err != nil {
		return nil, fmt.Errorf("left hand: %w", err)
	}
	if err := rightCfg.Validate(); err != nil {
		return nil, fmt.Errorf("right hand: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hands{log: logger, ctx: ctx, cancel: cancel}
	h.hands[gesture.Left] = &handInput{reader: left, cfg: leftCfg}
	h.hands[gesture.Right] = &handInput{reader: right, cfg: rightCfg}
	for _, in := range h.hands {
		if p, ok := in.reader.(Pulser); ok {
			in.pulser = p
		}
	}
	return h, nil
}

// OpenHands connects both leader arms, releasing torque so the operator
// can move them.
func OpenHands(ctx context.Context, left, right ArmConfig, logger *zap.Logger) (*Hands, error) {
	leftArm, err := NewArm(left.Port, left.Calibration)
	if err != nil {
		return nil, fmt.Errorf("left arm: %w", err)
	}
	rightArm, err := NewArm(right.Port, right.Calibration)
	if err != nil {
		leftArm.Close()
		return nil, fmt.Errorf("right arm: %w", err)
	}
	for _, a := range []*Arm{leftArm, rightArm} {
		if err := a.Disable(ctx); err != nil {
			leftArm.Close()
			rightArm.Close()
			return nil, fmt.Errorf("release torque: %w", err)
		}
	}

	h, err := NewHands(leftArm, rightArm, left.Hand, right.Hand, logger)
	if err != nil {
		leftArm.Close()
		rightArm.Close()
		return nil, err
	}
	h.closer = []func() error{leftArm.Close, rightArm.Close}
	return h, nil
}

// Track reads one hand.
func (h *Hands) Track(ctx context.Context, hand gesture.Hand) (HandPose, error) {
	in, err := h.input(hand)
	if err != nil {
		return HandPose{}, err
	}
	positions, err := in.reader.ReadPositions(ctx)
	if err != nil {
		return HandPose{}, fmt.Errorf("track %s hand: %w", hand, err)
	}
	return PoseOf(positions, in.cfg), nil
}

// Anchor returns the hand's base position.
func (h *Hands) Anchor(hand gesture.Hand) r3.Vec {
	in, err := h.input(hand)
	if err != nil {
		return r3.Vec{}
	}
	return in.cfg.Base
}

// Vibrate starts a pulse on the hand's gripper and returns at once. A
// pulse already running on that hand absorbs the request.
func (h *Hands) Vibrate(hand gesture.Hand) {
	in, err := h.input(hand)
	if err != nil || in.pulser == nil || in.cfg.PulseMillis == 0 {
		return
	}
	if !in.pulsing.CompareAndSwap(false, true) {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer in.pulsing.Store(false)
		hold := time.Duration(in.cfg.PulseMillis) * time.Millisecond
		if err := in.pulser.Pulse(h.ctx, Gripper, in.cfg.PulseAmount, hold); err != nil && !errors.Is(err, context.Canceled) {
			h.log.Warn("haptic pulse failed", zap.Stringer("hand", hand), zap.Error(err))
		}
	}()
}

// Close stops pending pulses and closes the arms.
func (h *Hands) Close() error {
	h.cancel()
	h.wg.Wait()
	var errs []error
	for _, c := range h.closer {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Hands) input(hand gesture.Hand) (*handInput, error) {
	if hand != gesture.Left && hand != gesture.Right {
		return nil, fmt.Errorf("unknown hand %d", hand)
	}
	return h.hands[hand], nil
}
