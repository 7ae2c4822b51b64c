// Package graspcap captures cloth manipulation demonstrations driven by a
// pair of SO-101 leader arms acting as hands.
//
// Each arm's gripper and wrist drive a hand gesture (pinch, fist or point).
// Pinching near the simulated cloth pins the closest particles to that
// hand's finger until the pinch is released. Gestures also steer the
// capture session: start, clear and save a recording, or step between
// cloth objects.
//
// # Installation
//
//	go install github.com/gwillem/graspcap/cmd/graspcap@latest
//
// # Usage
//
// Detect and calibrate both arms:
//
//	graspcap setup
//
// Capture episodes, then list what was saved:
//
//	graspcap capture
//	graspcap episodes
//
// # Packages
//
//   - cmd/graspcap: CLI with setup, capture and episodes commands
//   - pkg/grasp: Grasp constraint controller
//   - pkg/gesture: Per-hand gesture debouncing
//   - pkg/sim: Particle solver, cloth loader and grasp sphere
//   - pkg/robot: Arm access, calibration and hand tracking
//   - pkg/session: Capture loop and gesture commands
//   - pkg/record: Episode buffers and JSON files
//   - pkg/catalog: SQLite index of saved episodes
//   - pkg/config: JSON config with environment overrides
package graspcap
