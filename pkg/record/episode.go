// Package record buffers per-tick demonstration frames and writes finished
// episodes to disk without stalling the simulation tick.
package record

import (
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/gesture"
)

// DefaultMaxFrames is the frame count after which the operator is told to
// save. Recording continues past it.
const DefaultMaxFrames = 6000

// HandFrame is one hand's tracked state.
type HandFrame struct {
	Position r3.Vec          `json:"position"`
	Joints   []r3.Vec        `json:"joints,omitempty"`
	State    gesture.Gesture `json:"state"`
}

// Frame is one recorded sample.
type Frame struct {
	Time       float64      `json:"time"`
	Hands      [2]HandFrame `json:"hands"`
	Particles  []r3.Vec     `json:"particles"`
	LeftHeld   []int        `json:"left_held"`
	RightHeld  []int        `json:"right_held"`
	SphereHeld []int        `json:"sphere_held,omitempty"`
}

// Episode is one demonstration on one object.
type Episode struct {
	ID            string  `json:"id"`
	ObjectType    string  `json:"object_type"`
	ActionTag     string  `json:"action_tag"`
	Object        string  `json:"object"`
	SolverIndices []int   `json:"solver_indices"`
	PlaneHeight   float64 `json:"plane_height"`
	MaxFrames     int     `json:"max_frames"`
	Frames        []Frame `json:"frames"`
}

// Meta describes the episode a recorder fills.
type Meta struct {
	ObjectType    string
	ActionTag     string
	Object        string
	SolverIndices []int
	PlaneHeight   float64
	MaxFrames     int
}

func newEpisode(m Meta) *Episode {
	if m.MaxFrames <= 0 {
		m.MaxFrames = DefaultMaxFrames
	}
	return &Episode{
		ID:            uuid.NewString(),
		ObjectType:    m.ObjectType,
		ActionTag:     m.ActionTag,
		Object:        m.Object,
		SolverIndices: append([]int(nil), m.SolverIndices...),
		PlaneHeight:   m.PlaneHeight,
		MaxFrames:     m.MaxFrames,
	}
}
