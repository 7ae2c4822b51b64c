package grasp

import "github.com/gwillem/graspcap/pkg/gesture"

// Slot is one of the three independent grasp slots.
type Slot int

const (
	SlotLeft Slot = iota
	SlotRight
	SlotSphere
	slotCount
)

// Slots returns all slots in index order.
func Slots() []Slot {
	return []Slot{SlotLeft, SlotRight, SlotSphere}
}

func (s Slot) String() string {
	switch s {
	case SlotLeft:
		return "left"
	case SlotRight:
		return "right"
	case SlotSphere:
		return "sphere"
	default:
		return "unknown"
	}
}

// Hand returns the hand driving a hand slot.
func (s Slot) Hand() (gesture.Hand, bool) {
	switch s {
	case SlotLeft:
		return gesture.Left, true
	case SlotRight:
		return gesture.Right, true
	}
	return 0, false
}

func handSlot(h gesture.Hand) Slot {
	if h == gesture.Right {
		return SlotRight
	}
	return SlotLeft
}

// SlotState is the lifecycle state of a slot.
type SlotState int

const (
	Idle SlotState = iota
	PendingContact
	Held
)

func (s SlotState) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingContact:
		return "pending"
	case Held:
		return "held"
	default:
		return "unknown"
	}
}

// Hold is an accepted grasp: which particles of which actor are pinned to
// which collider, and the filter bit toggled on them.
type Hold struct {
	Slot      Slot
	Actor     ActorID
	Collider  int
	Particles []int
	Batch     *PinBatch
	FilterBit uint32
}

// EventKind classifies controller events.
type EventKind int

const (
	Attached EventKind = iota
	Released
	Rejected
)

func (k EventKind) String() string {
	switch k {
	case Attached:
		return "attached"
	case Released:
		return "released"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Event reports a lifecycle transition that happened during a tick.
type Event struct {
	Kind      EventKind
	Slot      Slot
	Actor     ActorID
	Particles []int
	// Err is set for releases that could not touch the solver.
	Err error
}
