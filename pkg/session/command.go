package session

import "github.com/gwillem/graspcap/pkg/gesture"

// Command is an operator request recognized from gestures or keys.
type Command int

const (
	CmdNone Command = iota
	CmdStart
	CmdClear
	CmdSave
	CmdNext
	CmdPrev
	CmdSphere
)

func (c Command) String() string {
	switch c {
	case CmdNone:
		return "none"
	case CmdStart:
		return "start"
	case CmdClear:
		return "clear"
	case CmdSave:
		return "save"
	case CmdNext:
		return "next"
	case CmdPrev:
		return "prev"
	case CmdSphere:
		return "sphere"
	default:
		return "unknown"
	}
}

// Recognize maps the command windows to a command. Right point starts,
// left point clears, both save. Fists page through objects while idle.
func Recognize(w *gesture.Debouncer, recording bool) Command {
	lp, rp := w.Holds(gesture.Left, gesture.Point), w.Holds(gesture.Right, gesture.Point)
	lf, rf := w.Holds(gesture.Left, gesture.Fist), w.Holds(gesture.Right, gesture.Fist)

	switch {
	case !recording && rp && !lp:
		return CmdStart
	case recording && lp && !rp:
		return CmdClear
	case recording && lp && rp:
		return CmdSave
	case !recording && rf && !lf:
		return CmdNext
	case !recording && lf && !rf:
		return CmdPrev
	}
	return CmdNone
}
