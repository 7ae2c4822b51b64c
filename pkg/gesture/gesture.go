// Package gesture debounces discrete hand gesture samples.
//
// Input hardware reports a small bitmask per hand each frame. A single
// frame is too noisy to act on, so samples are kept in a short rolling
// window and questions like "is this hand pinching?" are answered over
// the whole window.
package gesture

// Hand identifies the left or right hand.
type Hand int

const (
	Left Hand = iota
	Right
)

// Hands returns both hands in index order.
func Hands() []Hand {
	return []Hand{Left, Right}
}

func (h Hand) String() string {
	switch h {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// Other returns the opposite hand.
func (h Hand) Other() Hand {
	if h == Left {
		return Right
	}
	return Left
}

// Gesture is a bitmask sample from the input layer.
type Gesture uint32

const (
	Pinch Gesture = 1 << iota // thumb and index closed
	Fist                      // all fingers closed
	Point                     // index extended, others closed
)

// None is an empty sample.
const None Gesture = 0

// Has reports whether any bit of mask is set in g.
func (g Gesture) Has(mask Gesture) bool {
	return g&mask != 0
}

func (g Gesture) String() string {
	if g == None {
		return "none"
	}
	s := ""
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if g.Has(Pinch) {
		add("pinch")
	}
	if g.Has(Fist) {
		add("fist")
	}
	if g.Has(Point) {
		add("point")
	}
	if s == "" {
		return "unknown"
	}
	return s
}
