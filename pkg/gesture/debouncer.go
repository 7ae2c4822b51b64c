package gesture

const (
	// DefaultPinchWindow is the window used for grasp detection.
	DefaultPinchWindow = 5
	// DefaultCommandWindow is the window used for recording commands
	// (point and fist), which must be held much longer than a pinch.
	DefaultCommandWindow = 180
)

// Debouncer keeps one window per hand.
//
// Holding is sticky: a hand is pinching while any sample in its window
// has the pinch bit. Releasing requires the whole window to be clear, so a
// single dropped frame cannot end a grasp.
//
// A Debouncer is not safe for concurrent use. Record and the queries are
// expected to run on the same tick goroutine.
type Debouncer struct {
	windows [2]*Window
}

// NewDebouncer creates a debouncer with the given window capacity per hand.
func NewDebouncer(capacity int) *Debouncer {
	return &Debouncer{
		windows: [2]*Window{NewWindow(capacity), NewWindow(capacity)},
	}
}

// Record appends a sample to the hand's window.
func (d *Debouncer) Record(h Hand, g Gesture) {
	if w := d.window(h); w != nil {
		w.Push(g)
	}
}

// IsPinching reports whether any sample in the hand's window has the pinch bit.
func (d *Debouncer) IsPinching(h Hand) bool {
	return d.Holds(h, Pinch)
}

// IsReleased reports whether no sample in the hand's window has the pinch bit.
func (d *Debouncer) IsReleased(h Hand) bool {
	w := d.window(h)
	if w == nil {
		return true
	}
	return w.None(Pinch)
}

// Holds reports whether any sample in the hand's window has a bit of mask.
func (d *Debouncer) Holds(h Hand, mask Gesture) bool {
	w := d.window(h)
	if w == nil {
		return false
	}
	return w.Any(mask)
}

// Window returns the hand's window.
func (d *Debouncer) Window(h Hand) *Window {
	return d.window(h)
}

// Clear empties both windows.
func (d *Debouncer) Clear() {
	for _, w := range d.windows {
		w.Clear()
	}
}

func (d *Debouncer) window(h Hand) *Window {
	if h != Left && h != Right {
		return nil
	}
	return d.windows[h]
}
