package gesture

// Window is a fixed-capacity FIFO of gesture samples. Pushing onto a full
// window evicts the oldest sample.
type Window struct {
	buf   []Gesture
	start int
	n     int
}

// NewWindow creates a window holding at most capacity samples.
// A capacity below 1 is treated as 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]Gesture, capacity)}
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return w.n
}

// Push appends a sample, evicting the oldest one if the window is full.
func (w *Window) Push(g Gesture) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = g
		w.n++
		return
	}
	w.buf[w.start] = g
	w.start = (w.start + 1) % len(w.buf)
}

// Any reports whether at least one sample has a bit of mask set.
func (w *Window) Any(mask Gesture) bool {
	for i := 0; i < w.n; i++ {
		if w.buf[(w.start+i)%len(w.buf)].Has(mask) {
			return true
		}
	}
	return false
}

// None reports whether no sample has a bit of mask set. An empty window
// satisfies None.
func (w *Window) None(mask Gesture) bool {
	return !w.Any(mask)
}

// Samples returns the samples oldest first.
func (w *Window) Samples() []Gesture {
	out := make([]Gesture, w.n)
	for i := range out {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Clear drops all samples.
func (w *Window) Clear() {
	w.start = 0
	w.n = 0
}
