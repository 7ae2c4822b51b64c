package record

// Recorder accumulates frames for the current episode. It is owned by the
// tick goroutine. Handoff gives the filled episode away and starts a fresh
// one, so a buffer being written is never touched again.
type Recorder struct {
	meta      Meta
	ep        *Episode
	recording bool
}

// NewRecorder creates an idle recorder for the given episode metadata.
func NewRecorder(m Meta) *Recorder {
	return &Recorder{meta: m, ep: newEpisode(m)}
}

// SetMeta switches to a new object. The current buffer is discarded.
func (r *Recorder) SetMeta(m Meta) {
	r.meta = m
	r.Clear()
}

// Start begins appending samples.
func (r *Recorder) Start() {
	r.recording = true
}

// Recording reports whether samples are being kept.
func (r *Recorder) Recording() bool {
	return r.recording
}

// Clear drops the recorded frames and stops recording.
func (r *Recorder) Clear() {
	r.ep = newEpisode(r.meta)
	r.recording = false
}

// Sample appends a frame while recording.
func (r *Recorder) Sample(f Frame) {
	if !r.recording {
		return
	}
	r.ep.Frames = append(r.ep.Frames, f)
}

// Len returns the number of frames recorded.
func (r *Recorder) Len() int {
	return len(r.ep.Frames)
}

// Full reports whether the episode reached its frame budget.
func (r *Recorder) Full() bool {
	return len(r.ep.Frames) >= r.ep.MaxFrames
}

// Handoff returns the recorded episode, stops recording and allocates a
// fresh buffer. The caller owns the returned episode.
func (r *Recorder) Handoff() *Episode {
	ep := r.ep
	r.ep = newEpisode(r.meta)
	r.recording = false
	return ep
}
