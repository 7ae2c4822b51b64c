// Package session runs the capture loop: it polls the operator's hands,
// drives the grasp controller against the solver, turns gestures into
// recording commands and hands finished episodes to the writer.
package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/config"
	"github.com/gwillem/graspcap/pkg/gesture"
	"github.com/gwillem/graspcap/pkg/grasp"
	"github.com/gwillem/graspcap/pkg/record"
	"github.com/gwillem/graspcap/pkg/robot"
	"github.com/gwillem/graspcap/pkg/sim"
)

// SphereName is the grasp sphere's collider name.
const SphereName = "GraspSphere"

// Fingertip collider names matched by the default classifier rules.
var (
	indexNames = [2]string{"finger_index_l_end", "finger_index_r_end"}
	thumbNames = [2]string{"finger_thumb_l_end", "finger_thumb_r_end"}
)

// HandTracker reads the operator's hands.
type HandTracker interface {
	Track(ctx context.Context, hand gesture.Hand) (robot.HandPose, error)
}

// State is a snapshot published after every tick.
type State struct {
	Tick        int
	Object      string
	ObjectIndex int
	Objects     int
	Recording   bool
	Frames      int
	Full        bool
	Saved       int
	Hands       [2]robot.HandPose
	Held        [3]int // particle counts by grasp.Slot
	SphereBusy  bool
	Error       error
	Timestamp   time.Time
}

// Options configures a Session.
type Options struct {
	Config  *config.Config
	Tracker HandTracker
	Haptics grasp.Haptics    // optional
	Writer  *record.Writer   // optional; a writer without index is created
	Logger  *zap.Logger      // optional
	Rand    *rand.Rand       // optional; picks sphere targets
	Now     func() time.Time // optional
}

type hand struct {
	index, thumb int
}

// Session owns the simulated scene and the capture state. Step must only
// be called from one goroutine; Run does that on a ticker.
type Session struct {
	cfg      *config.Config
	tracker  HandTracker
	log      *zap.Logger
	now      func() time.Time
	rng      *rand.Rand
	interval int

	solver   *sim.Solver
	loader   *sim.ClothLoader
	ctrl     *grasp.Controller
	pinch    *gesture.Debouncer
	commands *gesture.Debouncer
	sphere   *sim.SphereDriver
	recorder *record.Recorder
	writer   *record.Writer

	hands        [2]hand
	sphereHandle int
	actor        grasp.ActorID
	objIdx       int
	tick         int
	start        time.Time
	warnedFull   bool
	saved        int
	poses        [2]robot.HandPose
	lastErr      error

	mu      sync.Mutex
	running bool
	stateCh chan State
	logCh   chan string
	cmdCh   chan Command
}

// New builds the scene and loads the first object not yet captured.
func New(opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Tracker == nil {
		return nil, fmt.Errorf("hand tracker is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Session{
		cfg:      cfg,
		tracker:  opts.Tracker,
		log:      opts.Logger,
		now:      opts.Now,
		rng:      opts.Rand,
		writer:   opts.Writer,
		interval: cfg.RecordInterval(),
		stateCh:  make(chan State, 1),
		logCh:    make(chan string, 10),
		cmdCh:    make(chan Command, 8),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rng == nil {
		seed := uint64(time.Now().UnixNano())
		s.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	if s.writer == nil {
		s.writer = record.NewWriter(nil, s.log.Named("writer"))
	}
	s.start = s.now()

	s.solver = sim.New()
	s.solver.ContactMargin = cfg.Scene.ContactMargin
	filters := cfg.Grasp.Filters
	for _, h := range gesture.Hands() {
		bit := filters.Left
		if h == gesture.Right {
			bit = filters.Right
		}
		s.hands[h] = hand{
			index: s.solver.AddCollider(grasp.ColliderInfo{Layer: grasp.HandLayer, Name: indexNames[h]}, cfg.Scene.FingerRadius, bit),
			thumb: s.solver.AddCollider(grasp.ColliderInfo{Layer: grasp.HandLayer, Name: thumbNames[h]}, cfg.Scene.FingerRadius, bit),
		}
	}
	s.sphereHandle = s.solver.AddCollider(grasp.ColliderInfo{Name: SphereName, Position: cfg.Scene.Sphere.Park}, cfg.Scene.SphereRadius, filters.Sphere)

	s.pinch = gesture.NewDebouncer(gesture.DefaultPinchWindow)
	s.commands = gesture.NewDebouncer(gesture.DefaultCommandWindow)

	ctrl, err := grasp.NewController(s.solver, s.pinch, opts.Haptics, cfg.GraspConfig(), s.log.Named("grasp"))
	if err != nil {
		return nil, fmt.Errorf("create grasp controller: %w", err)
	}
	s.ctrl = ctrl
	for _, h := range gesture.Hands() {
		s.ctrl.SetPinCollider(h, s.hands[h].index)
	}
	s.sphere = sim.NewSphereDriver(s.solver, s.sphereHandle, cfg.Scene.Sphere, s.ctrl)

	s.loader = &sim.ClothLoader{
		Solver:  s.solver,
		Rows:    cfg.Scene.Rows,
		Cols:    cfg.Scene.Cols,
		Spacing: cfg.Scene.Spacing,
		Origin:  cfg.Scene.Origin,
	}
	s.recorder = record.NewRecorder(s.meta(0, nil))

	first, err := s.resumeIndex()
	if err != nil {
		return nil, err
	}
	if err := s.loadObject(first); err != nil {
		return nil, err
	}
	return s, nil
}

// resumeIndex returns the object after the last one found in the save dir.
func (s *Session) resumeIndex() (int, error) {
	rc := s.cfg.Recording
	last, ok, err := record.LastObject(rc.SaveDir, rc.ObjectType, rc.ActionTag)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	objects := s.cfg.Scene.Objects
	for i, name := range objects {
		if name == last {
			if i+1 >= len(objects) {
				s.logf("All %d objects captured, staying on %s", len(objects), name)
				return i, nil
			}
			s.logf("Resuming after %s", last)
			return i + 1, nil
		}
	}
	return 0, nil
}

// States returns a channel that receives state updates.
func (s *Session) States() <-chan State {
	return s.stateCh
}

// Logs returns a channel that receives log messages.
func (s *Session) Logs() <-chan string {
	return s.logCh
}

// Hz returns the loop frequency.
func (s *Session) Hz() int {
	return s.cfg.Hz
}

// Object returns the current object name.
func (s *Session) Object() string {
	return s.cfg.Scene.Objects[s.objIdx]
}

// Send queues a command from the keyboard. It is applied on the next tick
// under the same rules as a gesture. Dropped if the queue is full.
func (s *Session) Send(cmd Command) {
	select {
	case s.cmdCh <- cmd:
	default:
	}
}

func (s *Session) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.log.Info(msg)
	s.push(msg)
}

func (s *Session) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.log.Warn(msg)
	s.push(msg)
}

func (s *Session) push(msg string) {
	line := fmt.Sprintf("[%s] %s", s.now().Format("15:04:05"), msg)
	select {
	case s.logCh <- line:
	default:
		// Drop if channel full
	}
}

// Run ticks the session at the configured rate until ctx is done. Pending
// saves are awaited before it returns.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logf("Capture started at %d Hz on %s", s.cfg.Hz, s.Object())

	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.Hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-ticker.C:
			s.Step(ctx)
		}
	}
}

func (s *Session) shutdown() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if s.recorder.Recording() {
		s.warnf("Discarding %d unsaved frames", s.recorder.Len())
	}
	if err := s.writer.Wait(); err != nil {
		s.warnf("Save failed: %v", err)
	}
	s.logf("Capture stopped")
}

// Step runs one tick.
func (s *Session) Step(ctx context.Context) {
	s.tick++
	s.lastErr = nil

	for _, h := range gesture.Hands() {
		pose, err := s.tracker.Track(ctx, h)
		if err != nil {
			s.lastErr = err
			s.warnf("Read error: %v", err)
			// keep the hand where it was but drop its gesture
			pose = robot.HandPose{Position: s.poses[h].Position, Joints: s.poses[h].Joints}
		}
		s.poses[h] = pose
		s.pinch.Record(h, pose.Gesture)
		s.commands.Record(h, pose.Gesture)
		s.moveHand(h, pose.Position)
	}

	if s.sphere.Active() {
		s.sphere.Tick()
	}
	s.solver.Step()
	for _, ev := range s.ctrl.Tick() {
		s.report(ev)
	}

	select {
	case cmd := <-s.cmdCh:
		s.apply(ctx, cmd)
	default:
		if cmd := Recognize(s.commands, s.recorder.Recording()); cmd != CmdNone {
			s.commands.Clear()
			s.apply(ctx, cmd)
		}
	}

	if s.tick%s.interval == 0 {
		s.sample()
	}
	s.sendState(s.snapshot())
}

func (s *Session) moveHand(h gesture.Hand, tip r3.Vec) {
	s.solver.MoveCollider(s.hands[h].index, tip)
	s.solver.MoveCollider(s.hands[h].thumb, r3.Add(tip, r3.Vec{Y: -2 * s.cfg.Scene.FingerRadius}))
}

func (s *Session) report(ev grasp.Event) {
	switch ev.Kind {
	case grasp.Attached:
		s.logf("%s grasp on %d particles", ev.Slot, len(ev.Particles))
	case grasp.Released:
		if ev.Err != nil {
			s.warnf("%s grasp dropped: %v", ev.Slot, ev.Err)
			return
		}
		s.logf("%s grasp released", ev.Slot)
	case grasp.Rejected:
		s.warnf("Invalid grasp point for %s", ev.Slot)
	}
}

func (s *Session) apply(ctx context.Context, cmd Command) {
	recording := s.recorder.Recording()
	switch cmd {
	case CmdStart:
		if recording {
			return
		}
		s.recorder.Start()
		s.logf("Recording %s", s.Object())
	case CmdClear:
		if !recording {
			return
		}
		s.recorder.Clear()
		s.warnedFull = false
		s.logf("Recording cleared, start again")
	case CmdSave:
		if !recording {
			return
		}
		s.save(ctx)
	case CmdNext, CmdPrev:
		if recording {
			s.warnf("Stop recording before changing objects")
			return
		}
		next := s.objIdx + 1
		if cmd == CmdPrev {
			next = s.objIdx - 1
		}
		if next < 0 || next >= len(s.cfg.Scene.Objects) {
			s.warnf("No %s object", map[Command]string{CmdNext: "next", CmdPrev: "previous"}[cmd])
			return
		}
		if err := s.loadObject(next); err != nil {
			s.warnf("Load failed: %v", err)
		}
	case CmdSphere:
		s.startSphere()
	}
}

func (s *Session) save(ctx context.Context) {
	ep := s.recorder.Handoff()
	path := record.Path(s.cfg.Recording.SaveDir, ep, s.now())
	s.writer.Save(context.WithoutCancel(ctx), ep, path)
	s.saved++
	s.logf("Saving %d frames of %s", len(ep.Frames), ep.Object)

	if s.objIdx+1 < len(s.cfg.Scene.Objects) {
		if err := s.loadObject(s.objIdx + 1); err != nil {
			s.warnf("Load failed: %v", err)
		}
		return
	}
	s.logf("Last object captured")
	if err := s.loadObject(s.objIdx); err != nil {
		s.warnf("Reload failed: %v", err)
	}
}

func (s *Session) startSphere() {
	if s.sphere.Active() {
		return
	}
	idx, ok := s.solver.ActorParticles(s.actor)
	if !ok {
		return
	}
	positions := make([]r3.Vec, len(idx))
	for i, p := range idx {
		positions[i] = s.solver.ParticlePosition(p)
	}
	target := sim.PickGraspParticle(idx, positions, s.rng)
	if target < 0 {
		return
	}
	s.sphere.Begin(target)
	s.logf("Sphere heading for particle %d", target)
}

func (s *Session) loadObject(i int) error {
	objects := s.cfg.Scene.Objects
	if i < 0 || i >= len(objects) {
		return fmt.Errorf("object index %d out of range [0, %d)", i, len(objects))
	}
	s.sphere.Stop()
	s.ctrl.Reset()
	s.commands.Clear()

	actor, err := s.loader.Load(objects[i])
	if err != nil {
		return err
	}
	s.actor = actor
	idx, _ := s.solver.ActorParticles(actor)
	s.objIdx = i
	s.warnedFull = false
	s.recorder.SetMeta(s.meta(i, idx))
	s.logf("Loaded %s (%d/%d)", objects[i], i+1, len(objects))
	return nil
}

func (s *Session) meta(i int, indices []int) record.Meta {
	rc := s.cfg.Recording
	return record.Meta{
		ObjectType:    rc.ObjectType,
		ActionTag:     rc.ActionTag,
		Object:        s.cfg.Scene.Objects[i],
		SolverIndices: indices,
		PlaneHeight:   s.cfg.Scene.Origin.Y,
		MaxFrames:     rc.MaxFrames,
	}
}

func (s *Session) sample() {
	if !s.recorder.Recording() {
		return
	}
	idx, _ := s.solver.ActorParticles(s.actor)
	particles := make([]r3.Vec, len(idx))
	for i, p := range idx {
		particles[i] = s.solver.ParticlePosition(p)
	}

	var hands [2]record.HandFrame
	for _, h := range gesture.Hands() {
		hands[h] = record.HandFrame{
			Position: s.poses[h].Position,
			Joints:   s.poses[h].Joints,
			State:    s.poses[h].Gesture,
		}
	}
	s.recorder.Sample(record.Frame{
		Time:       s.now().Sub(s.start).Seconds(),
		Hands:      hands,
		Particles:  particles,
		LeftHeld:   s.ctrl.LeftHeldParticles(),
		RightHeld:  s.ctrl.RightHeldParticles(),
		SphereHeld: s.ctrl.SphereHeldParticles(),
	})

	if s.recorder.Full() && !s.warnedFull {
		s.warnedFull = true
		s.warnf("Reached %d frames (max frames), save now", s.recorder.Len())
	}
}

func (s *Session) snapshot() State {
	st := State{
		Tick:        s.tick,
		Object:      s.Object(),
		ObjectIndex: s.objIdx,
		Objects:     len(s.cfg.Scene.Objects),
		Recording:   s.recorder.Recording(),
		Frames:      s.recorder.Len(),
		Full:        s.recorder.Full(),
		Saved:       s.saved,
		Hands:       s.poses,
		SphereBusy:  s.sphere.Active(),
		Error:       s.lastErr,
		Timestamp:   s.now(),
	}
	for _, slot := range grasp.Slots() {
		if h, ok := s.ctrl.Hold(slot); ok {
			st.Held[slot] = len(h.Particles)
		}
	}
	return st
}

func (s *Session) sendState(st State) {
	select {
	case s.stateCh <- st:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-s.stateCh:
		default:
		}
		s.stateCh <- st
	}
}
