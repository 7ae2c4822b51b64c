package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/config"
	"github.com/gwillem/graspcap/pkg/gesture"
	"github.com/gwillem/graspcap/pkg/grasp"
	"github.com/gwillem/graspcap/pkg/record"
	"github.com/gwillem/graspcap/pkg/robot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	awayL = r3.Vec{X: -5, Y: 5}
	awayR = r3.Vec{X: 5, Y: 5}
	// grid particle 12 of a 5x5 cloth at y=0.5 with 1 cm spacing
	onCloth = r3.Vec{X: 0.02, Y: 0.5, Z: 0.02}
)

type fakeTracker struct {
	mu    sync.Mutex
	poses [2]robot.HandPose
	err   error
}

func newTracker() *fakeTracker {
	f := &fakeTracker{}
	f.set(gesture.Left, awayL, gesture.None)
	f.set(gesture.Right, awayR, gesture.None)
	return f
}

func (f *fakeTracker) set(h gesture.Hand, pos r3.Vec, g gesture.Gesture) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poses[h] = robot.HandPose{Position: pos, Gesture: g}
}

func (f *fakeTracker) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeTracker) Track(_ context.Context, h gesture.Hand) (robot.HandPose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return robot.HandPose{}, f.err
	}
	return f.poses[h], nil
}

type fakeHaptics struct {
	buzzes [2]int
}

func (f *fakeHaptics) Vibrate(h gesture.Hand) {
	f.buzzes[h]++
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Recording.SaveDir = t.TempDir()
	cfg.Scene.Rows, cfg.Scene.Cols = 5, 5
	cfg.Scene.Spacing = 0.01
	cfg.Scene.Origin = r3.Vec{Y: 0.5}
	cfg.Scene.Objects = []string{"0001", "0002", "0003"}
	return cfg
}

type rig struct {
	s       *Session
	tracker *fakeTracker
	logs    *observer.ObservedLogs
}

func newRig(t *testing.T, cfg *config.Config, haptics grasp.Haptics) *rig {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	tr := newTracker()
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.Local)
	s, err := New(Options{
		Config:  cfg,
		Tracker: tr,
		Haptics: haptics,
		Logger:  zap.New(core),
		Rand:    rand.New(rand.NewPCG(7, 9)),
		Now:     func() time.Time { return at },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.writer.Wait() })
	return &rig{s: s, tracker: tr, logs: logs}
}

func (r *rig) step(n int) State {
	for i := 0; i < n; i++ {
		r.s.Step(context.Background())
	}
	return <-r.s.States()
}

func TestRecognize(t *testing.T) {
	tests := []struct {
		name        string
		left, right gesture.Gesture
		recording   bool
		want        Command
	}{
		{"right point starts", gesture.None, gesture.Point, false, CmdStart},
		{"right point while recording", gesture.None, gesture.Point, true, CmdNone},
		{"left point clears", gesture.Point, gesture.None, true, CmdClear},
		{"left point while idle", gesture.Point, gesture.None, false, CmdNone},
		{"both points save", gesture.Point, gesture.Point | gesture.Pinch, true, CmdSave},
		{"both points while idle", gesture.Point, gesture.Point, false, CmdNone},
		{"right fist next", gesture.None, gesture.Fist, false, CmdNext},
		{"left fist prev", gesture.Fist, gesture.None, false, CmdPrev},
		{"both fists", gesture.Fist, gesture.Fist, false, CmdNone},
		{"fist while recording", gesture.None, gesture.Fist, true, CmdNone},
		{"nothing", gesture.Pinch, gesture.Pinch, false, CmdNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := gesture.NewDebouncer(gesture.DefaultCommandWindow)
			w.Record(gesture.Left, tt.left)
			w.Record(gesture.Right, tt.right)
			assert.Equal(t, tt.want, Recognize(w, tt.recording))
		})
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Options{Tracker: newTracker()})
	assert.Error(t, err)

	_, err = New(Options{Config: testConfig(t)})
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Hz = 0
	_, err = New(Options{Config: cfg, Tracker: newTracker()})
	assert.Error(t, err)
}

func TestSession_GraspRecordSave(t *testing.T) {
	cfg := testConfig(t)
	r := newRig(t, cfg, nil)

	st := r.step(1)
	assert.Equal(t, "0001", st.Object)
	assert.Zero(t, st.Held[grasp.SlotLeft])

	r.tracker.set(gesture.Left, onCloth, gesture.Pinch)
	st = r.step(1)
	require.Positive(t, st.Held[grasp.SlotLeft])
	assert.LessOrEqual(t, st.Held[grasp.SlotLeft], grasp.DefaultMaxPinned)

	r.tracker.set(gesture.Right, awayR, gesture.Point)
	st = r.step(1)
	require.True(t, st.Recording)
	r.tracker.set(gesture.Right, awayR, gesture.None)

	// ticks 4 through 9 sample on even ticks
	st = r.step(6)
	assert.True(t, st.Recording)
	assert.Equal(t, 3, st.Frames)

	r.tracker.set(gesture.Left, onCloth, gesture.Pinch|gesture.Point)
	r.tracker.set(gesture.Right, awayR, gesture.Point)
	st = r.step(1)
	assert.False(t, st.Recording)
	assert.Equal(t, 1, st.Saved)
	assert.Equal(t, 1, st.ObjectIndex)
	assert.Equal(t, "0002", st.Object)
	assert.Zero(t, st.Held[grasp.SlotLeft], "object change resets grasps")

	require.NoError(t, r.s.writer.Wait())
	entries, err := os.ReadDir(cfg.Recording.SaveDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, obj, ok := record.ParseFileName("cloth", "fold", entries[0].Name())
	require.True(t, ok)
	assert.Equal(t, "0001", obj)

	ep, err := record.ReadEpisode(filepath.Join(cfg.Recording.SaveDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "0001", ep.Object)
	assert.Len(t, ep.SolverIndices, 25)
	assert.Equal(t, 0.5, ep.PlaneHeight)
	require.Len(t, ep.Frames, 3)
	for _, f := range ep.Frames {
		assert.NotEmpty(t, f.LeftHeld)
		assert.Empty(t, f.RightHeld)
		assert.Len(t, f.Particles, 25)
		assert.Equal(t, onCloth, f.Hands[gesture.Left].Position)
		assert.True(t, f.Hands[gesture.Left].State.Has(gesture.Pinch))
	}
}

func TestSession_ClearDiscardsFrames(t *testing.T) {
	r := newRig(t, testConfig(t), nil)

	r.tracker.set(gesture.Right, awayR, gesture.Point)
	r.step(1)
	r.tracker.set(gesture.Right, awayR, gesture.None)
	st := r.step(4)
	require.Positive(t, st.Frames)

	r.tracker.set(gesture.Left, awayL, gesture.Point)
	st = r.step(1)
	assert.False(t, st.Recording)
	assert.Zero(t, st.Frames)
	assert.Equal(t, 0, st.ObjectIndex)
	assert.Equal(t, 1, r.logs.FilterMessageSnippet("cleared").Len())
}

func TestSession_InvalidGraspVibrates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Left.Hand.Base = r3.Vec{X: 0.02, Y: 0.45, Z: 0.02}
	h := &fakeHaptics{}
	r := newRig(t, cfg, h)

	r.tracker.set(gesture.Left, onCloth, gesture.Pinch)
	st := r.step(1)
	assert.Zero(t, st.Held[grasp.SlotLeft])
	assert.Positive(t, h.buzzes[gesture.Left])
	assert.Zero(t, h.buzzes[gesture.Right])
	assert.Positive(t, r.logs.FilterMessageSnippet("Invalid grasp point").Len())
}

func TestSession_ObjectNavigation(t *testing.T) {
	r := newRig(t, testConfig(t), nil)

	r.tracker.set(gesture.Right, awayR, gesture.Fist)
	st := r.step(1)
	assert.Equal(t, 1, st.ObjectIndex)

	// windows were cleared, so a held fist needs a fresh sample to fire again
	r.tracker.set(gesture.Right, awayR, gesture.None)
	st = r.step(3)
	assert.Equal(t, 1, st.ObjectIndex)

	r.tracker.set(gesture.Left, awayL, gesture.Fist)
	st = r.step(1)
	assert.Equal(t, 0, st.ObjectIndex)
	st = r.step(1)
	assert.Equal(t, 0, st.ObjectIndex)
	assert.Positive(t, r.logs.FilterMessageSnippet("No previous object").Len())
}

func TestSession_NoObjectChangeWhileRecording(t *testing.T) {
	r := newRig(t, testConfig(t), nil)

	r.s.Send(CmdStart)
	st := r.step(1)
	require.True(t, st.Recording)

	r.s.Send(CmdNext)
	st = r.step(1)
	assert.Equal(t, 0, st.ObjectIndex)
	assert.True(t, st.Recording)
	assert.Equal(t, 1, r.logs.FilterMessageSnippet("Stop recording").Len())
}

func TestSession_Resume(t *testing.T) {
	cfg := testConfig(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Recording.SaveDir, record.FileName("cloth", "fold", at, "0002")), []byte("{}"), 0o644))

	r := newRig(t, cfg, nil)
	assert.Equal(t, "0003", r.s.Object())

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Recording.SaveDir, record.FileName("cloth", "fold", at, "0003")), []byte("{}"), 0o644))
	r = newRig(t, cfg, nil)
	assert.Equal(t, "0003", r.s.Object())
	assert.Equal(t, 1, r.logs.FilterMessageSnippet("All 3 objects captured").Len())
}

func TestSession_MaxFramesWarnsOnce(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recording.MaxFrames = 2
	r := newRig(t, cfg, nil)

	r.s.Send(CmdStart)
	st := r.step(10)
	assert.Greater(t, st.Frames, 2, "recording continues past the budget")
	assert.True(t, st.Full)
	assert.Equal(t, 1, r.logs.FilterMessageSnippet("max frames").Len())
}

func TestSession_SphereCycle(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scene.Sphere.End = r3.Vec{X: 0.02, Y: 0.6, Z: 0.02}
	cfg.Scene.Sphere.HoldTicks = 2
	r := newRig(t, cfg, nil)

	r.s.Send(CmdSphere)
	st := r.step(1)
	require.True(t, st.SphereBusy)

	var held []int
	for i := 0; i < 300 && st.SphereBusy; i++ {
		st = r.step(1)
		if st.Held[grasp.SlotSphere] > 0 {
			held = r.s.ctrl.SphereHeldParticles()
		}
	}
	require.NotEmpty(t, held, "sphere never grabbed the cloth")
	assert.False(t, st.SphereBusy)
	assert.Zero(t, st.Held[grasp.SlotSphere])

	// the released cloth stays where the sphere let go of it
	st = r.step(2)
	sc := cfg.Scene.Sphere
	for _, p := range held {
		pos := r.s.solver.ParticlePosition(p)
		assert.NotEqual(t, sc.Park, pos, "particle %d", p)
		assert.LessOrEqual(t, r3.Norm(r3.Sub(pos, sc.End)), sc.Tolerance+1e-9, "particle %d", p)
	}
}

func TestSession_TrackErrorDropsGesture(t *testing.T) {
	r := newRig(t, testConfig(t), nil)

	r.tracker.set(gesture.Left, onCloth, gesture.Pinch)
	st := r.step(1)
	require.Positive(t, st.Held[grasp.SlotLeft])

	r.tracker.fail(errors.New("bus timeout"))
	st = r.step(1)
	assert.Error(t, st.Error)
	assert.Equal(t, onCloth, st.Hands[gesture.Left].Position)

	// five failed reads empty the pinch window
	st = r.step(4)
	assert.Zero(t, st.Held[grasp.SlotLeft])
}

func TestSession_Run(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hz = 200
	r := newRig(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.s.Run(ctx) }()

	select {
	case st := <-r.s.States():
		assert.Positive(t, st.Tick)
	case <-time.After(2 * time.Second):
		t.Fatal("no state published")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, 1, r.logs.FilterMessageSnippet("Capture started").Len())
	assert.Equal(t, 1, r.logs.FilterMessageSnippet("Capture stopped").Len())
}
