package record

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/gesture"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func frame(t float64) Frame {
	return Frame{
		Time:      t,
		Particles: []r3.Vec{{X: t}},
		LeftHeld:  []int{1},
		RightHeld: []int{},
	}
}

func TestRecorder_SamplesOnlyWhileRecording(t *testing.T) {
	r := NewRecorder(Meta{ObjectType: "shirt", ActionTag: "fold", Object: "0001", MaxFrames: 3})

	r.Sample(frame(0))
	assert.Zero(t, r.Len())
	assert.False(t, r.Recording())

	r.Start()
	for i := 0; i < 3; i++ {
		assert.False(t, r.Full())
		r.Sample(frame(float64(i)))
	}
	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Full())

	// recording continues past the budget
	r.Sample(frame(3))
	assert.Equal(t, 4, r.Len())

	r.Clear()
	assert.Zero(t, r.Len())
	assert.False(t, r.Recording())
}

func TestRecorder_HandoffAllocatesFreshBuffer(t *testing.T) {
	r := NewRecorder(Meta{ObjectType: "shirt", ActionTag: "fold", Object: "0001", SolverIndices: []int{4, 5}})
	r.Start()
	r.Sample(frame(0))
	r.Sample(frame(0.04))

	ep := r.Handoff()
	require.Len(t, ep.Frames, 2)
	assert.Equal(t, DefaultMaxFrames, ep.MaxFrames)
	_, err := uuid.Parse(ep.ID)
	assert.NoError(t, err)
	assert.False(t, r.Recording())
	assert.Zero(t, r.Len())

	// the handed-off episode is never touched again
	r.Start()
	r.Sample(frame(1))
	assert.Len(t, ep.Frames, 2)

	next := r.Handoff()
	assert.NotEqual(t, ep.ID, next.ID)
	assert.Equal(t, []int{4, 5}, next.SolverIndices)
}

func TestFileName_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	name := FileName("shirt", "fold", ts, "obj_0042")
	assert.Equal(t, "shirt_fold_20240309-140507_obj_0042.json", name)

	got, obj, ok := ParseFileName("shirt", "fold", name)
	require.True(t, ok)
	assert.True(t, got.Equal(ts))
	assert.Equal(t, "obj_0042", obj)

	_, _, ok = ParseFileName("pants", "fold", name)
	assert.False(t, ok)
	_, _, ok = ParseFileName("shirt", "fold", "shirt_fold_garbage_x.json")
	assert.False(t, ok)
}

func TestLastObject(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	for _, name := range []string{
		FileName("shirt", "fold", ts, "0003"),
		FileName("shirt", "fold", ts.Add(time.Hour), "0001"),
		FileName("shirt", "lift", ts, "0009"),
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}

	obj, ok, err := LastObject(dir, "shirt", "fold")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0003", obj)

	_, ok, err = LastObject(dir, "pants", "fold")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = LastObject(filepath.Join(dir, "missing"), "shirt", "fold")
	require.NoError(t, err)
	assert.False(t, ok)
}

type fakeIndexer struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeIndexer) Index(_ context.Context, _ *Episode, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return f.err
}

func TestWriter_SaveAndIndex(t *testing.T) {
	dir := t.TempDir()
	idx := &fakeIndexer{}
	w := NewWriter(idx, nil)

	r := NewRecorder(Meta{ObjectType: "shirt", ActionTag: "fold", Object: "0001", PlaneHeight: 0.5})
	r.Start()
	r.Sample(Frame{Time: 0, Hands: [2]HandFrame{{State: gesture.Pinch}}, Particles: []r3.Vec{{Y: 0.5}}, LeftHeld: []int{0}})
	ep := r.Handoff()

	path := filepath.Join(dir, "nested", "ep.json")
	w.Save(context.Background(), ep, path)
	require.NoError(t, w.Wait())

	res := <-w.Results()
	assert.NoError(t, res.Err)
	assert.Equal(t, ep.ID, res.ID)
	assert.Equal(t, 1, res.Frames)
	assert.Equal(t, []string{path}, idx.paths)

	got, err := ReadEpisode(path)
	require.NoError(t, err)
	if diff := cmp.Diff(ep, got); diff != "" {
		t.Errorf("episode mismatch (-want +got):\n%s", diff)
	}

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriter_SamePathSavesAreOrdered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ep.json")
	w := NewWriter(nil, nil)

	var last *Episode
	for i := 0; i < 5; i++ {
		ep := newEpisode(Meta{Object: "0001"})
		ep.Frames = make([]Frame, i+1)
		w.Save(context.Background(), ep, path)
		last = ep
	}
	require.NoError(t, w.Wait())

	got, err := ReadEpisode(path)
	require.NoError(t, err)
	assert.Equal(t, last.ID, got.ID)
	assert.Len(t, got.Frames, 5)
}

func TestWriter_ReportsErrors(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	idx := &fakeIndexer{}
	w := NewWriter(idx, nil)
	w.Save(context.Background(), newEpisode(Meta{}), filepath.Join(blocker, "ep.json"))

	err := w.Wait()
	require.Error(t, err)
	res := <-w.Results()
	assert.Error(t, res.Err)
	assert.Empty(t, idx.paths)

	// a failed batch does not poison later waits
	w.Save(context.Background(), newEpisode(Meta{}), filepath.Join(dir, "ep.json"))
	require.NoError(t, w.Wait())
	assert.Len(t, idx.paths, 1)
}

func TestWriter_IndexFailureIsNotSaveFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ep.json")
	w := NewWriter(&fakeIndexer{err: errors.New("db locked")}, nil)
	w.Save(context.Background(), newEpisode(Meta{}), path)
	require.NoError(t, w.Wait())
	assert.FileExists(t, path)
}
