package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/graspcap/pkg/record"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "episodes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestCatalog_AddList(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, c.Add(ctx, Entry{ID: "a", ObjectType: "shirt", ActionTag: "fold", Object: "0001", Path: "/x/a.json", Frames: 10, SavedAt: base}))
	require.NoError(t, c.Add(ctx, Entry{ID: "b", ObjectType: "shirt", ActionTag: "fold", Object: "0002", Path: "/x/b.json", Frames: 20, SavedAt: base.Add(time.Minute)}))
	require.NoError(t, c.Add(ctx, Entry{ID: "c", ObjectType: "pants", ActionTag: "fold", Object: "0001", Path: "/x/c.json", Frames: 5, SavedAt: base.Add(2 * time.Minute)}))

	all, err := c.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.True(t, all[2].SavedAt.Equal(base))

	shirts, err := c.List(ctx, Filter{ObjectType: "shirt", ActionTag: "fold", Limit: 1})
	require.NoError(t, err)
	require.Len(t, shirts, 1)
	assert.Equal(t, "b", shirts[0].ID)
	assert.Equal(t, 20, shirts[0].Frames)

	n, err := c.Count(ctx, "shirt", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = c.Count(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCatalog_ListOrdersWithinSecond(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC)

	require.NoError(t, c.Add(ctx, Entry{ID: "whole", SavedAt: base}))
	require.NoError(t, c.Add(ctx, Entry{ID: "half", SavedAt: base.Add(500 * time.Millisecond)}))
	require.NoError(t, c.Add(ctx, Entry{ID: "next", SavedAt: base.Add(time.Second)}))

	all, err := c.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"next", "half", "whole"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.True(t, all[1].SavedAt.Equal(base.Add(500*time.Millisecond)))
}

func TestCatalog_AddReplaces(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	require.NoError(t, c.Add(ctx, Entry{ID: "a", Frames: 1}))
	require.NoError(t, c.Add(ctx, Entry{ID: "a", Frames: 2}))

	all, err := c.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].Frames)

	assert.Error(t, c.Add(ctx, Entry{}))
}

func TestCatalog_IndexesWriterSaves(t *testing.T) {
	c := openTest(t)
	dir := t.TempDir()
	w := record.NewWriter(c, nil)

	r := record.NewRecorder(record.Meta{ObjectType: "shirt", ActionTag: "fold", Object: "0007"})
	r.Start()
	r.Sample(record.Frame{Time: 0})
	r.Sample(record.Frame{Time: 0.04})
	ep := r.Handoff()

	path := record.Path(dir, ep, time.Now())
	w.Save(context.Background(), ep, path)
	require.NoError(t, w.Wait())

	all, err := c.List(context.Background(), Filter{ObjectType: "shirt"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ep.ID, all[0].ID)
	assert.Equal(t, "0007", all[0].Object)
	assert.Equal(t, path, all[0].Path)
	assert.Equal(t, 2, all[0].Frames)
}
