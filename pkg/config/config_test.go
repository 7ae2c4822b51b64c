package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/robot"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.RecordInterval())
	assert.Equal(t, cfg.Grasp.LeftAnchor, cfg.Left.Hand.Base)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	cfg := Default()
	cfg.Left.Port = "/dev/ttyUSB0"
	cfg.Left.Calibration = robot.Calibration{robot.Gripper: {ID: 6, RangeMin: 100, RangeMax: 900}}
	cfg.Scene.Objects = []string{"a", "b"}
	assert.False(t, Exists(path))
	require.NoError(t, cfg.SaveTo(path))
	assert.True(t, Exists(path))

	got, err := LoadFrom(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFrom_FillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"hz": 100, "recording": {"action_tag": "lift"}}`), 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Hz)
	assert.Equal(t, "lift", cfg.Recording.ActionTag)
	assert.Equal(t, "cloth", cfg.Recording.ObjectType)
	assert.Equal(t, 4, cfg.RecordInterval())
}

func TestLoadFrom_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFrom(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"hz": 0}`), 0o644))
	_, err = LoadFrom(bad)
	assert.ErrorContains(t, err, "hz must be positive")

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte(`{`), 0o644))
	_, err = LoadFrom(garbage)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GRASPCAP_SAVE_DIR", "/data/eps")
	t.Setenv("GRASPCAP_OBJECT_TYPE", "towel")
	t.Setenv("GRASPCAP_HZ", "60")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "/data/eps", cfg.Recording.SaveDir)
	assert.Equal(t, "towel", cfg.Recording.ObjectType)
	assert.Equal(t, "fold", cfg.Recording.ActionTag)
	assert.Equal(t, 60, cfg.Hz)

	t.Setenv("GRASPCAP_HZ", "fast")
	assert.Error(t, cfg.ApplyEnv())
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Hz = 10
	cfg.Recording.RecordHz = 20
	cfg.Scene.Objects = nil
	cfg.Grasp.MaxPinned = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "record_hz")
	assert.ErrorContains(t, err, "at least one object")
	assert.ErrorContains(t, err, "max pinned")
}

func TestGraspConfig_UsesArmBases(t *testing.T) {
	cfg := Default()
	cfg.Left.Hand.Base = r3.Vec{X: -0.5}
	g := cfg.GraspConfig()
	assert.Equal(t, r3.Vec{X: -0.5}, g.LeftAnchor)
	assert.Equal(t, cfg.Right.Hand.Base, g.RightAnchor)
	assert.Equal(t, r3.Vec{X: -0.3}, cfg.Grasp.LeftAnchor)
}
