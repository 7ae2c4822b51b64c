// Package config loads and saves the capture rig configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/caarlos0/env/v11"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/gwillem/graspcap/pkg/grasp"
	"github.com/gwillem/graspcap/pkg/record"
	"github.com/gwillem/graspcap/pkg/robot"
	"github.com/gwillem/graspcap/pkg/sim"
)

const DefaultConfigFile = "graspcap.json"

// handScale stretches the leader arm's reach over the scene.
const handScale = 2.5

// Defaults for the loop and sampling rates.
const (
	DefaultHz       = 50
	DefaultRecordHz = 25
)

// Config holds the rig configuration.
type Config struct {
	Left      robot.ArmConfig `json:"left"`
	Right     robot.ArmConfig `json:"right"`
	Grasp     grasp.Config    `json:"grasp"`
	Recording Recording       `json:"recording"`
	Scene     Scene           `json:"scene"`
	Hz        int             `json:"hz"`
}

// Recording controls where and how often episodes are captured.
type Recording struct {
	SaveDir    string `json:"save_dir"`
	Catalog    string `json:"catalog"`
	ObjectType string `json:"object_type"`
	ActionTag  string `json:"action_tag"`
	RecordHz   int    `json:"record_hz"`
	MaxFrames  int    `json:"max_frames"`
}

// Scene describes the simulated workspace.
type Scene struct {
	Rows          int              `json:"rows"`
	Cols          int              `json:"cols"`
	Spacing       float64          `json:"spacing"`
	Origin        r3.Vec           `json:"origin"`
	Objects       []string         `json:"objects"`
	ContactMargin float64          `json:"contact_margin"`
	FingerRadius  float64          `json:"finger_radius"`
	SphereRadius  float64          `json:"sphere_radius"`
	Sphere        sim.SphereConfig `json:"sphere"`
}

// overrides are the settings that may come from the environment.
type overrides struct {
	SaveDir    string `env:"GRASPCAP_SAVE_DIR"`
	Catalog    string `env:"GRASPCAP_CATALOG"`
	ObjectType string `env:"GRASPCAP_OBJECT_TYPE"`
	ActionTag  string `env:"GRASPCAP_ACTION_TAG"`
	Hz         int    `env:"GRASPCAP_HZ"`
}

// Default returns a complete configuration without arm ports or
// calibration.
func Default() *Config {
	g := grasp.DefaultConfig()
	left := robot.DefaultHandConfig(g.LeftAnchor)
	right := robot.DefaultHandConfig(g.RightAnchor)
	// the arms face each other across the table
	right.Heading = math.Pi
	left.Scale, right.Scale = handScale, handScale
	return &Config{
		Left:  robot.ArmConfig{Hand: left},
		Right: robot.ArmConfig{Hand: right},
		Grasp: g,
		Recording: Recording{
			SaveDir:    "episodes",
			Catalog:    "episodes/catalog.db",
			ObjectType: "cloth",
			ActionTag:  "fold",
			RecordHz:   DefaultRecordHz,
			MaxFrames:  record.DefaultMaxFrames,
		},
		Scene: Scene{
			Rows:          20,
			Cols:          20,
			Spacing:       0.02,
			Origin:        r3.Vec{X: -0.2, Y: 0.1, Z: 0.1},
			Objects:       []string{"0001", "0002", "0003"},
			ContactMargin: sim.DefaultContactMargin,
			FingerRadius:  0.01,
			SphereRadius:  0.02,
			Sphere:        sim.DefaultSphereConfig(),
		},
		Hz: DefaultHz,
	}
}

// LoadFrom reads path over the defaults, applies environment overrides and
// validates the result.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays GRASPCAP_* environment variables.
func (c *Config) ApplyEnv() error {
	var o overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.SaveDir != "" {
		c.Recording.SaveDir = o.SaveDir
	}
	if o.Catalog != "" {
		c.Recording.Catalog = o.Catalog
	}
	if o.ObjectType != "" {
		c.Recording.ObjectType = o.ObjectType
	}
	if o.ActionTag != "" {
		c.Recording.ActionTag = o.ActionTag
	}
	if o.Hz != 0 {
		c.Hz = o.Hz
	}
	return nil
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Exists returns true if the config file exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RecordInterval is the number of ticks between recorded frames.
func (c *Config) RecordInterval() int {
	return max(1, c.Hz/c.Recording.RecordHz)
}

// Validate checks everything except arm calibration, which only matters
// when hardware is attached.
func (c *Config) Validate() error {
	var errs []error
	if c.Hz <= 0 {
		errs = append(errs, fmt.Errorf("hz must be positive, got %d", c.Hz))
	}
	if c.Recording.RecordHz <= 0 || c.Recording.RecordHz > c.Hz {
		errs = append(errs, fmt.Errorf("record_hz must be in (0, %d], got %d", c.Hz, c.Recording.RecordHz))
	}
	if c.Recording.MaxFrames <= 0 {
		errs = append(errs, fmt.Errorf("max_frames must be positive"))
	}
	if c.Recording.SaveDir == "" {
		errs = append(errs, fmt.Errorf("save_dir is required"))
	}
	if c.Recording.ObjectType == "" || c.Recording.ActionTag == "" {
		errs = append(errs, fmt.Errorf("object_type and action_tag are required"))
	}
	if err := c.Grasp.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("grasp: %w", err))
	}
	if err := c.Left.Hand.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("left hand: %w", err))
	}
	if err := c.Right.Hand.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("right hand: %w", err))
	}
	s := c.Scene
	if s.Rows < 1 || s.Cols < 1 || s.Spacing <= 0 {
		errs = append(errs, fmt.Errorf("scene grid %dx%d spacing %v is empty", s.Rows, s.Cols, s.Spacing))
	}
	if len(s.Objects) == 0 {
		errs = append(errs, fmt.Errorf("scene needs at least one object"))
	}
	if s.FingerRadius < 0 || s.SphereRadius < 0 || s.ContactMargin < 0 {
		errs = append(errs, fmt.Errorf("scene radii and margin must not be negative"))
	}
	if s.Sphere.Step <= 0 {
		errs = append(errs, fmt.Errorf("sphere step must be positive"))
	}
	return errors.Join(errs...)
}

// GraspConfig returns the grasp settings with the arm bases as validity
// anchors.
func (c *Config) GraspConfig() grasp.Config {
	g := c.Grasp
	g.LeftAnchor = c.Left.Hand.Base
	g.RightAnchor = c.Right.Hand.Base
	return g
}
