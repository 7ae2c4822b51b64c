package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gwillem/graspcap/pkg/config"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"graspcap.json" description:"Configuration file"`
	LogFile string `long:"log-file" default:"graspcap.log" description:"Structured log output"`
	Verbose bool   `short:"v" long:"verbose" description:"Debug logging"`

	Setup    SetupCommand    `command:"setup" description:"Find the two leader arms, assign hands and calibrate them"`
	Capture  CaptureCommand  `command:"capture" alias:"run" description:"Capture grasp demonstrations"`
	Episodes EpisodesCommand `command:"episodes" alias:"ls" description:"List captured episodes"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "graspcap - capture two-handed cloth grasp demonstrations with SO-101 leader arms"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// newLogger writes JSON logs to the log file so the terminal UI stays clean.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.OutputPaths = []string{opts.LogFile}
	cfg.ErrorOutputPaths = []string{opts.LogFile}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("%w (run 'graspcap setup' first)", err)
	}
	return cfg, nil
}
