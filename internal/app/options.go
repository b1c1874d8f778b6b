package app

import (
	"time"

	"github.com/kubedos/ctwizard/internal/config"
)

type Options struct {
	Tool string

	OutDir string
	Prefix string
	Ext    string

	GracePeriod  time.Duration
	DrainTimeout time.Duration

	// guardrails
	MaxDuration time.Duration
	MaxBytes    uint64

	FlushEvery uint64

	// Quiet stops relaying tool output to the console; the capture file
	// still gets every line.
	Quiet bool

	// HandleSignals turns SIGINT/SIGTERM into run cancellation while a run
	// is streaming.
	HandleSignals bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Tool:          cfg.Tool,
		OutDir:        cfg.Capture.Dir,
		Prefix:        cfg.Capture.Prefix,
		Ext:           cfg.Capture.Ext,
		GracePeriod:   cfg.Run.GracePeriod,
		DrainTimeout:  cfg.Run.DrainTimeout,
		MaxDuration:   cfg.Run.MaxDuration,
		MaxBytes:      cfg.Capture.MaxBytes,
		FlushEvery:    cfg.Capture.FlushEvery,
		HandleSignals: true,
	}
}
