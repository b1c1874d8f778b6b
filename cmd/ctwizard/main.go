package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kubedos/ctwizard/internal/app"
	"github.com/kubedos/ctwizard/internal/command"
	"github.com/kubedos/ctwizard/internal/config"
	"github.com/kubedos/ctwizard/internal/history"
	"github.com/kubedos/ctwizard/internal/logger"
)

func main() {
	var (
		cfgPath     = flag.String("config", "ctwizard.yaml", "YAML config file (optional).")
		tool        = flag.String("tool", "", "conntrack executable (default from config: conntrack).")
		outDir      = flag.String("out-dir", "", "Default directory for capture files (default from config: /var).")
		grace       = flag.Duration("grace", 0, "Time a cancelled tool gets to exit before SIGKILL.")
		drain       = flag.Duration("drain", 0, "Time to drain output after the tool exits.")
		maxDuration = flag.Duration("max-duration", 0, "Stop each run after this long (guardrail, 0 = no limit).")
		maxBytes    = flag.Uint64("max-bytes", 0, "Stop each run after appending this many bytes (guardrail, 0 = no limit).")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error.")
		historyDSN  = flag.String("history", "", "sqlite run journal; \"off\" disables it.")
		quiet       = flag.Bool("quiet", false, "Do not echo tool output to the console (recommended for automation).")

		opFlag = flag.String("op", "", "Run one operation without prompts (letter or name, e.g. L or list).")
		src    = flag.String("src", "", "Source IPv4 filter (with -op).")
		dst    = flag.String("dst", "", "Destination IPv4 filter (with -op).")
		iface  = flag.String("iface", "", "Interface filter (with -op).")
		extra  = flag.String("extra", "", "Extra conntrack options (with -op), split like a shell would without expansion.")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath, !flagSet("config"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "ctwizard error:", err)
		os.Exit(1)
	}
	if *tool != "" {
		cfg.Tool = *tool
	}
	if *outDir != "" {
		cfg.Capture.Dir = *outDir
	}
	if *grace > 0 {
		cfg.Run.GracePeriod = *grace
	}
	if *drain > 0 {
		cfg.Run.DrainTimeout = *drain
	}
	if flagSet("max-duration") {
		cfg.Run.MaxDuration = *maxDuration
	}
	if flagSet("max-bytes") {
		cfg.Capture.MaxBytes = *maxBytes
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	switch *historyDSN {
	case "":
	case "off":
		cfg.History.DSN = ""
	default:
		cfg.History.DSN = *historyDSN
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "ctwizard error:", err)
		os.Exit(2)
	}

	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ctwizard error:", err)
		os.Exit(1)
	}
	os.Exit(run(cfg, log, closer, *quiet, *opFlag, command.Filter{Src: *src, Dst: *dst, Iface: *iface}, *extra))
}

func run(cfg *config.Config, log logger.Logger, closer io.Closer, quiet bool, opFlag string, f command.Filter, extra string) int {
	defer closer.Close()

	log.Info("ctwizard starting", "version", cfg.Version, "tool", cfg.Tool, "out_dir", cfg.Capture.Dir)
	defer log.Info("ctwizard exiting")

	deps := app.Deps{Log: log}
	if cfg.History.DSN != "" {
		store, err := history.Open(cfg.History.DSN, log)
		if err != nil {
			// the journal is optional; keep going without it
			log.Warn("history disabled", "dsn", cfg.History.DSN, "err", err)
		} else {
			defer store.Close()
			deps.Journal = store
		}
	}

	opts := app.OptionsFromConfig(cfg)
	opts.Quiet = quiet
	ctx := context.Background()

	if opFlag != "" {
		s := app.NewSession(opts, deps)
		op, err := command.ParseOperation(opFlag)
		if err == nil {
			f.Extra, err = command.SplitExtra(extra)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "ctwizard error:", err)
			return 2
		}
		start := time.Now()
		res, err := s.Execute(ctx, op, f, cfg.Capture.Dir)
		s.Report(res, err)
		log.Info("one-shot run done", "op", op.String(), "state", res.State.String(), "elapsed", time.Since(start).String())
		return app.ExitCode(res, err)
	}

	in, err := app.NewReadlinePrompter("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "ctwizard error:", err)
		return 1
	}
	defer in.Close()
	deps.In = in

	if err := app.NewSession(opts, deps).Loop(ctx); err != nil {
		log.Error("session ended", "err", err)
		fmt.Fprintln(os.Stderr, "ctwizard error:", err)
		return 1
	}
	return 0
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
