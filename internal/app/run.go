package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kubedos/ctwizard/internal/command"
	"github.com/kubedos/ctwizard/internal/history"
	"github.com/kubedos/ctwizard/internal/output"
	"github.com/kubedos/ctwizard/internal/runner"
	"github.com/kubedos/ctwizard/internal/summary"
)

// Execute builds and runs one invocation. A ValidationError comes back
// before anything touches the filesystem.
func (s *Session) Execute(ctx context.Context, op command.Operation, f command.Filter, dir string) (runner.Result, error) {
	inv, path, err := command.Build(op, f, command.BuildOptions{
		Tool:   s.opts.Tool,
		Dir:    dir,
		Prefix: s.opts.Prefix,
		Ext:    s.opts.Ext,
	})
	if err != nil {
		s.log.Info("rejected invocation", "op", op.String(), "err", err)
		return runner.Result{State: runner.Failed, ExitCode: -1, Err: err}, err
	}
	madeDir, err := output.EnsureDir(filepath.Dir(path))
	if err != nil {
		cerr := &runner.CaptureError{Path: path, Op: "mkdir", Err: err}
		return runner.Result{State: runner.Failed, ExitCode: -1, CapturePath: path, Err: cerr}, cerr
	}

	tally := summary.NewTally()
	s.last = tally

	var console io.Writer = output.NewTerminalWriter(s.out)
	if s.opts.Quiet {
		console = io.Discard
	}
	r := runner.New(runner.Options{
		Console:      console,
		ConsoleErr:   output.NewTerminalWriter(s.errOut),
		GracePeriod:  s.opts.GracePeriod,
		DrainTimeout: s.opts.DrainTimeout,
		MaxDuration:  s.opts.MaxDuration,
		MaxBytes:     s.opts.MaxBytes,
		FlushEvery:   s.opts.FlushEvery,
		Observers:    []runner.LineObserver{tally},
		Log:          s.log,
	})

	runCtx := ctx
	if s.opts.HandleSignals {
		var stop context.CancelFunc
		runCtx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	fmt.Fprintf(s.out, "\nRunning: %s\nCapture: %s (Ctrl-C stops the run)\n\n", inv, path)
	res, err := r.Run(runCtx, inv, path)
	if _, serr := os.Stat(path); madeDir != "" && errors.Is(serr, os.ErrNotExist) {
		// nothing was captured; leave no empty directories behind
		if rerr := output.RemoveCreated(filepath.Dir(path), madeDir); rerr != nil {
			s.log.Warn("remove capture dir", "dir", madeDir, "err", rerr)
		}
	}
	s.record(ctx, op, inv, res)
	return res, err
}

func (s *Session) record(ctx context.Context, op command.Operation, inv command.Invocation, res runner.Result) {
	if s.journal == nil || res.ID == "" {
		return
	}
	rec := &history.Run{
		ID:          res.ID,
		Operation:   op.String(),
		Argv:        history.EncodeArgv(inv.Argv()),
		CapturePath: res.CapturePath,
		State:       res.State.String(),
		Reason:      string(res.Reason),
		ExitCode:    res.ExitCode,
		Lines:       res.Lines,
		Bytes:       res.Bytes,
		Forced:      res.Forced,
		StartedAt:   res.Started,
		FinishedAt:  res.Finished,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	// the run is over; a slow journal must not hang the menu
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.journal.Record(rctx, rec); err != nil {
		s.log.Warn("record run", "err", err)
	}
}

// Report prints the outcome of a run.
func (s *Session) Report(res runner.Result, err error) {
	var (
		verr *command.ValidationError
		serr *runner.SpawnError
		cerr *runner.CaptureError
	)
	switch {
	case errors.As(err, &verr):
		fmt.Fprintf(s.errOut, "Error: %v\n", verr)
		return
	case errors.As(err, &serr):
		fmt.Fprintf(s.errOut, "Error: could not start %s: %v\n", serr.Path, serr.Err)
		return
	case errors.As(err, &cerr):
		fmt.Fprintf(s.errOut, "Error: capture file %s: %v\n", cerr.Path, cerr.Err)
		if res.Lines > 0 {
			fmt.Fprintf(s.errOut, "%d lines were appended before the failure.\n", res.Lines)
		}
		return
	case err != nil:
		fmt.Fprintf(s.errOut, "Error: %v (%d lines captured in %s)\n", err, res.Lines, res.CapturePath)
		return
	}

	switch res.State {
	case runner.Cancelled:
		how := "interrupted by user"
		switch res.Reason {
		case runner.ReasonTimeout:
			how = "stopped after the configured duration"
		case runner.ReasonLimit:
			how = "stopped at the capture size limit"
		}
		fmt.Fprintf(s.out, "\nRun %s. %d lines (%d bytes) appended to %s\n", how, res.Lines, res.Bytes, res.CapturePath)
		if res.Forced {
			fmt.Fprintln(s.out, "The tool did not stop on request and was killed.")
		}
	case runner.Completed:
		if res.ExitCode == 0 {
			fmt.Fprintf(s.out, "\nCommand executed successfully. Output appended to %s (%d lines)\n", res.CapturePath, res.Lines)
		} else {
			fmt.Fprintf(s.out, "\nCommand exited with status %d. Output appended to %s (%d lines)\n", res.ExitCode, res.CapturePath, res.Lines)
		}
	}
	s.printTally()
}

func (s *Session) printTally() {
	t := s.last
	if t == nil || t.Records == 0 {
		return
	}
	fmt.Fprintf(s.out, "Flow records: %d", t.Records)
	for _, kv := range summary.TopN(t.Protos, 5) {
		fmt.Fprintf(s.out, "  %s=%d", kv.Key, kv.Count)
	}
	fmt.Fprintln(s.out)
	if top := summary.TopN(t.States, 5); len(top) > 0 && !(len(top) == 1 && top[0].Key == "-") {
		fmt.Fprint(s.out, "States:")
		for _, kv := range top {
			fmt.Fprintf(s.out, "  %s=%d", kv.Key, kv.Count)
		}
		fmt.Fprintln(s.out)
	}
	if len(t.Events) > 0 {
		fmt.Fprint(s.out, "Events:")
		for _, kv := range summary.TopN(t.Events, 5) {
			fmt.Fprintf(s.out, "  %s=%d", kv.Key, kv.Count)
		}
		fmt.Fprintln(s.out)
	}
	if t.Assured > 0 {
		fmt.Fprintf(s.out, "Assured: %d\n", t.Assured)
	}
	if top := summary.TopN(t.Talkers, 3); len(top) > 0 {
		fmt.Fprint(s.out, "Top sources:")
		for _, kv := range top {
			fmt.Fprintf(s.out, "  %s=%d", kv.Key, kv.Count)
		}
		fmt.Fprintln(s.out)
	}
}

// ExitCode maps a run outcome to a process exit status for one-shot mode.
func ExitCode(res runner.Result, err error) int {
	switch {
	case errors.Is(err, command.ErrValidation):
		return 2
	case err != nil:
		return 1
	case res.State == runner.Cancelled:
		return 130
	}
	return res.ExitCode
}
