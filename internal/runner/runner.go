package runner

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/kubedos/ctwizard/internal/command"
	"github.com/kubedos/ctwizard/internal/logger"
	"github.com/kubedos/ctwizard/internal/output"
)

const (
	DefaultGracePeriod  = 3 * time.Second
	DefaultDrainTimeout = time.Second
)

// LineObserver sees every captured stdout line, in order.
type LineObserver interface {
	ObserveLine(line string)
}

type Options struct {
	// Console receives stdout lines, ConsoleErr stderr lines. nil discards.
	Console    io.Writer
	ConsoleErr io.Writer

	// GracePeriod is the wait between SIGTERM and SIGKILL on cancellation.
	GracePeriod time.Duration
	// DrainTimeout bounds reading leftover output once the child has exited.
	DrainTimeout time.Duration

	// guardrails, 0 disables
	MaxDuration time.Duration
	MaxBytes    uint64

	FlushEvery uint64
	Observers  []LineObserver

	// Env for the child; nil inherits ours.
	Env []string

	Log logger.Logger
}

type Result struct {
	ID    string
	PID   int
	State State

	// ExitCode is -1 unless the child exited on its own.
	ExitCode int

	Lines       uint64
	Bytes       uint64
	StderrLines uint64
	// Discarded counts stdout lines read after the byte limit was hit.
	Discarded uint64

	Cancelled      bool
	Reason         Reason
	Forced         bool
	DroppedPartial bool

	CapturePath string
	Started     time.Time
	Finished    time.Time
	Err         error
}

func (r Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Runner executes one invocation at a time, relaying stdout to the console
// and appending it to a capture file.
type Runner struct {
	opts  Options
	log   logger.Logger
	state atomic.Int32
}

func New(opts Options) *Runner {
	if opts.Console == nil {
		opts.Console = io.Discard
	}
	if opts.ConsoleErr == nil {
		opts.ConsoleErr = io.Discard
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	if opts.Log == nil {
		opts.Log = logger.NewNop()
	}
	return &Runner{opts: opts, log: opts.Log}
}

// State is the state of the current or last run.
func (r *Runner) State() State {
	return State(r.state.Load())
}

type lineMsg struct {
	text    string
	partial bool
	err     error
}

// Run spawns inv, streams its output into capturePath and returns once the
// child has been reaped and the file closed. Cancellation of ctx, the
// duration limit and the byte limit end the run in Cancelled with a nil
// error; a non-zero exit is reported in Result.ExitCode, not as an error.
func (r *Runner) Run(ctx context.Context, inv command.Invocation, capturePath string) (Result, error) {
	res := Result{
		ID:          uuid.NewString(),
		ExitCode:    -1,
		CapturePath: capturePath,
		Started:     time.Now(),
	}
	log := r.log.With("run", res.ID, "capture", capturePath)
	r.enter(&res, Idle)

	if ctx.Err() != nil {
		res.Cancelled = true
		res.Reason = ReasonInterrupt
		return r.finish(&res, log, Cancelled, nil)
	}

	r.enter(&res, Starting)
	cw, created, err := output.OpenCapture(capturePath, r.opts.MaxBytes, r.opts.FlushEvery)
	if err != nil {
		return r.finish(&res, log, Failed, &CaptureError{Path: capturePath, Op: "open", Err: err})
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		r.abandon(cw, created, capturePath, log)
		return r.finish(&res, log, Failed, &SpawnError{Path: inv.Path, Err: err})
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		r.abandon(cw, created, capturePath, log)
		return r.finish(&res, log, Failed, &SpawnError{Path: inv.Path, Err: err})
	}

	cmd := exec.Command(inv.Path, inv.Args...)
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.Env = r.opts.Env
	// own process group so terminal signals reach us, not the child, and
	// termination covers anything the tool forks
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	log.Debug("spawning", "argv", inv.Argv())
	if err := cmd.Start(); err != nil {
		_ = outR.Close()
		_ = outW.Close()
		_ = errR.Close()
		_ = errW.Close()
		r.abandon(cw, created, capturePath, log)
		return r.finish(&res, log, Failed, &SpawnError{Path: inv.Path, Err: err})
	}
	// the child holds its own copies now
	_ = outW.Close()
	_ = errW.Close()
	res.PID = cmd.Process.Pid
	r.enter(&res, Streaming)
	log.Info("child started", "pid", res.PID, "argv", inv.Argv())

	st := &stream{
		r:    r,
		log:  log,
		res:  &res,
		cw:   cw,
		pgid: res.PID,
	}
	state, runErr := st.loop(ctx, cmd, outR, errR)
	return r.finish(&res, log, state, runErr)
}

func (r *Runner) enter(res *Result, s State) {
	res.State = s
	r.state.Store(int32(s))
}

func (r *Runner) finish(res *Result, log logger.Logger, s State, err error) (Result, error) {
	r.enter(res, s)
	res.Finished = time.Now()
	res.Err = err
	kv := []any{
		"state", s.String(),
		"exit_code", res.ExitCode,
		"lines", res.Lines,
		"bytes", res.Bytes,
		"duration_ms", res.Duration().Milliseconds(),
	}
	switch {
	case err != nil:
		log.Error("run failed", append(kv, "err", err)...)
	case s == Cancelled:
		log.Warn("run cancelled", append(kv, "reason", string(res.Reason), "forced", res.Forced)...)
	default:
		log.Info("run completed", kv...)
	}
	return *res, err
}

// abandon closes a capture file that was never written to and removes it if
// this run created it.
func (r *Runner) abandon(cw *output.CaptureWriter, created bool, path string, log logger.Logger) {
	if err := cw.Close(); err != nil {
		log.Warn("close unused capture file", "err", err)
	}
	if !created {
		return
	}
	if st, err := os.Stat(path); err == nil && st.Size() == 0 {
		if err := os.Remove(path); err != nil {
			log.Warn("remove unused capture file", "err", err)
		}
	}
}

// stream is the per-run state owned by the writer goroutine.
type stream struct {
	r    *Runner
	log  logger.Logger
	res  *Result
	cw   *output.CaptureWriter
	pgid int

	terminating bool
	limitHit    bool
	failErr     error
}

func (s *stream) loop(ctx context.Context, cmd *exec.Cmd, outR, errR *os.File) (State, error) {
	opts := s.r.opts

	runCtx := ctx
	if opts.MaxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.MaxDuration)
		defer cancel()
	}

	stop := make(chan struct{})
	defer close(stop)

	outLines := make(chan lineMsg, 256)
	errLines := make(chan lineMsg, 64)
	go readLines(outR, outLines, stop)
	go readLines(errR, errLines, stop)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	var (
		done       = runCtx.Done()
		killTimer  <-chan time.Time
		drainTimer <-chan time.Time
		procDone   bool
		drained    bool
		waitErr    error
		partial    *string
	)

	for outLines != nil || errLines != nil || !procDone {
		select {
		case m, ok := <-outLines:
			if !ok {
				outLines = nil
				continue
			}
			switch {
			case m.err != nil:
				if !(drained && errors.Is(m.err, os.ErrClosed)) {
					s.fail(&StreamError{Stream: "stdout", Err: m.err})
				}
			case m.partial:
				p := m.text
				partial = &p
			default:
				s.emit(m.text)
			}

		case m, ok := <-errLines:
			if !ok {
				errLines = nil
				continue
			}
			switch {
			case m.err != nil:
				if !(drained && errors.Is(m.err, os.ErrClosed)) {
					s.fail(&StreamError{Stream: "stderr", Err: m.err})
				}
			default:
				s.emitErr(m.text)
			}

		case werr := <-exited:
			procDone = true
			waitErr = werr
			exited = nil
			killTimer = nil
			drainTimer = time.After(opts.DrainTimeout)

		case <-done:
			done = nil
			if procDone {
				continue
			}
			reason := ReasonInterrupt
			if ctx.Err() == nil {
				reason = ReasonTimeout
			}
			s.cancel(reason)

		case <-killTimer:
			killTimer = nil
			if !procDone {
				s.log.Warn("child ignored SIGTERM, killing", "pid", s.pgid, "grace", opts.GracePeriod.String())
				s.signal(unix.SIGKILL)
				s.res.Forced = true
			}

		case <-drainTimer:
			drainTimer = nil
			drained = true
			s.log.Warn("output still open after child exit, closing pipes", "drain_timeout", opts.DrainTimeout.String())
			_ = outR.Close()
			_ = errR.Close()
		}

		// a limit hit or write failure asks for termination from inside the loop
		if s.terminating && killTimer == nil && !procDone && !s.res.Forced {
			killTimer = time.After(opts.GracePeriod)
		}
	}
	_ = outR.Close()
	_ = errR.Close()

	if s.terminating {
		// stragglers left in the group
		s.signal(unix.SIGKILL)
	}

	if partial != nil {
		if s.res.Cancelled {
			s.res.DroppedPartial = true
			s.log.Debug("dropped unterminated line", "len", len(*partial))
		} else {
			s.emit(*partial)
		}
	}

	s.res.Lines, s.res.Bytes = s.cw.Stats()
	if err := s.cw.Close(); err != nil && s.failErr == nil {
		s.failErr = &CaptureError{Path: s.res.CapturePath, Op: "close", Err: err}
	}

	sig, exitCode, werr := classifyWait(waitErr)
	s.res.ExitCode = exitCode

	switch {
	case s.failErr != nil:
		return Failed, s.failErr
	case s.res.Cancelled:
		return Cancelled, nil
	case werr != nil:
		return Failed, werr
	case sig != 0:
		return Failed, &SignalError{Signal: sig}
	}
	return Completed, nil
}

// emit writes one stdout line to the capture file, then the console, then
// observers.
func (s *stream) emit(line string) {
	if s.limitHit || s.failErr != nil {
		s.res.Discarded++
		return
	}
	if err := s.cw.WriteLine(line); err != nil {
		if errors.Is(err, output.ErrLimitReached) {
			s.limitHit = true
			s.res.Discarded++
			s.log.Warn("capture byte limit reached", "max_bytes", s.r.opts.MaxBytes)
			s.cancel(ReasonLimit)
			return
		}
		s.fail(&CaptureError{Path: s.res.CapturePath, Op: "write", Err: err})
		return
	}
	if _, err := io.WriteString(s.r.opts.Console, line+"\n"); err != nil {
		s.log.Debug("console write failed", "err", err)
	}
	for _, o := range s.r.opts.Observers {
		o.ObserveLine(line)
	}
}

func (s *stream) emitErr(line string) {
	s.res.StderrLines++
	if _, err := io.WriteString(s.r.opts.ConsoleErr, line+"\n"); err != nil {
		s.log.Debug("console write failed", "err", err)
	}
	s.log.Warn("tool stderr", "line", line)
}

func (s *stream) cancel(reason Reason) {
	if s.terminating {
		return
	}
	s.res.Cancelled = true
	s.res.Reason = reason
	s.terminate()
}

func (s *stream) fail(err error) {
	if s.failErr == nil {
		s.failErr = err
	}
	s.terminate()
}

func (s *stream) terminate() {
	if s.terminating {
		return
	}
	s.terminating = true
	s.log.Info("terminating child", "pid", s.pgid)
	s.signal(unix.SIGTERM)
}

func (s *stream) signal(sig syscall.Signal) {
	if err := unix.Kill(-s.pgid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		s.log.Warn("signal child group", "signal", sig.String(), "err", err)
	}
}

// classifyWait splits cmd.Wait's result into a terminating signal, an exit
// code, and an error that is neither.
func classifyWait(err error) (syscall.Signal, int, error) {
	if err == nil {
		return 0, 0, nil
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return 0, -1, err
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			return ws.Signal(), -1, nil
		}
		return 0, ws.ExitStatus(), nil
	}
	return 0, ee.ExitCode(), nil
}

// readLines sends each newline-terminated line from f, then any unterminated
// tail as partial, then a read error if one occurred, and closes ch.
func readLines(f *os.File, ch chan<- lineMsg, stop <-chan struct{}) {
	defer close(ch)
	send := func(m lineMsg) bool {
		select {
		case ch <- m:
			return true
		case <-stop:
			return false
		}
	}
	br := bufio.NewReaderSize(f, 64*1024)
	for {
		s, err := br.ReadString('\n')
		if err == nil {
			if !send(lineMsg{text: strings.TrimSuffix(s, "\n")}) {
				return
			}
			continue
		}
		if s != "" && !send(lineMsg{text: s, partial: true}) {
			return
		}
		if !errors.Is(err, io.EOF) {
			send(lineMsg{err: err})
		}
		return
	}
}
