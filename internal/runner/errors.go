package runner

import (
	"fmt"
	"syscall"
)

// SpawnError means the tool could not be started. No capture file is left
// behind unless one already existed.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string { return fmt.Sprintf("spawn %s: %v", e.Path, e.Err) }
func (e *SpawnError) Unwrap() error { return e.Err }

// CaptureError is an I/O failure on the capture file. Whatever was already
// written stays in place.
type CaptureError struct {
	Path string
	Op   string
	Err  error
}

func (e *CaptureError) Error() string { return fmt.Sprintf("capture %s %s: %v", e.Op, e.Path, e.Err) }
func (e *CaptureError) Unwrap() error { return e.Err }

// StreamError is a read failure on one of the child's output pipes.
type StreamError struct {
	Stream string
	Err    error
}

func (e *StreamError) Error() string { return fmt.Sprintf("read %s: %v", e.Stream, e.Err) }
func (e *StreamError) Unwrap() error { return e.Err }

// SignalError means the child died from a signal the runner did not send.
type SignalError struct {
	Signal syscall.Signal
}

func (e *SignalError) Error() string { return fmt.Sprintf("child killed by signal: %v", e.Signal) }
