package runner

import "fmt"

// State is a run's position in Idle -> Starting -> Streaming -> terminal.
type State int32

const (
	Idle State = iota
	Starting
	Streaming
	Completed
	Cancelled
	Failed
)

var stateNames = [...]string{"idle", "starting", "streaming", "completed", "cancelled", "failed"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// Reason says why a run was cancelled.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonInterrupt Reason = "interrupt"
	ReasonTimeout   Reason = "timeout"
	ReasonLimit     Reason = "limit"
)
