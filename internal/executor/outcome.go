// Package executor serializes test cases, feeds them to the instrumented
// target through the persistent-mode harness and reads back coverage.
package executor

import "fmt"

// OutcomeKind classifies how one target iteration ended.
type OutcomeKind int

const (
	// Normal means the target completed the iteration and acknowledged.
	Normal OutcomeKind = iota
	// Crashed means the target process died during the iteration.
	Crashed
	// TimedOut means the iteration exceeded the configured deadline and the
	// target was killed.
	TimedOut
)

// Outcome is the result of one target execution. Signal is only meaningful
// for Crashed.
type Outcome struct {
	Kind   OutcomeKind
	Signal int
}

// IsFault reports whether the outcome should be routed to triage.
func (o Outcome) IsFault() bool { return o.Kind != Normal }

func (o Outcome) String() string {
	switch o.Kind {
	case Normal:
		return "normal"
	case Crashed:
		return fmt.Sprintf("crashed(signal %d)", o.Signal)
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}
