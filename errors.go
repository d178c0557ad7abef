package stepflow

import "fmt"

// Phase identifies which part of a node's lifecycle raised an error.
type Phase string

const (
	PhasePrep Phase = "prep"
	PhaseExec Phase = "exec"
	PhasePost Phase = "post"
)

// NodeError reports a failure raised by one phase of one node. The shared
// state is left exactly as mutated up to the failure point; nothing is
// rolled back.
type NodeError struct {
	Node     string
	Phase    Phase
	Attempts int
	Err      error
}

func (e *NodeError) Error() string {
	if e.Phase == PhaseExec && e.Attempts > 1 {
		return fmt.Sprintf("node %q: exec failed after %d attempts: %v", e.Node, e.Attempts, e.Err)
	}
	return fmt.Sprintf("node %q: %s failed: %v", e.Node, e.Phase, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// CanceledError reports cooperative cancellation observed by the driver.
// A node mid-Exec is never interrupted; the loop halts before the next
// step once the context is done.
type CanceledError struct {
	Node string
	Err  error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("run canceled at node %q: %v", e.Node, e.Err)
}

func (e *CanceledError) Unwrap() error {
	return e.Err
}
