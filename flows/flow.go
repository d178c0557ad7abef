package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	stepflow "stepflow"
)

type Node = stepflow.Node

// FlowOption represents configuration options for a flow.
type FlowOption struct {
	// MaxSteps aborts the run after this many transitions. Zero means
	// unlimited; cyclic graphs then rely on action labels or cancellation
	// to terminate.
	MaxSteps int
	// Timeout bounds the whole run.
	Timeout  time.Duration
	Monitors []FlowMonitor
}

// Flow drives a graph of nodes from an entry node to a terminal state.
// The graph itself lives in the nodes' edge tables; the flow only holds
// the entry pointer and run policy.
type Flow struct {
	start    Node
	maxSteps int
	timeout  time.Duration
	monitors []FlowMonitor
}

func NewFlow(start Node) *Flow {
	return &Flow{start: start}
}

func NewFlowWithOptions(start Node, opts FlowOption) *Flow {
	flow := NewFlow(start)
	flow.maxSteps = opts.MaxSteps
	flow.timeout = opts.Timeout
	for _, monitor := range opts.Monitors {
		flow.AddMonitor(monitor)
	}
	return flow
}

// WithMaxSteps sets the maximum number of transitions for the flow.
func (f *Flow) WithMaxSteps(max int) *Flow {
	f.maxSteps = max
	return f
}

// WithTimeout bounds the whole run.
func (f *Flow) WithTimeout(timeout time.Duration) *Flow {
	f.timeout = timeout
	return f
}

// AddMonitor registers a FlowMonitor for the flow.
func (f *Flow) AddMonitor(monitor FlowMonitor) *Flow {
	if monitor != nil {
		f.monitors = append(f.monitors, monitor)
	}
	return f
}

// GetStartNode returns the entry node of the flow.
func (f *Flow) GetStartNode() Node {
	return f.start
}

// Run executes the flow. It walks the graph one node at a time until an
// action resolves to no successor, returning the action label produced by
// the final Post phase. Each step is a flat iteration, so cyclic graphs
// run in constant auxiliary memory regardless of iteration count.
func (f *Flow) Run(ctx context.Context, shared map[string]any) (lastAction string, runErr error) {
	if f.start == nil {
		return "", fmt.Errorf("flow has no entry node")
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	current := f.start
	steps := 0
	lastNode := current.Name()

	f.emitEvent(ctx, FlowEvent{
		Type:   FlowEventTypeFlowStart,
		RunID:  runID,
		Node:   lastNode,
		Shared: snapshotShared(shared),
	})

	defer func() {
		f.emitEvent(ctx, FlowEvent{
			Type:   FlowEventTypeFlowComplete,
			RunID:  runID,
			Node:   lastNode,
			Action: lastAction,
			Err:    runErr,
			Shared: snapshotShared(shared),
		})
	}()

	for current != nil {
		if f.maxSteps > 0 && steps >= f.maxSteps {
			return lastAction, fmt.Errorf("max steps exceeded: %d", f.maxSteps)
		}

		// Cooperative cancellation, observed between steps only.
		select {
		case <-ctx.Done():
			return lastAction, &stepflow.CanceledError{Node: current.Name(), Err: ctx.Err()}
		default:
		}

		lastNode = current.Name()
		f.emitEvent(ctx, FlowEvent{
			Type:   FlowEventTypeNodeStart,
			RunID:  runID,
			Node:   lastNode,
			Shared: snapshotShared(shared),
		})

		action, attempts, err := f.executeStep(ctx, runID, current, shared)
		if err != nil {
			f.emitEvent(ctx, FlowEvent{
				Type:    FlowEventTypeNodeError,
				RunID:   runID,
				Node:    lastNode,
				Err:     err,
				Attempt: attempts,
				Shared:  snapshotShared(shared),
			})
			return lastAction, err
		}
		lastAction = action

		f.emitEvent(ctx, FlowEvent{
			Type:    FlowEventTypeNodeEnd,
			RunID:   runID,
			Node:    lastNode,
			Action:  action,
			Attempt: attempts,
			Shared:  snapshotShared(shared),
		})

		next, ok := current.Successor(action)
		if !ok {
			break
		}

		current = next
		steps++
	}

	return lastAction, nil
}

// executeStep runs the three phases of one node in order. Prep and Post
// failures are always fatal; Exec failures go through the node's retry
// budget and fallback first.
func (f *Flow) executeStep(ctx context.Context, runID string, node Node, shared map[string]any) (string, int, error) {
	prepared, err := node.Prep(ctx, shared)
	if err != nil {
		return "", 0, &stepflow.NodeError{Node: node.Name(), Phase: stepflow.PhasePrep, Err: err}
	}

	result, attempts, err := f.executeWithRetry(ctx, runID, node, shared, prepared)
	if err != nil {
		return "", attempts, err
	}

	action, err := node.Post(ctx, shared, prepared, result)
	if err != nil {
		return "", attempts, &stepflow.NodeError{Node: node.Name(), Phase: stepflow.PhasePost, Attempts: attempts, Err: err}
	}

	return action, attempts, nil
}

// executeWithRetry drives the Exec phase. Exec only ever sees the
// prepared value; the shared map is passed here solely so retry events
// can snapshot it.
func (f *Flow) executeWithRetry(ctx context.Context, runID string, node Node, shared map[string]any, prepared any) (any, int, error) {
	attrs := stepflow.NodeAttributes{}
	if aware, ok := node.(stepflow.AttributeAwareNode); ok {
		attrs = aware.Attributes()
	}

	retries := 0
	for {
		attempt := retries + 1
		result, err := executeOnce(ctx, node, prepared, attrs.ExecTimeout)
		if err == nil {
			return result, attempt, nil
		}

		if retries >= attrs.RetryAttempts {
			if fallback, ok := node.(stepflow.FallbackNode); ok {
				result, fbErr := fallback.ExecFallback(ctx, prepared, err)
				if fbErr == nil {
					return result, attempt, nil
				}
				return nil, attempt, &stepflow.NodeError{Node: node.Name(), Phase: stepflow.PhaseExec, Attempts: attempt, Err: fbErr}
			}
			return nil, attempt, &stepflow.NodeError{Node: node.Name(), Phase: stepflow.PhaseExec, Attempts: attempt, Err: err}
		}

		f.emitEvent(ctx, FlowEvent{
			Type:    FlowEventTypeNodeRetry,
			RunID:   runID,
			Node:    node.Name(),
			Err:     err,
			Attempt: attempt,
			Shared:  snapshotShared(shared),
		})

		retries++
		if attrs.RetryDelay > 0 {
			timer := time.NewTimer(attrs.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, attempt, &stepflow.CanceledError{Node: node.Name(), Err: ctx.Err()}
			case <-timer.C:
			}
		}
	}
}

func executeOnce(ctx context.Context, node Node, prepared any, timeout time.Duration) (any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return node.Exec(ctx, prepared)
}

func snapshotShared(shared map[string]any) map[string]any {
	if shared == nil {
		return nil
	}

	copy := make(map[string]any, len(shared))
	for k, v := range shared {
		copy[k] = v
	}

	return copy
}
