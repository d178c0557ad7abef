package flows_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepflow "stepflow"
	"stepflow/flows"
)

// stub is a scriptable node for driving the flow loop in tests.
type stub struct {
	stepflow.BaseNode
	prep     func(ctx context.Context, shared map[string]any) (any, error)
	exec     func(ctx context.Context, prepared any) (any, error)
	post     func(ctx context.Context, shared map[string]any, prepared, result any) (string, error)
	fallback func(ctx context.Context, prepared any, execErr error) (any, error)

	prepCalls int
	execCalls int
	postCalls int
}

func newStub(name string) *stub {
	return &stub{BaseNode: stepflow.NewBaseNode(name)}
}

func (s *stub) Prep(ctx context.Context, shared map[string]any) (any, error) {
	s.prepCalls++
	if s.prep != nil {
		return s.prep(ctx, shared)
	}
	return s.BaseNode.Prep(ctx, shared)
}

func (s *stub) Exec(ctx context.Context, prepared any) (any, error) {
	s.execCalls++
	if s.exec != nil {
		return s.exec(ctx, prepared)
	}
	return s.BaseNode.Exec(ctx, prepared)
}

func (s *stub) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	s.postCalls++
	if s.post != nil {
		return s.post(ctx, shared, prepared, result)
	}
	return s.BaseNode.Post(ctx, shared, prepared, result)
}

func (s *stub) ExecFallback(ctx context.Context, prepared any, execErr error) (any, error) {
	if s.fallback != nil {
		return s.fallback(ctx, prepared, execErr)
	}
	return nil, execErr
}

// recorder collects flow events in order.
type recorder struct {
	events []flows.FlowEvent
}

func (r *recorder) Notify(_ context.Context, event flows.FlowEvent) {
	r.events = append(r.events, event)
}

func (r *recorder) types() []flows.FlowEventType {
	out := make([]flows.FlowEventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func TestRunLinearChain(t *testing.T) {
	var order []string
	mark := func(name string) *stub {
		node := newStub(name)
		node.exec = func(ctx context.Context, prepared any) (any, error) {
			order = append(order, name)
			return nil, nil
		}
		return node
	}

	a, b, c := mark("a"), mark("b"), mark("c")
	a.Then(b).Then(c)

	action, err := flows.NewFlow(a).Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, stepflow.DefaultAction, action)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 1, a.prepCalls)
	assert.Equal(t, 1, c.postCalls)
}

func TestRunSelfLoop(t *testing.T) {
	node := newStub("loop")
	node.post = func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
		count, _ := shared["count"].(int)
		count++
		shared["count"] = count
		if count < 5 {
			return stepflow.ActionContinue, nil
		}
		return stepflow.ActionDone, nil
	}
	node.On(stepflow.ActionContinue, node)

	shared := map[string]any{}
	action, err := flows.NewFlow(node).Run(context.Background(), shared)
	require.NoError(t, err)
	assert.Equal(t, stepflow.ActionDone, action)
	assert.Equal(t, 5, shared["count"])
	assert.Equal(t, 5, node.execCalls)
}

func TestRunDefaultActionRoutesDefaultEdge(t *testing.T) {
	first := newStub("first")
	next := newStub("next")
	first.Then(next)

	_, err := flows.NewFlow(first).Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 1, next.execCalls)
}

func TestRunExplicitLabelWithoutEdgeTerminates(t *testing.T) {
	// An unmatched explicit label must not fall back to the default edge.
	first := newStub("first")
	first.post = func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
		return "elsewhere", nil
	}
	fallthroughNode := newStub("fallthrough")
	first.Then(fallthroughNode)

	action, err := flows.NewFlow(first).Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "elsewhere", action)
	assert.Zero(t, fallthroughNode.execCalls)
}

func TestRunRewiringLastWins(t *testing.T) {
	first := newStub("first")
	old := newStub("old")
	replacement := newStub("replacement")
	first.On("go", old)
	first.On("go", replacement)
	first.post = func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
		return "go", nil
	}

	_, err := flows.NewFlow(first).Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Zero(t, old.execCalls)
	assert.Equal(t, 1, replacement.execCalls)
}

func TestRunExecSeesOnlyPreparedValue(t *testing.T) {
	node := newStub("isolated")
	node.prep = func(ctx context.Context, shared map[string]any) (any, error) {
		return shared["input"], nil
	}
	node.exec = func(ctx context.Context, prepared any) (any, error) {
		return fmt.Sprintf("got %v", prepared), nil
	}
	node.post = func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
		shared["output"] = result
		return stepflow.DefaultAction, nil
	}

	shared := map[string]any{"input": 42}
	_, err := flows.NewFlow(node).Run(context.Background(), shared)
	require.NoError(t, err)
	assert.Equal(t, "got 42", shared["output"])
}

func TestRunRetrySucceedsWithinBudget(t *testing.T) {
	node := newStub("flaky")
	node.SetAttributes(stepflow.NodeAttributes{RetryAttempts: 2})
	node.exec = func(ctx context.Context, prepared any) (any, error) {
		if node.execCalls < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}
	node.post = func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
		shared["result"] = result
		return stepflow.DefaultAction, nil
	}

	shared := map[string]any{}
	_, err := flows.NewFlow(node).Run(context.Background(), shared)
	require.NoError(t, err)
	assert.Equal(t, "ok", shared["result"])
	assert.Equal(t, 3, node.execCalls)
}

func TestRunRetryExhaustionReportsAttempts(t *testing.T) {
	node := newStub("doomed")
	node.SetAttributes(stepflow.NodeAttributes{RetryAttempts: 2})
	cause := errors.New("still broken")
	node.exec = func(ctx context.Context, prepared any) (any, error) {
		return nil, cause
	}

	_, err := flows.NewFlow(node).Run(context.Background(), map[string]any{})
	require.Error(t, err)

	var nodeErr *stepflow.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "doomed", nodeErr.Node)
	assert.Equal(t, stepflow.PhaseExec, nodeErr.Phase)
	assert.Equal(t, 3, nodeErr.Attempts)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, node.execCalls)
}

func TestRunFallbackRecovers(t *testing.T) {
	node := newStub("guarded")
	node.exec = func(ctx context.Context, prepared any) (any, error) {
		return nil, errors.New("boom")
	}
	node.fallback = func(ctx context.Context, prepared any, execErr error) (any, error) {
		return "substitute", nil
	}
	node.post = func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
		shared["result"] = result
		return stepflow.DefaultAction, nil
	}

	shared := map[string]any{}
	_, err := flows.NewFlow(node).Run(context.Background(), shared)
	require.NoError(t, err)
	assert.Equal(t, "substitute", shared["result"])
}

func TestRunFallbackErrorAbortsRun(t *testing.T) {
	node := newStub("guarded")
	execErr := errors.New("boom")
	node.exec = func(ctx context.Context, prepared any) (any, error) {
		return nil, execErr
	}

	_, err := flows.NewFlow(node).Run(context.Background(), map[string]any{})
	var nodeErr *stepflow.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.ErrorIs(t, err, execErr)
}

func TestRunPrepErrorWrapped(t *testing.T) {
	node := newStub("broken")
	cause := errors.New("missing input")
	node.prep = func(ctx context.Context, shared map[string]any) (any, error) {
		return nil, cause
	}

	_, err := flows.NewFlow(node).Run(context.Background(), map[string]any{})
	var nodeErr *stepflow.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, stepflow.PhasePrep, nodeErr.Phase)
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, node.execCalls)
}

func TestRunPostErrorWrapped(t *testing.T) {
	node := newStub("broken")
	cause := errors.New("bad result")
	node.post = func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
		return "", cause
	}

	_, err := flows.NewFlow(node).Run(context.Background(), map[string]any{})
	var nodeErr *stepflow.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, stepflow.PhasePost, nodeErr.Phase)
	assert.ErrorIs(t, err, cause)
}

func TestRunCancellationBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	first := newStub("first")
	first.exec = func(ctx context.Context, prepared any) (any, error) {
		cancel()
		return nil, nil
	}
	second := newStub("second")
	first.Then(second)

	_, err := flows.NewFlow(first).Run(ctx, map[string]any{})
	var canceled *stepflow.CanceledError
	require.ErrorAs(t, err, &canceled)
	assert.Equal(t, "second", canceled.Node)
	assert.ErrorIs(t, err, context.Canceled)
	// The in-flight node finished; the next one never started.
	assert.Equal(t, 1, first.postCalls)
	assert.Zero(t, second.prepCalls)
}

func TestRunMaxStepsAbortsCycle(t *testing.T) {
	node := newStub("spinner")
	node.post = func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
		return stepflow.ActionContinue, nil
	}
	node.On(stepflow.ActionContinue, node)

	_, err := flows.NewFlow(node).WithMaxSteps(7).Run(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max steps")
}

func TestRunTimeoutCancelsRun(t *testing.T) {
	node := newStub("slow")
	node.post = func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return stepflow.ActionContinue, nil
	}
	node.On(stepflow.ActionContinue, node)

	_, err := flows.NewFlow(node).WithTimeout(30 * time.Millisecond).Run(context.Background(), map[string]any{})
	var canceled *stepflow.CanceledError
	require.ErrorAs(t, err, &canceled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunRetryDelayObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	node := newStub("flaky")
	node.SetAttributes(stepflow.NodeAttributes{RetryAttempts: 3, RetryDelay: time.Hour})
	node.exec = func(ctx context.Context, prepared any) (any, error) {
		cancel()
		return nil, errors.New("transient")
	}

	done := make(chan error, 1)
	go func() {
		_, err := flows.NewFlow(node).Run(ctx, map[string]any{})
		done <- err
	}()

	select {
	case err := <-done:
		var canceled *stepflow.CanceledError
		require.ErrorAs(t, err, &canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry delay did not observe cancellation")
	}
}

func TestRunMonitorEventOrder(t *testing.T) {
	first := newStub("first")
	second := newStub("second")
	first.Then(second)

	rec := &recorder{}
	action, err := flows.NewFlow(first).AddMonitor(rec).Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, stepflow.DefaultAction, action)

	assert.Equal(t, []flows.FlowEventType{
		flows.FlowEventTypeFlowStart,
		flows.FlowEventTypeNodeStart,
		flows.FlowEventTypeNodeEnd,
		flows.FlowEventTypeNodeStart,
		flows.FlowEventTypeNodeEnd,
		flows.FlowEventTypeFlowComplete,
	}, rec.types())

	for _, ev := range rec.events {
		assert.NotEmpty(t, ev.RunID)
	}
	assert.Equal(t, "first", rec.events[1].Node)
	assert.Equal(t, "second", rec.events[3].Node)
}

func TestRunMonitorRetryEvents(t *testing.T) {
	node := newStub("flaky")
	node.SetAttributes(stepflow.NodeAttributes{RetryAttempts: 1})
	node.exec = func(ctx context.Context, prepared any) (any, error) {
		if node.execCalls == 1 {
			return nil, errors.New("transient")
		}
		return nil, nil
	}

	rec := &recorder{}
	_, err := flows.NewFlow(node).AddMonitor(rec).Run(context.Background(), map[string]any{})
	require.NoError(t, err)

	var retries int
	for _, ev := range rec.events {
		if ev.Type == flows.FlowEventTypeNodeRetry {
			retries++
			assert.Equal(t, 1, ev.Attempt)
			assert.Error(t, ev.Err)
		}
	}
	assert.Equal(t, 1, retries)
}

func TestRunErrorEventEmitted(t *testing.T) {
	node := newStub("broken")
	node.exec = func(ctx context.Context, prepared any) (any, error) {
		return nil, errors.New("boom")
	}

	rec := &recorder{}
	_, err := flows.NewFlow(node).AddMonitor(rec).Run(context.Background(), map[string]any{})
	require.Error(t, err)

	types := rec.types()
	require.Contains(t, types, flows.FlowEventTypeNodeError)
	assert.Equal(t, flows.FlowEventTypeFlowComplete, types[len(types)-1])
	assert.Error(t, rec.events[len(rec.events)-1].Err)
}

func TestRunSharedSnapshotIsolated(t *testing.T) {
	node := newStub("writer")
	node.post = func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
		shared["written"] = true
		return stepflow.DefaultAction, nil
	}

	rec := &recorder{}
	_, err := flows.NewFlow(node).AddMonitor(rec).Run(context.Background(), map[string]any{"seed": 1})
	require.NoError(t, err)

	// The start snapshot must not see mutations committed later.
	start := rec.events[0]
	require.Equal(t, flows.FlowEventTypeFlowStart, start.Type)
	assert.Equal(t, 1, start.Shared["seed"])
	assert.NotContains(t, start.Shared, "written")

	complete := rec.events[len(rec.events)-1]
	assert.Equal(t, true, complete.Shared["written"])
}

func TestRunDecideLoopSequence(t *testing.T) {
	// decide -> search -> decide -> answer, the common agent shape.
	var visited []string
	visit := func(name string) func(context.Context, any) (any, error) {
		return func(ctx context.Context, prepared any) (any, error) {
			visited = append(visited, name)
			return nil, nil
		}
	}

	decide := newStub("decide")
	decide.exec = visit("decide")
	decide.post = func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
		if _, ok := shared["notes"]; !ok {
			return "search", nil
		}
		return "answer", nil
	}

	searchNode := newStub("search")
	searchNode.exec = visit("search")
	searchNode.post = func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
		shared["notes"] = "found it"
		return stepflow.ActionDecide, nil
	}

	answer := newStub("answer")
	answer.exec = visit("answer")

	decide.On("search", searchNode)
	decide.On("answer", answer)
	searchNode.On(stepflow.ActionDecide, decide)

	_, err := flows.NewFlow(decide).Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []string{"decide", "search", "decide", "answer"}, visited)
}

func TestNewFlowWithOptions(t *testing.T) {
	node := newStub("spinner")
	node.post = func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
		return stepflow.ActionContinue, nil
	}
	node.On(stepflow.ActionContinue, node)

	rec := &recorder{}
	flow := flows.NewFlowWithOptions(node, flows.FlowOption{MaxSteps: 3, Monitors: []flows.FlowMonitor{rec}})
	assert.Equal(t, "spinner", flow.GetStartNode().Name())

	_, err := flow.Run(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.NotEmpty(t, rec.events)
}

func TestRunNilEntryNode(t *testing.T) {
	_, err := flows.NewFlow(nil).Run(context.Background(), map[string]any{})
	require.Error(t, err)
}
