package flows

import (
	"context"
	"time"
)

// FlowEventType enumerates observable lifecycle hooks emitted by a flow.
type FlowEventType string

const (
	FlowEventTypeFlowStart    FlowEventType = "flow_start"
	FlowEventTypeNodeStart    FlowEventType = "node_start"
	FlowEventTypeNodeEnd      FlowEventType = "node_end"
	FlowEventTypeNodeError    FlowEventType = "node_error"
	FlowEventTypeNodeRetry    FlowEventType = "node_retry"
	FlowEventTypeFlowComplete FlowEventType = "flow_complete"
)

// FlowEvent carries metadata that observability hooks can use. Shared is
// a shallow snapshot taken when the event fired.
type FlowEvent struct {
	Type      FlowEventType
	Timestamp time.Time
	RunID     string
	Node      string
	Action    string
	Err       error
	Attempt   int
	Shared    map[string]any
}

// FlowMonitor observes lifecycle events emitted by Flow.Run(). Monitors
// run synchronously on the driving goroutine; keep them cheap.
type FlowMonitor interface {
	Notify(ctx context.Context, event FlowEvent)
}

// emitEvent emits a flow event to all registered monitors.
func (f *Flow) emitEvent(ctx context.Context, event FlowEvent) {
	if len(f.monitors) == 0 {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, monitor := range f.monitors {
		monitor.Notify(ctx, event)
	}
}
