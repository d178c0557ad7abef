package commands

import (
	"context"
	"fmt"
	"io"

	"stepflow/flows"
)

// traceMonitor prints flow lifecycle events, used by --trace flags.
type traceMonitor struct {
	out io.Writer
}

func newTraceMonitor(out io.Writer) *traceMonitor {
	return &traceMonitor{out: out}
}

func (m *traceMonitor) Notify(_ context.Context, event flows.FlowEvent) {
	line := fmt.Sprintf("[%s] node=%s", event.Type, event.Node)
	if event.Action != "" {
		line += " action=" + event.Action
	}
	if event.Attempt > 1 {
		line += fmt.Sprintf(" attempt=%d", event.Attempt)
	}
	if event.Err != nil {
		line += " err=" + event.Err.Error()
	}
	fmt.Fprintln(m.out, dimStyle.Render(line))
}
