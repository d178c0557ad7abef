package nodes

import (
	"context"
	"time"

	stepflow "stepflow"
)

// DelayNode pauses the flow for a fixed duration. The wait lives in Exec
// so cancellation interrupts it.
type DelayNode struct {
	stepflow.BaseNode
	wait time.Duration
}

func NewDelayNode(name string, wait time.Duration) *DelayNode {
	return &DelayNode{BaseNode: stepflow.NewBaseNode(name), wait: wait}
}

func (n *DelayNode) Exec(ctx context.Context, prepared any) (any, error) {
	if n.wait <= 0 {
		return nil, nil
	}

	timer := time.NewTimer(n.wait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	}
}

func init() {
	RegisterNode(NodeDefinition{
		ID:          "delay",
		Description: "Pauses the flow for a fixed, cancellation-aware duration.",
		Example:     `nodes.NewDelayNode("cooldown", 2*time.Second)`,
	})
}
