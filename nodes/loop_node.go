package nodes

import (
	"context"

	stepflow "stepflow"
)

// LoopNode emits the continue action until its iteration budget is spent,
// then routes through the default edge. Wire it to itself under
// stepflow.ActionContinue to form the cycle.
type LoopNode struct {
	stepflow.BaseNode
	maxIterations int
	counter       int
}

func NewLoopNode(name string, maxIterations int) *LoopNode {
	return &LoopNode{BaseNode: stepflow.NewBaseNode(name), maxIterations: maxIterations}
}

func (n *LoopNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	n.counter++
	if n.counter >= n.maxIterations {
		return stepflow.DefaultAction, nil
	}
	return stepflow.ActionContinue, nil
}

func init() {
	RegisterNode(NodeDefinition{
		ID:          "loop",
		Description: "Repeats a cycle a fixed number of times, emitting continue until complete.",
		Example:     `loop := nodes.NewLoopNode("retry", 3); loop.On(stepflow.ActionContinue, loop)`,
	})
}
