package nodes

import (
	"context"

	stepflow "stepflow"
)

// RouterNode picks the outgoing edge with a predicate over shared state.
// The choice happens in Prep (the only phase besides Post allowed to read
// shared state) and is carried through Exec untouched.
type RouterNode struct {
	stepflow.BaseNode
	Choose func(shared map[string]any) string
}

func NewRouterNode(name string, choose func(shared map[string]any) string) *RouterNode {
	return &RouterNode{BaseNode: stepflow.NewBaseNode(name), Choose: choose}
}

func (n *RouterNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	if n.Choose == nil {
		return stepflow.DefaultAction, nil
	}
	return n.Choose(shared), nil
}

func (n *RouterNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	action, _ := result.(string)
	return action, nil
}

func init() {
	RegisterNode(NodeDefinition{
		ID:          "router",
		Description: "Routes execution by evaluating a predicate over shared state.",
		Example:     `nodes.NewRouterNode("score", func(shared map[string]any) string { if shared["score"].(float64) > 80 { return "high" }; return "low" })`,
	})
}
