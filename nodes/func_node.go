package nodes

import (
	"context"

	stepflow "stepflow"
)

// FuncNode adapts plain callbacks to the three-phase node contract. Nil
// callbacks fall back to the BaseNode defaults: prepare nothing, pass the
// prepared value through Exec, route through the default edge.
type FuncNode struct {
	stepflow.BaseNode
	PrepFn     func(ctx context.Context, shared map[string]any) (any, error)
	ExecFn     func(ctx context.Context, prepared any) (any, error)
	PostFn     func(ctx context.Context, shared map[string]any, prepared, result any) (string, error)
	FallbackFn func(ctx context.Context, prepared any, execErr error) (any, error)
}

func NewFuncNode(name string) *FuncNode {
	return &FuncNode{BaseNode: stepflow.NewBaseNode(name)}
}

func (n *FuncNode) WithPrep(fn func(ctx context.Context, shared map[string]any) (any, error)) *FuncNode {
	n.PrepFn = fn
	return n
}

func (n *FuncNode) WithExec(fn func(ctx context.Context, prepared any) (any, error)) *FuncNode {
	n.ExecFn = fn
	return n
}

func (n *FuncNode) WithPost(fn func(ctx context.Context, shared map[string]any, prepared, result any) (string, error)) *FuncNode {
	n.PostFn = fn
	return n
}

func (n *FuncNode) WithFallback(fn func(ctx context.Context, prepared any, execErr error) (any, error)) *FuncNode {
	n.FallbackFn = fn
	return n
}

// WithAttributes sets retry/timeout attributes and keeps the builder style.
func (n *FuncNode) WithAttributes(attrs stepflow.NodeAttributes) *FuncNode {
	n.SetAttributes(attrs)
	return n
}

func (n *FuncNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	if n.PrepFn == nil {
		return n.BaseNode.Prep(ctx, shared)
	}
	return n.PrepFn(ctx, shared)
}

func (n *FuncNode) Exec(ctx context.Context, prepared any) (any, error) {
	if n.ExecFn == nil {
		return n.BaseNode.Exec(ctx, prepared)
	}
	return n.ExecFn(ctx, prepared)
}

func (n *FuncNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	if n.PostFn == nil {
		return n.BaseNode.Post(ctx, shared, prepared, result)
	}
	return n.PostFn(ctx, shared, prepared, result)
}

func (n *FuncNode) ExecFallback(ctx context.Context, prepared any, execErr error) (any, error) {
	if n.FallbackFn == nil {
		return nil, execErr
	}
	return n.FallbackFn(ctx, prepared, execErr)
}

func init() {
	RegisterNode(NodeDefinition{
		ID:          "func",
		Description: "Wraps Go callbacks so you can inline custom phase logic inside a flow.",
		Example:     `nodes.NewFuncNode("clean").WithPost(func(ctx context.Context, shared map[string]any, prepared, result any) (string, error) { shared["status"] = "cleaned"; return stepflow.DefaultAction, nil })`,
	})
}
