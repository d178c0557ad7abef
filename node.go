package stepflow

import (
	"context"
	"time"
)

// DefaultAction is the reserved empty label. A node whose Post phase
// returns DefaultAction routes through its default edge; an explicit,
// non-empty label with no registered edge ends the run instead.
const DefaultAction = ""

const (
	// Constants for common actions
	ActionContinue = "continue"
	ActionDecide   = "decide"
	ActionDone     = "done"
)

// Node is a step that can run inside a flow. Each execution runs three
// phases in order: Prep derives the input Exec needs from shared state,
// Exec performs the node's primary work without ever touching shared
// state, and Post commits results back and selects the outgoing edge by
// returning an action label.
type Node interface {
	Name() string

	Prep(ctx context.Context, shared map[string]any) (any, error)
	Exec(ctx context.Context, prepared any) (any, error)
	Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error)

	// Then registers next under the default edge and returns next so
	// wiring chains read left to right.
	Then(next Node) Node
	// On registers next under the given action label and returns next.
	On(action string, next Node) Node
	// Successor resolves an action label against the node's edge table.
	Successor(action string) (Node, bool)
}

// NodeAttributes describes optional metadata the flow driver acts on
// around a node's Exec phase.
type NodeAttributes struct {
	// RetryAttempts is the number of additional times to rerun Exec when
	// it returns an error. Zero means do not retry.
	RetryAttempts int
	// RetryDelay is the pause between retry attempts.
	RetryDelay time.Duration
	// ExecTimeout bounds a single Exec attempt. Zero means no bound.
	ExecTimeout time.Duration
}

// AttributeAwareNode exposes attributes that flows inspect at runtime.
type AttributeAwareNode interface {
	Node
	Attributes() NodeAttributes
}

// FallbackNode supplies a substitute Exec result once the retry budget is
// spent. Returning an error (typically the one passed in) aborts the run.
type FallbackNode interface {
	Node
	ExecFallback(ctx context.Context, prepared any, execErr error) (any, error)
}

// BaseNode carries the name, edge table, and attributes shared by every
// node implementation. Embed it and override the phases you need; the
// defaults prepare nothing, pass the prepared value through Exec, and
// route through the default edge.
type BaseNode struct {
	name       string
	successors map[string]Node
	attrs      NodeAttributes
}

func NewBaseNode(name string) BaseNode {
	return BaseNode{name: name}
}

func (b *BaseNode) Name() string {
	return b.name
}

func (b *BaseNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	return nil, nil
}

func (b *BaseNode) Exec(ctx context.Context, prepared any) (any, error) {
	return prepared, nil
}

func (b *BaseNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	return DefaultAction, nil
}

func (b *BaseNode) Then(next Node) Node {
	return b.On(DefaultAction, next)
}

// On wires an edge. Re-registering a label replaces the prior successor;
// edges must not be mutated once the node has started running.
func (b *BaseNode) On(action string, next Node) Node {
	if b.successors == nil {
		b.successors = make(map[string]Node)
	}
	b.successors[action] = next
	return next
}

func (b *BaseNode) Successor(action string) (Node, bool) {
	next, ok := b.successors[action]
	if !ok || next == nil {
		return nil, false
	}
	return next, true
}

func (b *BaseNode) Attributes() NodeAttributes {
	return b.attrs
}

// SetAttributes replaces the node's execution attributes. Call it while
// building the graph, before the node first runs.
func (b *BaseNode) SetAttributes(attrs NodeAttributes) {
	b.attrs = attrs
}
