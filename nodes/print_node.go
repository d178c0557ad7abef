package nodes

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	stepflow "stepflow"
)

// PrintNode renders a message plus selected shared values to a writer.
// Prep formats the line from shared state; Exec performs the write.
type PrintNode struct {
	stepflow.BaseNode
	Out       io.Writer
	Message   string
	InputKeys []string
}

func NewPrintNode(name, message string, inputKeys ...string) *PrintNode {
	return &PrintNode{
		BaseNode:  stepflow.NewBaseNode(name),
		Out:       os.Stdout,
		Message:   message,
		InputKeys: inputKeys,
	}
}

func (n *PrintNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	parts := []string{n.Message}
	for _, key := range n.InputKeys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, shared[key]))
	}
	return strings.Join(parts, " "), nil
}

func (n *PrintNode) Exec(ctx context.Context, prepared any) (any, error) {
	line, _ := prepared.(string)
	out := n.Out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintln(out, line)
	return nil, err
}

func init() {
	RegisterNode(NodeDefinition{
		ID:          "print",
		Description: "Writes a message and selected shared values to a writer.",
		Example:     `nodes.NewPrintNode("report", "translation ready:", "translation")`,
	})
}
