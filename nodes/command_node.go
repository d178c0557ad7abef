package nodes

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	stepflow "stepflow"
)

// CommandNodeConfig configures a subprocess execution.
type CommandNodeConfig struct {
	Name    string
	Command string
	Args    []string
	Dir     string
	// ArgKey optionally names a shared entry appended as the final
	// argument.
	ArgKey string
	// OutputKey names the shared entry stdout is committed to.
	OutputKey string
	// ParseAction scans stdout for a trailing "action=<label>" line and
	// uses it as the returned action.
	ParseAction bool
}

// CommandNode runs a subprocess in Exec and commits its stdout in Post.
type CommandNode struct {
	stepflow.BaseNode
	cfg CommandNodeConfig
}

func NewCommandNode(cfg CommandNodeConfig) *CommandNode {
	if cfg.OutputKey == "" {
		cfg.OutputKey = cfg.Name + "_output"
	}
	return &CommandNode{BaseNode: stepflow.NewBaseNode(cfg.Name), cfg: cfg}
}

func (n *CommandNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	args := append([]string(nil), n.cfg.Args...)
	if n.cfg.ArgKey != "" {
		raw, ok := shared[n.cfg.ArgKey]
		if !ok {
			return nil, fmt.Errorf("arg key %q missing from shared state", n.cfg.ArgKey)
		}
		args = append(args, fmt.Sprintf("%v", raw))
	}
	return args, nil
}

func (n *CommandNode) Exec(ctx context.Context, prepared any) (any, error) {
	args, _ := prepared.([]string)

	cmd := exec.CommandContext(ctx, n.cfg.Command, args...)
	if n.cfg.Dir != "" {
		cmd.Dir = n.cfg.Dir
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("command %s failed: %w: %s", n.cfg.Command, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

func (n *CommandNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	output, _ := result.(string)
	action := stepflow.DefaultAction

	if n.cfg.ParseAction {
		var kept []string
		for _, raw := range strings.Split(output, "\n") {
			line := strings.TrimSpace(raw)
			if strings.HasPrefix(line, "action=") {
				action = strings.TrimPrefix(line, "action=")
				continue
			}
			kept = append(kept, raw)
		}
		output = strings.Join(kept, "\n")
	}

	shared[n.cfg.OutputKey] = strings.TrimRight(output, "\n")
	return action, nil
}

func init() {
	RegisterNode(NodeDefinition{
		ID:          "command",
		Description: "Runs a subprocess, captures stdout into shared state, optionally parses an action= directive.",
		Example:     `nodes.NewCommandNode(nodes.CommandNodeConfig{Name: "list", Command: "ls", Args: []string{"-1"}})`,
	})
}
