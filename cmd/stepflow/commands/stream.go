package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	stepflow "stepflow"
	"stepflow/flows"
	"stepflow/internal/config"
	"stepflow/llm"
)

var streamCmd = &cobra.Command{
	Use:   "stream [prompt]",
	Short: "Stream a single completion token by token",
	Long: `Sends one prompt and prints the reply as it arrives. The whole demo
is one node: Prep assembles the prompt, Exec consumes the stream and
forwards each chunk to stdout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		provider, err := llm.New(cfg.LLM())
		if err != nil {
			return err
		}

		node := newStreamNode(provider, cmd.OutOrStdout())
		shared := map[string]any{"prompt": strings.Join(args, " ")}
		_, err = flows.NewFlow(node).Run(cmd.Context(), shared)
		return err
	},
}

func init() {
	rootCmd.AddCommand(streamCmd)
}

type streamNode struct {
	stepflow.BaseNode
	provider llm.Provider
	out      io.Writer
}

func newStreamNode(provider llm.Provider, out io.Writer) *streamNode {
	return &streamNode{BaseNode: stepflow.NewBaseNode("stream"), provider: provider, out: out}
}

func (n *streamNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	prompt, ok := shared["prompt"].(string)
	if !ok || prompt == "" {
		return nil, fmt.Errorf("no prompt in shared state")
	}
	return []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil
}

func (n *streamNode) Exec(ctx context.Context, prepared any) (any, error) {
	request, ok := prepared.([]llm.Message)
	if !ok {
		return nil, fmt.Errorf("stream: unexpected prepared value %T", prepared)
	}

	var sb strings.Builder
	err := n.provider.Stream(ctx, request, func(chunk string) error {
		sb.WriteString(chunk)
		_, werr := io.WriteString(n.out, chunk)
		return werr
	})
	if err != nil {
		return nil, err
	}
	return sb.String(), nil
}

func (n *streamNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	reply, _ := result.(string)
	shared["reply"] = reply
	fmt.Fprintln(n.out)
	return stepflow.DefaultAction, nil
}
