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
	"stepflow/mcpx"
)

const mcpMaxSteps = 10

var (
	mcpServer string
	mcpTrace  bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp [question]",
	Short: "Tool agent backed by an MCP server",
	Long: `Spawns a stdio MCP server, shows its tools to the model, and loops
tool calls until the model answers. The server command comes from
--server or STEPFLOW_MCP_SERVER, e.g.:

  stepflow mcp --server "npx -y @modelcontextprotocol/server-filesystem ." \
      "how many Go files are in this directory?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		server := mcpServer
		if server == "" {
			server = cfg.MCPServer
		}
		if server == "" {
			return fmt.Errorf("no MCP server: set --server or STEPFLOW_MCP_SERVER")
		}

		provider, err := llm.New(cfg.LLM())
		if err != nil {
			return err
		}

		parts := strings.Fields(server)
		client, err := mcpx.Dial(cmd.Context(), parts[0], parts[1:]...)
		if err != nil {
			return err
		}
		defer client.Close()

		question := strings.Join(args, " ")
		fmt.Println(titleStyle.Render("stepflow mcp") + dimStyle.Render("  server: "+parts[0]))

		list := newListToolsNode(client)
		pick := newPickToolNode(provider)
		call := newCallToolNode(client)
		final := newToolAnswerNode(provider, cmd.OutOrStdout())

		list.Then(pick)
		pick.On("call", call)
		pick.On("answer", final)
		call.On(stepflow.ActionDecide, pick)

		flow := flows.NewFlow(list).WithMaxSteps(mcpMaxSteps)
		if mcpTrace {
			flow.AddMonitor(newTraceMonitor(cmd.ErrOrStderr()))
		}

		shared := map[string]any{"question": question}
		_, err = flow.Run(cmd.Context(), shared)
		return err
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpServer, "server", "", "command line for the stdio MCP server")
	mcpCmd.Flags().BoolVar(&mcpTrace, "trace", false, "print flow events while the agent runs")
	rootCmd.AddCommand(mcpCmd)
}

// listToolsNode fetches the server's tool catalog once, up front.
type listToolsNode struct {
	stepflow.BaseNode
	client *mcpx.Client
}

func newListToolsNode(client *mcpx.Client) *listToolsNode {
	return &listToolsNode{BaseNode: stepflow.NewBaseNode("list_tools"), client: client}
}

func (n *listToolsNode) Exec(ctx context.Context, prepared any) (any, error) {
	return n.client.Tools(ctx)
}

func (n *listToolsNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	tools, _ := result.([]mcpx.Tool)
	if len(tools) == 0 {
		return "", fmt.Errorf("server exposes no tools")
	}
	shared["tools"] = tools
	return stepflow.DefaultAction, nil
}

// toolChoice is the JSON the pick node expects from the model.
type toolChoice struct {
	Action string         `json:"action"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Reason string         `json:"reason"`
}

// pickToolNode asks the model which tool to call next, if any.
type pickToolNode struct {
	stepflow.BaseNode
	provider llm.Provider
}

func newPickToolNode(provider llm.Provider) *pickToolNode {
	return &pickToolNode{BaseNode: stepflow.NewBaseNode("pick_tool"), provider: provider}
}

func (n *pickToolNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	question, _ := shared["question"].(string)
	tools, _ := shared["tools"].([]mcpx.Tool)
	observations, _ := shared["observations"].([]string)

	var sb strings.Builder
	sb.WriteString("You answer questions by calling tools on an MCP server.\n\n")
	fmt.Fprintf(&sb, "Question: %s\n\nAvailable tools:\n%s\n", question, mcpx.Describe(tools))
	if len(observations) > 0 {
		sb.WriteString("\nTool results so far:\n")
		for _, obs := range observations {
			sb.WriteString(obs)
			sb.WriteString("\n---\n")
		}
	}
	sb.WriteString(`
Reply with a single JSON object and nothing else:
  {"action": "call", "tool": "<tool name>", "args": {...}, "reason": "..."}
  {"action": "answer", "reason": "..."}
Arguments must satisfy the tool's input schema.`)
	return sb.String(), nil
}

func (n *pickToolNode) Exec(ctx context.Context, prepared any) (any, error) {
	prompt, _ := prepared.(string)
	return n.provider.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

func (n *pickToolNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	reply, _ := result.(string)

	var choice toolChoice
	if err := decodeModelJSON(reply, &choice); err != nil {
		return "", fmt.Errorf("parse tool choice: %w", err)
	}

	if choice.Action != "call" {
		return "answer", nil
	}
	if choice.Tool == "" {
		return "", fmt.Errorf("tool call without a tool name")
	}
	shared["tool"] = choice.Tool
	shared["tool_args"] = choice.Args
	return "call", nil
}

// callToolNode invokes the chosen tool and records the result.
type callToolNode struct {
	stepflow.BaseNode
	client *mcpx.Client
}

func newCallToolNode(client *mcpx.Client) *callToolNode {
	node := &callToolNode{BaseNode: stepflow.NewBaseNode("call_tool"), client: client}
	node.SetAttributes(stepflow.NodeAttributes{RetryAttempts: 1})
	return node
}

func (n *callToolNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	tool, ok := shared["tool"].(string)
	if !ok || tool == "" {
		return nil, fmt.Errorf("no tool selected")
	}
	args, _ := shared["tool_args"].(map[string]any)
	return toolCall{Tool: tool, Args: args}, nil
}

type toolCall struct {
	Tool string
	Args map[string]any
}

func (n *callToolNode) Exec(ctx context.Context, prepared any) (any, error) {
	call, ok := prepared.(toolCall)
	if !ok {
		return nil, fmt.Errorf("call_tool: unexpected prepared value %T", prepared)
	}
	return n.client.Call(ctx, call.Tool, call.Args)
}

// ExecFallback surfaces the failure to the model instead of killing the run.
func (n *callToolNode) ExecFallback(ctx context.Context, prepared any, execErr error) (any, error) {
	return fmt.Sprintf("(tool call failed: %v)", execErr), nil
}

func (n *callToolNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	call, _ := prepared.(toolCall)
	output, _ := result.(string)

	observations, _ := shared["observations"].([]string)
	shared["observations"] = append(observations, fmt.Sprintf("%s(%v):\n%s", call.Tool, call.Args, output))
	return stepflow.ActionDecide, nil
}

// toolAnswerNode writes the final answer from the observations.
type toolAnswerNode struct {
	stepflow.BaseNode
	provider llm.Provider
	out      io.Writer
}

func newToolAnswerNode(provider llm.Provider, out io.Writer) *toolAnswerNode {
	return &toolAnswerNode{BaseNode: stepflow.NewBaseNode("answer"), provider: provider, out: out}
}

func (n *toolAnswerNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	question, _ := shared["question"].(string)
	observations, _ := shared["observations"].([]string)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Answer the question using the tool results below.\n\nQuestion: %s\n\nTool results:\n", question)
	if len(observations) == 0 {
		sb.WriteString("(no tools were called)\n")
	}
	for _, obs := range observations {
		sb.WriteString(obs)
		sb.WriteString("\n---\n")
	}
	return sb.String(), nil
}

func (n *toolAnswerNode) Exec(ctx context.Context, prepared any) (any, error) {
	prompt, _ := prepared.(string)
	return n.provider.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

func (n *toolAnswerNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	answer, _ := result.(string)
	shared["answer"] = answer
	fmt.Fprintln(n.out, titleStyle.Render("answer")+"\n"+answer)
	return stepflow.DefaultAction, nil
}
