package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	stepflow "stepflow"
	"stepflow/flows"
	"stepflow/internal/config"
	"stepflow/llm"
)

var extractFile string

var extractCmd = &cobra.Command{
	Use:   "extract [text]",
	Short: "Extract a structured summary from free text",
	Long: `Asks the model to condense text into a fixed YAML shape (summary,
topics, sentiment) and prints the parsed result. Pass the text as an
argument or point --file at a document.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if extractFile != "" {
			raw, err := os.ReadFile(extractFile)
			if err != nil {
				return err
			}
			text = string(raw)
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("nothing to extract: pass text or --file")
		}

		cfg := config.Load()
		provider, err := llm.New(cfg.LLM())
		if err != nil {
			return err
		}

		node := newExtractNode(provider, cmd.OutOrStdout())
		shared := map[string]any{"text": text}
		_, err = flows.NewFlow(node).Run(cmd.Context(), shared)
		return err
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractFile, "file", "", "read the input text from a file")
	rootCmd.AddCommand(extractCmd)
}

// extraction is the shape the model is asked to fill in.
type extraction struct {
	Summary   string   `yaml:"summary"`
	Topics    []string `yaml:"topics"`
	Sentiment string   `yaml:"sentiment"`
}

type extractNode struct {
	stepflow.BaseNode
	provider llm.Provider
	out      io.Writer
}

func newExtractNode(provider llm.Provider, out io.Writer) *extractNode {
	node := &extractNode{BaseNode: stepflow.NewBaseNode("extract"), provider: provider, out: out}
	node.SetAttributes(stepflow.NodeAttributes{RetryAttempts: 2})
	return node
}

func (n *extractNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	text, ok := shared["text"].(string)
	if !ok || text == "" {
		return nil, fmt.Errorf("no text in shared state")
	}

	prompt := fmt.Sprintf(`Summarize the text below as YAML with exactly these keys:

summary: one or two sentences
topics: a list of up to five short topic labels
sentiment: positive, negative, or neutral

Reply with a fenced yaml block and nothing else.

Text:
%s`, text)
	return prompt, nil
}

func (n *extractNode) Exec(ctx context.Context, prepared any) (any, error) {
	prompt, _ := prepared.(string)
	reply, err := n.provider.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return nil, err
	}

	var parsed extraction
	if err := yaml.Unmarshal([]byte(stripFence(reply)), &parsed); err != nil {
		return nil, fmt.Errorf("parse extraction: %w", err)
	}
	if parsed.Summary == "" {
		return nil, fmt.Errorf("model reply had no summary")
	}
	return parsed, nil
}

func (n *extractNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	parsed, ok := result.(extraction)
	if !ok {
		return "", fmt.Errorf("extract: unexpected result %T", result)
	}
	shared["extraction"] = parsed

	fmt.Fprintln(n.out, titleStyle.Render("summary"))
	fmt.Fprintln(n.out, parsed.Summary)
	if len(parsed.Topics) > 0 {
		fmt.Fprintln(n.out, titleStyle.Render("topics"))
		for _, topic := range parsed.Topics {
			fmt.Fprintln(n.out, "  - "+topic)
		}
	}
	if parsed.Sentiment != "" {
		fmt.Fprintln(n.out, titleStyle.Render("sentiment")+" "+dimStyle.Render(parsed.Sentiment))
	}
	return stepflow.DefaultAction, nil
}
