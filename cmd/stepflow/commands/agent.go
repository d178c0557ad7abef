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
	"stepflow/search"
)

// agentMaxSteps caps the decide/search cycle so a confused model cannot
// spin forever.
const agentMaxSteps = 20

// pageNoteLimit truncates fetched pages before they enter the notes.
const pageNoteLimit = 4000

var agentTrace bool

var agentCmd = &cobra.Command{
	Use:   "agent [question]",
	Short: "Research agent: decide -> search -> decide -> answer",
	Long: `Answers a question with a small agent loop. A decide node asks the
model whether to search the web, read one of the found pages, or
answer from the notes gathered so far; search and read nodes route
back into decide until it commits to an answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		provider, err := llm.New(cfg.LLM())
		if err != nil {
			return err
		}

		question := strings.Join(args, " ")
		fmt.Println(titleStyle.Render("stepflow agent") + dimStyle.Render("  provider: "+cfg.Provider))

		decide := newDecideNode(provider)
		searchNode := newSearchNode(&search.DuckDuckGo{})
		read := newReadPageNode()
		answer := newAnswerNode(provider, cmd.OutOrStdout())

		decide.On("search", searchNode)
		decide.On("read", read)
		decide.On("answer", answer)
		searchNode.On(stepflow.ActionDecide, decide)
		read.On(stepflow.ActionDecide, decide)

		flow := flows.NewFlow(decide).WithMaxSteps(agentMaxSteps)
		if agentTrace {
			flow.AddMonitor(newTraceMonitor(cmd.ErrOrStderr()))
		}

		shared := map[string]any{"question": question}
		_, err = flow.Run(cmd.Context(), shared)
		return err
	},
}

func init() {
	agentCmd.Flags().BoolVar(&agentTrace, "trace", false, "print flow events while the agent runs")
	rootCmd.AddCommand(agentCmd)
}

// decision is the JSON the decide node expects from the model.
type decision struct {
	Action string `json:"action"`
	Query  string `json:"query"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// decideNode asks the model for the next move.
type decideNode struct {
	stepflow.BaseNode
	provider llm.Provider
}

func newDecideNode(provider llm.Provider) *decideNode {
	return &decideNode{BaseNode: stepflow.NewBaseNode("decide"), provider: provider}
}

func (n *decideNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	question, ok := shared["question"].(string)
	if !ok || question == "" {
		return nil, fmt.Errorf("no question in shared state")
	}

	notes, _ := shared["notes"].([]string)
	var sb strings.Builder
	sb.WriteString("You are a research assistant deciding your next step.\n\n")
	fmt.Fprintf(&sb, "Question: %s\n\n", question)
	if len(notes) == 0 {
		sb.WriteString("You have no notes yet.\n")
	} else {
		sb.WriteString("Notes gathered so far:\n")
		for _, note := range notes {
			sb.WriteString(note)
			sb.WriteString("\n---\n")
		}
	}
	sb.WriteString(`
Reply with a single JSON object and nothing else:
  {"action": "search", "query": "<web search query>", "reason": "..."}
  {"action": "read", "url": "<url from the notes>", "reason": "..."}
  {"action": "answer", "reason": "..."}
Choose "answer" once the notes are sufficient.`)
	return sb.String(), nil
}

func (n *decideNode) Exec(ctx context.Context, prepared any) (any, error) {
	prompt, _ := prepared.(string)
	return n.provider.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

func (n *decideNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	reply, _ := result.(string)

	var d decision
	if err := decodeModelJSON(reply, &d); err != nil {
		return "", fmt.Errorf("parse decision: %w", err)
	}

	switch d.Action {
	case "search":
		if d.Query == "" {
			return "", fmt.Errorf("decision %q without a query", d.Action)
		}
		shared["query"] = d.Query
	case "read":
		if d.URL == "" {
			return "", fmt.Errorf("decision %q without a url", d.Action)
		}
		shared["url"] = d.URL
	default:
		// Anything unrecognized means the model is done deliberating.
		d.Action = "answer"
	}

	return d.Action, nil
}

// searchNode runs a DuckDuckGo query and folds the results into notes.
type searchNode struct {
	stepflow.BaseNode
	engine *search.DuckDuckGo
}

func newSearchNode(engine *search.DuckDuckGo) *searchNode {
	return &searchNode{BaseNode: stepflow.NewBaseNode("search"), engine: engine}
}

func (n *searchNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	query, ok := shared["query"].(string)
	if !ok || query == "" {
		return nil, fmt.Errorf("no query in shared state")
	}
	return query, nil
}

func (n *searchNode) Exec(ctx context.Context, prepared any) (any, error) {
	query, _ := prepared.(string)
	return n.engine.Search(ctx, query)
}

func (n *searchNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	query, _ := prepared.(string)
	results, _ := result.([]search.Result)

	note := fmt.Sprintf("Search results for %q:\n%s", query, search.Format(results))
	if len(results) == 0 {
		note = fmt.Sprintf("Search for %q returned nothing.", query)
	}

	notes, _ := shared["notes"].([]string)
	shared["notes"] = append(notes, note)
	return stepflow.ActionDecide, nil
}

// readPageNode fetches one page as Markdown and adds it to the notes.
type readPageNode struct {
	stepflow.BaseNode
}

func newReadPageNode() *readPageNode {
	node := &readPageNode{BaseNode: stepflow.NewBaseNode("read")}
	node.SetAttributes(stepflow.NodeAttributes{RetryAttempts: 1})
	return node
}

func (n *readPageNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	pageURL, ok := shared["url"].(string)
	if !ok || pageURL == "" {
		return nil, fmt.Errorf("no url in shared state")
	}
	return pageURL, nil
}

func (n *readPageNode) Exec(ctx context.Context, prepared any) (any, error) {
	pageURL, _ := prepared.(string)
	return search.Fetch(ctx, nil, pageURL)
}

// ExecFallback keeps the agent moving when a page refuses to load.
func (n *readPageNode) ExecFallback(ctx context.Context, prepared any, execErr error) (any, error) {
	return fmt.Sprintf("(could not read page: %v)", execErr), nil
}

func (n *readPageNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	pageURL, _ := prepared.(string)
	page, _ := result.(string)
	if len(page) > pageNoteLimit {
		page = page[:pageNoteLimit] + "\n(truncated)"
	}

	notes, _ := shared["notes"].([]string)
	shared["notes"] = append(notes, fmt.Sprintf("Content of %s:\n%s", pageURL, page))
	return stepflow.ActionDecide, nil
}

// answerNode writes the final answer from the gathered notes.
type answerNode struct {
	stepflow.BaseNode
	provider llm.Provider
	out      io.Writer
}

func newAnswerNode(provider llm.Provider, out io.Writer) *answerNode {
	return &answerNode{BaseNode: stepflow.NewBaseNode("answer"), provider: provider, out: out}
}

func (n *answerNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	question, _ := shared["question"].(string)
	notes, _ := shared["notes"].([]string)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Answer the question using only the notes below.\n\nQuestion: %s\n\nNotes:\n", question)
	if len(notes) == 0 {
		sb.WriteString("(none; answer from general knowledge and say so)\n")
	}
	for _, note := range notes {
		sb.WriteString(note)
		sb.WriteString("\n---\n")
	}
	return sb.String(), nil
}

func (n *answerNode) Exec(ctx context.Context, prepared any) (any, error) {
	prompt, _ := prepared.(string)
	return n.provider.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

func (n *answerNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	answer, _ := result.(string)
	shared["answer"] = answer
	fmt.Fprintln(n.out, titleStyle.Render("answer")+"\n"+answer)
	return stepflow.DefaultAction, nil
}
