package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	stepflow "stepflow"
	"stepflow/flows"
	"stepflow/internal/config"
	"stepflow/kv"
	"stepflow/llm"
)

// chatWindow bounds how many turns are sent to the provider per request.
// Older turns are folded into a rolling summary instead of being dropped.
const chatWindow = 20

var (
	chatMemory    bool
	chatStorePath string
	chatSystem    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive terminal chatbot",
	Long: `Runs a chat loop as a single self-looping node: each turn reads a
line from the terminal, sends the conversation to the model, and
prints the reply. Type "exit" (or press Ctrl-D) to stop.

With --memory the transcript is persisted to a JSON store and the
next session resumes the conversation. Turns that fall out of the
request window are condensed into a rolling summary the model keeps
seeing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		provider, err := llm.New(cfg.LLM())
		if err != nil {
			return err
		}

		var transcript *chatTranscript
		if chatMemory {
			store, err := kv.NewFileStore(chatStorePath)
			if err != nil {
				return err
			}
			defer store.Close()
			transcript = &chatTranscript{store: store}
		}

		fmt.Println(titleStyle.Render("stepflow chat") + dimStyle.Render("  provider: "+cfg.Provider))

		node := newChatNode(provider, bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout(), transcript)
		node.On(stepflow.ActionContinue, node)

		shared := map[string]any{}
		if chatSystem != "" {
			shared["system"] = chatSystem
		}

		_, err = flows.NewFlow(node).Run(cmd.Context(), shared)
		return err
	},
}

func init() {
	chatCmd.Flags().BoolVar(&chatMemory, "memory", false, "persist the transcript across sessions")
	chatCmd.Flags().StringVar(&chatStorePath, "store", ".stepflow-chat.json", "transcript store path (with --memory)")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "system prompt for the session")
	rootCmd.AddCommand(chatCmd)
}

// chatNode is the whole chatbot: one node looping on itself. Prep reads
// the user's line and carves the transcript into a request window plus
// turns due for summarization, Exec calls the model (summarizing first
// when needed), Post commits the reply and decides whether to loop.
type chatNode struct {
	stepflow.BaseNode
	provider   llm.Provider
	in         *bufio.Reader
	out        io.Writer
	transcript *chatTranscript
	window     int
}

// chatTurn is the prepared value for one conversation step.
type chatTurn struct {
	system      string
	summary     string
	toSummarize []llm.Message
	cut         int
	request     []llm.Message
}

// chatOutcome is the Exec result: the reply plus the (possibly updated)
// rolling summary.
type chatOutcome struct {
	reply   string
	summary string
}

func newChatNode(provider llm.Provider, in *bufio.Reader, out io.Writer, transcript *chatTranscript) *chatNode {
	return &chatNode{
		BaseNode:   stepflow.NewBaseNode("chat"),
		provider:   provider,
		in:         in,
		out:        out,
		transcript: transcript,
		window:     chatWindow,
	}
}

func (n *chatNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	if n.transcript != nil {
		if _, ok := shared["messages"]; !ok {
			messages, summary, err := n.transcript.load()
			if err != nil {
				return nil, err
			}
			shared["messages"] = messages
			if summary != "" {
				shared["summary"] = summary
			}
		}
	}

	fmt.Fprint(n.out, titleStyle.Render("you")+" > ")
	line, err := n.in.ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	line = strings.TrimSpace(line)
	if line == "" || line == "exit" || line == "quit" {
		return nil, nil
	}

	messages, _ := shared["messages"].([]llm.Message)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: line})
	shared["messages"] = messages

	turn := chatTurn{}
	turn.system, _ = shared["system"].(string)
	turn.summary, _ = shared["summary"].(string)

	window := messages
	if len(messages) > n.window {
		turn.cut = len(messages) - n.window
		window = messages[turn.cut:]
		summarizedUpto, _ := shared["summarized_upto"].(int)
		if turn.cut > summarizedUpto {
			turn.toSummarize = messages[summarizedUpto:turn.cut]
		}
	}
	turn.request = window
	return turn, nil
}

func (n *chatNode) Exec(ctx context.Context, prepared any) (any, error) {
	if prepared == nil {
		return nil, nil
	}
	turn, ok := prepared.(chatTurn)
	if !ok {
		return nil, fmt.Errorf("chat: unexpected prepared value %T", prepared)
	}

	summary := turn.summary
	if len(turn.toSummarize) > 0 {
		condensed, err := n.summarize(ctx, summary, turn.toSummarize)
		if err != nil {
			return nil, err
		}
		summary = condensed
	}

	request := make([]llm.Message, 0, len(turn.request)+2)
	if turn.system != "" {
		request = append(request, llm.Message{Role: llm.RoleSystem, Content: turn.system})
	}
	if summary != "" {
		request = append(request, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Summary of the conversation so far: " + summary,
		})
	}
	request = append(request, turn.request...)

	reply, err := n.provider.Chat(ctx, request)
	if err != nil {
		return nil, err
	}
	return chatOutcome{reply: reply, summary: summary}, nil
}

// summarize folds turns that left the window into the rolling summary.
func (n *chatNode) summarize(ctx context.Context, prior string, turns []llm.Message) (string, error) {
	var sb strings.Builder
	sb.WriteString("Condense the conversation below into a short summary that preserves names, decisions, and open questions.\n")
	if prior != "" {
		sb.WriteString("\nexisting summary: " + prior + "\n")
	}
	sb.WriteString("\nconversation:\n")
	for _, msg := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
	}
	sb.WriteString("\nReply with the summary only.")

	return n.provider.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: sb.String()}})
}

func (n *chatNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	if prepared == nil {
		fmt.Fprintln(n.out, dimStyle.Render("bye"))
		return stepflow.DefaultAction, nil
	}

	turn, _ := prepared.(chatTurn)
	outcome, ok := result.(chatOutcome)
	if !ok {
		return "", fmt.Errorf("chat: unexpected result %T", result)
	}

	messages, _ := shared["messages"].([]llm.Message)
	messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: outcome.reply})
	shared["messages"] = messages
	if outcome.summary != "" {
		shared["summary"] = outcome.summary
		shared["summarized_upto"] = turn.cut
	}
	if n.transcript != nil {
		if err := n.transcript.save(messages, outcome.summary); err != nil {
			return "", err
		}
	}

	fmt.Fprintln(n.out, titleStyle.Render("assistant")+" > "+outcome.reply)
	return stepflow.ActionContinue, nil
}

// chatTranscript persists the conversation and its rolling summary in a
// kv.Store.
type chatTranscript struct {
	store kv.Store
}

const (
	transcriptKey = "messages"
	summaryKey    = "summary"
)

func (t *chatTranscript) load() ([]llm.Message, string, error) {
	var messages []llm.Message
	if raw, err := t.store.Get(transcriptKey); err == nil {
		if err := json.Unmarshal(raw, &messages); err != nil {
			return nil, "", fmt.Errorf("load transcript: %w", err)
		}
	}

	var summary string
	if raw, err := t.store.Get(summaryKey); err == nil {
		summary = string(raw)
	}

	return messages, summary, nil
}

func (t *chatTranscript) save(messages []llm.Message, summary string) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	if err := t.store.Put(transcriptKey, raw); err != nil {
		return err
	}
	if summary != "" {
		return t.store.Put(summaryKey, []byte(summary))
	}
	return nil
}
