package commands

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepflow "stepflow"
	"stepflow/flows"
	"stepflow/kv"
	"stepflow/llm"
)

func TestDecodeModelJSON(t *testing.T) {
	var d decision
	err := decodeModelJSON(`{"action": "search", "query": "go flows"}`, &d)
	require.NoError(t, err)
	assert.Equal(t, "search", d.Action)
	assert.Equal(t, "go flows", d.Query)
}

func TestDecodeModelJSONFenced(t *testing.T) {
	reply := "```json\n{\"action\": \"answer\", \"reason\": \"done\"}\n```"

	var d decision
	err := decodeModelJSON(reply, &d)
	require.NoError(t, err)
	assert.Equal(t, "answer", d.Action)
}

func TestDecodeModelJSONRepairsSloppyReply(t *testing.T) {
	// Single quotes and a trailing comma, the usual model sloppiness.
	reply := `{'action': 'read', 'url': 'https://example.com',}`

	var d decision
	err := decodeModelJSON(reply, &d)
	require.NoError(t, err)
	assert.Equal(t, "read", d.Action)
	assert.Equal(t, "https://example.com", d.URL)
}

func TestDecodeModelJSONGarbage(t *testing.T) {
	var d decision
	err := decodeModelJSON("I would rather not.", &d)
	assert.Error(t, err)
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence(`{"a":1}`))
}

// countSteps tallies node starts per node name.
type countSteps struct {
	starts map[string]int
}

func (m *countSteps) Notify(_ context.Context, event flows.FlowEvent) {
	if event.Type != flows.FlowEventTypeNodeStart {
		return
	}
	if m.starts == nil {
		m.starts = make(map[string]int)
	}
	m.starts[event.Node]++
}

func TestChatNodeLoopUntilExit(t *testing.T) {
	provider := llm.NewMock("hello there")
	in := bufio.NewReader(strings.NewReader("hi\nexit\n"))
	var out bytes.Buffer

	node := newChatNode(provider, in, &out, nil)
	node.On(stepflow.ActionContinue, node)

	rec := &countSteps{}
	shared := map[string]any{}
	action, err := flows.NewFlow(node).AddMonitor(rec).Run(context.Background(), shared)
	require.NoError(t, err)

	// One turn plus the exit pass.
	assert.Equal(t, 2, rec.starts["chat"])
	assert.Equal(t, stepflow.DefaultAction, action)
	assert.Contains(t, out.String(), "hello there")
	assert.Contains(t, out.String(), "bye")

	messages, _ := shared["messages"].([]llm.Message)
	require.Len(t, messages, 2)
	assert.Equal(t, llm.RoleUser, messages[0].Role)
	assert.Equal(t, llm.RoleAssistant, messages[1].Role)
}

func TestChatNodeStopsOnEOF(t *testing.T) {
	provider := llm.NewMock()
	in := bufio.NewReader(strings.NewReader(""))
	var out bytes.Buffer

	node := newChatNode(provider, in, &out, nil)
	node.On(stepflow.ActionContinue, node)

	_, err := flows.NewFlow(node).Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "bye")
}

func TestChatNodePrepCarriesSystemPrompt(t *testing.T) {
	provider := llm.NewMock("ok")
	in := bufio.NewReader(strings.NewReader("hi\n"))
	var out bytes.Buffer

	node := newChatNode(provider, in, &out, nil)
	shared := map[string]any{"system": "be brief"}

	prepared, err := node.Prep(context.Background(), shared)
	require.NoError(t, err)

	turn, ok := prepared.(chatTurn)
	require.True(t, ok)
	assert.Equal(t, "be brief", turn.system)
	require.Len(t, turn.request, 1)
	assert.Equal(t, llm.RoleUser, turn.request[0].Role)
	assert.Empty(t, turn.toSummarize)
}

func TestChatNodeSummarizesOldTurns(t *testing.T) {
	// First Chat call condenses the evicted turns, second answers.
	provider := llm.NewMock("they discussed birds", "noted")
	in := bufio.NewReader(strings.NewReader("next\nexit\n"))
	var out bytes.Buffer

	node := newChatNode(provider, in, &out, nil)
	node.window = 2
	node.On(stepflow.ActionContinue, node)

	shared := map[string]any{
		"messages": []llm.Message{
			{Role: llm.RoleUser, Content: "tell me about birds"},
			{Role: llm.RoleAssistant, Content: "they fly"},
			{Role: llm.RoleUser, Content: "which is fastest?"},
			{Role: llm.RoleAssistant, Content: "the peregrine falcon"},
		},
	}
	_, err := flows.NewFlow(node).Run(context.Background(), shared)
	require.NoError(t, err)

	assert.Equal(t, "they discussed birds", shared["summary"])
	assert.Equal(t, 3, shared["summarized_upto"])
	assert.Contains(t, out.String(), "noted")
}

func TestChatTranscriptRoundtrip(t *testing.T) {
	transcript := &chatTranscript{store: kv.NewMemoryStore()}

	saved := []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	}
	require.NoError(t, transcript.save(saved, "a summary"))

	loaded, summary, err := transcript.load()
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
	assert.Equal(t, "a summary", summary)
}

func TestChatTranscriptEmptyStore(t *testing.T) {
	transcript := &chatTranscript{store: kv.NewMemoryStore()}
	loaded, summary, err := transcript.load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.Empty(t, summary)
}

func TestDecideNodeRoutesSearch(t *testing.T) {
	provider := llm.NewMock(`{"action": "search", "query": "go concurrency"}`)
	node := newDecideNode(provider)

	shared := map[string]any{"question": "how do goroutines work?"}
	prepared, err := node.Prep(context.Background(), shared)
	require.NoError(t, err)

	result, err := node.Exec(context.Background(), prepared)
	require.NoError(t, err)

	action, err := node.Post(context.Background(), shared, prepared, result)
	require.NoError(t, err)
	assert.Equal(t, "search", action)
	assert.Equal(t, "go concurrency", shared["query"])
}

func TestDecideNodeUnknownActionMeansAnswer(t *testing.T) {
	node := newDecideNode(llm.NewMock())
	shared := map[string]any{"question": "q"}

	action, err := node.Post(context.Background(), shared, nil, `{"action": "ponder"}`)
	require.NoError(t, err)
	assert.Equal(t, "answer", action)
}

func TestDecideNodeRejectsSearchWithoutQuery(t *testing.T) {
	node := newDecideNode(llm.NewMock())
	shared := map[string]any{"question": "q"}

	_, err := node.Post(context.Background(), shared, nil, `{"action": "search"}`)
	assert.Error(t, err)
}

func TestStreamNodeWritesChunks(t *testing.T) {
	provider := llm.NewMock("streamed reply here")
	var out bytes.Buffer

	node := newStreamNode(provider, &out)
	shared := map[string]any{"prompt": "say something"}
	_, err := flows.NewFlow(node).Run(context.Background(), shared)
	require.NoError(t, err)

	assert.Equal(t, "streamed reply here\n", out.String())
	assert.Equal(t, "streamed reply here", shared["reply"])
}

func TestExtractNodeParsesYAML(t *testing.T) {
	reply := "```yaml\nsummary: a short note\ntopics:\n  - go\n  - flows\nsentiment: positive\n```"
	provider := llm.NewMock(reply)
	var out bytes.Buffer

	node := newExtractNode(provider, &out)
	shared := map[string]any{"text": "some document"}
	_, err := flows.NewFlow(node).Run(context.Background(), shared)
	require.NoError(t, err)

	parsed, ok := shared["extraction"].(extraction)
	require.True(t, ok)
	assert.Equal(t, "a short note", parsed.Summary)
	assert.Equal(t, []string{"go", "flows"}, parsed.Topics)
	assert.Equal(t, "positive", parsed.Sentiment)
	assert.Contains(t, out.String(), "a short note")
}

func TestExtractNodeRetriesBadYAML(t *testing.T) {
	provider := llm.NewMock(
		"that is not yaml at all: [",
		"summary: second try\nsentiment: neutral",
	)
	var out bytes.Buffer

	node := newExtractNode(provider, &out)
	shared := map[string]any{"text": "doc"}
	_, err := flows.NewFlow(node).Run(context.Background(), shared)
	require.NoError(t, err)

	parsed, _ := shared["extraction"].(extraction)
	assert.Equal(t, "second try", parsed.Summary)
}

func TestTraceMonitorOutput(t *testing.T) {
	var out bytes.Buffer
	monitor := newTraceMonitor(&out)

	monitor.Notify(context.Background(), flows.FlowEvent{
		Type:   flows.FlowEventTypeNodeEnd,
		Node:   "decide",
		Action: "search",
	})
	monitor.Notify(context.Background(), flows.FlowEvent{
		Type:    flows.FlowEventTypeNodeRetry,
		Node:    "read",
		Attempt: 2,
		Err:     errors.New("timeout"),
	})

	assert.Contains(t, out.String(), "node=decide")
	assert.Contains(t, out.String(), "action=search")
	assert.Contains(t, out.String(), "attempt=2")
	assert.Contains(t, out.String(), "timeout")
}

func TestSplitAssignment(t *testing.T) {
	key, value, ok := splitAssignment("name=world")
	require.True(t, ok)
	assert.Equal(t, "name", key)
	assert.Equal(t, "world", value)

	key, value, ok = splitAssignment("eq=a=b")
	require.True(t, ok)
	assert.Equal(t, "a=b", value)

	_, _, ok = splitAssignment("novalue")
	assert.False(t, ok)

	_, _, ok = splitAssignment("=empty")
	assert.False(t, ok)
}
