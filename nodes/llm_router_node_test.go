package nodes_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepflow/flows"
	"stepflow/llm"
	"stepflow/nodes"
)

func TestLLMRouterPicksRoute(t *testing.T) {
	provider := llm.NewMock("This looks like a Billing question.")
	router := nodes.NewLLMRouterNode(provider, nodes.LLMRouterConfig{
		Name:     "triage",
		InputKey: "ticket",
		Routes:   []string{"billing", "support"},
	})

	var taken string
	mark := func(name string) *nodes.FuncNode {
		return nodes.NewFuncNode(name).WithExec(func(_ context.Context, _ any) (any, error) {
			taken = name
			return nil, nil
		})
	}
	router.On("billing", mark("billing"))
	router.On("support", mark("support"))

	shared := map[string]any{"ticket": "my invoice is wrong"}
	_, err := flows.NewFlow(router).Run(context.Background(), shared)
	require.NoError(t, err)
	assert.Equal(t, "billing", taken)
}

func TestLLMRouterFallbackOnNoMatch(t *testing.T) {
	provider := llm.NewMock("no idea")
	router := nodes.NewLLMRouterNode(provider, nodes.LLMRouterConfig{
		Name:     "triage",
		InputKey: "ticket",
		Routes:   []string{"billing", "support"},
		Fallback: "human",
	})

	action, err := router.Post(context.Background(), map[string]any{}, nil, "no idea")
	require.NoError(t, err)
	assert.Equal(t, "human", action)
}

func TestLLMRouterMissingInput(t *testing.T) {
	router := nodes.NewLLMRouterNode(llm.NewMock(), nodes.LLMRouterConfig{
		Name:   "triage",
		Routes: []string{"a"},
	})

	_, err := router.Prep(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input")
}
