package nodes

import (
	"context"
	"fmt"
	"strings"

	stepflow "stepflow"
	"stepflow/llm"
)

// LLMRouterConfig controls how the model is asked to route.
type LLMRouterConfig struct {
	Name string
	// InputKey names the shared entry described to the model.
	InputKey string
	// Routes are the action labels the model may pick from; each label
	// should have a matching edge registered.
	Routes []string
	// Fallback is returned when the reply matches no route. Leave empty
	// to route through the default edge in that case.
	Fallback string
}

// LLMRouterNode asks a chat model to pick one of the configured routes.
type LLMRouterNode struct {
	stepflow.BaseNode
	provider llm.Provider
	cfg      LLMRouterConfig
}

func NewLLMRouterNode(provider llm.Provider, cfg LLMRouterConfig) *LLMRouterNode {
	if cfg.InputKey == "" {
		cfg.InputKey = "input"
	}
	return &LLMRouterNode{
		BaseNode: stepflow.NewBaseNode(cfg.Name),
		provider: provider,
		cfg:      cfg,
	}
}

func (n *LLMRouterNode) Prep(ctx context.Context, shared map[string]any) (any, error) {
	input, ok := shared[n.cfg.InputKey]
	if !ok {
		return nil, fmt.Errorf("input key %q missing from shared state", n.cfg.InputKey)
	}

	prompt := fmt.Sprintf(
		"Classify the following input into exactly one of these categories: %s.\nReply with the category name only.\n\nInput: %v",
		strings.Join(n.cfg.Routes, ", "), input)
	return prompt, nil
}

func (n *LLMRouterNode) Exec(ctx context.Context, prepared any) (any, error) {
	if n.provider == nil {
		return "", fmt.Errorf("llm router %s: no provider configured", n.Name())
	}
	prompt, _ := prepared.(string)
	return n.provider.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

func (n *LLMRouterNode) Post(ctx context.Context, shared map[string]any, prepared, result any) (string, error) {
	reply, _ := result.(string)
	reply = strings.ToLower(strings.TrimSpace(reply))

	for _, route := range n.cfg.Routes {
		if strings.Contains(reply, strings.ToLower(route)) {
			return route, nil
		}
	}
	return n.cfg.Fallback, nil
}

func init() {
	RegisterNode(NodeDefinition{
		ID:          "llm_router",
		Description: "Asks a chat model to pick among labeled routes based on shared input.",
		Example:     `nodes.NewLLMRouterNode(provider, nodes.LLMRouterConfig{Name: "triage", Routes: []string{"billing", "support"}})`,
	})
}
