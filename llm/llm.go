// Package llm wraps chat-completion providers behind one small interface
// so nodes stay provider-agnostic.
package llm

import (
	"context"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the contract every chat backend satisfies.
type Provider interface {
	// Chat sends the conversation and returns the assistant's reply.
	Chat(ctx context.Context, messages []Message) (string, error)
	// Stream sends the conversation and delivers the reply incrementally
	// through fn. fn returning an error stops the stream.
	Stream(ctx context.Context, messages []Message, fn func(chunk string) error) error
}

// Config selects and configures a provider.
type Config struct {
	// Name is one of "openai", "anthropic", "mock".
	Name   string
	APIKey string
	Model  string
}

// New builds the provider named in cfg.
func New(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Name) {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAI(cfg.APIKey, cfg.Model), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return NewAnthropic(cfg.APIKey, cfg.Model), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Name)
	}
}
