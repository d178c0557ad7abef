// Package config loads example-program settings from the environment,
// with an optional .env file picked up from the working directory.
package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"

	"stepflow/llm"
)

const (
	envProvider       = "STEPFLOW_PROVIDER"
	envOpenAIAPIKey   = "OPENAI_API_KEY"
	envOpenAIModel    = "STEPFLOW_OPENAI_MODEL"
	envAnthropicKey   = "ANTHROPIC_API_KEY"
	envAnthropicModel = "STEPFLOW_ANTHROPIC_MODEL"
	envMCPServer      = "STEPFLOW_MCP_SERVER"
)

// Config is the resolved runtime configuration.
type Config struct {
	Provider       string
	OpenAIKey      string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	// MCPServer is the command line used to spawn the stdio MCP server.
	MCPServer string
}

// Load reads the environment. A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Provider:       strings.ToLower(strings.TrimSpace(os.Getenv(envProvider))),
		OpenAIKey:      os.Getenv(envOpenAIAPIKey),
		OpenAIModel:    os.Getenv(envOpenAIModel),
		AnthropicKey:   os.Getenv(envAnthropicKey),
		AnthropicModel: os.Getenv(envAnthropicModel),
		MCPServer:      os.Getenv(envMCPServer),
	}

	if cfg.Provider == "" {
		switch {
		case cfg.OpenAIKey != "":
			cfg.Provider = "openai"
		case cfg.AnthropicKey != "":
			cfg.Provider = "anthropic"
		default:
			cfg.Provider = "mock"
		}
	}

	return cfg
}

// LLM maps the config onto the selected provider's settings.
func (c Config) LLM() llm.Config {
	switch c.Provider {
	case "anthropic":
		return llm.Config{Name: "anthropic", APIKey: c.AnthropicKey, Model: c.AnthropicModel}
	case "openai":
		return llm.Config{Name: "openai", APIKey: c.OpenAIKey, Model: c.OpenAIModel}
	default:
		return llm.Config{Name: c.Provider}
	}
}
