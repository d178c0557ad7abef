package commands

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5f87"))
)

var rootCmd = &cobra.Command{
	Use:   "stepflow",
	Short: "Example programs built on the stepflow orchestrator",
	Long: `stepflow bundles a set of small LLM programs that all run on the
same graph orchestrator: a terminal chatbot, a research agent, an
MCP tool agent, a streaming demo, and a structured extraction demo.

Provider selection comes from the environment (see .env support):
  STEPFLOW_PROVIDER   openai | anthropic | mock
  OPENAI_API_KEY      used when the provider is openai
  ANTHROPIC_API_KEY   used when the provider is anthropic

Without any key the examples fall back to a deterministic mock
provider so every command stays runnable offline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}
