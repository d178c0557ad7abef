package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"stepflow/nodes"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List the built-in node kinds",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, def := range nodes.RegisteredNodes() {
			fmt.Fprintln(out, titleStyle.Render(def.ID))
			fmt.Fprintln(out, "  "+def.Description)
			if def.Example != "" {
				fmt.Fprintln(out, dimStyle.Render("  e.g. "+def.Example))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nodesCmd)
}
