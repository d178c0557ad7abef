package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stepflow/dsl"
)

var runTrace bool

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a flow script",
	Long: `Parses a line-oriented flow script and runs it. Example script:

  node greet = set greeting "hello {{name}}"
  node show  = print "{{greeting}}"
  start greet
  connect greet -> show

Remaining KEY=VALUE arguments seed the shared state:

  stepflow run greet.flow name=world`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		flow, err := dsl.NewParser().WithOutput(cmd.OutOrStdout()).Parse(string(script))
		if err != nil {
			return err
		}
		if runTrace {
			flow.AddMonitor(newTraceMonitor(cmd.ErrOrStderr()))
		}

		shared := map[string]any{}
		for _, arg := range args[1:] {
			key, value, ok := splitAssignment(arg)
			if !ok {
				return fmt.Errorf("argument %q is not KEY=VALUE", arg)
			}
			shared[key] = value
		}

		action, err := flow.Run(cmd.Context(), shared)
		if err != nil {
			return err
		}
		if action != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("finished with action "+action))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runTrace, "trace", false, "print flow events while the script runs")
	rootCmd.AddCommand(runCmd)
}

func splitAssignment(arg string) (string, string, bool) {
	for i := 0; i < len(arg); i++ {
		if arg[i] == '=' {
			if i == 0 {
				return "", "", false
			}
			return arg[:i], arg[i+1:], true
		}
	}
	return "", "", false
}
