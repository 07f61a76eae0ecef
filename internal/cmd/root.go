package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/riggerci/rigger/internal/log"
)

var (
	logLevelFlag  string
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "rigger",
	Short: "Staged release orchestrator",
	Long: `rigger runs a declarative release pipeline: it resolves the stage
dependency graph of a pipeline file, provisions each stage's toolchain,
executes its steps with required/optional failure policy, and publishes
the declared artifacts of a successful run.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetDefaultLogger(log.New(log.Config{
			Level:  log.ParseLevel(logLevelFlag),
			Format: log.ParseFormat(logFormatFlag),
			Output: log.OutputStderr(),
		}))
	},
}

// ExecuteContext runs the root command with the given context.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "text", "Log format (text, json)")
}
