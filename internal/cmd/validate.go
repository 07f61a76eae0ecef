package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/riggerci/rigger/internal/pipeline"
)

var validateCmd = &cobra.Command{
	Use:   "validate <pipeline-file>",
	Short: "Validate a pipeline file without executing it",
	Long: `Run the pre-flight checks only: document shape, stage uniqueness,
dependency resolution, and cycle detection. Exits nonzero on the first
validation error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := pipeline.Load(args[0])
		if err != nil {
			return err
		}

		g, err := pipeline.BuildGraph(p)
		if err != nil {
			return err
		}

		order := g.TopologicalOrder()
		fmt.Fprintf(cmd.OutOrStdout(), "Pipeline %s is valid (%d stages)\n", p.Name, len(order))
		for i, name := range order {
			stage := p.StageByName(name)
			marker := "required"
			if !stage.Required {
				marker = "optional"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %2d. %-20s %s\n", i+1, name, marker)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
