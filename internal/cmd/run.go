package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/riggerci/rigger/internal/artifact"
	"github.com/riggerci/rigger/internal/engine"
	"github.com/riggerci/rigger/internal/log"
	"github.com/riggerci/rigger/internal/pipeline"
	"github.com/riggerci/rigger/internal/provision"
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline-file>",
	Short: "Execute a pipeline and publish its artifacts",
	Long: `Execute every stage of the pipeline in dependency order. A failed
required stage skips its dependents and fails the run; a failed optional
stage does neither. On success, the declared outputs of succeeded stages
are packed and published under the artifact name.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		only, _ := cmd.Flags().GetString("only")
		artifactName, _ := cmd.Flags().GetString("artifact-name")
		workDir, _ := cmd.Flags().GetString("workdir")
		publishDir, _ := cmd.Flags().GetString("publish-dir")
		pushRef, _ := cmd.Flags().GetString("push")
		insecure, _ := cmd.Flags().GetBool("insecure-registry")
		verbose, _ := cmd.Flags().GetBool("verbose")

		p, err := pipeline.Load(args[0])
		if err != nil {
			return err
		}
		g, err := pipeline.BuildGraph(p)
		if err != nil {
			return err
		}

		if only != "" {
			ancestry, err := g.Ancestry(only)
			if err != nil {
				return err
			}
			g = g.Subgraph(ancestry)
		}

		if dryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "Pipeline %s resolves to %d stages:\n", p.Name, len(g.TopologicalOrder()))
			for i, name := range g.TopologicalOrder() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %2d. %s\n", i+1, name)
			}
			return nil
		}

		absWorkDir, err := filepath.Abs(workDir)
		if err != nil {
			return fmt.Errorf("resolve workdir: %w", err)
		}

		logger := log.DefaultLogger()
		rc := engine.NewRunContext(absWorkDir)
		if verbose {
			rc.Stream = cmd.OutOrStdout()
		}

		executor := engine.New(provision.NewLocal(), logger)
		result := executor.Execute(cmd.Context(), g, rc)

		fmt.Fprint(cmd.OutOrStdout(), engine.RenderReport(result))

		if result.Failed() {
			return result.Err()
		}

		if artifactName == "" {
			artifactName = p.ArtifactName()
		}
		return publishArtifacts(cmd, result, artifactName, publishDir, pushRef, insecure, logger)
	},
}

// publishArtifacts packs the declared outputs of succeeded stages and hands
// them to the selected backend. Called only after an overall-succeeded run.
func publishArtifacts(cmd *cobra.Command, result *engine.PipelineResult, name, publishDir, pushRef string, insecure bool, logger *log.Logger) error {
	var contributions []artifact.StageArtifacts
	for _, res := range result.SucceededStages() {
		if len(res.Artifacts) == 0 {
			continue
		}
		contributions = append(contributions, artifact.StageArtifacts{Stage: res.Name, Paths: res.Artifacts})
	}
	if len(contributions) == 0 {
		logger.Info("no declared outputs, nothing to publish", "pipeline", result.Pipeline)
		return nil
	}

	m, err := artifact.BuildManifest(name, result.RunID, contributions)
	if err != nil {
		return err
	}

	stagingDir, err := os.MkdirTemp("", "rigger-artifact-*")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	archivePath := filepath.Join(stagingDir, name+".tar.gz")
	if err := artifact.Pack(m, archivePath); err != nil {
		return err
	}

	var publisher artifact.Publisher
	if pushRef != "" {
		publisher = &artifact.OCIPublisher{Reference: pushRef, Insecure: insecure}
	} else {
		publisher = &artifact.DirStore{Root: publishDir}
	}

	loc, err := publisher.Publish(cmd.Context(), m, archivePath)
	if err != nil {
		return err
	}

	logger.Info("artifact published", "name", loc.Name, "run_id", loc.RunID, "digest", loc.Digest)
	fmt.Fprintf(cmd.OutOrStdout(), "\nPublished %s (%d files) to %s\n", loc.Name, len(m.Files), loc)
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("dry-run", false, "Resolve and print the stage order without executing")
	runCmd.Flags().String("only", "", "Run a single stage plus its ancestry")
	runCmd.Flags().String("artifact-name", "", "Name for the published artifact (default: pipeline's artifact name)")
	runCmd.Flags().String("workdir", ".", "Working directory for steps")
	runCmd.Flags().String("publish-dir", ".rigger/artifacts", "Local artifact store directory")
	runCmd.Flags().String("push", "", "Publish to an OCI registry reference instead of the local store")
	runCmd.Flags().Bool("insecure-registry", false, "Allow plain-HTTP registries with --push")
	runCmd.Flags().BoolP("verbose", "v", false, "Stream step output while running")
}
