package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Godsmith/hatch/pkg/version"
	"github.com/Godsmith/hatch/pkg/workflow"
)

var ciCmd = &cobra.Command{
	Use:   "ci",
	Short: "Work with the project's workflow definitions",
}

var ciRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the workflow triggered by a ref",
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := cmd.Flags().GetString("ref")
		if err != nil {
			return err
		}

		file, err := cmd.Flags().GetString("workflow")
		if err != nil {
			return err
		}

		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		cfg, err := loadProject()
		if err != nil {
			return err
		}

		if file == "" {
			file = filepath.Join(cfg.Root, workflow.DefaultPath)
		}

		def, err := workflow.Load(file)
		if err != nil {
			return err
		}

		envMap, err := resolvedEnvs(cfg)
		if err != nil {
			return err
		}

		source, err := version.New(cfg)
		if err != nil {
			return err
		}

		current, err := source.Get()
		if err != nil {
			return err
		}

		runner := workflow.NewRunner(cfg, envMap, current)
		runner.DryRun = dryRun
		return runner.Run(newContext(), def, ref)
	},
}

func init() {
	ciRunCmd.Flags().String("ref", "", "the ref that triggered this run, e.g. refs/tags/v1.2.3")
	ciRunCmd.Flags().String("workflow", "", "path to the workflow file")
	ciRunCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	_ = ciRunCmd.MarkFlagRequired("ref")

	ciCmd.AddCommand(ciRunCmd)
	rootCmd.AddCommand(ciCmd)
}
