package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Godsmith/hatch/pkg/builder"
	"github.com/Godsmith/hatch/pkg/ctxlog"
	"github.com/Godsmith/hatch/pkg/version"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the project's distribution archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := cmd.Flags().GetString("target")
		if err != nil {
			return err
		}

		clean, err := cmd.Flags().GetBool("clean")
		if err != nil {
			return err
		}

		cfg, err := loadProject()
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

		targets := builder.DefaultTargets
		if target != "" {
			targets = []string{target}
		}

		ctx := newContext()
		bld := builder.New(cfg, current)
		for _, target := range targets {
			if clean {
				err = bld.Clean(target)
				if err != nil {
					return err
				}
			}

			artifact, err := bld.Build(ctx, target)
			if err != nil {
				return err
			}

			ctxlog.From(ctx).Info().
				Str("digest", artifact.Digest).
				Msgf("Built %s (%d files)", artifact.Path, artifact.Files)
		}

		return nil
	},
}

func init() {
	buildCmd.Flags().StringP("target", "t", "", "only build the given target")
	buildCmd.Flags().Bool("clean", false, "remove previous archives before building")
	rootCmd.AddCommand(buildCmd)
}
