package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Godsmith/hatch/pkg/builder"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove previously built archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadProject()
		if err != nil {
			return err
		}

		bld := builder.New(cfg, "")
		for _, target := range builder.DefaultTargets {
			err = bld.Clean(target)
			if err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
