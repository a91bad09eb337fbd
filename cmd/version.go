package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Godsmith/hatch/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version [major|minor|patch|<version>]",
	Short: "Show or update the project version",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		if len(args) == 0 {
			fmt.Println(current)
			return nil
		}

		next, err := version.Bump(current, args[0])
		if err != nil {
			return err
		}

		err = source.Set(next)
		if err != nil {
			return err
		}

		fmt.Printf("%s -> %s\n", current, next)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
