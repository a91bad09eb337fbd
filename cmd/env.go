package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Inspect the project's environments",
}

var envShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List all environments with their dependencies and scripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadProject()
		if err != nil {
			return err
		}

		envMap, err := resolvedEnvs(cfg)
		if err != nil {
			return err
		}

		names := envMap.Names()
		maxNameLen := 0
		for _, name := range names {
			if len(name) > maxNameLen {
				maxNameLen = len(name)
			}
		}

		lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
		for _, name := range names {
			env := envMap[name]
			fmt.Printf(lineFmt, name+":", env.Description)

			if len(env.Dependencies) > 0 {
				deps := make([]string, len(env.Dependencies))
				for idx, dep := range env.Dependencies {
					deps[idx] = dep.String()
				}
				fmt.Printf("     deps:    %s\n", strings.Join(deps, ", "))
			}

			if len(env.Scripts) > 0 {
				scripts := make([]string, 0, len(env.Scripts))
				for script := range env.Scripts {
					scripts = append(scripts, script)
				}
				sort.Strings(scripts)
				fmt.Printf("     scripts: %s\n", strings.Join(scripts, ", "))
			}
		}

		return nil
	},
}

var envFindCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "Print the concrete environments a name selects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadProject()
		if err != nil {
			return err
		}

		envMap, err := resolvedEnvs(cfg)
		if err != nil {
			return err
		}

		matches, err := envMap.Find(args[0])
		if err != nil {
			return err
		}

		for _, env := range matches {
			fmt.Println(env.Name)
		}

		return nil
	},
}

func init() {
	envCmd.AddCommand(envShowCmd)
	envCmd.AddCommand(envFindCmd)
	rootCmd.AddCommand(envCmd)
}
