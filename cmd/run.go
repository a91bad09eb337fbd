package cmd

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Godsmith/hatch/pkg/run"
)

var runCmd = &cobra.Command{
	Use:   "run [env:]script [args...]",
	Short: "Run a named script inside an environment",
	Long: `This command runs one of the scripts declared in hatch.toml. Prefix the
script name with an environment name to pick a specific environment; a matrix
environment name selects all of its expansions. KEY=VALUE arguments become
environment variable overrides, everything else is passed to the script.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		envName := "default"
		script := args[0]
		if pos := strings.Index(script, ":"); pos > -1 {
			envName = script[:pos]
			script = script[pos+1:]
		}

		if script == "" {
			return eris.New("no script name given")
		}

		scriptArgs := make([]string, 0)
		overrides := make(map[string]string)
		for _, part := range args[1:] {
			pos := strings.Index(part, "=")
			if pos > -1 {
				overrides[part[:pos]] = part[pos+1:]
			} else {
				scriptArgs = append(scriptArgs, part)
			}
		}

		cfg, err := loadProject()
		if err != nil {
			return err
		}

		envMap, err := resolvedEnvs(cfg)
		if err != nil {
			return err
		}

		matches, err := envMap.Find(envName)
		if err != nil {
			return err
		}

		ctx := newContext()
		for _, env := range matches {
			err = run.Script(ctx, env, script, scriptArgs, run.Options{
				Dir:       cfg.Root,
				DryRun:    dryRun,
				Overrides: overrides,
			})
			if err != nil {
				return eris.Wrapf(err, "script %s failed in environment %s", script, env.Name)
			}
		}

		return nil
	},
}

func init() {
	runCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	rootCmd.AddCommand(runCmd)
}
