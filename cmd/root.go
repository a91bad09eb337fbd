// Package cmd implements the hatch CLI.
package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Godsmith/hatch/pkg/ctxlog"
	"github.com/Godsmith/hatch/pkg/envs"
	"github.com/Godsmith/hatch/pkg/project"
)

var rootCmd = &cobra.Command{
	Use:   "hatch",
	Short: "Project environment and build manager",
	Long: `hatch manages a project's environments, scripts, builds and releases based
on the hatch.toml file in the project root.`,
	SilenceUsage: true,
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

// newContext prepares a context with the console logger attached.
func newContext() context.Context {
	logger := zerolog.New(NewConsoleWriter())
	return ctxlog.WithLogger(context.Background(), &logger)
}

// loadProject finds the project containing the working directory.
func loadProject() (*project.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, eris.Wrap(err, "failed to retrieve the current working directory")
	}

	root, err := project.FindRoot(wd)
	if err != nil {
		return nil, err
	}

	return project.LoadDir(root)
}

// resolvedEnvs returns the environment set, using the cached resolution if
// the config has not changed since it was written.
func resolvedEnvs(cfg *project.Config) (envs.Map, error) {
	cacheFile := filepath.Join(cfg.Root, project.StateDir, "envs.cache")

	digest, cached, err := envs.ReadCache(cacheFile)
	if err == nil && digest == cfg.Digest() {
		return cached, nil
	}

	result, err := envs.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	// a missing cache only costs us the next resolution
	if os.MkdirAll(filepath.Dir(cacheFile), 0770) == nil {
		_ = envs.WriteCache(cacheFile, cfg.Digest(), result)
	}

	return result, nil
}
