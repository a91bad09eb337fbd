package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Godsmith/hatch/pkg/project"
	"github.com/Godsmith/hatch/pkg/workflow"
)

const configTemplate = `[project]
name = "%s"
description = ""
version = "0.1.0"

[envs.default]
dependencies = [
  "pytest",
  "pytest-cov",
]

[envs.default.scripts]
test = "pytest"
cov = "pytest --cov"

[envs.test]

[[envs.test.matrix]]
python = ["3.9", "3.10", "3.11", "3.12"]

[envs.lint]
skip-install = true
dependencies = [
  "black",
  "flake8",
]

[envs.lint.scripts]
style = [
  "flake8 .",
  "black --check .",
]
fmt = "black ."

[envs.docs]
dependencies = [
  "mkdocs",
]

[envs.docs.scripts]
build = "mkdocs build"
serve = "mkdocs serve"

[envs.backend]
skip-install = true

[envs.backend.scripts]
build = "hatch build"

[build]
reproducible = true
`

const workflowTemplate = `name: build
on:
  push:
    tags:
      - v*
concurrency:
  group: build-${{ ref }}
  cancel-in-progress: true
jobs:
  build:
    steps:
      - uses: build
      - uses: upload-artifact
        with:
          name: dist
          path: dist/*
  publish:
    needs: [build]
    steps:
      - uses: download-artifact
        with:
          name: dist
          path: dist
      - uses: publish
        with:
          path: dist/*
          skip-existing: "true"
`

var newCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a new project skeleton",
	Long: `This command creates a directory with a hatch.toml containing the canonical
environments (default, test, lint, docs, backend) and a tag-triggered build
workflow.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if _, err := os.Stat(name); err == nil {
			return eris.Errorf("%s already exists", name)
		}

		err := os.MkdirAll(filepath.Dir(filepath.Join(name, workflow.DefaultPath)), 0770)
		if err != nil {
			return eris.Wrapf(err, "failed to create %s", name)
		}

		configPath := filepath.Join(name, project.ConfigFile)
		content := fmt.Sprintf(configTemplate, name)

		// make sure the template survives config changes
		_, err = project.Parse([]byte(content), configPath, name)
		if err != nil {
			return eris.Wrap(err, "generated config is invalid")
		}

		err = os.WriteFile(configPath, []byte(content), 0660)
		if err != nil {
			return eris.Wrapf(err, "failed to write %s", configPath)
		}

		workflowPath := filepath.Join(name, workflow.DefaultPath)
		err = os.WriteFile(workflowPath, []byte(workflowTemplate), 0660)
		if err != nil {
			return eris.Wrapf(err, "failed to write %s", workflowPath)
		}

		fmt.Printf("Created %s\n", name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
}
