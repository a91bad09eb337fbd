package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `[project]
name = "sample"
description = "A sample project"
version = "1.2.3"

[envs.default]
dependencies = ["pytest >=7.0", "coverage"]

[envs.default.scripts]
test = "pytest"
all = ["fmt", "test"]

[envs.test]

[[envs.test.matrix]]
python = ["3.9", "3.10"]

[envs.lint]
skip-install = true
template = ""

[envs.lint.env-vars]
COLOR = "1"

[build]
reproducible = true

[publish.index]
url = "https://example.com/upload"
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig), "hatch.toml", ".")
	require.NoError(t, err)

	assert.Equal(t, "sample", cfg.Project.Name)
	assert.Equal(t, "1.2.3", cfg.Project.Version)
	assert.Equal(t, "config", cfg.Version.Source)

	def := cfg.Envs["default"]
	require.Len(t, def.Dependencies, 2)
	assert.Equal(t, "pytest", def.Dependencies[0].Name)
	assert.Equal(t, ">=7.0", def.Dependencies[0].Constraint)
	assert.Equal(t, []string{"pytest"}, def.Scripts["test"])
	assert.Equal(t, []string{"fmt", "test"}, def.Scripts["all"])

	test := cfg.Envs["test"]
	require.Len(t, test.Matrix, 1)
	assert.Equal(t, []string{"3.9", "3.10"}, test.Matrix[0]["python"])

	lint := cfg.Envs["lint"]
	assert.True(t, lint.SkipInstall)
	require.NotNil(t, lint.Template)
	assert.Equal(t, "", *lint.Template)
	assert.Equal(t, "1", lint.EnvVars["COLOR"])

	assert.Equal(t, true, cfg.Build["reproducible"])
	assert.Equal(t, "https://example.com/upload", cfg.Publish.URL)
	assert.Equal(t, "__token__", cfg.Publish.User)
	assert.Equal(t, "HATCH_INDEX_AUTH", cfg.Publish.Auth)
}

func TestParse_DefaultEnvAlwaysExists(t *testing.T) {
	cfg, err := Parse([]byte("[project]\nname = \"x\"\n"), "hatch.toml", ".")
	require.NoError(t, err)

	_, ok := cfg.Envs["default"]
	assert.True(t, ok)
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		message string
	}{
		{
			name:    "missing name",
			content: "[project]\ndescription = \"x\"\n",
			message: "field `project.name` is required",
		},
		{
			name:    "name not a string",
			content: "[project]\nname = 3\n",
			message: "field `project.name` must be a string",
		},
		{
			name:    "deps not an array",
			content: "[project]\nname = \"x\"\n[envs.default]\ndependencies = \"pytest\"\n",
			message: "field `envs.default.dependencies` must be an array of strings",
		},
		{
			name:    "dep not a string",
			content: "[project]\nname = \"x\"\n[envs.default]\ndependencies = [3]\n",
			message: "item #1 in field `envs.default.dependencies` must be a string",
		},
		{
			name:    "empty script",
			content: "[project]\nname = \"x\"\n[envs.default.scripts]\ntest = \"\"\n",
			message: "field `envs.default.scripts.test` cannot be an empty string",
		},
		{
			name:    "matrix not tables",
			content: "[project]\nname = \"x\"\n[envs.test]\nmatrix = [3]\n",
			message: "entry #1 in field `envs.test.matrix` must be a table",
		},
		{
			name:    "empty matrix values",
			content: "[project]\nname = \"x\"\n[[envs.test.matrix]]\npython = []\n",
			message: "field `envs.test.matrix.python` cannot be empty",
		},
		{
			name:    "unknown version source",
			content: "[project]\nname = \"x\"\n[version]\nsource = \"vcs\"\n",
			message: "unknown version source `vcs` in field `version.source`",
		},
		{
			name:    "regex source without path",
			content: "[project]\nname = \"x\"\n[version]\nsource = \"regex\"\n",
			message: "field `version.path` is required for the regex version source",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.content), "hatch.toml", ".")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestParseDependency(t *testing.T) {
	dep, err := ParseDependency("ruff", "envs.default.dependencies")
	require.NoError(t, err)
	assert.Equal(t, "ruff", dep.Name)
	assert.Equal(t, "", dep.Constraint)

	dep, err = ParseDependency("ruff >=0.1, <1.0", "envs.default.dependencies")
	require.NoError(t, err)
	assert.Equal(t, "ruff", dep.Name)
	assert.Equal(t, ">=0.1, <1.0", dep.Constraint)
	assert.Equal(t, "ruff >=0.1, <1.0", dep.String())

	_, err = ParseDependency("ruff >=not.a.version", "envs.default.dependencies")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid constraint")

	_, err = ParseDependency("  ", "envs.default.dependencies")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be an empty string")
}

func TestFindRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0770))
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFile), []byte("[project]\nname = \"x\"\n"), 0660))

	found, err := FindRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)

	_, err = FindRoot(filepath.Join(t.TempDir(), "nowhere"))
	require.Error(t, err)
}

func TestDigest_ChangesWithContent(t *testing.T) {
	first, err := Parse([]byte("[project]\nname = \"x\"\n"), "hatch.toml", ".")
	require.NoError(t, err)

	second, err := Parse([]byte("[project]\nname = \"y\"\n"), "hatch.toml", ".")
	require.NoError(t, err)

	assert.NotEqual(t, first.Digest(), second.Digest())
	assert.NotEmpty(t, first.Digest())
}
