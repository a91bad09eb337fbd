package envs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptEnv(scripts map[string][]string) *Environment {
	return &Environment{
		Name:    "default",
		Base:    "default",
		EnvVars: map[string]string{},
		Scripts: scripts,
	}
}

func TestResolveScript_Simple(t *testing.T) {
	env := scriptEnv(map[string][]string{
		"test": {"pytest"},
	})

	commands, err := env.ResolveScript("test", nil)
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, "pytest", commands[0].Text)
	assert.False(t, commands[0].IgnoreErrors)
}

func TestResolveScript_AppendsArgs(t *testing.T) {
	env := scriptEnv(map[string][]string{
		"test": {"pytest"},
	})

	commands, err := env.ResolveScript("test", []string{"-x", "tests/"})
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, "pytest -x tests/", commands[0].Text)
}

func TestResolveScript_ExpandsReferences(t *testing.T) {
	env := scriptEnv(map[string][]string{
		"fmt":  {"black ."},
		"test": {"pytest"},
		"all":  {"fmt", "test -x"},
	})

	commands, err := env.ResolveScript("all", []string{"-v"})
	require.NoError(t, err)
	require.Len(t, commands, 2)
	assert.Equal(t, "black . -v", commands[0].Text)
	assert.Equal(t, "pytest -x -v", commands[1].Text)
}

func TestResolveScript_IgnorePrefix(t *testing.T) {
	env := scriptEnv(map[string][]string{
		"pre":   {"- rm -rf build"},
		"build": {"pre", "make"},
	})

	commands, err := env.ResolveScript("build", nil)
	require.NoError(t, err)
	require.Len(t, commands, 2)
	assert.Equal(t, "rm -rf build", commands[0].Text)
	assert.True(t, commands[0].IgnoreErrors)
	assert.False(t, commands[1].IgnoreErrors)
}

func TestResolveScript_IgnoredReferencePropagates(t *testing.T) {
	env := scriptEnv(map[string][]string{
		"cleanup": {"rm -rf build"},
		"build":   {"- cleanup", "make"},
	})

	commands, err := env.ResolveScript("build", nil)
	require.NoError(t, err)
	require.Len(t, commands, 2)
	assert.True(t, commands[0].IgnoreErrors)
}

func TestResolveScript_Cycle(t *testing.T) {
	env := scriptEnv(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	})

	_, err := env.ResolveScript("a", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "referenced recursively")
}

func TestResolveScript_Unknown(t *testing.T) {
	env := scriptEnv(map[string][]string{})

	_, err := env.ResolveScript("nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script nope not found in environment default")
}
