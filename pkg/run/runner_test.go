package run

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Godsmith/hatch/pkg/ctxlog"
	"github.com/Godsmith/hatch/pkg/envs"
)

func testContext() context.Context {
	logger := zerolog.Nop()
	return ctxlog.WithLogger(context.Background(), &logger)
}

func testEnv(scripts map[string][]string, envVars map[string]string) *envs.Environment {
	if envVars == nil {
		envVars = map[string]string{}
	}

	return &envs.Environment{
		Name:    "default",
		Base:    "default",
		EnvVars: envVars,
		Scripts: scripts,
	}
}

func TestCommands_WritesFile(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(nil, nil)

	err := Commands(testContext(), env, []envs.Command{
		{Text: "echo hello > out.txt"},
	}, Options{Dir: dir})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(content))
}

func TestCommands_DryRunSkipsExecution(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(nil, nil)

	err := Commands(testContext(), env, []envs.Command{
		{Text: "echo hello > out.txt"},
	}, Options{Dir: dir, DryRun: true})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "out.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestCommands_EnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RUN_TEST_VALUE", "os")

	env := testEnv(nil, map[string]string{"RUN_TEST_VALUE": "env"})

	err := Commands(testContext(), env, []envs.Command{
		{Text: "echo $RUN_TEST_VALUE > out.txt"},
	}, Options{Dir: dir})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "env\n", string(content))

	err = Commands(testContext(), env, []envs.Command{
		{Text: "echo $RUN_TEST_VALUE > out.txt"},
	}, Options{Dir: dir, Overrides: map[string]string{"RUN_TEST_VALUE": "override"}})
	require.NoError(t, err)

	content, err = os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "override\n", string(content))
}

func TestCommands_ActiveEnvAndMatrixVars(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(nil, nil)
	env.Name = "test.3.9"
	env.Base = "test"
	env.Variables = map[string]string{"python": "3.9"}

	err := Commands(testContext(), env, []envs.Command{
		{Text: "echo $HATCH_ENV_ACTIVE $HATCH_MATRIX_PYTHON > out.txt"},
	}, Options{Dir: dir})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "test.3.9 3.9\n", string(content))
}

func TestCommands_FailureAborts(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(nil, nil)

	err := Commands(testContext(), env, []envs.Command{
		{Text: "false"},
		{Text: "echo late > out.txt"},
	}, Options{Dir: dir})
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(dir, "out.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestCommands_IgnoredFailureContinues(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(nil, nil)

	err := Commands(testContext(), env, []envs.Command{
		{Text: "false", IgnoreErrors: true},
		{Text: "echo late > out.txt"},
	}, Options{Dir: dir})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "late\n", string(content))
}

func TestScript_ResolvesBeforeRunning(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(map[string][]string{
		"write": {"echo resolved > out.txt"},
		"all":   {"write"},
	}, nil)

	err := Script(testContext(), env, "all", nil, Options{Dir: dir})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "resolved\n", string(content))
}

func TestRerouteExec(t *testing.T) {
	var captured []string
	handler := rerouteExec(func(ctx context.Context, args []string) error {
		captured = args
		return nil
	})

	require.NoError(t, handler(context.Background(), []string{"mkdir", "-p", "x/y"}))
	assert.Equal(t, []string{selfExecutable(), "tool", "mkdir", "-p", "x/y"}, captured)

	require.NoError(t, handler(context.Background(), []string{"mv", "a", "b", "dest"}))
	assert.Equal(t, []string{selfExecutable(), "tool", "mv", "a", "b", "dest"}, captured)

	require.NoError(t, handler(context.Background(), []string{"rm", "-rf", "x"}))
	assert.Equal(t, []string{selfExecutable(), "tool", "rm", "-rf", "x"}, captured)

	require.NoError(t, handler(context.Background(), []string{"echo", "hello"}))
	assert.Equal(t, []string{"echo", "hello"}, captured)
}

func TestOpenHandler_DevNull(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(nil, nil)

	err := Commands(testContext(), env, []envs.Command{
		{Text: "echo discarded > /dev/null"},
		{Text: "echo kept > out.txt"},
	}, Options{Dir: dir})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "kept\n", string(content))
}

func TestScript_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(map[string][]string{
		"write": {"echo nope > out.txt"},
	}, nil)

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	err := Script(ctx, env, "write", nil, Options{Dir: dir})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "context canceled"))
}
