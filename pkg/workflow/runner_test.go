package workflow

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Godsmith/hatch/pkg/ctxlog"
	"github.com/Godsmith/hatch/pkg/envs"
	"github.com/Godsmith/hatch/pkg/project"
)

func testContext() context.Context {
	logger := zerolog.Nop()
	return ctxlog.WithLogger(context.Background(), &logger)
}

func testRunner(t *testing.T, config string) *Runner {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, project.ConfigFile), []byte(config), 0660))

	cfg, err := project.Load(filepath.Join(root, project.ConfigFile))
	require.NoError(t, err)

	envMap, err := envs.Resolve(cfg)
	require.NoError(t, err)

	return NewRunner(cfg, envMap, "0.1.0")
}

func TestRunner_RefMustMatchTrigger(t *testing.T) {
	runner := testRunner(t, "[project]\nname = \"sample\"\n")

	def, err := Parse([]byte(`on:
  push:
    tags:
      - v*
jobs:
  build:
    steps:
      - run: "true"
`), "build.yml")
	require.NoError(t, err)

	err = runner.Run(testContext(), def, "refs/heads/main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match any trigger pattern")
}

func TestRunner_RunStepsSeeJobEnvAndRef(t *testing.T) {
	runner := testRunner(t, "[project]\nname = \"sample\"\n")

	def, err := Parse([]byte(`on:
  push:
    tags:
      - v*
jobs:
  build:
    env:
      GREETING: hello
    steps:
      - run: echo $GREETING $HATCH_CI_REF > out.txt
`), "build.yml")
	require.NoError(t, err)

	require.NoError(t, runner.Run(testContext(), def, "refs/tags/v1.0.0"))

	content, err := os.ReadFile(filepath.Join(runner.cfg.Root, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello refs/tags/v1.0.0\n", string(content))
}

func TestRunner_ArtifactHandOffBetweenJobs(t *testing.T) {
	runner := testRunner(t, "[project]\nname = \"sample\"\n")

	def, err := Parse([]byte(`on:
  push:
    tags:
      - v*
jobs:
  build:
    steps:
      - run: echo payload > result.txt
      - uses: upload-artifact
        with:
          name: result
          path: result.txt
  consume:
    needs: [build]
    steps:
      - uses: download-artifact
        with:
          name: result
          path: restored
`), "build.yml")
	require.NoError(t, err)

	require.NoError(t, runner.Run(testContext(), def, "v1.0.0"))

	content, err := os.ReadFile(filepath.Join(runner.cfg.Root, "restored", "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload\n", string(content))
}

func TestRunner_DownloadUnknownArtifact(t *testing.T) {
	runner := testRunner(t, "[project]\nname = \"sample\"\n")

	def, err := Parse([]byte(`on:
  push:
    tags:
      - v*
jobs:
  consume:
    steps:
      - uses: download-artifact
        with:
          name: never-uploaded
`), "build.yml")
	require.NoError(t, err)

	err = runner.Run(testContext(), def, "v1.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "artifact never-uploaded was never uploaded")
}

func TestRunner_BuildAndPublish(t *testing.T) {
	t.Setenv("HATCH_INDEX_AUTH", "secret-token")

	received := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received++
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(server.Close)

	runner := testRunner(t, `[project]
name = "sample"
version = "0.1.0"

[publish.index]
url = "`+server.URL+`"
`)
	require.NoError(t, os.WriteFile(filepath.Join(runner.cfg.Root, "module.py"), []byte("pass\n"), 0660))

	def, err := Parse([]byte(`on:
  push:
    tags:
      - v*
jobs:
  build:
    steps:
      - uses: build
        with:
          target: source
  publish:
    needs: [build]
    steps:
      - uses: publish
        with:
          path: dist/*
`), "build.yml")
	require.NoError(t, err)

	require.NoError(t, runner.Run(testContext(), def, "v0.1.0"))
	assert.Equal(t, 1, received)
}

func TestDownloadArtifact_CountsOnlyFiles(t *testing.T) {
	runner := testRunner(t, "[project]\nname = \"sample\"\n")

	stage := filepath.Join(runner.cfg.Root, project.StateDir, "runs", "test", "artifacts")
	require.NoError(t, os.MkdirAll(filepath.Join(stage, "result", "nested"), 0770))
	require.NoError(t, os.WriteFile(filepath.Join(stage, "result", "result.txt"), []byte("payload\n"), 0660))

	buffer := bytes.Buffer{}
	logger := zerolog.New(&buffer)
	ctx := ctxlog.WithLogger(context.Background(), &logger)

	state := &runState{stageDir: stage}
	step := Step{Uses: "download-artifact", With: map[string]string{"name": "result", "path": "restored"}}
	require.NoError(t, runner.downloadArtifactStep(ctx, step, state))

	assert.Contains(t, buffer.String(), "Restored 1 file(s) from artifact result")

	content, err := os.ReadFile(filepath.Join(runner.cfg.Root, "restored", "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload\n", string(content))
}

func TestRunner_ConcurrencyLockHeldDuringRun(t *testing.T) {
	runner := testRunner(t, "[project]\nname = \"sample\"\n")

	_, err := AcquireLock(runner.cfg.Root, "build-v1.0.0", "other-run", false)
	require.NoError(t, err)

	def, err := Parse([]byte(`on:
  push:
    tags:
      - v*
concurrency:
  group: build-${{ ref }}
jobs:
  build:
    steps:
      - run: "true"
`), "build.yml")
	require.NoError(t, err)

	err = runner.Run(testContext(), def, "v1.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by run other-run")
}

func TestRunner_DryRunSkipsEverything(t *testing.T) {
	runner := testRunner(t, "[project]\nname = \"sample\"\n")
	runner.DryRun = true

	def, err := Parse([]byte(`on:
  push:
    tags:
      - v*
jobs:
  build:
    steps:
      - run: echo nope > out.txt
      - uses: build
`), "build.yml")
	require.NoError(t, err)

	require.NoError(t, runner.Run(testContext(), def, "v1.0.0"))

	_, err = os.Stat(filepath.Join(runner.cfg.Root, "out.txt"))
	assert.True(t, os.IsNotExist(err))
}
