package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hookNames(cfg *Config) []string {
	names := make([]string, 0, len(cfg.Hooks()))
	for _, hook := range cfg.Hooks() {
		names = append(names, hook.Name)
	}

	return names
}

func TestHooks_EnabledByDefault(t *testing.T) {
	cfg, err := NewConfig(t.TempDir(), TargetSource, map[string]interface{}{
		"hooks": map[string]interface{}{
			"custom": map[string]interface{}{},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, hookNames(cfg))
}

func TestHooks_DisabledByDefaultNeedsOptIn(t *testing.T) {
	build := map[string]interface{}{
		"hooks": map[string]interface{}{
			"custom": map[string]interface{}{
				"enable-by-default": false,
			},
		},
	}

	cfg, err := NewConfig(t.TempDir(), TargetSource, build)
	require.NoError(t, err)
	assert.Empty(t, hookNames(cfg))

	t.Setenv(EnvHooksEnable, "true")
	cfg, err = NewConfig(t.TempDir(), TargetSource, build)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, hookNames(cfg))
}

func TestHooks_PerHookEnvVar(t *testing.T) {
	build := map[string]interface{}{
		"hooks": map[string]interface{}{
			"custom": map[string]interface{}{
				"enable-by-default": false,
			},
		},
	}

	t.Setenv(EnvHookEnablePrefix+"CUSTOM", "1")
	cfg, err := NewConfig(t.TempDir(), TargetSource, build)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, hookNames(cfg))
}

func TestHooks_NoHooksWinsOverEverything(t *testing.T) {
	t.Setenv(EnvNoHooks, "true")
	t.Setenv(EnvHooksEnable, "true")

	cfg, err := NewConfig(t.TempDir(), TargetSource, map[string]interface{}{
		"hooks": map[string]interface{}{
			"custom": map[string]interface{}{},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, hookNames(cfg))
}

func TestHooks_TargetOverridesGlobal(t *testing.T) {
	cfg, err := NewConfig(t.TempDir(), TargetSource, map[string]interface{}{
		"hooks": map[string]interface{}{
			"custom": map[string]interface{}{
				"path": "global.star",
			},
		},
		"targets": map[string]interface{}{
			"source": map[string]interface{}{
				"hooks": map[string]interface{}{
					"custom": map[string]interface{}{
						"path": "source.star",
					},
				},
			},
		},
	})
	require.NoError(t, err)

	hooks := cfg.Hooks()
	require.Len(t, hooks, 1)
	assert.Equal(t, "source.star", hooks[0].Options["path"])
}

func TestDependencies_MergeOrderAndRuntime(t *testing.T) {
	cfg, err := NewConfig(t.TempDir(), TargetSource, map[string]interface{}{
		"dependencies": []interface{}{"build-base", "shared"},
		"targets": map[string]interface{}{
			"source": map[string]interface{}{
				"dependencies": []interface{}{"target-extra", "shared"},
			},
		},
		"hooks": map[string]interface{}{
			"custom": map[string]interface{}{
				"dependencies":                 []interface{}{"hook-dep"},
				"require-runtime-dependencies": true,
			},
		},
	})
	require.NoError(t, err)

	deps, err := cfg.Dependencies([]string{"runtime-dep"})
	require.NoError(t, err)
	assert.Equal(t, []string{"target-extra", "shared", "build-base", "hook-dep", "runtime-dep"}, deps)
}

func TestDependencies_RuntimeOnlyWhenRequired(t *testing.T) {
	cfg, err := NewConfig(t.TempDir(), TargetSource, map[string]interface{}{
		"dependencies": []interface{}{"build-base"},
	})
	require.NoError(t, err)

	deps, err := cfg.Dependencies([]string{"runtime-dep"})
	require.NoError(t, err)
	assert.Equal(t, []string{"build-base"}, deps)
}

func TestEnvVarSuffix(t *testing.T) {
	assert.Equal(t, "CUSTOM", envVarSuffix("custom"))
	assert.Equal(t, "MY_HOOK_V2", envVarSuffix("my-hook.v2"))
}
