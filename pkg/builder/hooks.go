package builder

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/rotisserie/eris"
)

// Env vars controlling which build hooks run.
const (
	// EnvNoHooks disables every hook.
	EnvNoHooks = "HATCH_BUILD_NO_HOOKS"
	// EnvHooksEnable force-enables hooks that are not enabled by default.
	EnvHooksEnable = "HATCH_BUILD_HOOKS_ENABLE"
	// EnvHookEnablePrefix force-enables a single hook by name.
	EnvHookEnablePrefix = "HATCH_BUILD_HOOK_ENABLE_"
)

// HookConfig is the configuration of one enabled build hook.
type HookConfig struct {
	Name    string
	Options map[string]interface{}
}

// BuildData collects what hooks contribute to a build: extra artifact
// patterns and force-included files.
type BuildData struct {
	Artifacts    []string
	ForceInclude map[string]string
}

// NewBuildData returns an empty BuildData.
func NewBuildData() *BuildData {
	return &BuildData{ForceInclude: map[string]string{}}
}

// resolveHooks merges target-level hooks over global hooks and filters them
// by the enable rules. Target hooks win on name conflicts; ordering is by
// name for determinism.
func (c *Config) resolveHooks() error {
	targetHooks, err := tableOption(c.targetCfg, "hooks", fmt.Sprintf("build.targets.%s.hooks", c.target))
	if err != nil {
		return err
	}

	globalHooks, err := tableOption(c.global, "hooks", "build.hooks")
	if err != nil {
		return err
	}

	merged := map[string]map[string]interface{}{}

	for name, value := range targetHooks {
		options, ok := value.(map[string]interface{})
		if !ok {
			return eris.Errorf("field `build.targets.%s.hooks.%s` must be a table", c.target, name)
		}

		merged[name] = options
	}

	for name, value := range globalHooks {
		if _, present := merged[name]; present {
			continue
		}

		options, ok := value.(map[string]interface{})
		if !ok {
			return eris.Errorf("field `build.hooks.%s` must be a table", name)
		}

		merged[name] = options
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	c.hooks = make([]HookConfig, 0, len(merged))
	if envVarEnabled(EnvNoHooks, false) {
		return nil
	}

	allEnabled := envVarEnabled(EnvHooksEnable, false)
	for _, name := range names {
		options := merged[name]

		enabledByDefault, err := boolOption(options, "enable-by-default", fmt.Sprintf("option `enable-by-default` of build hook `%s`", name), true)
		if err != nil {
			return eris.Errorf("option `enable-by-default` of build hook `%s` must be a boolean", name)
		}

		if allEnabled || enabledByDefault || envVarEnabled(EnvHookEnablePrefix+envVarSuffix(name), false) {
			c.hooks = append(c.hooks, HookConfig{Name: name, Options: options})
		}
	}

	return nil
}

// Hooks returns the enabled hooks in execution order.
func (c *Config) Hooks() []HookConfig {
	return c.hooks
}

// Dependencies merges target, global and hook dependency declarations.
// Runtime dependencies are appended when the config or any hook requires
// them.
func (c *Config) Dependencies(runtime []string) ([]string, error) {
	ordered := []string{}
	seen := map[string]bool{}
	add := func(dep string) {
		if !seen[dep] {
			seen[dep] = true
			ordered = append(ordered, dep)
		}
	}

	targetDeps, err := stringArrayOption(c.targetCfg, "dependencies", fmt.Sprintf("build.targets.%s.dependencies", c.target))
	if err != nil {
		return nil, err
	}
	for _, dep := range targetDeps {
		add(dep)
	}

	globalDeps, err := stringArrayOption(c.global, "dependencies", "build.dependencies")
	if err != nil {
		return nil, err
	}
	for _, dep := range globalDeps {
		add(dep)
	}

	requireRuntime := c.requireRuntime
	for _, hook := range c.hooks {
		hookRequires, err := boolOption(hook.Options, "require-runtime-dependencies", "", false)
		if err != nil {
			return nil, eris.Errorf("option `require-runtime-dependencies` of build hook `%s` must be a boolean", hook.Name)
		}
		if hookRequires {
			requireRuntime = true
		}

		hookDeps, err := stringArrayOption(hook.Options, "dependencies", fmt.Sprintf("option `dependencies` of build hook `%s`", hook.Name))
		if err != nil {
			return nil, err
		}
		for _, dep := range hookDeps {
			add(dep)
		}
	}

	if requireRuntime {
		for _, dep := range runtime {
			add(dep)
		}
	}

	return ordered, nil
}

// runHooks executes every enabled hook against the build data.
func (c *Config) runHooks(ctx context.Context, version string, data *BuildData) error {
	for _, hook := range c.hooks {
		switch hook.Name {
		case "custom":
			err := runCustomHook(ctx, c.root, c.target, version, hook.Options, data)
			if err != nil {
				return err
			}
		default:
			return eris.Errorf("unknown build hook: %s", hook.Name)
		}
	}

	return nil
}

func envVarEnabled(name string, fallback bool) bool {
	value, present := os.LookupEnv(name)
	if !present {
		return fallback
	}

	return value == "1" || value == "true"
}

func envVarSuffix(name string) string {
	result := make([]rune, 0, len(name))
	for _, char := range name {
		switch {
		case char >= 'a' && char <= 'z':
			result = append(result, char-'a'+'A')
		case char == '-' || char == '.':
			result = append(result, '_')
		default:
			result = append(result, char)
		}
	}

	return string(result)
}
