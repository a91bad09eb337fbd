// Package envs turns the raw environment configuration into the concrete set
// of runnable environments: inheritance from the default environment is
// applied, matrices are expanded and script references are resolved.
package envs

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Godsmith/hatch/pkg/project"
)

// Environment is a fully resolved environment.
type Environment struct {
	Name        string
	Base        string
	Description string
	SkipInstall bool

	Dependencies []project.Dependency
	EnvVars      map[string]string
	Scripts      map[string][]string

	// Variables holds the matrix variable values that produced this
	// environment. Empty for non-matrix environments.
	Variables map[string]string
}

// Map maps environment names to resolved environments.
type Map map[string]*Environment

// Resolve builds the runnable environment set from the project config.
func Resolve(cfg *project.Config) (Map, error) {
	result := Map{}

	for name := range cfg.Envs {
		merged, err := mergeChain(cfg, name)
		if err != nil {
			return nil, err
		}

		expanded, err := expandMatrix(merged, cfg.Envs[name].Matrix)
		if err != nil {
			return nil, err
		}

		for _, env := range expanded {
			result[env.Name] = env
		}
	}

	return result, nil
}

// mergeChain resolves the template chain for an environment and merges the
// configs along it, closest environment winning on conflicts.
func mergeChain(cfg *project.Config, name string) (*Environment, error) {
	chain := []string{}
	seen := map[string]bool{}

	current := name
	for {
		if seen[current] {
			return nil, eris.Errorf("environment %s has a circular template chain", name)
		}
		seen[current] = true
		chain = append(chain, current)

		envCfg, ok := cfg.Envs[current]
		if !ok {
			return nil, eris.Errorf("environment %s uses unknown template %s", chain[len(chain)-2], current)
		}

		next := templateOf(current, envCfg)
		if next == "" {
			break
		}
		current = next
	}

	env := &Environment{
		Name:    name,
		Base:    name,
		EnvVars: map[string]string{},
		Scripts: map[string][]string{},
	}

	// Apply from the far end of the chain towards the environment itself so
	// that closer definitions overwrite inherited ones.
	for idx := len(chain) - 1; idx >= 0; idx-- {
		envCfg := cfg.Envs[chain[idx]]

		if envCfg.Description != "" {
			env.Description = envCfg.Description
		}
		if envCfg.SkipInstall {
			env.SkipInstall = true
		}

		env.Dependencies = mergeDeps(env.Dependencies, envCfg.Dependencies)

		for key, value := range envCfg.EnvVars {
			env.EnvVars[key] = value
		}

		for script, cmds := range envCfg.Scripts {
			env.Scripts[script] = append([]string(nil), cmds...)
		}
	}

	return env, nil
}

// templateOf returns the environment this one inherits from, or "" when it
// is detached. Everything inherits from default unless the template option
// says otherwise; naming yourself or the empty string opts out.
func templateOf(name string, cfg project.EnvConfig) string {
	if cfg.Template == nil {
		if name == "default" {
			return ""
		}
		return "default"
	}

	template := *cfg.Template
	if template == name {
		return ""
	}

	return template
}

func mergeDeps(base, extra []project.Dependency) []project.Dependency {
	index := map[string]int{}
	for idx, dep := range base {
		index[dep.Name] = idx
	}

	for _, dep := range extra {
		if idx, ok := index[dep.Name]; ok {
			base[idx] = dep
		} else {
			index[dep.Name] = len(base)
			base = append(base, dep)
		}
	}

	return base
}

// Find resolves a user-supplied environment name. An exact match wins;
// otherwise the name selects all matrix expansions of that base environment.
func (m Map) Find(name string) ([]*Environment, error) {
	if env, ok := m[name]; ok {
		return []*Environment{env}, nil
	}

	matches := make([]*Environment, 0)
	for _, env := range m {
		if env.Base == name {
			matches = append(matches, env)
		}
	}

	if len(matches) == 0 {
		return nil, eris.Errorf("environment %s not found", name)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	return matches, nil
}

// Names returns the environment names in sorted order.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// MatrixSuffix renders the matrix variable values of an environment the way
// expanded names embed them.
func (e *Environment) MatrixSuffix() string {
	if len(e.Variables) == 0 {
		return ""
	}

	keys := make([]string, 0, len(e.Variables))
	for key := range e.Variables {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keys))
	for _, key := range keys {
		values = append(values, e.Variables[key])
	}

	return strings.Join(values, "-")
}
