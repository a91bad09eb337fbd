package envs

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/Godsmith/hatch/pkg/project"
)

// expandMatrix produces one environment per variable combination. An
// environment without a matrix is returned unchanged. The base environment
// itself is replaced by its expansions.
func expandMatrix(env *Environment, matrix []map[string][]string) ([]*Environment, error) {
	if len(matrix) == 0 {
		return []*Environment{env}, nil
	}

	result := make([]*Environment, 0)
	names := map[string]bool{}

	for _, variables := range matrix {
		combinations := product(variables)

		for _, combination := range combinations {
			clone := env.clone()
			clone.Variables = combination
			clone.Name = env.Base + "." + clone.MatrixSuffix()

			if names[clone.Name] {
				return nil, eris.Errorf("matrix for environment %s generates the name %s more than once", env.Base, clone.Name)
			}
			names[clone.Name] = true

			result = append(result, clone)
		}
	}

	return result, nil
}

// product computes all combinations of the variable values. Variables are
// walked in sorted name order so expansion is deterministic.
func product(variables map[string][]string) []map[string]string {
	keys := make([]string, 0, len(variables))
	for key := range variables {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	combinations := []map[string]string{{}}
	for _, key := range keys {
		next := make([]map[string]string, 0, len(combinations)*len(variables[key]))
		for _, combination := range combinations {
			for _, value := range variables[key] {
				merged := make(map[string]string, len(combination)+1)
				for k, v := range combination {
					merged[k] = v
				}
				merged[key] = value
				next = append(next, merged)
			}
		}
		combinations = next
	}

	return combinations
}

func (e *Environment) clone() *Environment {
	clone := &Environment{
		Name:         e.Name,
		Base:         e.Base,
		Description:  e.Description,
		SkipInstall:  e.SkipInstall,
		Dependencies: append([]project.Dependency(nil), e.Dependencies...),
		EnvVars:      make(map[string]string, len(e.EnvVars)),
		Scripts:      make(map[string][]string, len(e.Scripts)),
	}

	for key, value := range e.EnvVars {
		clone.EnvVars[key] = value
	}
	for name, cmds := range e.Scripts {
		clone.Scripts[name] = append([]string(nil), cmds...)
	}

	return clone
}
