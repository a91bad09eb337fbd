package project

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"
)

// Metadata holds the static project information from the [project] table.
type Metadata struct {
	Name        string
	Description string
	Version     string
}

// Dependency is a single parsed dependency declaration. The constraint part
// is optional; when present it has to be a valid semver range.
type Dependency struct {
	Name       string
	Constraint string
}

func (d Dependency) String() string {
	if d.Constraint == "" {
		return d.Name
	}

	return d.Name + " " + d.Constraint
}

// ParseDependency splits a declaration like "ruff >=0.1" into name and
// constraint and validates the constraint.
func ParseDependency(spec, loc string) (Dependency, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Dependency{}, eris.Errorf("dependency in field `%s` cannot be an empty string", loc)
	}

	idx := strings.IndexAny(spec, " <>=!^~")
	if idx == -1 {
		return Dependency{Name: spec}, nil
	}

	dep := Dependency{
		Name:       strings.TrimSpace(spec[:idx]),
		Constraint: strings.TrimSpace(spec[idx:]),
	}

	if dep.Name == "" {
		return Dependency{}, eris.Errorf("dependency `%s` in field `%s` is missing a name", spec, loc)
	}

	_, err := semver.NewConstraint(dep.Constraint)
	if err != nil {
		return Dependency{}, eris.Wrapf(err, "invalid constraint `%s` for dependency `%s` in field `%s`", dep.Constraint, dep.Name, loc)
	}

	return dep, nil
}

// EnvConfig is the raw, per-environment configuration before inheritance and
// matrix expansion are applied.
type EnvConfig struct {
	// Template is nil when the option is absent, which means "inherit from
	// default". An explicit empty string or the environment's own name
	// detaches it.
	Template     *string
	Description  string
	SkipInstall  bool
	Dependencies []Dependency
	EnvVars      map[string]string
	Scripts      map[string][]string
	Matrix       []map[string][]string
}

// VersionConfig selects how the project version is read and written.
type VersionConfig struct {
	Source  string
	Path    string
	Pattern string
}

// PublishConfig describes the package index that build artifacts are
// uploaded to. Auth names the environment variable holding the credential.
type PublishConfig struct {
	URL  string
	User string
	Auth string
}

// Config is the parsed project configuration.
type Config struct {
	// Root is the directory containing the config file.
	Root string
	// Path is the config file itself.
	Path string

	Project Metadata
	Version VersionConfig
	Envs    map[string]EnvConfig
	Publish PublishConfig

	// Build keeps the raw [build] table. Option lookup with target fallback
	// happens in the builder package, which needs the untyped shape.
	Build map[string]interface{}

	digest string
}

// EnvNames returns the declared environment names in sorted order.
func (c *Config) EnvNames() []string {
	names := make([]string, 0, len(c.Envs))
	for name := range c.Envs {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

func parseConfig(raw map[string]interface{}, path, root string) (*Config, error) {
	cfg := &Config{
		Root: root,
		Path: path,
		Envs: map[string]EnvConfig{},
	}

	projTable, err := tableAt(raw, "project", "project")
	if err != nil {
		return nil, err
	}

	cfg.Project.Name, err = stringAt(projTable, "name", "project.name", "")
	if err != nil {
		return nil, err
	}
	if cfg.Project.Name == "" {
		return nil, eris.New("field `project.name` is required")
	}

	cfg.Project.Description, err = stringAt(projTable, "description", "project.description", "")
	if err != nil {
		return nil, err
	}

	cfg.Project.Version, err = stringAt(projTable, "version", "project.version", "")
	if err != nil {
		return nil, err
	}

	err = parseVersion(raw, cfg)
	if err != nil {
		return nil, err
	}

	err = parseEnvs(raw, cfg)
	if err != nil {
		return nil, err
	}

	cfg.Build, err = tableAt(raw, "build", "build")
	if err != nil {
		return nil, err
	}

	err = parsePublish(raw, cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseVersion(raw map[string]interface{}, cfg *Config) error {
	table, err := tableAt(raw, "version", "version")
	if err != nil {
		return err
	}

	cfg.Version.Source, err = stringAt(table, "source", "version.source", "")
	if err != nil {
		return err
	}

	cfg.Version.Path, err = stringAt(table, "path", "version.path", "")
	if err != nil {
		return err
	}

	cfg.Version.Pattern, err = stringAt(table, "pattern", "version.pattern", "")
	if err != nil {
		return err
	}

	if cfg.Version.Source == "" {
		if cfg.Version.Path != "" {
			cfg.Version.Source = "regex"
		} else {
			cfg.Version.Source = "config"
		}
	}

	switch cfg.Version.Source {
	case "regex":
		if cfg.Version.Path == "" {
			return eris.New("field `version.path` is required for the regex version source")
		}
	case "config":
	default:
		return eris.Errorf("unknown version source `%s` in field `version.source`", cfg.Version.Source)
	}

	return nil
}

func parseEnvs(raw map[string]interface{}, cfg *Config) error {
	envsTable, err := tableAt(raw, "envs", "envs")
	if err != nil {
		return err
	}

	for name, value := range envsTable {
		loc := "envs." + name
		table, ok := value.(map[string]interface{})
		if !ok {
			return eris.Errorf("field `%s` must be a table", loc)
		}

		env, err := parseEnv(table, loc)
		if err != nil {
			return err
		}

		cfg.Envs[name] = env
	}

	// The default environment always exists, even when the config never
	// mentions it, so that every other environment has something to inherit
	// from.
	if _, ok := cfg.Envs["default"]; !ok {
		cfg.Envs["default"] = EnvConfig{
			EnvVars: map[string]string{},
			Scripts: map[string][]string{},
		}
	}

	return nil
}

func parseEnv(table map[string]interface{}, loc string) (EnvConfig, error) {
	env := EnvConfig{}

	if value, ok := table["template"]; ok {
		template, ok := value.(string)
		if !ok {
			return env, eris.Errorf("field `%s.template` must be a string", loc)
		}

		env.Template = &template
	}

	var err error
	env.Description, err = stringAt(table, "description", loc+".description", "")
	if err != nil {
		return env, err
	}

	env.SkipInstall, err = boolAt(table, "skip-install", loc+".skip-install", false)
	if err != nil {
		return env, err
	}

	depSpecs, err := stringArrayAt(table, "dependencies", loc+".dependencies")
	if err != nil {
		return env, err
	}

	env.Dependencies = make([]Dependency, 0, len(depSpecs))
	for _, spec := range depSpecs {
		dep, err := ParseDependency(spec, loc+".dependencies")
		if err != nil {
			return env, err
		}

		env.Dependencies = append(env.Dependencies, dep)
	}

	env.EnvVars, err = stringMapAt(table, "env-vars", loc+".env-vars")
	if err != nil {
		return env, err
	}

	env.Scripts, err = parseScripts(table, loc)
	if err != nil {
		return env, err
	}

	env.Matrix, err = parseMatrix(table, loc)
	if err != nil {
		return env, err
	}

	return env, nil
}

// parseScripts accepts both shapes a script can be declared in: a single
// command string or an array of command strings.
func parseScripts(table map[string]interface{}, loc string) (map[string][]string, error) {
	scriptsTable, err := tableAt(table, "scripts", loc+".scripts")
	if err != nil {
		return nil, err
	}

	scripts := make(map[string][]string, len(scriptsTable))
	for name, value := range scriptsTable {
		scriptLoc := fmt.Sprintf("%s.scripts.%s", loc, name)

		switch value := value.(type) {
		case string:
			if value == "" {
				return nil, eris.Errorf("field `%s` cannot be an empty string", scriptLoc)
			}
			scripts[name] = []string{value}
		default:
			cmds, err := stringArray(value, scriptLoc)
			if err != nil {
				return nil, err
			}
			scripts[name] = cmds
		}
	}

	return scripts, nil
}

func parseMatrix(table map[string]interface{}, loc string) ([]map[string][]string, error) {
	entries, err := tableArrayAt(table, "matrix", loc+".matrix")
	if err != nil {
		return nil, err
	}

	matrix := make([]map[string][]string, 0, len(entries))
	for idx, entry := range entries {
		if len(entry) == 0 {
			return nil, eris.Errorf("entry #%d in field `%s.matrix` cannot be empty", idx+1, loc)
		}

		variables := make(map[string][]string, len(entry))
		for variable, value := range entry {
			varLoc := fmt.Sprintf("%s.matrix.%s", loc, variable)
			values, err := stringArray(value, varLoc)
			if err != nil {
				return nil, err
			}
			if len(values) == 0 {
				return nil, eris.Errorf("field `%s` cannot be empty", varLoc)
			}

			variables[variable] = values
		}

		matrix = append(matrix, variables)
	}

	return matrix, nil
}

func parsePublish(raw map[string]interface{}, cfg *Config) error {
	table, err := tableAt(raw, "publish", "publish")
	if err != nil {
		return err
	}

	index, err := tableAt(table, "index", "publish.index")
	if err != nil {
		return err
	}

	cfg.Publish.URL, err = stringAt(index, "url", "publish.index.url", "")
	if err != nil {
		return err
	}

	cfg.Publish.User, err = stringAt(index, "user", "publish.index.user", "__token__")
	if err != nil {
		return err
	}

	cfg.Publish.Auth, err = stringAt(index, "auth", "publish.index.auth", "HATCH_INDEX_AUTH")
	if err != nil {
		return err
	}

	return nil
}
