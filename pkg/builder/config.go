// Package builder assembles distributable archives from the project tree.
// File selection follows gitignore-style include/exclude/artifact patterns
// with per-target overrides falling back to the global build configuration.
package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/Godsmith/hatch/pkg/project"
)

// DefaultDirectory is where build artifacts land unless configured.
const DefaultDirectory = "dist"

// Config is the resolved build configuration for one target. Target options
// override the global [build] options key by key.
type Config struct {
	root   string
	target string

	global    map[string]interface{}
	targetCfg map[string]interface{}

	includePatterns  []string
	excludePatterns  []string
	artifactPatterns []string

	includeSpec  *ignore.GitIgnore
	excludeSpec  *ignore.GitIgnore
	artifactSpec *ignore.GitIgnore

	packages     []string
	sources      map[string]string
	sourceOrder  []string
	forceInclude map[string]string

	directory       string
	ignoreVCS       bool
	reproducible    bool
	onlyPackages    bool
	requireRuntime  bool
	hooks           []HookConfig
	targetVersions  []string

	// contributed by hooks for the duration of a build
	buildArtifactSpec *ignore.GitIgnore
	buildForceInclude map[string]string
}

// NewConfig resolves the raw [build] table for the given target.
func NewConfig(root, target string, build map[string]interface{}) (*Config, error) {
	cfg := &Config{
		root:              root,
		target:            target,
		global:            build,
		buildForceInclude: map[string]string{},
	}

	targets, err := tableOption(build, "targets", "build.targets")
	if err != nil {
		return nil, err
	}

	cfg.targetCfg, err = tableOption(targets, target, "build.targets."+target)
	if err != nil {
		return nil, err
	}

	steps := []func() error{
		cfg.resolvePackages,
		cfg.resolveDirectory,
		cfg.resolveFlags,
		cfg.resolveIncludes,
		cfg.resolveExcludes,
		cfg.resolveArtifacts,
		cfg.resolveSources,
		cfg.resolveForceInclude,
		cfg.resolveHooks,
		cfg.resolveVersions,
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Target returns the target name this config was resolved for.
func (c *Config) Target() string {
	return c.target
}

// Directory returns the absolute output directory.
func (c *Config) Directory() string {
	return c.directory
}

// Reproducible reports whether archives should be byte-stable.
func (c *Config) Reproducible() bool {
	return c.reproducible
}

// Packages returns the sorted package roots.
func (c *Config) Packages() []string {
	return c.packages
}

// Versions returns the versions selected for this target, validated against
// the known version API.
func (c *Config) Versions() []string {
	return c.targetVersions
}

// optionTable returns the config table an option should be read from, target
// table winning when it declares the key, plus the location for messages.
func (c *Config) optionTable(key string) (map[string]interface{}, string) {
	if _, ok := c.targetCfg[key]; ok {
		return c.targetCfg, fmt.Sprintf("build.targets.%s.%s", c.target, key)
	}

	return c.global, "build." + key
}

func (c *Config) resolvePackages() error {
	table, loc := c.optionTable("packages")
	packages, err := stringArrayOption(table, "packages", loc)
	if err != nil {
		return err
	}

	for idx, pkg := range packages {
		packages[idx] = normalizeRelativePath(pkg)
	}

	sort.Strings(packages)
	c.packages = packages
	return nil
}

func (c *Config) resolveDirectory() error {
	table, loc := c.optionTable("directory")
	directory, err := stringOption(table, "directory", loc, DefaultDirectory)
	if err != nil {
		return err
	}

	if !filepath.IsAbs(directory) {
		directory = filepath.Join(c.root, directory)
	}

	c.directory = filepath.Clean(directory)
	return nil
}

func (c *Config) resolveFlags() error {
	var err error

	table, loc := c.optionTable("ignore-vcs")
	c.ignoreVCS, err = boolOption(table, "ignore-vcs", loc, false)
	if err != nil {
		return err
	}

	table, loc = c.optionTable("reproducible")
	c.reproducible, err = boolOption(table, "reproducible", loc, true)
	if err != nil {
		return err
	}

	table, loc = c.optionTable("only-packages")
	c.onlyPackages, err = boolOption(table, "only-packages", loc, false)
	if err != nil {
		return err
	}

	table, loc = c.optionTable("require-runtime-dependencies")
	c.requireRuntime, err = boolOption(table, "require-runtime-dependencies", loc, false)
	if err != nil {
		return err
	}

	return nil
}

func (c *Config) resolveIncludes() error {
	table, loc := c.optionTable("include")
	patterns, err := stringArrayOption(table, "include", loc)
	if err != nil {
		return err
	}

	// Packages are implicitly included, anchored at the root.
	for _, pkg := range c.packages {
		patterns = append(patterns, "/"+filepath.ToSlash(pkg)+"/")
	}

	c.includePatterns = patterns
	if len(patterns) > 0 {
		c.includeSpec = ignore.CompileIgnoreLines(patterns...)
	}

	return nil
}

func (c *Config) resolveExcludes() error {
	table, loc := c.optionTable("exclude")
	patterns, err := stringArrayOption(table, "exclude", loc)
	if err != nil {
		return err
	}

	all := defaultGlobalExclude()
	all = append(all, patterns...)

	if !c.ignoreVCS {
		all = append(all, c.loadVCSIgnorePatterns()...)
	}

	c.excludePatterns = all
	if len(all) > 0 {
		c.excludeSpec = ignore.CompileIgnoreLines(all...)
	}

	return nil
}

func (c *Config) resolveArtifacts() error {
	table, loc := c.optionTable("artifacts")
	patterns, err := stringArrayOption(table, "artifacts", loc)
	if err != nil {
		return err
	}

	c.artifactPatterns = patterns
	if len(patterns) > 0 {
		c.artifactSpec = ignore.CompileIgnoreLines(patterns...)
	}

	return nil
}

// resolveSources accepts either an array of source prefixes to strip or a
// map of source prefixes to replacements.
func (c *Config) resolveSources() error {
	table, loc := c.optionTable("sources")
	c.sources = map[string]string{}

	value, ok := table["sources"]
	if ok {
		switch raw := value.(type) {
		case []interface{}:
			for idx, item := range raw {
				source, ok := item.(string)
				if !ok {
					return eris.Errorf("source #%d in field `%s` must be a string", idx+1, loc)
				}
				if source == "" {
					return eris.Errorf("source #%d in field `%s` cannot be an empty string", idx+1, loc)
				}

				c.sources[normalizeRelativeDirectory(source)] = ""
			}
		case map[string]interface{}:
			for source, item := range raw {
				if source == "" {
					return eris.Errorf("sources in field `%s` cannot be empty strings", loc)
				}

				path, ok := item.(string)
				if !ok {
					return eris.Errorf("path for source `%s` in field `%s` must be a string", source, loc)
				}

				normalized := normalizeRelativePath(path)
				if normalized != "" && normalized != "." {
					normalized += "/"
				} else {
					normalized = ""
				}

				c.sources[normalizeRelativeDirectory(source)] = normalized
			}
		default:
			return eris.Errorf("field `%s` must be a mapping or array of strings", loc)
		}
	}

	// Packages under a source directory map that directory away by default.
	for _, pkg := range c.packages {
		source := filepath.ToSlash(filepath.Dir(pkg))
		if source != "." {
			key := source + "/"
			if _, present := c.sources[key]; !present {
				c.sources[key] = ""
			}
		}
	}

	c.sourceOrder = make([]string, 0, len(c.sources))
	for source := range c.sources {
		c.sourceOrder = append(c.sourceOrder, source)
	}
	sort.Strings(c.sourceOrder)

	return nil
}

func (c *Config) resolveForceInclude() error {
	table, loc := c.optionTable("force-include")
	raw, err := tableOption(table, "force-include", loc)
	if err != nil {
		return err
	}

	c.forceInclude = map[string]string{}
	for source, item := range raw {
		if source == "" {
			return eris.Errorf("sources in field `%s` cannot be empty strings", loc)
		}

		relative, ok := item.(string)
		if !ok {
			return eris.Errorf("path for source `%s` in field `%s` must be a string", source, loc)
		}
		if relative == "" {
			return eris.Errorf("path for source `%s` in field `%s` cannot be an empty string", source, loc)
		}

		c.forceInclude[c.absoluteSource(source)] = normalizeRelativePath(relative)
	}

	return nil
}

func (c *Config) resolveVersions() error {
	versions, err := stringArrayOption(c.targetCfg, "versions", fmt.Sprintf("build.targets.%s.versions", c.target))
	if err != nil {
		return err
	}

	api := versionAPI(c.target)
	if len(versions) == 0 {
		c.targetVersions = defaultVersions(c.target)
		return nil
	}

	known := map[string]bool{}
	for _, version := range api {
		known[version] = true
	}

	unknown := []string{}
	seen := map[string]bool{}
	result := []string{}
	for _, version := range versions {
		if !known[version] {
			if !seen[version] {
				unknown = append(unknown, version)
			}
			seen[version] = true
			continue
		}
		if !seen[version] {
			result = append(result, version)
		}
		seen[version] = true
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return eris.Errorf(
			"unknown versions in field `build.targets.%s.versions`: %s",
			c.target, strings.Join(unknown, ", "),
		)
	}

	c.targetVersions = result
	return nil
}

// IncludePath decides whether a file belongs in the distribution.
func (c *Config) IncludePath(relativePath string, isPackage bool) bool {
	if c.PathIsBuildArtifact(relativePath) || c.PathIsArtifact(relativePath) {
		return true
	}

	if c.onlyPackages && !isPackage {
		return false
	}

	return c.PathIsIncluded(relativePath) && !c.PathIsExcluded(relativePath)
}

// PathIsIncluded reports whether the include patterns cover the path. No
// include patterns means everything is included.
func (c *Config) PathIsIncluded(relativePath string) bool {
	if c.includeSpec == nil {
		return true
	}

	return c.includeSpec.MatchesPath(relativePath)
}

func (c *Config) PathIsExcluded(relativePath string) bool {
	if c.excludeSpec == nil {
		return false
	}

	return c.excludeSpec.MatchesPath(relativePath)
}

func (c *Config) PathIsArtifact(relativePath string) bool {
	if c.artifactSpec == nil {
		return false
	}

	return c.artifactSpec.MatchesPath(relativePath)
}

func (c *Config) PathIsBuildArtifact(relativePath string) bool {
	if c.buildArtifactSpec == nil {
		return false
	}

	return c.buildArtifactSpec.MatchesPath(relativePath)
}

// PathIsPackage reports whether the path lives under one of the configured
// package roots.
func (c *Config) PathIsPackage(relativePath string) bool {
	slashed := filepath.ToSlash(relativePath)
	for _, pkg := range c.packages {
		prefix := filepath.ToSlash(pkg) + "/"
		if slashed == filepath.ToSlash(pkg) || strings.HasPrefix(slashed, prefix) {
			return true
		}
	}

	return false
}

// DistributionPath rewrites a relative path according to the sources
// mapping, e.g. src/foo/bar.go -> foo/bar.go.
func (c *Config) DistributionPath(relativePath string) string {
	slashed := filepath.ToSlash(relativePath)
	for _, source := range c.sourceOrder {
		if strings.HasPrefix(slashed, source) {
			return c.sources[source] + slashed[len(source):]
		}
	}

	return slashed
}

// ForceInclude returns the merged static and build-time force-include map.
// Build-time entries win.
func (c *Config) ForceInclude() map[string]string {
	merged := make(map[string]string, len(c.forceInclude)+len(c.buildForceInclude))
	for source, relative := range c.forceInclude {
		merged[source] = relative
	}
	for source, relative := range c.buildForceInclude {
		merged[source] = relative
	}

	return merged
}

// SetBuildData applies hook-contributed artifacts and force-include entries
// for the duration of a build.
func (c *Config) SetBuildData(data *BuildData) {
	if len(data.Artifacts) > 0 {
		c.buildArtifactSpec = ignore.CompileIgnoreLines(data.Artifacts...)
	}

	for source, relative := range data.ForceInclude {
		c.buildForceInclude[c.absoluteSource(source)] = normalizeRelativePath(relative)
	}
}

// ClearBuildData drops everything SetBuildData applied.
func (c *Config) ClearBuildData() {
	c.buildArtifactSpec = nil
	c.buildForceInclude = map[string]string{}
}

func (c *Config) absoluteSource(source string) string {
	if !filepath.IsAbs(source) {
		source = filepath.Join(c.root, source)
	}

	return filepath.Clean(source)
}

func (c *Config) loadVCSIgnorePatterns() []string {
	content, err := os.ReadFile(filepath.Join(c.root, ".gitignore"))
	if err != nil {
		return nil
	}

	return strings.Split(string(content), "\n")
}

func defaultGlobalExclude() []string {
	return []string{".git", project.StateDir, DefaultDirectory}
}

func normalizeRelativePath(path string) string {
	return filepath.ToSlash(filepath.Clean(strings.TrimPrefix(strings.TrimSpace(path), "/")))
}

func normalizeRelativeDirectory(path string) string {
	return normalizeRelativePath(path) + "/"
}

// * raw option accessors

func tableOption(raw map[string]interface{}, key, loc string) (map[string]interface{}, error) {
	value, ok := raw[key]
	if !ok {
		return map[string]interface{}{}, nil
	}

	table, ok := value.(map[string]interface{})
	if !ok {
		return nil, eris.Errorf("field `%s` must be a table", loc)
	}

	return table, nil
}

func stringOption(raw map[string]interface{}, key, loc, fallback string) (string, error) {
	value, ok := raw[key]
	if !ok {
		return fallback, nil
	}

	result, ok := value.(string)
	if !ok {
		return "", eris.Errorf("field `%s` must be a string", loc)
	}

	return result, nil
}

func boolOption(raw map[string]interface{}, key, loc string, fallback bool) (bool, error) {
	value, ok := raw[key]
	if !ok {
		return fallback, nil
	}

	result, ok := value.(bool)
	if !ok {
		return false, eris.Errorf("field `%s` must be a boolean", loc)
	}

	return result, nil
}

func stringArrayOption(raw map[string]interface{}, key, loc string) ([]string, error) {
	value, ok := raw[key]
	if !ok {
		return []string{}, nil
	}

	items, ok := value.([]interface{})
	if !ok {
		return nil, eris.Errorf("field `%s` must be an array of strings", loc)
	}

	result := make([]string, 0, len(items))
	for idx, item := range items {
		pattern, ok := item.(string)
		if !ok {
			return nil, eris.Errorf("pattern #%d in field `%s` must be a string", idx+1, loc)
		}
		if pattern == "" {
			return nil, eris.Errorf("pattern #%d in field `%s` cannot be an empty string", idx+1, loc)
		}

		result = append(result, pattern)
	}

	return result, nil
}
