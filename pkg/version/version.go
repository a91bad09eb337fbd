// Package version reads and updates the project version through a
// configurable source.
package version

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"

	"github.com/Godsmith/hatch/pkg/project"
)

// DefaultPattern matches assignments like `version = "1.2.3"` and
// `__version__ = '1.2.3'`. A custom pattern has to capture the version in a
// `version` group.
const DefaultPattern = `(?m)^(?:__)?version(?:__)?\s*=\s*['"](?P<version>[^'"]+)['"]`

// Source reads and writes the project version.
type Source interface {
	// Get returns the current version.
	Get() (string, error)
	// Set updates the version in place.
	Set(version string) error
}

// New returns the source selected by the project config.
func New(cfg *project.Config) (Source, error) {
	switch cfg.Version.Source {
	case "regex":
		pattern := cfg.Version.Pattern
		if pattern == "" {
			pattern = DefaultPattern
		}

		matcher, err := regexp.Compile(pattern)
		if err != nil {
			return nil, eris.Wrap(err, "invalid pattern in field `version.pattern`")
		}

		idx := -1
		for pos, name := range matcher.SubexpNames() {
			if name == "version" {
				idx = pos
			}
		}
		if idx == -1 {
			return nil, eris.New("pattern in field `version.pattern` must define a `version` group")
		}

		path := cfg.Version.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Root, path)
		}

		return &regexSource{path: path, matcher: matcher, group: idx}, nil
	case "config":
		return &configSource{cfg: cfg}, nil
	}

	return nil, eris.Errorf("unknown version source `%s` in field `version.source`", cfg.Version.Source)
}

// Bump computes the next version for a named segment or validates an
// explicitly requested version.
func Bump(current, desired string) (string, error) {
	parsed, err := semver.NewVersion(current)
	if err != nil {
		return "", eris.Wrapf(err, "current version %s is not valid", current)
	}

	var next semver.Version
	switch desired {
	case "major":
		next = parsed.IncMajor()
	case "minor":
		next = parsed.IncMinor()
	case "patch":
		next = parsed.IncPatch()
	default:
		requested, err := semver.NewVersion(desired)
		if err != nil {
			return "", eris.Wrapf(err, "%s is not a valid version", desired)
		}
		if !requested.GreaterThan(parsed) {
			return "", eris.Errorf("version %s is not higher than the current version %s", desired, current)
		}

		next = *requested
	}

	return next.String(), nil
}

// regexSource keeps the version inside an arbitrary file, located by a
// pattern with a version group.
type regexSource struct {
	path    string
	matcher *regexp.Regexp
	group   int
}

func (s *regexSource) Get() (string, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return "", eris.Wrapf(err, "failed to read version file %s", s.path)
	}

	match := s.matcher.FindSubmatch(content)
	if match == nil {
		return "", eris.Errorf("unable to find the version in %s", s.path)
	}

	return string(match[s.group]), nil
}

func (s *regexSource) Set(version string) error {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return eris.Wrapf(err, "failed to read version file %s", s.path)
	}

	loc := s.matcher.FindSubmatchIndex(content)
	if loc == nil {
		return eris.Errorf("unable to find the version in %s", s.path)
	}

	start, end := loc[2*s.group], loc[2*s.group+1]
	updated := append([]byte{}, content[:start]...)
	updated = append(updated, version...)
	updated = append(updated, content[end:]...)

	return os.WriteFile(s.path, updated, 0660)
}

// configSource uses the static project.version field of the config file and
// rewrites that line on set.
type configSource struct {
	cfg *project.Config
}

func (s *configSource) Get() (string, error) {
	if s.cfg.Project.Version == "" {
		return "", eris.New("field `project.version` is not set")
	}

	return s.cfg.Project.Version, nil
}

var (
	configTableLine   = regexp.MustCompile(`^\s*\[([^\]]+)\]`)
	configVersionLine = regexp.MustCompile(`^(\s*version\s*=\s*)"[^"]*"`)
)

func (s *configSource) Set(version string) error {
	content, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return eris.Wrapf(err, "failed to read %s", s.cfg.Path)
	}

	// Only the version key in the [project] table is ours. Other tables are
	// free to use the same key name.
	lines := strings.Split(string(content), "\n")
	table := ""
	replaced := false
	for idx, line := range lines {
		if match := configTableLine.FindStringSubmatch(line); match != nil {
			table = strings.TrimSpace(match[1])
			continue
		}

		if table != "project" || replaced {
			continue
		}

		if match := configVersionLine.FindStringSubmatch(line); match != nil {
			lines[idx] = match[1] + `"` + version + `"`
			replaced = true
		}
	}

	if !replaced {
		return eris.Errorf("unable to find field `project.version` in %s", s.cfg.Path)
	}

	err = os.WriteFile(s.cfg.Path, []byte(strings.Join(lines, "\n")), 0660)
	if err != nil {
		return err
	}

	s.cfg.Project.Version = strings.TrimSpace(version)
	return nil
}
