// Package project locates and parses the hatch.toml project configuration.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/rotisserie/eris"
)

// ConfigFile is the name of the project configuration file.
const ConfigFile = "hatch.toml"

// StateDir is the per-project directory for caches, locks and workflow runs.
const StateDir = ".hatch"

// FindRoot walks up from dir until it finds a directory containing the
// project configuration file.
func FindRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		cfgPath := filepath.Join(dir, ConfigFile)
		_, err := os.Stat(cfgPath)
		if err == nil {
			return dir, nil
		}

		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "failed to check %s", cfgPath)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", eris.Errorf("no %s found", ConfigFile)
}

// Load parses the configuration file at the given path.
func Load(path string) (*Config, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "could not open file %s", path)
	}

	return Parse(content, path, filepath.Dir(path))
}

// LoadDir locates the configuration starting at dir and parses it.
func LoadDir(dir string) (*Config, error) {
	root, err := FindRoot(dir)
	if err != nil {
		return nil, err
	}

	return Load(filepath.Join(root, ConfigFile))
}

// Parse decodes and validates a configuration document. The path is only
// used for error messages and the Path field.
func Parse(content []byte, path, root string) (*Config, error) {
	var raw map[string]interface{}
	err := toml.Unmarshal(content, &raw)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}

	cfg, err := parseConfig(raw, path, root)
	if err != nil {
		return nil, err
	}

	cfg.digest = digest(content)
	return cfg, nil
}

// Digest returns a hex digest of the raw config contents. The environment
// cache uses it to detect a modified config.
func (c *Config) Digest() string {
	return c.digest
}

func digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
