package version

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Godsmith/hatch/pkg/project"
)

func TestBump(t *testing.T) {
	cases := []struct {
		current string
		desired string
		want    string
	}{
		{"1.2.3", "major", "2.0.0"},
		{"1.2.3", "minor", "1.3.0"},
		{"1.2.3", "patch", "1.2.4"},
		{"1.2.3", "2.0.0", "2.0.0"},
	}

	for _, tc := range cases {
		t.Run(tc.desired, func(t *testing.T) {
			got, err := Bump(tc.current, tc.desired)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBump_Errors(t *testing.T) {
	_, err := Bump("not-a-version", "patch")
	require.Error(t, err)

	_, err = Bump("1.2.3", "nonsense")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid version")

	_, err = Bump("1.2.3", "1.2.3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not higher than the current version")

	_, err = Bump("1.2.3", "1.0.0")
	require.Error(t, err)
}

func regexConfig(t *testing.T, content, pattern string) *project.Config {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "about.py"), []byte(content), 0660))

	doc := "[project]\nname = \"sample\"\n[version]\nsource = \"regex\"\npath = \"about.py\"\n"
	if pattern != "" {
		doc += "pattern = '" + pattern + "'\n"
	}

	cfg, err := project.Parse([]byte(doc), filepath.Join(root, "hatch.toml"), root)
	require.NoError(t, err)
	return cfg
}

func TestRegexSource_Roundtrip(t *testing.T) {
	cfg := regexConfig(t, "__version__ = '1.2.3'\n", "")

	source, err := New(cfg)
	require.NoError(t, err)

	current, err := source.Get()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", current)

	require.NoError(t, source.Set("2.0.0"))

	content, err := os.ReadFile(filepath.Join(cfg.Root, "about.py"))
	require.NoError(t, err)
	assert.Equal(t, "__version__ = '2.0.0'\n", string(content))

	current, err = source.Get()
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", current)
}

func TestRegexSource_MissingVersion(t *testing.T) {
	cfg := regexConfig(t, "nothing here\n", "")

	source, err := New(cfg)
	require.NoError(t, err)

	_, err = source.Get()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to find the version")
}

func TestRegexSource_PatternWithoutGroup(t *testing.T) {
	cfg := regexConfig(t, "v1\n", "v\\d+")

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must define a `version` group")
}

func TestConfigSource_Roundtrip(t *testing.T) {
	root := t.TempDir()
	doc := "[project]\nname = \"sample\"\nversion = \"0.1.0\"\n"
	path := filepath.Join(root, "hatch.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0660))

	cfg, err := project.Load(path)
	require.NoError(t, err)

	source, err := New(cfg)
	require.NoError(t, err)

	current, err := source.Get()
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", current)

	require.NoError(t, source.Set("0.2.0"))

	reloaded, err := project.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.2.0", reloaded.Project.Version)
}

func TestConfigSource_SetLeavesOtherVersionKeysAlone(t *testing.T) {
	root := t.TempDir()
	doc := "[project]\nname = \"sample\"\nversion = \"0.1.0\"\n\n" +
		"[envs.default.env-vars]\nversion = \"legacy\"\n"
	path := filepath.Join(root, "hatch.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0660))

	cfg, err := project.Load(path)
	require.NoError(t, err)

	source, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, source.Set("0.2.0"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "version = \"0.2.0\"")
	assert.Contains(t, string(content), "version = \"legacy\"")

	reloaded, err := project.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.2.0", reloaded.Project.Version)
	assert.Equal(t, "legacy", reloaded.Envs["default"].EnvVars["version"])
}

func TestConfigSource_SetWithoutProjectVersion(t *testing.T) {
	root := t.TempDir()
	doc := "[project]\nname = \"sample\"\n\n[envs.default.env-vars]\nversion = \"legacy\"\n"
	path := filepath.Join(root, "hatch.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0660))

	cfg, err := project.Load(path)
	require.NoError(t, err)

	source, err := New(cfg)
	require.NoError(t, err)

	err = source.Set("0.2.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to find field `project.version`")
}
