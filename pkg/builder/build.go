package builder

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/Godsmith/hatch/pkg/ctxlog"
	"github.com/Godsmith/hatch/pkg/project"
)

// Known build targets.
const (
	TargetSource = "source"
	TargetBinary = "binary"
)

// DefaultTargets is the build order when no target is requested.
var DefaultTargets = []string{TargetSource, TargetBinary}

func versionAPI(target string) []string {
	return []string{"standard"}
}

func defaultVersions(target string) []string {
	return []string{"standard"}
}

// Artifact describes one produced archive.
type Artifact struct {
	Path   string
	Target string
	Digest string
	Files  int
}

// Builder produces archives for a project.
type Builder struct {
	cfg     *project.Config
	version string
}

// New creates a builder for the given project and version.
func New(cfg *project.Config, version string) *Builder {
	return &Builder{cfg: cfg, version: version}
}

// Build produces the archive for one target.
func (b *Builder) Build(ctx context.Context, target string) (*Artifact, error) {
	if target != TargetSource && target != TargetBinary {
		return nil, eris.Errorf("unknown build target: %s", target)
	}

	cfg, err := NewConfig(b.cfg.Root, target, b.cfg.Build)
	if err != nil {
		return nil, err
	}

	data := NewBuildData()
	err = cfg.runHooks(ctx, b.version, data)
	if err != nil {
		return nil, eris.Wrapf(err, "build hooks failed for target %s", target)
	}

	cfg.SetBuildData(data)
	defer cfg.ClearBuildData()

	entries, err := b.selectFiles(cfg)
	if err != nil {
		return nil, err
	}

	forced, err := b.forcedFiles(cfg)
	if err != nil {
		return nil, err
	}
	entries = mergeEntries(entries, forced)

	if len(entries) == 0 {
		return nil, eris.Errorf("no files selected for target %s", target)
	}

	err = os.MkdirAll(cfg.Directory(), 0770)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", cfg.Directory())
	}

	dest, err := b.archivePath(cfg)
	if err != nil {
		return nil, err
	}

	ctxlog.From(ctx).Info().
		Str("target", target).
		Int("files", len(entries)).
		Msgf("writing %s", filepath.Base(dest))

	switch target {
	case TargetSource:
		compression, err := b.compression(cfg)
		if err != nil {
			return nil, err
		}

		err = writeTar(dest, entries, compression, cfg.Reproducible())
		if err != nil {
			return nil, err
		}
	case TargetBinary:
		err = writeZip(dest, entries, cfg.Reproducible())
		if err != nil {
			return nil, err
		}
	}

	digest, err := hashFile(dest)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Path:   dest,
		Target: target,
		Digest: digest,
		Files:  len(entries),
	}, nil
}

// Clean removes everything in the output directory of the target.
func (b *Builder) Clean(target string) error {
	cfg, err := NewConfig(b.cfg.Root, target, b.cfg.Build)
	if err != nil {
		return err
	}

	items, err := os.ReadDir(cfg.Directory())
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil
		}
		return eris.Wrapf(err, "failed to read %s", cfg.Directory())
	}

	for _, item := range items {
		err = os.RemoveAll(filepath.Join(cfg.Directory(), item.Name()))
		if err != nil {
			return eris.Wrapf(err, "failed to delete %s", item.Name())
		}
	}

	return nil
}

func (b *Builder) archivePath(cfg *Config) (string, error) {
	stem := fmt.Sprintf("%s-%s", b.cfg.Project.Name, b.version)

	switch cfg.Target() {
	case TargetSource:
		compression, err := b.compression(cfg)
		if err != nil {
			return "", err
		}

		return filepath.Join(cfg.Directory(), stem+".tar."+compression), nil
	case TargetBinary:
		return filepath.Join(cfg.Directory(), stem+".zip"), nil
	}

	return "", eris.Errorf("unknown build target: %s", cfg.Target())
}

func (b *Builder) compression(cfg *Config) (string, error) {
	table, loc := cfg.optionTable("compression")
	compression, err := stringOption(table, "compression", loc, "gz")
	if err != nil {
		return "", err
	}

	switch compression {
	case "gz", "xz", "br":
		return compression, nil
	}

	return "", eris.Errorf("field `%s` must be one of gz, xz and br", loc)
}

// selectFiles walks the project tree and applies the include rules.
func (b *Builder) selectFiles(cfg *Config) ([]entry, error) {
	entries := []entry{}

	err := filepath.WalkDir(b.cfg.Root, func(path string, item fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if item.IsDir() {
			if path == b.cfg.Root {
				return nil
			}
			if item.Name() == ".git" || item.Name() == project.StateDir {
				return filepath.SkipDir
			}
			if filepath.Clean(path) == cfg.Directory() {
				return filepath.SkipDir
			}
			return nil
		}

		if !item.Type().IsRegular() {
			return nil
		}

		relative, err := filepath.Rel(b.cfg.Root, path)
		if err != nil {
			return err
		}
		relative = filepath.ToSlash(relative)

		if relative == project.ConfigFile {
			// the config file always ships
			entries = append(entries, entry{Source: path, Dist: relative})
			return nil
		}

		if cfg.IncludePath(relative, cfg.PathIsPackage(relative)) {
			entries = append(entries, entry{Source: path, Dist: cfg.DistributionPath(relative)})
		}

		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to scan the project tree")
	}

	return entries, nil
}

// forcedFiles expands the force-include map. Directory sources are shipped
// recursively below their destination.
func (b *Builder) forcedFiles(cfg *Config) ([]entry, error) {
	entries := []entry{}

	for source, relative := range cfg.ForceInclude() {
		info, err := os.Stat(source)
		if err != nil {
			return nil, eris.Wrapf(err, "forced include not found: %s", source)
		}

		if !info.IsDir() {
			entries = append(entries, entry{Source: source, Dist: filepath.ToSlash(relative)})
			continue
		}

		err = filepath.WalkDir(source, func(path string, item fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !item.Type().IsRegular() {
				return nil
			}

			sub, err := filepath.Rel(source, path)
			if err != nil {
				return err
			}

			entries = append(entries, entry{
				Source: path,
				Dist:   filepath.ToSlash(filepath.Join(relative, sub)),
			})
			return nil
		})
		if err != nil {
			return nil, eris.Wrapf(err, "failed to scan forced include %s", source)
		}
	}

	return entries, nil
}

// mergeEntries combines selected and forced files. Forced entries win when
// both claim the same distribution path.
func mergeEntries(selected, forced []entry) []entry {
	index := map[string]int{}
	for idx, item := range selected {
		index[item.Dist] = idx
	}

	for _, item := range forced {
		if idx, ok := index[item.Dist]; ok {
			selected[idx] = item
		} else {
			index[item.Dist] = len(selected)
			selected = append(selected, item)
		}
	}

	return selected
}
