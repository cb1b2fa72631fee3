package discover

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
)

// ManifestName is the file name of a Cargo manifest.
const ManifestName = "Cargo.toml"

// Target kinds.
const (
	KindLib     = "lib"
	KindBin     = "bin"
	KindExample = "example"
	KindTest    = "test"
	KindBench   = "bench"
)

// Target is one compilation target of a package.
type Target struct {
	Kind string
	Name string
	// Path is the target's root source file.
	Path string
}

type cargoTarget struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

type cargoManifest struct {
	Package *struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Lib       *cargoTarget  `toml:"lib"`
	Bin       []cargoTarget `toml:"bin"`
	Example   []cargoTarget `toml:"example"`
	Test      []cargoTarget `toml:"test"`
	Bench     []cargoTarget `toml:"bench"`
	Workspace *struct {
		Members []string `toml:"members"`
		Exclude []string `toml:"exclude"`
	} `toml:"workspace"`
}

// Targets lists the targets declared by, or conventionally laid out for,
// the manifest at path. Workspace members are followed recursively.
func Targets(path string) ([]Target, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	var targets []Target
	if err := collectTargets(abs, make(map[string]bool), &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

func collectTargets(path string, visited map[string]bool, out *[]Target) error {
	if visited[path] {
		return nil
	}
	visited[path] = true

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse manifest %s: %w", path, err)
	}
	root := filepath.Dir(path)

	if m.Package != nil {
		targets, err := packageTargets(root, &m)
		if err != nil {
			return fmt.Errorf("manifest %s: %w", path, err)
		}
		*out = append(*out, targets...)
	}

	if m.Workspace == nil {
		return nil
	}
	excluded := make(map[string]bool)
	for _, pattern := range m.Workspace.Exclude {
		dirs, _ := doublestar.FilepathGlob(filepath.Join(root, pattern))
		for _, d := range dirs {
			excluded[filepath.Clean(d)] = true
		}
	}
	for _, pattern := range m.Workspace.Members {
		dirs, err := doublestar.FilepathGlob(filepath.Join(root, pattern))
		if err != nil {
			return fmt.Errorf("workspace member %q: %w", pattern, err)
		}
		for _, dir := range dirs {
			if excluded[filepath.Clean(dir)] {
				continue
			}
			member := filepath.Join(dir, ManifestName)
			if _, err := os.Stat(member); err != nil {
				continue
			}
			if err := collectTargets(member, visited, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func packageTargets(root string, m *cargoManifest) ([]Target, error) {
	var targets []Target
	seen := make(map[string]bool)
	add := func(kind, name, rel string, explicit bool) error {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if _, err := os.Stat(p); err != nil {
			if explicit {
				return fmt.Errorf("%s target %q: %w", kind, name, err)
			}
			return nil
		}
		if seen[p] {
			return nil
		}
		seen[p] = true
		targets = append(targets, Target{Kind: kind, Name: name, Path: p})
		return nil
	}
	pkg := m.Package.Name

	// Library.
	if m.Lib != nil && m.Lib.Path != "" {
		if err := add(KindLib, orName(m.Lib.Name, pkg), m.Lib.Path, true); err != nil {
			return nil, err
		}
	} else if err := add(KindLib, pkg, "src/lib.rs", m.Lib != nil); err != nil {
		return nil, err
	}

	// Declared targets.
	declared := []struct {
		kind    string
		dir     string
		targets []cargoTarget
	}{
		{KindBin, "src/bin", m.Bin},
		{KindExample, "examples", m.Example},
		{KindTest, "tests", m.Test},
		{KindBench, "benches", m.Bench},
	}
	for _, d := range declared {
		for _, t := range d.targets {
			rel := t.Path
			if rel == "" {
				rel = d.dir + "/" + t.Name + ".rs"
				if d.kind == KindBin && t.Name == pkg {
					rel = "src/main.rs"
				}
			}
			if err := add(d.kind, t.Name, rel, true); err != nil {
				return nil, err
			}
		}
	}

	// Conventional layout.
	if err := add(KindBin, pkg, "src/main.rs", false); err != nil {
		return nil, err
	}
	for _, d := range declared {
		for _, rel := range conventional(root, d.dir) {
			name := filepath.Base(rel)
			if filepath.Ext(name) == ".rs" {
				name = name[:len(name)-len(".rs")]
			} else {
				name = filepath.Base(filepath.Dir(rel))
			}
			if err := add(d.kind, name, rel, false); err != nil {
				return nil, err
			}
		}
	}
	return targets, nil
}

// conventional returns dir/*.rs and dir/*/main.rs relative to root.
func conventional(root, dir string) []string {
	fsys := os.DirFS(root)
	var out []string
	for _, pattern := range []string{dir + "/*.rs", dir + "/*/main.rs"} {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			continue
		}
		out = append(out, matches...)
	}
	slices.Sort(out)
	return out
}

func orName(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

// TargetFiles lists every source file below the directory of the target's
// root file.
func TargetFiles(t Target, opts Options) ([]string, error) {
	files, err := expandDir(filepath.Dir(t.Path), opts.withDefaults())
	if err != nil {
		return nil, fmt.Errorf("%s target %q: %w", t.Kind, t.Name, err)
	}
	return dedupe(files), nil
}

// ErrNoTargets is returned when a manifest yields no targets.
var ErrNoTargets = errors.New("manifest has no targets")

// Manifest returns the source files of every target of the manifest at
// path, sorted and deduplicated.
func Manifest(path string, opts Options) ([]string, error) {
	targets, err := Targets(path)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTargets, path)
	}
	var files []string
	for _, t := range targets {
		found, err := TargetFiles(t, opts)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return dedupe(files), nil
}
