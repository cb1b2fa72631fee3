// Package discover resolves the source files a run works on, either from
// explicit files, folders and glob patterns or from a Cargo manifest.
package discover

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Options filter discovered files.
type Options struct {
	// Extensions selects files inside folders, e.g. ".rs".
	Extensions []string
	// Exclude holds doublestar patterns matched against slash-separated
	// paths: relative to the folder for folder contents, as given for
	// files and glob matches.
	Exclude []string
}

// DefaultOptions selects Rust sources outside build output.
func DefaultOptions() Options {
	return Options{
		Extensions: []string{".rs"},
		Exclude:    []string{"**/target/**"},
	}
}

func (o Options) withDefaults() Options {
	if len(o.Extensions) == 0 {
		o.Extensions = DefaultOptions().Extensions
	}
	return o
}

// pattern returns the doublestar pattern selecting every file with one of
// the extensions below a folder.
func (o Options) pattern() string {
	if len(o.Extensions) == 1 {
		return "**/*" + o.Extensions[0]
	}
	return "**/*{" + strings.Join(o.Extensions, ",") + "}"
}

func (o Options) excluded(paths ...string) bool {
	for _, p := range paths {
		if p == "" {
			continue
		}
		p = filepath.ToSlash(p)
		for _, pattern := range o.Exclude {
			if ok, _ := doublestar.Match(pattern, p); ok {
				return true
			}
		}
	}
	return false
}

// Expand resolves paths to a sorted, deduplicated list of files. A file is
// taken as is, a folder expands to every file below it with one of the
// configured extensions and a glob pattern expands to its matches.
func Expand(paths []string, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	var files []string
	for _, p := range paths {
		found, err := expandOne(p, opts)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", p, err)
		}
		files = append(files, found...)
	}
	return dedupe(files), nil
}

func expandOne(p string, opts Options) ([]string, error) {
	if !containsGlob(p) {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return expandDir(p, opts)
		}
		if opts.excluded(p) {
			return nil, nil
		}
		return []string{filepath.Clean(p)}, nil
	}

	matches, err := doublestar.FilepathGlob(p)
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}
	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if info.IsDir() {
			found, err := expandDir(m, opts)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
			continue
		}
		if opts.excluded(m) || !opts.hasExtension(m) {
			continue
		}
		files = append(files, m)
	}
	return files, nil
}

// expandDir lists every file below dir with a configured extension.
func expandDir(dir string, opts Options) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), opts.pattern(), doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	files := make([]string, 0, len(matches))
	for _, rel := range matches {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		if opts.excluded(rel) {
			continue
		}
		files = append(files, full)
	}
	return files, nil
}

func (o Options) hasExtension(path string) bool {
	return slices.Contains(o.Extensions, filepath.Ext(path))
}

func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func dedupe(files []string) []string {
	for i, f := range files {
		files[i] = filepath.Clean(f)
	}
	slices.Sort(files)
	return slices.Compact(files)
}
