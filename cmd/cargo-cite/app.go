package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/cargo-cite/bibliography"
	"github.com/c360studio/cargo-cite/citation"
	"github.com/c360studio/cargo-cite/config"
	"github.com/c360studio/cargo-cite/discover"
	"github.com/c360studio/cargo-cite/driver"
	"github.com/c360studio/cargo-cite/style"
	"github.com/c360studio/cargo-cite/watch"
)

// errCheckFailed is returned by --check when a file would change.
var errCheckFailed = errors.New("citations out of date")

// app is one configured invocation: the merged config, the loaded
// bibliography and style, and where to report.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	check   bool
	lib     *bibliography.Library
	style   *style.Style
	metrics *driver.Metrics
}

// newApp loads configuration, the style and the bibliography before any
// file is touched, so those failures never leave a batch half written.
func newApp(cmd *cobra.Command, f *flags) (*app, error) {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, f.verbose, f.quiet)
	slog.SetDefault(logger)

	if cfg.Bibliography == "" {
		return nil, fmt.Errorf("no bibliography: pass --bib or set bibliography in %s", config.ProjectConfigFile)
	}
	st, err := style.Load(cfg.Style)
	if err != nil {
		return nil, err
	}
	lib, err := bibliography.Load(cfg.Bibliography)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded bibliography", "path", cfg.Bibliography, "entries", lib.Len(), "style", st.Name)

	a := &app{
		cfg:    cfg,
		logger: logger,
		out:    cmd.OutOrStdout(),
		check:  f.check,
		lib:    lib,
		style:  st,
	}
	if cfg.MetricsFile != "" {
		a.metrics = driver.NewMetrics()
	}
	return a, nil
}

// loadConfig layers command-line flags over the config files. Boolean
// flags only override the files when given on the command line.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.NewLoader(nil).Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var keepGoing *bool
	if fl := cmd.Flags().Lookup("keep-going"); fl != nil && fl.Changed {
		keepGoing = &f.keepGoing
	}
	cfg.Merge(&config.Config{
		Bibliography: f.bibliography,
		Style:        f.style,
		Manifest:     f.manifest,
		Files:        f.files,
		Exclude:      f.exclude,
		KeepGoing:    keepGoing,
		Workers:      f.workers,
		MetricsFile:  f.metricsFile,
	})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger maps the configured level and the verbosity flags onto a
// text handler. Quiet discards everything; errors still reach the exit
// message.
func newLogger(w io.Writer, level string, verbose, quiet bool) *slog.Logger {
	if quiet {
		return slog.New(slog.DiscardHandler)
	}
	lvl := slog.LevelWarn
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	}
	if verbose && lvl > slog.LevelInfo {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func (a *app) discoverOptions() discover.Options {
	return discover.Options{Extensions: a.cfg.Extensions, Exclude: a.cfg.Exclude}
}

func (a *app) manifestPath() string {
	if a.cfg.Manifest != "" {
		return a.cfg.Manifest
	}
	return discover.ManifestName
}

// sources lists the files of this invocation: the --file selection when
// given, otherwise every target of the manifest.
func (a *app) sources() ([]string, error) {
	if len(a.cfg.Files) > 0 {
		return discover.Expand(a.cfg.Files, a.discoverOptions())
	}
	return discover.Manifest(a.manifestPath(), a.discoverOptions())
}

func (a *app) render(keys citation.KeySet) (citation.Map, []style.Diagnostic) {
	return style.Render(keys, a.lib, a.style)
}

func (a *app) newDriver() (*driver.Driver, error) {
	return driver.New(driver.Options{
		Render:    a.render,
		Workers:   a.cfg.Workers,
		KeepGoing: a.cfg.ShouldKeepGoing(),
		DryRun:    a.check,
		Logger:    a.logger,
		Metrics:   a.metrics,
	})
}

func (a *app) runBatch(ctx context.Context, files []string) (*driver.Summary, error) {
	d, err := a.newDriver()
	if err != nil {
		return nil, err
	}
	summary, err := d.Run(ctx, files)
	if a.metrics != nil {
		if werr := a.metrics.WriteTextfile(a.cfg.MetricsFile); werr != nil {
			a.logger.Warn("Failed to write metrics", "path", a.cfg.MetricsFile, "error", werr)
		}
	}
	a.logger.Info("Run finished", "run_id", summary.RunID, "summary", summary.String())
	return summary, err
}

// cite runs one batch. In check mode the files that would change are
// printed and errCheckFailed is returned.
func (a *app) cite(ctx context.Context) error {
	files, err := a.sources()
	if err != nil {
		return err
	}
	summary, err := a.runBatch(ctx, files)
	if err != nil {
		return err
	}
	if a.check && len(summary.Changed) > 0 {
		for _, p := range summary.Changed {
			fmt.Fprintln(a.out, p)
		}
		return fmt.Errorf("%w: %d of %d files would change", errCheckFailed, len(summary.Changed), summary.Scanned)
	}
	return nil
}

// keys prints the union of cited keys, marking those the bibliography
// lacks.
func (a *app) keys(ctx context.Context) error {
	files, err := a.sources()
	if err != nil {
		return err
	}
	d, err := a.newDriver()
	if err != nil {
		return err
	}
	keys, err := d.Scan(ctx, files)
	if keys == nil {
		return err
	}
	for _, k := range keys.Sorted() {
		if _, ok := a.lib.Get(k); ok {
			fmt.Fprintln(a.out, k)
		} else {
			fmt.Fprintf(a.out, "%s\t(missing)\n", k)
		}
	}
	return err
}

// watch runs once, then again after every debounced change to a source
// file, the manifest or the bibliography. Failed runs are logged and the
// watch continues.
func (a *app) watch(ctx context.Context) error {
	files, err := a.sources()
	if err != nil {
		return err
	}
	if _, err := a.runBatch(ctx, files); err != nil {
		a.logger.Error("Citation run failed", "error", err)
	}

	single := []string{a.cfg.Bibliography}
	var roots []string
	if len(a.cfg.Files) > 0 {
		roots = watchRoots(a.cfg.Files, files)
	} else {
		single = append(single, a.manifestPath())
		roots = []string{filepath.Dir(a.manifestPath())}
	}

	w, err := watch.New(watch.Config{
		Roots:         roots,
		Files:         single,
		Extensions:    a.cfg.Extensions,
		DebounceDelay: a.cfg.Watch.Debounce,
		Logger:        a.logger,
		OnChange:      a.onChange,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.Snapshot(append(slices.Clone(files), single...))
	return w.Run(ctx)
}

func (a *app) onChange(ctx context.Context, paths []string) error {
	bib, err := filepath.Abs(a.cfg.Bibliography)
	if err != nil {
		return err
	}
	if slices.Contains(paths, bib) {
		lib, err := bibliography.Load(a.cfg.Bibliography)
		if err != nil {
			return fmt.Errorf("reload bibliography: %w", err)
		}
		a.lib = lib
		a.logger.Info("Reloaded bibliography", "entries", lib.Len())
	}

	files, err := a.sources()
	if err != nil {
		return err
	}
	_, err = a.runBatch(ctx, files)
	return err
}

// watchRoots returns the directories to watch for a --file selection:
// selected folders, and the directories of selected files and glob
// matches. Directories inside another root are dropped.
func watchRoots(selection, files []string) []string {
	var dirs []string
	for _, p := range selection {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			dirs = append(dirs, filepath.Clean(p))
		}
	}
	for _, f := range files {
		dirs = append(dirs, filepath.Dir(f))
	}
	for i, d := range dirs {
		if abs, err := filepath.Abs(d); err == nil {
			dirs[i] = abs
		}
	}
	slices.Sort(dirs)
	dirs = slices.Compact(dirs)

	var roots []string
	for _, d := range dirs {
		if slices.ContainsFunc(roots, func(r string) bool { return isWithin(r, d) }) {
			continue
		}
		roots = append(roots, d)
	}
	return roots
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
