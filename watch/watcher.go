// Package watch re-runs a citation batch when sources or the bibliography
// change on disk.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
)

// ChangeFunc is called with the changed paths after each debounce window.
type ChangeFunc func(ctx context.Context, paths []string) error

// Config configures the watcher.
type Config struct {
	// Roots are directories watched recursively for source files.
	Roots []string

	// Files are single files outside the roots to watch, such as the
	// bibliography.
	Files []string

	// Extensions selects source files inside Roots.
	Extensions []string

	// DebounceDelay is how long to wait for more changes before running.
	DebounceDelay time.Duration

	Logger   *slog.Logger
	OnChange ChangeFunc
}

// Watcher turns file system events into debounced change batches. Files
// whose content hash matches the last recorded one are ignored, so the
// batch's own rewrites do not trigger another run.
type Watcher struct {
	config  Config
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	files   map[string]bool

	// Debouncing: collect changes before processing
	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op // path → most recent operation

	hashMu sync.RWMutex
	hashes map[string]uint64 // path → content hash
}

// New creates a watcher.
func New(config Config) (*Watcher, error) {
	if config.OnChange == nil {
		return nil, errors.New("watch: OnChange is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.DebounceDelay == 0 {
		config.DebounceDelay = 200 * time.Millisecond
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".rs"}
	}

	files := make(map[string]bool, len(config.Files))
	for _, f := range config.Files {
		if abs, err := filepath.Abs(f); err == nil {
			files[abs] = true
		}
	}

	return &Watcher{
		config:  config,
		watcher: fsw,
		logger:  logger,
		files:   files,
		pending: make(map[string]fsnotify.Op),
		hashes:  make(map[string]uint64),
	}, nil
}

// Snapshot records the current content hash of paths.
func (w *Watcher) Snapshot(paths []string) {
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if h, ok := hashFile(abs); ok {
			w.setHash(abs, h)
		}
	}
}

func (w *Watcher) setHash(path string, h uint64) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[path] = h
}

func (w *Watcher) hash(path string) (uint64, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	h, ok := w.hashes[path]
	return h, ok
}

func (w *Watcher) forget(path string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	delete(w.hashes, path)
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for _, root := range w.config.Roots {
		if err := w.addWatchesRecursive(root); err != nil {
			return err
		}
	}
	for f := range w.files {
		dir := filepath.Dir(f)
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("Failed to watch directory", "path", dir, "error", err)
		}
	}

	w.logger.Info("File watcher started",
		"roots", w.config.Roots,
		"files", len(w.files),
		"debounce", w.config.DebounceDelay)

	ticker := time.NewTicker(w.config.DebounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// addWatchesRecursive adds watches to every directory below root.
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}
		return nil
	})
}

// skipDir excludes hidden directories and cargo build output.
func skipDir(name string) bool {
	return name == "target" || strings.HasPrefix(name, ".")
}

// relevant reports whether a change to path should trigger a run.
func (w *Watcher) relevant(path string) bool {
	if w.files[path] {
		return true
	}
	if !slices.Contains(w.config.Extensions, filepath.Ext(path)) {
		return false
	}
	for _, root := range w.config.Roots {
		if abs, err := filepath.Abs(root); err == nil && within(abs, path) {
			return true
		}
	}
	return false
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	for _, part := range strings.Split(filepath.Dir(rel), string(filepath.Separator)) {
		if part != "." && skipDir(part) {
			return false
		}
	}
	return true
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
	}
	if !w.relevant(path) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] = event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("File change detected", "path", path, "op", event.Op.String())
}

func (w *Watcher) handleNewDirectory(path string) {
	if skipDir(filepath.Base(path)) {
		return
	}
	for _, root := range w.config.Roots {
		if abs, err := filepath.Abs(root); err == nil && within(abs, path) {
			if err := w.addWatchesRecursive(path); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
			}
			return
		}
	}
}

// flushPending runs OnChange for the pending paths whose content really
// changed, then re-hashes every known file so the run's own writes are
// not seen as changes.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	var changed []string
	for path := range toProcess {
		h, exists := hashFile(path)
		if !exists {
			w.forget(path)
			changed = append(changed, path)
			continue
		}
		if old, ok := w.hash(path); ok && old == h {
			continue
		}
		w.setHash(path, h)
		changed = append(changed, path)
	}
	if len(changed) == 0 {
		return
	}
	slices.Sort(changed)

	w.logger.Info("Changes detected", "count", len(changed))
	if err := w.config.OnChange(ctx, changed); err != nil {
		w.logger.Error("Run after change failed", "error", err)
	}
	w.rehash()
}

func (w *Watcher) rehash() {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	for path := range w.hashes {
		if h, ok := hashFile(path); ok {
			w.hashes[path] = h
		} else {
			delete(w.hashes, path)
		}
	}
}

func hashFile(path string) (uint64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(data), true
}
