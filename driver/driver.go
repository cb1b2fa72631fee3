// Package driver runs a citation batch over many files: every file is
// scanned for keys, the union is rendered once, and the result is applied
// to each file that cites anything.
package driver

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/cargo-cite/citation"
	"github.com/c360studio/cargo-cite/document"
	"github.com/c360studio/cargo-cite/style"
)

// Renderer turns the batch's keys into footnote text. It is called at
// most once per run.
type Renderer func(keys citation.KeySet) (citation.Map, []style.Diagnostic)

// Options configure a Driver.
type Options struct {
	Render Renderer
	// Workers bounds concurrent file work; zero means GOMAXPROCS.
	Workers int
	// KeepGoing continues past failed files and reports them together.
	KeepGoing bool
	// DryRun computes changes without writing any file.
	DryRun  bool
	Logger  *slog.Logger
	Metrics *Metrics
}

// Driver coordinates batch runs.
type Driver struct {
	opts   Options
	logger *slog.Logger
}

// Summary describes one run.
type Summary struct {
	RunID   string
	Scanned int
	// Cited counts files that referenced at least one key.
	Cited int
	// Changed lists files rewritten, or that would be in a dry run.
	Changed   []string
	Unchanged int
	Failed    int
	// Keys is the size of the key union handed to the renderer.
	Keys        int
	Missing     []citation.Key
	Diagnostics []style.Diagnostic
	Duration    time.Duration
}

// New creates a driver.
func New(opts Options) (*Driver, error) {
	if opts.Render == nil {
		return nil, ErrNoRenderer
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{opts: opts, logger: logger}, nil
}

// scanned is the per-file result of the scan phase.
type scanned struct {
	path string
	data []byte
	keys []citation.Key
}

// run holds the state shared by the goroutines of one batch.
type run struct {
	logger *slog.Logger

	mu      sync.Mutex
	summary *Summary
	failed  []*FileError
}

func (r *run) fail(err *FileError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, err)
	r.summary.Failed++
	r.logger.Error("File failed", "path", err.Path, "op", err.Op, "error", err.Err)
}

// Run processes files. Without KeepGoing the first file error aborts the
// run and is returned; with it, every other file is still processed and
// the failures come back as a *BatchError next to the summary.
func (d *Driver) Run(ctx context.Context, files []string) (*Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	r := &run{
		logger:  d.logger.With("run_id", runID),
		summary: &Summary{RunID: runID},
	}
	r.logger.Info("Starting citation run", "files", len(files), "dry_run", d.opts.DryRun)

	results, err := d.scan(ctx, r, files)
	if err != nil {
		return d.finish(r, start), err
	}

	union := citation.NewKeySet()
	for _, res := range results {
		if res == nil {
			continue
		}
		r.summary.Scanned++
		for _, k := range res.keys {
			union.Add(k)
		}
	}
	r.summary.Keys = union.Len()

	if union.Len() == 0 {
		r.logger.Info("No citation keys found")
		return d.finish(r, start), d.batchError(r)
	}

	citations, diags := d.opts.Render(union)
	r.summary.Diagnostics = diags
	for _, diag := range diags {
		r.logger.Warn("Citation not rendered", "key", diag.Key, "reason", diag.Message)
		if _, ok := citations[diag.Key]; !ok {
			r.summary.Missing = append(r.summary.Missing, diag.Key)
		}
	}

	if err := d.apply(ctx, r, results, citations); err != nil {
		return d.finish(r, start), err
	}
	return d.finish(r, start), d.batchError(r)
}

// Scan returns the union of the keys cited by files without rendering or
// writing anything.
func (d *Driver) Scan(ctx context.Context, files []string) (citation.KeySet, error) {
	r := &run{logger: d.logger, summary: &Summary{}}
	results, err := d.scan(ctx, r, files)
	if err != nil {
		return nil, err
	}
	union := citation.NewKeySet()
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, k := range res.keys {
			union.Add(k)
		}
	}
	return union, d.batchError(r)
}

// scan reads every file and extracts its keys. A nil entry in the result
// marks a file that failed in keep-going mode.
func (d *Driver) scan(ctx context.Context, r *run, files []string) ([]*scanned, error) {
	results := make([]*scanned, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)

	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return d.fileError(r, &FileError{Path: path, Op: OpScan, Err: err})
			}
			keys := citation.Scan(string(data))
			if len(keys) > 0 {
				r.logger.Info("Found keys", "path", path, "count", len(keys))
			}
			results[i] = &scanned{path: path, data: data, keys: keys}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// apply cites every file that referenced a key.
func (d *Driver) apply(ctx context.Context, r *run, results []*scanned, citations citation.Map) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)

	for _, res := range results {
		if res == nil {
			continue
		}
		if len(res.keys) == 0 {
			r.mu.Lock()
			r.summary.Unchanged++
			r.mu.Unlock()
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return d.citeFile(r, res, citations)
		})
	}
	return g.Wait()
}

func (d *Driver) citeFile(r *run, res *scanned, citations citation.Map) error {
	r.logger.Info("Citing file", "path", res.path)

	doc, err := document.Open(res.path)
	if err != nil {
		return d.fileError(r, &FileError{Path: res.path, Op: OpRead, Err: err})
	}
	if err := doc.Cite(citations); err != nil {
		return d.fileError(r, &FileError{Path: res.path, Op: OpCite, Err: err})
	}

	changed := !bytes.Equal(doc.Bytes(), res.data)
	if changed && !d.opts.DryRun {
		if err := doc.Save(); err != nil {
			return d.fileError(r, &FileError{Path: res.path, Op: OpWrite, Err: err})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Cited++
	if changed {
		r.summary.Changed = append(r.summary.Changed, res.path)
	} else {
		r.summary.Unchanged++
	}
	return nil
}

// fileError records err and decides whether it stops the run.
func (d *Driver) fileError(r *run, err *FileError) error {
	r.fail(err)
	if d.opts.KeepGoing {
		return nil
	}
	return err
}

func (d *Driver) batchError(r *run) error {
	if len(r.failed) == 0 {
		return nil
	}
	slices.SortFunc(r.failed, func(a, b *FileError) int { return cmp.Compare(a.Path, b.Path) })
	return &BatchError{Errs: r.failed}
}

func (d *Driver) finish(r *run, start time.Time) *Summary {
	s := r.summary
	slices.Sort(s.Changed)
	s.Duration = time.Since(start)
	if d.opts.Metrics != nil {
		d.opts.Metrics.observe(s)
	}
	r.logger.Info("Citation run complete",
		"scanned", s.Scanned,
		"cited", s.Cited,
		"changed", len(s.Changed),
		"failed", s.Failed,
		"keys", s.Keys,
		"missing", len(s.Missing),
		"duration", s.Duration)
	return s
}

// IsFileError reports whether err carries a per-file failure.
func IsFileError(err error) bool {
	var fe *FileError
	return errors.As(err, &fe)
}

func (s *Summary) String() string {
	return fmt.Sprintf("%d scanned, %d cited, %d changed, %d failed, %d keys (%d missing)",
		s.Scanned, s.Cited, len(s.Changed), s.Failed, s.Keys, len(s.Missing))
}
