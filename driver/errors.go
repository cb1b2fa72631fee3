package driver

import (
	"errors"
	"fmt"
	"strings"
)

// Operations recorded in FileError.
const (
	OpScan  = "scan"
	OpRead  = "read"
	OpCite  = "cite"
	OpWrite = "write"
)

// ErrNoRenderer is returned by New when Options.Render is nil.
var ErrNoRenderer = errors.New("driver needs a renderer")

// FileError is a failure on one file.
type FileError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// BatchError collects the per-file failures of a run that kept going.
type BatchError struct {
	Errs []*FileError
}

func (e *BatchError) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d files failed: %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Errs))
	for i, err := range e.Errs {
		errs[i] = err
	}
	return errs
}
