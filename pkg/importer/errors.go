package importer

import (
	"bufio"
	"errors"
	"fmt"
)

var (
	ErrNoInputFiles      = errors.New("importer: no input files")
	ErrNoOutput          = errors.New("importer: no output folder")
	ErrDatasetExists     = errors.New("importer: dataset folder already exists")
	ErrMissingCompanion  = errors.New("importer: missing companion file")
	ErrUnknownFormat     = errors.New("importer: unknown input format")
	ErrResourceExhausted = errors.New("importer: resource exhausted")
	ErrRunning           = errors.New("importer: a run is already in progress")

	// ErrCancelled stops the current run. It never reaches the caller.
	ErrCancelled = errors.New("importer: cancelled")
)

// FileError is a failure reading or writing one file
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

// fileError wraps err with its file and operation. Oversized input lines
// are reported as resource exhaustion. Cancellation passes through untouched.
func fileError(path, op string, err error) error {
	if err == nil || errors.Is(err, ErrCancelled) {
		return err
	}
	var fe *FileError
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, bufio.ErrTooLong) && !errors.Is(err, ErrResourceExhausted) {
		err = fmt.Errorf("%w: %w", ErrResourceExhausted, err)
	}
	return &FileError{Path: path, Op: op, Err: err}
}
