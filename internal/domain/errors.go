package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSourceMissing = errors.New("source file missing")
	ErrCopyFailed    = errors.New("copy failed")
	ErrUploadFailed  = errors.New("upload failed")
)

// SnapshotError reports why a snapshot cycle was abandoned. Kind is one of
// ErrSourceMissing, ErrCopyFailed or ErrUploadFailed.
type SnapshotError struct {
	Kind error
	Path string
	Err  error
}

func (e *SnapshotError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *SnapshotError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ErrorKind returns a short label for err, suitable for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSourceMissing):
		return "source_missing"
	case errors.Is(err, ErrCopyFailed):
		return "copy_failed"
	case errors.Is(err, ErrUploadFailed):
		return "upload_failed"
	default:
		return "error"
	}
}
