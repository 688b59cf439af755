// Package fileutil copies a live source file into a staging location.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"time"
)

type CopyResult struct {
	Size int64
	// SourceChanged is set when the source size or mtime moved while the
	// copy was running. The copy is still complete but may be torn.
	SourceChanged bool
}

// CopyToNew copies every byte readable from src into a newly created file
// at dst. dst must not exist. The source is neither locked nor quiesced.
// On error a partially written dst may remain and is left to the caller.
func CopyToNew(src *os.File, dst string) (CopyResult, error) {
	orig, err := src.Stat()
	if err != nil {
		return CopyResult{}, fmt.Errorf("failed to stat source: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, orig.Mode().Perm()|0o200)
	if err != nil {
		return CopyResult{}, fmt.Errorf("failed to create dest: %w", err)
	}

	n, err := io.Copy(out, src)
	if err != nil {
		_ = out.Close()
		return CopyResult{Size: n}, fmt.Errorf("failed to copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return CopyResult{Size: n}, fmt.Errorf("failed to sync dest: %w", err)
	}
	if err := out.Close(); err != nil {
		return CopyResult{Size: n}, fmt.Errorf("failed to close dest: %w", err)
	}

	if err := os.Chtimes(dst, time.Now(), orig.ModTime()); err != nil {
		return CopyResult{Size: n}, fmt.Errorf("failed to preserve mtime: %w", err)
	}

	res := CopyResult{Size: n}
	if now, err := os.Stat(src.Name()); err != nil || sourceChanged(orig, now) {
		res.SourceChanged = true
	}
	return res, nil
}

func sourceChanged(orig, now os.FileInfo) bool {
	if !os.SameFile(orig, now) {
		return true
	}
	if now.ModTime().After(orig.ModTime()) {
		return true
	}
	return now.Size() != orig.Size()
}
