package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/semmidev/sqlship/internal/domain"
	"github.com/semmidev/sqlship/internal/infrastructure/clock"
	"github.com/semmidev/sqlship/internal/infrastructure/fileutil"
)

const timestampLayout = "20060102-150405"

// sidecars SQLite may leave next to a staged copy it has opened.
var stagingSidecars = []string{"-journal", "-wal", "-shm"}

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Verifier checks a staged copy before it is shipped.
type Verifier interface {
	Verify(ctx context.Context, path string) error
}

type SnapshotterOption func(*Snapshotter)

func WithClock(c clock.Clock) SnapshotterOption {
	return func(uc *Snapshotter) { uc.clock = c }
}

func WithVerifier(v Verifier) SnapshotterOption {
	return func(uc *Snapshotter) { uc.verifier = v }
}

type Snapshotter struct {
	uploader domain.Uploader
	bucket   string
	clock    clock.Clock
	verifier Verifier
	logger   Logger
}

func NewSnapshotter(uploader domain.Uploader, bucket string, logger Logger, opts ...SnapshotterOption) *Snapshotter {
	uc := &Snapshotter{
		uploader: uploader,
		bucket:   bucket,
		clock:    clock.System(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// RemoteKey returns {prefix}/backup-{timestamp}.db for a snapshot taken at t.
func RemoteKey(prefix string, t time.Time) string {
	return path.Join(strings.Trim(prefix, "/"), stagingName(t))
}

func stagingName(t time.Time) string {
	return "backup-" + t.UTC().Format(timestampLayout) + ".db"
}

// TakeSnapshot copies sourcePath into stagingDir and uploads the copy under
// remotePrefix. The staging file is removed once the upload has been
// attempted, whatever its outcome.
//
// The copy does not lock or quiesce the source. A database written to
// while it is being copied can yield a torn copy; that is logged and, when a
// verifier is configured, rejected as ErrCopyFailed.
func (uc *Snapshotter) TakeSnapshot(ctx context.Context, sourcePath, stagingDir, remotePrefix string) (*domain.Snapshot, error) {
	start := uc.clock.Now()

	src, err := openSource(sourcePath)
	if err != nil {
		uc.logger.Errorf("SQLite file not found: %s", sourcePath)
		return nil, &domain.SnapshotError{Kind: domain.ErrSourceMissing, Path: sourcePath, Err: err}
	}
	defer src.Close()

	snap := &domain.Snapshot{
		SourcePath:  sourcePath,
		CreatedAt:   start.UTC(),
		StagingPath: filepath.Join(stagingDir, stagingName(start)),
		Bucket:      uc.bucket,
		RemoteKey:   RemoteKey(remotePrefix, start),
	}

	if err := os.MkdirAll(stagingDir, 0o700); err != nil {
		return nil, &domain.SnapshotError{Kind: domain.ErrCopyFailed, Path: stagingDir, Err: err}
	}

	uc.logger.Infof("Creating SQLite snapshot from %s", sourcePath)
	res, err := fileutil.CopyToNew(src, snap.StagingPath)
	if errors.Is(err, fs.ErrExist) {
		// Not ours to remove.
		return nil, &domain.SnapshotError{Kind: domain.ErrCopyFailed, Path: snap.StagingPath, Err: err}
	}
	defer uc.cleanup(snap.StagingPath)
	if err != nil {
		return nil, &domain.SnapshotError{Kind: domain.ErrCopyFailed, Path: snap.StagingPath, Err: err}
	}
	snap.Size = res.Size

	if res.SourceChanged {
		uc.logger.Warnf("Source %s changed while it was being copied; snapshot %s may be inconsistent",
			sourcePath, filepath.Base(snap.StagingPath))
	}

	if uc.verifier != nil {
		if err := uc.verifier.Verify(ctx, snap.StagingPath); err != nil {
			return nil, &domain.SnapshotError{
				Kind: domain.ErrCopyFailed,
				Path: snap.StagingPath,
				Err:  fmt.Errorf("verify: %w", err),
			}
		}
	}

	uc.logger.Infof("Uploading to s3://%s/%s", snap.Bucket, snap.RemoteKey)
	if err := uc.uploader.Upload(ctx, snap.StagingPath, snap.Bucket, snap.RemoteKey); err != nil {
		return nil, &domain.SnapshotError{Kind: domain.ErrUploadFailed, Path: snap.RemoteKey, Err: err}
	}

	uc.logger.Infof("Backup completed in %s, size: %.2f MB",
		uc.clock.Now().Sub(start).Round(time.Millisecond), float64(snap.Size)/(1024*1024))

	return snap, nil
}

func openSource(sourcePath string) (*os.File, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("not a regular file")
	}

	return f, nil
}

func (uc *Snapshotter) cleanup(stagingPath string) {
	for _, p := range append([]string{stagingPath}, sidecarPaths(stagingPath)...) {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			uc.logger.Warnf("Failed to remove staging file %s: %v", p, err)
		}
	}
}

func sidecarPaths(stagingPath string) []string {
	paths := make([]string, 0, len(stagingSidecars))
	for _, suffix := range stagingSidecars {
		paths = append(paths, stagingPath+suffix)
	}
	return paths
}
