package usecase

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	_ "modernc.org/sqlite"

	"github.com/semmidev/sqlship/internal/adapter/sqlitecheck"
	"github.com/semmidev/sqlship/internal/domain"
	"github.com/semmidev/sqlship/internal/infrastructure/clock"
	"github.com/semmidev/sqlship/internal/infrastructure/logger"
)

type uploadCall struct {
	LocalPath string
	Bucket    string
	Key       string
	Content   []byte
	// StagedExisted records whether the staging file was present while
	// the upload was in progress.
	StagedExisted bool
}

type fakeUploader struct {
	mu    sync.Mutex
	calls []uploadCall
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, localPath, bucket, key string) error {
	content, readErr := os.ReadFile(localPath)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, uploadCall{
		LocalPath:     localPath,
		Bucket:        bucket,
		Key:           key,
		Content:       content,
		StagedExisted: readErr == nil,
	})
	return f.err
}

type failingVerifier struct{}

func (failingVerifier) Verify(ctx context.Context, path string) error {
	return errors.New("database disk image is malformed")
}

func listDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSnapshotter(t *testing.T) {
	Convey("Given a Snapshotter", t, func() {
		tempDir, err := os.MkdirTemp("", "snapshot_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		sourcePath := filepath.Join(tempDir, "app.db")
		stagingDir := filepath.Join(tempDir, "staging")
		content := []byte("SQLite format 3\x00 pretend pages")
		So(os.WriteFile(sourcePath, content, 0644), ShouldBeNil)

		triggeredAt := time.Date(2024, 3, 1, 13, 5, 9, 0, time.UTC)
		fake := clock.NewFake(triggeredAt)
		uploader := &fakeUploader{}
		uc := NewSnapshotter(uploader, "backups", logger.Nop(), WithClock(fake))
		ctx := context.Background()

		Convey("When the source file exists and the upload succeeds", func() {
			snap, err := uc.TakeSnapshot(ctx, sourcePath, stagingDir, "sqlite-backups")

			Convey("It should upload exactly once with a prefixed, timestamped key", func() {
				So(err, ShouldBeNil)
				So(len(uploader.calls), ShouldEqual, 1)

				call := uploader.calls[0]
				So(call.Bucket, ShouldEqual, "backups")
				So(call.Key, ShouldEqual, "sqlite-backups/backup-20240301-130509.db")
				So(call.Content, ShouldResemble, content)
				So(call.StagedExisted, ShouldBeTrue)
				So(filepath.Dir(call.LocalPath), ShouldEqual, stagingDir)
			})

			Convey("It should describe the snapshot", func() {
				So(snap.SourcePath, ShouldEqual, sourcePath)
				So(snap.CreatedAt, ShouldEqual, triggeredAt)
				So(snap.RemoteKey, ShouldEqual, "sqlite-backups/backup-20240301-130509.db")
				So(snap.StagingPath, ShouldEqual, filepath.Join(stagingDir, "backup-20240301-130509.db"))
				So(snap.Size, ShouldEqual, len(content))
			})

			Convey("It should leave no staging file behind", func() {
				So(listDir(stagingDir), ShouldBeEmpty)
			})
		})

		Convey("When the source file does not exist", func() {
			snap, err := uc.TakeSnapshot(ctx, filepath.Join(tempDir, "missing.db"), stagingDir, "sqlite-backups")

			Convey("It should report SourceMissing and do nothing else", func() {
				So(snap, ShouldBeNil)
				So(errors.Is(err, domain.ErrSourceMissing), ShouldBeTrue)
				So(len(uploader.calls), ShouldEqual, 0)

				_, statErr := os.Stat(stagingDir)
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})

		Convey("When the source path is a directory", func() {
			_, err := uc.TakeSnapshot(ctx, tempDir, stagingDir, "sqlite-backups")

			Convey("It should report SourceMissing", func() {
				So(errors.Is(err, domain.ErrSourceMissing), ShouldBeTrue)
				So(len(uploader.calls), ShouldEqual, 0)
			})
		})

		Convey("When the upload fails", func() {
			uploader.err = errors.New("connection refused")
			_, err := uc.TakeSnapshot(ctx, sourcePath, stagingDir, "sqlite-backups")

			Convey("It should report UploadFailed and still remove the staging file", func() {
				So(errors.Is(err, domain.ErrUploadFailed), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "connection refused")
				So(len(uploader.calls), ShouldEqual, 1)
				So(listDir(stagingDir), ShouldBeEmpty)
			})
		})

		Convey("When the staging location cannot be created", func() {
			blocker := filepath.Join(tempDir, "blocker")
			So(os.WriteFile(blocker, []byte("x"), 0644), ShouldBeNil)

			_, err := uc.TakeSnapshot(ctx, sourcePath, filepath.Join(blocker, "staging"), "sqlite-backups")

			Convey("It should report CopyFailed without uploading", func() {
				So(errors.Is(err, domain.ErrCopyFailed), ShouldBeTrue)
				So(len(uploader.calls), ShouldEqual, 0)
			})
		})

		Convey("When a file with the staging name already exists", func() {
			So(os.MkdirAll(stagingDir, 0o700), ShouldBeNil)
			existing := filepath.Join(stagingDir, "backup-20240301-130509.db")
			So(os.WriteFile(existing, []byte("someone else"), 0644), ShouldBeNil)

			_, err := uc.TakeSnapshot(ctx, sourcePath, stagingDir, "sqlite-backups")

			Convey("It should report CopyFailed and leave that file alone", func() {
				So(errors.Is(err, domain.ErrCopyFailed), ShouldBeTrue)
				So(len(uploader.calls), ShouldEqual, 0)

				got, err := os.ReadFile(existing)
				So(err, ShouldBeNil)
				So(string(got), ShouldEqual, "someone else")
			})
		})

		Convey("When the verifier rejects the copy", func() {
			uc := NewSnapshotter(uploader, "backups", logger.Nop(), WithClock(fake), WithVerifier(failingVerifier{}))
			_, err := uc.TakeSnapshot(ctx, sourcePath, stagingDir, "sqlite-backups")

			Convey("It should report CopyFailed, skip the upload and clean up", func() {
				So(errors.Is(err, domain.ErrCopyFailed), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "malformed")
				So(len(uploader.calls), ShouldEqual, 0)
				So(listDir(stagingDir), ShouldBeEmpty)
			})
		})

		Convey("When snapshotting a real SQLite database with verification", func() {
			dbPath := filepath.Join(tempDir, "live.db")
			db, err := sql.Open("sqlite", dbPath)
			So(err, ShouldBeNil)
			_, err = db.Exec(`CREATE TABLE events (id INTEGER PRIMARY KEY, name TEXT)`)
			So(err, ShouldBeNil)
			_, err = db.Exec(`INSERT INTO events(name) VALUES ('signup'), ('login')`)
			So(err, ShouldBeNil)
			So(db.Close(), ShouldBeNil)

			uc := NewSnapshotter(uploader, "backups", logger.Nop(), WithClock(fake), WithVerifier(sqlitecheck.New()))
			snap, err := uc.TakeSnapshot(ctx, dbPath, stagingDir, "/prod/")

			Convey("It should ship a verified copy and clean up every staging file", func() {
				So(err, ShouldBeNil)
				So(snap.RemoteKey, ShouldEqual, "prod/backup-20240301-130509.db")
				So(len(uploader.calls), ShouldEqual, 1)

				original, err := os.ReadFile(dbPath)
				So(err, ShouldBeNil)
				So(uploader.calls[0].Content, ShouldResemble, original)
				So(listDir(stagingDir), ShouldBeEmpty)
			})
		})

		Convey("When the upload keeps failing across several cycles", func() {
			uploader.err = errors.New("503 slow down")
			failures := 0
			for i := 0; i < 4; i++ {
				if _, err := uc.TakeSnapshot(ctx, sourcePath, stagingDir, "sqlite-backups"); errors.Is(err, domain.ErrUploadFailed) {
					failures++
				}
				fake.Advance(time.Hour)
			}

			Convey("Every cycle should fail on its own with nothing left on disk", func() {
				So(failures, ShouldEqual, 4)
				So(len(uploader.calls), ShouldEqual, 4)
				So(uploader.calls[3].Key, ShouldEqual, "sqlite-backups/backup-20240301-160509.db")
				So(listDir(stagingDir), ShouldBeEmpty)
			})
		})
	})
}

func TestRemoteKey(t *testing.T) {
	Convey("RemoteKey", t, func() {
		at := time.Date(2024, 12, 31, 23, 59, 58, 0, time.UTC)

		So(RemoteKey("sqlite-backups", at), ShouldEqual, "sqlite-backups/backup-20241231-235958.db")
		So(RemoteKey("a/b/", at), ShouldEqual, "a/b/backup-20241231-235958.db")
		So(RemoteKey("", at), ShouldEqual, "backup-20241231-235958.db")

		Convey("It should always use UTC", func() {
			local := at.In(time.FixedZone("UTC+2", 2*60*60))
			So(RemoteKey("p", local), ShouldEqual, "p/backup-20241231-235958.db")
		})
	})
}
