package domain

import "time"

// Snapshot is a single copy-then-upload cycle of the source database.
// It only exists for the duration of that cycle.
type Snapshot struct {
	SourcePath  string
	CreatedAt   time.Time
	StagingPath string
	Bucket      string
	RemoteKey   string
	Size        int64
}
