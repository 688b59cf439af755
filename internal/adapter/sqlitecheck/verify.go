// Package sqlitecheck checks that a staged copy of a live SQLite file is a
// usable database. A byte copy taken while the source is being written can
// be torn; this is where that surfaces.
package sqlitecheck

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SidecarSuffixes lists files SQLite may create next to a database it opens.
const busyTimeoutMs = 2000

var SidecarSuffixes = []string{"-journal", "-wal", "-shm"}

type Verifier struct{}

func New() *Verifier {
	return &Verifier{}
}

// Verify runs PRAGMA quick_check against the database at path.
func (v *Verifier) Verify(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "PRAGMA quick_check;")
	if err != nil {
		return fmt.Errorf("failed to check snapshot: %w", err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("failed to read check result: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to check snapshot: %w", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("snapshot failed integrity check: %s", strings.Join(problems, "; "))
	}
	return nil
}

func dsn(path string) string {
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)", path, busyTimeoutMs)
}
