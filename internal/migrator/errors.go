package migrator

import (
	"fmt"
	"sort"
	"strings"
)

// MigrationError is returned when a migration fails. It carries what the
// restore did; Unwrap yields the failure that triggered it.
type MigrationError struct {
	Migration     string
	Err           error
	Affected      []string
	Restored      []string
	RestoreErrors map[string]error
}

func (e *MigrationError) Error() string {
	msg := fmt.Sprintf("migration %s failed: %v", e.Migration, e.Err)
	if len(e.RestoreErrors) > 0 {
		tables := make([]string, 0, len(e.RestoreErrors))
		for t := range e.RestoreErrors {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		msg += fmt.Sprintf(" (restore failed for %s)", strings.Join(tables, ", "))
	}
	return msg
}

func (e *MigrationError) Unwrap() error { return e.Err }

// execResult is the outcome of the executing step. A nil err means the
// migration committed.
type execResult struct {
	err         error
	restored    []string
	restoreErrs map[string]error
}
