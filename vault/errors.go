package vault

import (
	"fmt"
)

// WriteError reports a failed vault write. Lane identifies the first lane
// whose file could not be written, Completed lists the lanes whose temp
// files were fully written and synced before the failure. No lane file of
// the previous generation is touched until every temp file is durable, so
// a WriteError during the write phase leaves the prior vault intact.
type WriteError struct {
	Lane      int
	Completed []int
	cause     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("vault: write failed on lane %d (completed lanes %v): %v", e.Lane, e.Completed, e.cause)
}

func (e *WriteError) Unwrap() error { return e.cause }

// CorruptError reports a vault directory that exists but cannot be loaded:
// a lane file is missing, has the wrong size, or cannot be read while the
// rest of the vault is present.
type CorruptError struct {
	Lane   int
	Reason string
	cause  error
}

func (e *CorruptError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("vault: corrupt lane %d: %s", e.Lane, e.Reason)
	}
	return fmt.Sprintf("vault: corrupt lane %d: %s: %v", e.Lane, e.Reason, e.cause)
}

func (e *CorruptError) Unwrap() error { return e.cause }

// SnapshotError reports a snapshot file that cannot be decoded.
type SnapshotError struct {
	Path   string
	Reason string
	cause  error
}

func (e *SnapshotError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("vault: snapshot %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("vault: snapshot %s: %s: %v", e.Path, e.Reason, e.cause)
}

func (e *SnapshotError) Unwrap() error { return e.cause }
