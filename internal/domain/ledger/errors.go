package ledger

import "errors"

var (
	// ErrDuplicateOpenVersion is returned when an insert targets a fact key
	// that already has an open version.
	ErrDuplicateOpenVersion = errors.New("fact already has an open version")

	// ErrNoOpenVersion is returned when a correction or retraction targets a
	// fact key with no open version.
	ErrNoOpenVersion = errors.New("fact has no open version")

	// ErrFutureConflict is returned when a write's transaction time is not
	// strictly after every existing version of the fact.
	ErrFutureConflict = errors.New("a newer version of the fact already exists")
)
