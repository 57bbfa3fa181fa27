package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository provides row-level access to the measurement ledger. Version
// bookkeeping (open-version uniqueness, monotonicity) is enforced by the
// service inside a transaction; the repository only reads and writes rows.
type Repository interface {
	// InsertVersion appends a new version row. It never updates existing rows.
	InsertVersion(ctx context.Context, m *Measurement) error
	// CloseVersion sets tx_delete_time on the identified row.
	CloseVersion(ctx context.Context, id uuid.UUID, deletedAt time.Time) error
	// OpenVersion returns the open version of a fact, or nil if none exists.
	OpenVersion(ctx context.Context, key FactKey) (*Measurement, error)
	// MaxTxTime returns the greatest transaction time recorded for a fact,
	// across both tx_insert_time and tx_delete_time of every version; ok is
	// false when the fact has no versions at all.
	MaxTxTime(ctx context.Context, key FactKey) (t time.Time, ok bool, err error)
	// QueryAsOf returns the visible version of every matching fact at the
	// query's snapshot.
	QueryAsOf(ctx context.Context, patientID uuid.UUID, q AsOfQuery) ([]*Measurement, error)
	// History returns every version of a fact, newest first.
	History(ctx context.Context, key FactKey) ([]*Measurement, error)
}
