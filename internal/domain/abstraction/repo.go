package abstraction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists the derived interval cache. The cache is rebuildable:
// recomputation replaces whole (patient, concept, window) slices.
type Repository interface {
	// ReplaceWindow deletes the cached intervals of one patient and concept
	// that start inside [windowStart, windowEnd) and writes the replacements.
	ReplaceWindow(ctx context.Context, patientID uuid.UUID, conceptCode string, windowStart, windowEnd time.Time, intervals []Interval) error
	// List returns cached intervals for a patient, optionally filtered by
	// concept code, ordered by start time.
	List(ctx context.Context, patientID uuid.UUID, conceptCode string) ([]Interval, error)
}
