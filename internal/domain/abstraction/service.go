package abstraction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/cdss/cdss/internal/domain/ledger"
	"github.com/cdss/cdss/internal/domain/patient"
	"github.com/cdss/cdss/internal/platform/db"
	"github.com/cdss/cdss/internal/rules"
)

// Service derives qualitative state intervals from the measurement ledger
// and maintains the persisted cache of them.
type Service struct {
	rulebook *rules.Rulebook
	measures *ledger.Service
	patients patient.Repository
	repo     Repository
	pool     *pgxpool.Pool
	logger   zerolog.Logger
}

func NewService(rb *rules.Rulebook, measures *ledger.Service, patients patient.Repository, repo Repository, pool *pgxpool.Pool, logger zerolog.Logger) *Service {
	return &Service{
		rulebook: rb,
		measures: measures,
		patients: patients,
		repo:     repo,
		pool:     pool,
		logger:   logger,
	}
}

func (s *Service) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.pool == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.pool, fn)
}

// Derive computes the intervals of every configured abstraction over the
// window, reading the ledger as of snapshot. Nothing is persisted.
func (s *Service) Derive(ctx context.Context, patientID uuid.UUID, windowStart, windowEnd, snapshot time.Time) ([]Interval, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if snapshot.IsZero() {
		snapshot = time.Now().UTC()
	}

	var out []Interval
	for i := range s.rulebook.Abstractions {
		a := &s.rulebook.Abstractions[i]
		readings, err := s.measures.QueryAsOf(ctx, patientID, ledger.AsOfQuery{
			Snapshot:    snapshot,
			ConceptCode: a.ConceptCode,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, Compute(a, p.Sex, readings, windowStart, windowEnd)...)
	}
	return out, nil
}

// Recompute derives the window's intervals and replaces the cached slice for
// each configured abstraction in a single transaction.
func (s *Service) Recompute(ctx context.Context, patientID uuid.UUID, windowStart, windowEnd, snapshot time.Time) ([]Interval, error) {
	intervals, err := s.Derive(ctx, patientID, windowStart, windowEnd, snapshot)
	if err != nil {
		return nil, err
	}

	byConcept := make(map[string][]Interval)
	for _, iv := range intervals {
		byConcept[iv.ConceptCode] = append(byConcept[iv.ConceptCode], iv)
	}

	err = s.withTx(ctx, func(ctx context.Context) error {
		for i := range s.rulebook.Abstractions {
			code := s.rulebook.Abstractions[i].ConceptCode
			if err := s.repo.ReplaceWindow(ctx, patientID, code, windowStart, windowEnd, byConcept[code]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("patient_id", patientID.String()).
		Time("window_start", windowStart).
		Time("window_end", windowEnd).
		Int("intervals", len(intervals)).
		Msg("abstraction cache recomputed")

	return intervals, nil
}

// Cached returns the persisted intervals for a patient.
func (s *Service) Cached(ctx context.Context, patientID uuid.UUID, conceptCode string) ([]Interval, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, patientID, conceptCode)
}

// ActiveStates derives the states in force at the snapshot, keyed by
// abstraction name. UNKNOWN spans contribute no state.
func (s *Service) ActiveStates(ctx context.Context, patientID uuid.UUID, snapshot time.Time) (map[string]string, error) {
	if snapshot.IsZero() {
		snapshot = time.Now().UTC()
	}
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	states := make(map[string]string)
	for i := range s.rulebook.Abstractions {
		a := &s.rulebook.Abstractions[i]
		readings, err := s.measures.QueryAsOf(ctx, patientID, ledger.AsOfQuery{
			Snapshot:    snapshot,
			ConceptCode: a.ConceptCode,
		})
		if err != nil {
			return nil, err
		}
		if len(readings) == 0 {
			continue
		}
		// End the window just past the snapshot so the covering interval,
		// if any, contains it.
		intervals := Compute(a, p.Sex, readings, readings[0].ValidStart, snapshot.Add(time.Nanosecond))
		if iv := ActiveAt(intervals, snapshot); iv != nil && iv.Label != LabelUnknown {
			states[a.Name] = iv.Label
		}
	}
	return states, nil
}
