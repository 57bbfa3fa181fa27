package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cdss/cdss/internal/domain/catalog"
	"github.com/cdss/cdss/internal/domain/patient"
	"github.com/cdss/cdss/internal/platform/db"
)

// Service enforces the ledger's version discipline: one open version per
// fact, additive-only writes, and strictly increasing transaction times
// within a fact. Each write runs in a single transaction.
type Service struct {
	repo     Repository
	patients patient.Repository
	concepts catalog.Repository
	pool     *pgxpool.Pool
}

func NewService(repo Repository, patients patient.Repository, concepts catalog.Repository, pool *pgxpool.Pool) *Service {
	return &Service{repo: repo, patients: patients, concepts: concepts, pool: pool}
}

func (s *Service) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.pool == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.pool, fn)
}

// Insert records a new fact version. insertedAt defaults to now and must not
// precede the valid start time.
func (s *Service) Insert(ctx context.Context, patientID uuid.UUID, conceptCode, value, unit string, validStart, insertedAt time.Time) (*Measurement, error) {
	if value == "" {
		return nil, fmt.Errorf("value is required")
	}
	if insertedAt.IsZero() {
		insertedAt = time.Now().UTC()
	}
	if insertedAt.Before(validStart) {
		return nil, fmt.Errorf("insertion time %s precedes valid start %s",
			insertedAt.Format(time.RFC3339), validStart.Format(time.RFC3339))
	}

	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	c, err := s.concepts.GetByCode(ctx, conceptCode)
	if err != nil {
		return nil, err
	}
	if !c.AllowsValue(value) {
		return nil, fmt.Errorf("%w: %q for concept %s", catalog.ErrValueNotAllowed, value, conceptCode)
	}
	if unit == "" {
		unit = c.Unit
	}

	m := &Measurement{
		PatientID:    patientID,
		ConceptCode:  conceptCode,
		ConceptName:  c.Component,
		Value:        value,
		Unit:         unit,
		ValidStart:   validStart,
		TxInsertTime: insertedAt,
	}

	key := FactKey{PatientID: patientID, ConceptCode: conceptCode, ValidStart: validStart}
	err = s.withTx(ctx, func(ctx context.Context) error {
		open, err := s.repo.OpenVersion(ctx, key)
		if err != nil {
			return err
		}
		if open != nil {
			return ErrDuplicateOpenVersion
		}
		if err := s.checkMonotonic(ctx, key, insertedAt); err != nil {
			return err
		}
		return s.repo.InsertVersion(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Correct closes the fact's open version and records a replacement carrying
// the new value. The unit is preserved from the closed version.
func (s *Service) Correct(ctx context.Context, patientID uuid.UUID, conceptCode string, validStart time.Time, newValue string, correctedAt time.Time) (*Measurement, error) {
	if newValue == "" {
		return nil, fmt.Errorf("value is required")
	}
	if correctedAt.IsZero() {
		correctedAt = time.Now().UTC()
	}

	c, err := s.concepts.GetByCode(ctx, conceptCode)
	if err != nil {
		return nil, err
	}
	if !c.AllowsValue(newValue) {
		return nil, fmt.Errorf("%w: %q for concept %s", catalog.ErrValueNotAllowed, newValue, conceptCode)
	}

	key := FactKey{PatientID: patientID, ConceptCode: conceptCode, ValidStart: validStart}
	var replacement *Measurement
	err = s.withTx(ctx, func(ctx context.Context) error {
		open, err := s.repo.OpenVersion(ctx, key)
		if err != nil {
			return err
		}
		if open == nil {
			return ErrNoOpenVersion
		}
		if err := s.checkMonotonic(ctx, key, correctedAt); err != nil {
			return err
		}
		if err := s.repo.CloseVersion(ctx, open.ID, correctedAt); err != nil {
			return err
		}
		replacement = &Measurement{
			PatientID:    patientID,
			ConceptCode:  conceptCode,
			ConceptName:  open.ConceptName,
			Value:        newValue,
			Unit:         open.Unit,
			ValidStart:   validStart,
			TxInsertTime: correctedAt,
		}
		return s.repo.InsertVersion(ctx, replacement)
	})
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

// Retract closes the fact's open version without replacement. The closed
// versions remain visible to snapshots taken before retractedAt.
func (s *Service) Retract(ctx context.Context, patientID uuid.UUID, conceptCode string, validStart time.Time, retractedAt time.Time) error {
	if retractedAt.IsZero() {
		retractedAt = time.Now().UTC()
	}

	key := FactKey{PatientID: patientID, ConceptCode: conceptCode, ValidStart: validStart}
	return s.withTx(ctx, func(ctx context.Context) error {
		open, err := s.repo.OpenVersion(ctx, key)
		if err != nil {
			return err
		}
		if open == nil {
			return ErrNoOpenVersion
		}
		if err := s.checkMonotonic(ctx, key, retractedAt); err != nil {
			return err
		}
		return s.repo.CloseVersion(ctx, open.ID, retractedAt)
	})
}

// checkMonotonic rejects writes whose transaction time is not strictly after
// every transaction event recorded for the fact, closures included. An insert
// backdated between a version's closure and now would rewrite what earlier
// snapshots return.
func (s *Service) checkMonotonic(ctx context.Context, key FactKey, at time.Time) error {
	max, ok, err := s.repo.MaxTxTime(ctx, key)
	if err != nil {
		return err
	}
	if ok && !at.After(max) {
		return fmt.Errorf("%w: latest transaction at %s, write at %s",
			ErrFutureConflict, max.Format(time.RFC3339), at.Format(time.RFC3339))
	}
	return nil
}

// QueryAsOf returns the measurements visible at the query's snapshot, one
// version per fact, ordered by valid start time.
func (s *Service) QueryAsOf(ctx context.Context, patientID uuid.UUID, q AsOfQuery) ([]*Measurement, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	if q.Snapshot.IsZero() {
		q.Snapshot = time.Now().UTC()
	}
	return s.repo.QueryAsOf(ctx, patientID, q)
}

// History returns the full version chain of one fact, newest first.
func (s *Service) History(ctx context.Context, key FactKey) ([]*Measurement, error) {
	if _, err := s.patients.GetByID(ctx, key.PatientID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, key)
}
