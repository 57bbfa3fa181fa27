package inference

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cdss/cdss/internal/domain/abstraction"
	"github.com/cdss/cdss/internal/domain/patient"
	"github.com/cdss/cdss/internal/rules"
)

// Service assembles the facts for a patient snapshot and runs the rulebook
// over them. Nothing is persisted; assessments are repeatable for any
// (history, snapshot) pair.
type Service struct {
	rulebook *rules.Rulebook
	patients patient.Repository
	states   *abstraction.Service
	logger   zerolog.Logger
}

func NewService(rb *rules.Rulebook, patients patient.Repository, states *abstraction.Service, logger zerolog.Logger) *Service {
	return &Service{rulebook: rb, patients: patients, states: states, logger: logger}
}

// Assess evaluates the rulebook for the patient as of snapshot (default now).
func (s *Service) Assess(ctx context.Context, patientID uuid.UUID, snapshot time.Time) (*Result, error) {
	if snapshot.IsZero() {
		snapshot = time.Now().UTC()
	}

	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	active, err := s.states.ActiveStates(ctx, patientID, snapshot)
	if err != nil {
		return nil, err
	}

	facts := map[string]string{"sex": p.Sex}
	for name, label := range active {
		facts[name] = label
	}

	result := Evaluate(s.rulebook, facts)
	result.Snapshot = snapshot

	s.logger.Debug().
		Str("patient_id", patientID.String()).
		Time("snapshot", snapshot).
		Int("categories", len(result.Categories)).
		Int("recommendations", len(result.Recommendations)).
		Msg("assessment evaluated")

	return result, nil
}
