// Package sandbox seeds reproducible demo data for development environments:
// a few patients, the CBC-panel concept catalog, and several days of
// measurements written through the ledger service so version discipline
// holds for the seeded history too.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/cdss/cdss/internal/domain/abstraction"
	"github.com/cdss/cdss/internal/domain/catalog"
	"github.com/cdss/cdss/internal/domain/ledger"
	"github.com/cdss/cdss/internal/domain/patient"
)

// SeedConfig controls the volume and reproducibility of generated data.
type SeedConfig struct {
	PatientCount int
	Days         int
	Seed         int64
	Start        time.Time
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		PatientCount: 5,
		Days:         14,
		Seed:         42,
		Start:        time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

// Seeder writes the demo dataset through the domain services.
type Seeder struct {
	patients     *patient.Service
	concepts     *catalog.Service
	measurements *ledger.Service
	abstractions *abstraction.Service
	logger       zerolog.Logger
}

func NewSeeder(patients *patient.Service, concepts *catalog.Service, measurements *ledger.Service, abstractions *abstraction.Service, logger zerolog.Logger) *Seeder {
	return &Seeder{
		patients:     patients,
		concepts:     concepts,
		measurements: measurements,
		abstractions: abstractions,
		logger:       logger,
	}
}

type seedConcept struct {
	catalog.Concept
	// plausible sampling range for numeric concepts
	low, high float64
}

func cbcPanel() []seedConcept {
	return []seedConcept{
		{Concept: catalog.Concept{Code: "718-7", Component: "Hemoglobin", Property: "MCnc",
			System: "Bld", ScaleType: "Qn", Unit: "g/dL"}, low: 6.5, high: 16.5},
		{Concept: catalog.Concept{Code: "6690-2", Component: "Leukocytes", Property: "NCnc",
			System: "Bld", ScaleType: "Qn", Unit: "10*3/uL"}, low: 0.8, high: 12.0},
		{Concept: catalog.Concept{Code: "777-3", Component: "Platelets", Property: "NCnc",
			System: "Bld", ScaleType: "Qn", Unit: "10*3/uL"}, low: 40, high: 420},
		{Concept: catalog.Concept{Code: "8310-5", Component: "Body temperature", Property: "Temp",
			System: "^Patient", ScaleType: "Qn", Unit: "Cel"}, low: 36.1, high: 40.2},
		{Concept: catalog.Concept{Code: "8480-6", Component: "Chemotherapy protocol",
			ScaleType: "Nom", AllowedValues: []string{"CTX1", "CTX2", "CTX3"}}},
	}
}

var seedNames = [][2]string{
	{"Ada", "Stern"}, {"Noa", "Peled"}, {"Omri", "Gal"},
	{"Lior", "Baranes"}, {"Maya", "Regev"}, {"Tom", "Carmel"},
	{"Dana", "Levi"}, {"Eli", "Mizrahi"},
}

var seedSexes = []string{patient.SexFemale, patient.SexMale}

// Run populates the database. It is idempotent: when patients already exist
// the seeder reports and does nothing.
func (s *Seeder) Run(ctx context.Context, cfg SeedConfig) error {
	if _, total, err := s.patients.List(ctx, 1, 0); err != nil {
		return fmt.Errorf("check existing data: %w", err)
	} else if total > 0 {
		s.logger.Info().Int("patients", total).Msg("database already seeded, skipping")
		return nil
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	panel := cbcPanel()

	for i := range panel {
		if err := s.concepts.Create(ctx, &panel[i].Concept); err != nil {
			return fmt.Errorf("seed concept %s: %w", panel[i].Code, err)
		}
	}

	windowEnd := cfg.Start.Add(time.Duration(cfg.Days) * 24 * time.Hour)
	for i := 0; i < cfg.PatientCount; i++ {
		name := seedNames[i%len(seedNames)]
		p := &patient.Patient{
			FirstName: name[0],
			LastName:  name[1],
			Sex:       seedSexes[i%len(seedSexes)],
		}
		if err := s.patients.Register(ctx, p); err != nil {
			return fmt.Errorf("seed patient %s %s: %w", p.FirstName, p.LastName, err)
		}

		for day := 0; day < cfg.Days; day++ {
			at := cfg.Start.Add(time.Duration(day) * 24 * time.Hour)
			for _, sc := range panel {
				var value string
				if len(sc.AllowedValues) > 0 {
					// Protocol assignment is sampled once, on day zero.
					if day != 0 {
						continue
					}
					value = sc.AllowedValues[rng.Intn(len(sc.AllowedValues))]
				} else {
					value = fmt.Sprintf("%.1f", sc.low+rng.Float64()*(sc.high-sc.low))
				}
				if _, err := s.measurements.Insert(ctx, p.ID, sc.Code, value, sc.Unit, at, at); err != nil {
					return fmt.Errorf("seed measurement %s for %s: %w", sc.Code, p.ID, err)
				}
			}
		}

		if _, err := s.abstractions.Recompute(ctx, p.ID, cfg.Start, windowEnd, windowEnd); err != nil {
			return fmt.Errorf("seed abstraction for %s: %w", p.ID, err)
		}
		s.logger.Info().
			Str("patient_id", p.ID.String()).
			Str("name", p.FirstName+" "+p.LastName).
			Msg("seeded patient")
	}

	s.logger.Info().
		Int("patients", cfg.PatientCount).
		Int("concepts", len(panel)).
		Int("days", cfg.Days).
		Msg("sandbox data seeded")
	return nil
}
