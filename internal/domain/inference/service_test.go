package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cdss/cdss/internal/domain/abstraction"
	"github.com/cdss/cdss/internal/domain/catalog"
	"github.com/cdss/cdss/internal/domain/ledger"
	"github.com/cdss/cdss/internal/domain/patient"
	"github.com/cdss/cdss/internal/rules"
)

var (
	assessPatientID = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	assessBase      = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
)

func fv(v float64) *float64 { return &v }

// Rulebook with one abstraction feeding the combination tiers, including a
// sex-specific band so the seeded sex fact is observable end to end.
func assessRulebook() *rules.Rulebook {
	rb := hematologyRulebook()
	rb.Abstractions = []rules.Abstraction{{
		Name:        "HEMOGLOBIN_STATE",
		ConceptCode: "718-7",
		Persistence: rules.Duration(48 * time.Hour),
		Variants: []rules.Variant{
			{Sex: "female", Bands: []rules.Band{
				{Max: fv(9), Label: "SEVERELY_LOW"},
				{Min: fv(9), Max: fv(12), Label: "LOW"},
				{Min: fv(12), Max: fv(16), Label: "NORMAL"},
			}},
			{Bands: []rules.Band{
				{Max: fv(9), Label: "SEVERELY_LOW"},
				{Min: fv(9), Max: fv(13.5), Label: "LOW"},
				{Min: fv(13.5), Max: fv(18), Label: "NORMAL"},
			}},
		},
	}}
	return rb
}

type assessPatients struct{ sex string }

func (p *assessPatients) Create(_ context.Context, _ *patient.Patient) error { return nil }
func (p *assessPatients) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	if id != assessPatientID {
		return nil, patient.ErrUnknownPatient
	}
	return &patient.Patient{ID: id, Sex: p.sex}, nil
}
func (p *assessPatients) List(_ context.Context, _, _ int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}
func (p *assessPatients) Update(_ context.Context, _ *patient.Patient) error { return nil }

type assessConcepts struct{}

func (assessConcepts) Create(_ context.Context, _ *catalog.Concept) error { return nil }
func (assessConcepts) GetByCode(_ context.Context, code string) (*catalog.Concept, error) {
	return &catalog.Concept{Code: code, Component: code}, nil
}
func (assessConcepts) FindByComponent(_ context.Context, _ string) ([]*catalog.Concept, error) {
	return nil, nil
}
func (assessConcepts) FindReferencedByComponent(_ context.Context, _ string) ([]*catalog.Concept, error) {
	return nil, nil
}
func (assessConcepts) SearchComponent(_ context.Context, _ string, _, _ int) ([]*catalog.Concept, int, error) {
	return nil, 0, nil
}
func (assessConcepts) List(_ context.Context, _, _ int) ([]*catalog.Concept, int, error) {
	return nil, 0, nil
}

type assessLedger struct{ rows []*ledger.Measurement }

func (m *assessLedger) InsertVersion(_ context.Context, v *ledger.Measurement) error {
	cp := *v
	m.rows = append(m.rows, &cp)
	return nil
}
func (m *assessLedger) CloseVersion(_ context.Context, _ uuid.UUID, _ time.Time) error { return nil }
func (m *assessLedger) OpenVersion(_ context.Context, _ ledger.FactKey) (*ledger.Measurement, error) {
	return nil, nil
}
func (m *assessLedger) MaxTxTime(_ context.Context, _ ledger.FactKey) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
func (m *assessLedger) QueryAsOf(_ context.Context, patientID uuid.UUID, q ledger.AsOfQuery) ([]*ledger.Measurement, error) {
	var out []*ledger.Measurement
	for _, r := range m.rows {
		if r.PatientID != patientID || r.TxInsertTime.After(q.Snapshot) {
			continue
		}
		if q.ConceptCode != "" && r.ConceptCode != q.ConceptCode {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}
func (m *assessLedger) History(_ context.Context, _ ledger.FactKey) ([]*ledger.Measurement, error) {
	return nil, nil
}

type assessCache struct{}

func (assessCache) ReplaceWindow(_ context.Context, _ uuid.UUID, _ string, _, _ time.Time, _ []abstraction.Interval) error {
	return nil
}
func (assessCache) List(_ context.Context, _ uuid.UUID, _ string) ([]abstraction.Interval, error) {
	return nil, nil
}

func newAssessService(led *assessLedger, sex string) *Service {
	rb := assessRulebook()
	patients := &assessPatients{sex: sex}
	measures := ledger.NewService(led, patients, assessConcepts{}, nil)
	states := abstraction.NewService(rb, measures, patients, assessCache{}, nil, zerolog.Nop())
	return NewService(rb, patients, states, zerolog.Nop())
}

func seedHemoglobin(led *assessLedger, at time.Time, value string) {
	led.rows = append(led.rows, &ledger.Measurement{
		PatientID:    assessPatientID,
		ConceptCode:  "718-7",
		Value:        value,
		ValidStart:   at,
		TxInsertTime: at,
	})
}

func TestAssess_WithinPersistence(t *testing.T) {
	led := &assessLedger{}
	seedHemoglobin(led, assessBase, "10.0")
	svc := newAssessService(led, "female")

	result, err := svc.Assess(context.Background(), assessPatientID, assessBase.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if result.Facts["sex"] != "female" {
		t.Errorf("sex fact not seeded: %v", result.Facts)
	}
	if result.Facts["HEMOGLOBIN_STATE"] != "LOW" {
		t.Errorf("expected active LOW, got %v", result.Facts)
	}
	if got := result.Facts["HEMATOLOGICAL_STATE"]; got != "MILD" {
		t.Errorf("expected MILD, got %s", got)
	}
}

func TestAssess_SexSelectsBandVariant(t *testing.T) {
	led := &assessLedger{}
	seedHemoglobin(led, assessBase, "12.5")
	snapshot := assessBase.Add(time.Hour)

	female, err := newAssessService(led, "female").Assess(context.Background(), assessPatientID, snapshot)
	if err != nil {
		t.Fatalf("Assess female: %v", err)
	}
	male, err := newAssessService(led, "male").Assess(context.Background(), assessPatientID, snapshot)
	if err != nil {
		t.Fatalf("Assess male: %v", err)
	}
	if female.Facts["HEMOGLOBIN_STATE"] != "NORMAL" {
		t.Errorf("female 12.5 should classify NORMAL, got %v", female.Facts)
	}
	if male.Facts["HEMOGLOBIN_STATE"] != "LOW" {
		t.Errorf("male 12.5 should classify LOW, got %v", male.Facts)
	}
}

func TestAssess_ExpiredHorizonIsUndetermined(t *testing.T) {
	led := &assessLedger{}
	seedHemoglobin(led, assessBase, "10.0")
	svc := newAssessService(led, "female")

	result, err := svc.Assess(context.Background(), assessPatientID, assessBase.Add(96*time.Hour))
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if _, ok := result.Facts["HEMOGLOBIN_STATE"]; ok {
		t.Errorf("hemoglobin state should have expired, got %v", result.Facts)
	}
	if got := result.Facts["HEMATOLOGICAL_STATE"]; got != StateUndetermined {
		t.Errorf("expected Undetermined, got %s", got)
	}
	if got := result.Facts["TREATMENT_STATE"]; got != "INSUFFICIENT_DATA" {
		t.Errorf("expected INSUFFICIENT_DATA via explicit Undetermined guard, got %s", got)
	}
	var found bool
	for _, r := range result.Recommendations {
		if r.Rule == "partial-data" {
			found = true
		}
	}
	if !found {
		t.Errorf("partial-data rule should fire, got %+v", result.Recommendations)
	}
}

func TestAssess_UnknownPatient(t *testing.T) {
	svc := newAssessService(&assessLedger{}, "female")
	_, err := svc.Assess(context.Background(), uuid.New(), assessBase)
	if !errors.Is(err, patient.ErrUnknownPatient) {
		t.Fatalf("expected ErrUnknownPatient, got %v", err)
	}
}

func TestAssess_SnapshotRecorded(t *testing.T) {
	led := &assessLedger{}
	seedHemoglobin(led, assessBase, "10.0")
	svc := newAssessService(led, "female")

	snapshot := assessBase.Add(2 * time.Hour)
	result, err := svc.Assess(context.Background(), assessPatientID, snapshot)
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if !result.Snapshot.Equal(snapshot) {
		t.Errorf("snapshot not recorded: %v", result.Snapshot)
	}
}
