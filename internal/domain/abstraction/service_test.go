package abstraction

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cdss/cdss/internal/domain/catalog"
	"github.com/cdss/cdss/internal/domain/ledger"
	"github.com/cdss/cdss/internal/domain/patient"
	"github.com/cdss/cdss/internal/rules"
)

var testPatientID = uuid.MustParse("22222222-2222-2222-2222-222222222222")

type stubPatients struct{ sex string }

func (s *stubPatients) Create(_ context.Context, _ *patient.Patient) error { return nil }
func (s *stubPatients) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	if id != testPatientID {
		return nil, patient.ErrUnknownPatient
	}
	return &patient.Patient{ID: id, Sex: s.sex}, nil
}
func (s *stubPatients) List(_ context.Context, _, _ int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}
func (s *stubPatients) Update(_ context.Context, _ *patient.Patient) error { return nil }

type stubConcepts struct{}

func (stubConcepts) Create(_ context.Context, _ *catalog.Concept) error { return nil }
func (stubConcepts) GetByCode(_ context.Context, code string) (*catalog.Concept, error) {
	return &catalog.Concept{Code: code, Component: code}, nil
}
func (stubConcepts) FindByComponent(_ context.Context, _ string) ([]*catalog.Concept, error) {
	return nil, nil
}
func (stubConcepts) FindReferencedByComponent(_ context.Context, _ string) ([]*catalog.Concept, error) {
	return nil, nil
}
func (stubConcepts) SearchComponent(_ context.Context, _ string, _, _ int) ([]*catalog.Concept, int, error) {
	return nil, 0, nil
}
func (stubConcepts) List(_ context.Context, _, _ int) ([]*catalog.Concept, int, error) {
	return nil, 0, nil
}

// memLedger implements just enough of ledger.Repository for snapshot reads.
type memLedger struct{ rows []*ledger.Measurement }

func (m *memLedger) InsertVersion(_ context.Context, v *ledger.Measurement) error {
	cp := *v
	m.rows = append(m.rows, &cp)
	return nil
}
func (m *memLedger) CloseVersion(_ context.Context, _ uuid.UUID, _ time.Time) error { return nil }
func (m *memLedger) OpenVersion(_ context.Context, _ ledger.FactKey) (*ledger.Measurement, error) {
	return nil, nil
}
func (m *memLedger) MaxTxTime(_ context.Context, _ ledger.FactKey) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
func (m *memLedger) QueryAsOf(_ context.Context, patientID uuid.UUID, q ledger.AsOfQuery) ([]*ledger.Measurement, error) {
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
func (m *memLedger) History(_ context.Context, _ ledger.FactKey) ([]*ledger.Measurement, error) {
	return nil, nil
}

type memCache struct {
	intervals map[string][]Interval
}

func newMemCache() *memCache { return &memCache{intervals: make(map[string][]Interval)} }

func (m *memCache) ReplaceWindow(_ context.Context, _ uuid.UUID, conceptCode string, windowStart, windowEnd time.Time, intervals []Interval) error {
	var kept []Interval
	for _, iv := range m.intervals[conceptCode] {
		if iv.Start.Before(windowStart) || !iv.Start.Before(windowEnd) {
			kept = append(kept, iv)
		}
	}
	m.intervals[conceptCode] = append(kept, intervals...)
	return nil
}

func (m *memCache) List(_ context.Context, _ uuid.UUID, conceptCode string) ([]Interval, error) {
	if conceptCode != "" {
		return m.intervals[conceptCode], nil
	}
	var out []Interval
	for _, ivs := range m.intervals {
		out = append(out, ivs...)
	}
	return out, nil
}

func testRulebook() *rules.Rulebook {
	return &rules.Rulebook{Abstractions: []rules.Abstraction{*hemoglobinAbstraction()}}
}

func newTestService(led *memLedger, cache *memCache, sex string) *Service {
	measures := ledger.NewService(led, &stubPatients{sex: sex}, stubConcepts{}, nil)
	return NewService(testRulebook(), measures, &stubPatients{sex: sex}, cache, nil, zerolog.Nop())
}

func seedReading(led *memLedger, at time.Time, value string) {
	led.rows = append(led.rows, &ledger.Measurement{
		PatientID:    testPatientID,
		ConceptCode:  "718-7",
		Value:        value,
		ValidStart:   at,
		TxInsertTime: at,
	})
}

func TestRecompute_PersistsDerivedIntervals(t *testing.T) {
	led := &memLedger{}
	cache := newMemCache()
	svc := newTestService(led, cache, "female")
	seedReading(led, base, "10.0")

	windowEnd := base.Add(4 * 24 * time.Hour)
	got, err := svc.Recompute(context.Background(), testPatientID, base, windowEnd, windowEnd)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected LOW plus UNKNOWN, got %+v", got)
	}

	cached, err := svc.Cached(context.Background(), testPatientID, "718-7")
	if err != nil {
		t.Fatalf("Cached: %v", err)
	}
	if len(cached) != len(got) {
		t.Errorf("cache should hold %d intervals, has %d", len(got), len(cached))
	}
}

func TestRecompute_ReplacesPreviousWindow(t *testing.T) {
	led := &memLedger{}
	cache := newMemCache()
	svc := newTestService(led, cache, "female")
	seedReading(led, base, "10.0")

	windowEnd := base.Add(4 * 24 * time.Hour)
	if _, err := svc.Recompute(context.Background(), testPatientID, base, windowEnd, windowEnd); err != nil {
		t.Fatalf("first Recompute: %v", err)
	}
	// A later correction changes the classification; recomputation must not
	// leave stale intervals behind.
	led.rows[0].Value = "13.0"
	second, err := svc.Recompute(context.Background(), testPatientID, base, windowEnd, windowEnd)
	if err != nil {
		t.Fatalf("second Recompute: %v", err)
	}

	cached, _ := svc.Cached(context.Background(), testPatientID, "718-7")
	if len(cached) != len(second) {
		t.Fatalf("stale intervals left in cache: %d vs %d", len(cached), len(second))
	}
	if cached[0].Label != "NORMAL" {
		t.Errorf("expected recomputed NORMAL, got %s", cached[0].Label)
	}
}

func TestActiveStates_WithinPersistence(t *testing.T) {
	led := &memLedger{}
	svc := newTestService(led, newMemCache(), "female")
	seedReading(led, base, "10.0")

	states, err := svc.ActiveStates(context.Background(), testPatientID, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ActiveStates: %v", err)
	}
	if states["HEMOGLOBIN_STATE"] != "LOW" {
		t.Errorf("expected LOW active, got %v", states)
	}
}

func TestActiveStates_ExpiredHorizonYieldsNoState(t *testing.T) {
	led := &memLedger{}
	svc := newTestService(led, newMemCache(), "female")
	seedReading(led, base, "10.0")

	states, err := svc.ActiveStates(context.Background(), testPatientID, base.Add(72*time.Hour))
	if err != nil {
		t.Fatalf("ActiveStates: %v", err)
	}
	if _, ok := states["HEMOGLOBIN_STATE"]; ok {
		t.Errorf("expected no state past the persistence horizon, got %v", states)
	}
}

func TestActiveStates_NoReadings(t *testing.T) {
	svc := newTestService(&memLedger{}, newMemCache(), "female")
	states, err := svc.ActiveStates(context.Background(), testPatientID, base)
	if err != nil {
		t.Fatalf("ActiveStates: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("expected empty states, got %v", states)
	}
}
