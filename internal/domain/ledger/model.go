package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Measurement is one version of a measured fact. A fact is identified by
// (patient, concept, valid start); its versions are ordered by transaction
// insert time, and at most one version is open at a time.
type Measurement struct {
	ID           uuid.UUID  `json:"id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	ConceptCode  string     `json:"concept_code"`
	ConceptName  string     `json:"concept_name,omitempty"`
	Value        string     `json:"value"`
	Unit         string     `json:"unit,omitempty"`
	ValidStart   time.Time  `json:"valid_start_time"`
	TxInsertTime time.Time  `json:"tx_insert_time"`
	TxDeleteTime *time.Time `json:"tx_delete_time,omitempty"`
}

// Open reports whether this version is current (not superseded or retracted).
func (m *Measurement) Open() bool {
	return m.TxDeleteTime == nil
}

// FactKey identifies a measured fact across its versions.
type FactKey struct {
	PatientID   uuid.UUID
	ConceptCode string
	ValidStart  time.Time
}
