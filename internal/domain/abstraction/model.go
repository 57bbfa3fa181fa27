package abstraction

import (
	"time"

	"github.com/google/uuid"
)

// Interval is one span of a derived qualitative state. Start is inclusive,
// End exclusive. ConceptName carries the abstraction's name so consumers can
// key facts without consulting the rulebook.
type Interval struct {
	ID          uuid.UUID `json:"id,omitempty"`
	PatientID   uuid.UUID `json:"patient_id,omitempty"`
	ConceptCode string    `json:"concept_code"`
	ConceptName string    `json:"concept_name"`
	Label       string    `json:"label"`
	Start       time.Time `json:"start_time"`
	End         time.Time `json:"end_time"`
}
