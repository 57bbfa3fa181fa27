package patient

import (
	"time"

	"github.com/google/uuid"
)

// Sex values accepted on a patient record. Inference rules key off these,
// so they are validated at the service boundary.
const (
	SexMale    = "male"
	SexFemale  = "female"
	SexOther   = "other"
	SexUnknown = "unknown"
)

// Patient is a registered subject whose measurements the ledger tracks.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Sex       string    `json:"sex"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidSex reports whether s is one of the accepted sex values.
func ValidSex(s string) bool {
	switch s {
	case SexMale, SexFemale, SexOther, SexUnknown:
		return true
	}
	return false
}
