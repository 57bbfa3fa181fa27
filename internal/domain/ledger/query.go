package ledger

import (
	"fmt"
	"strings"
	"time"
)

// AsOfQuery describes a snapshot query over the ledger. The zero Snapshot
// means "now" (resolved by the service). Values are always passed to the
// database as bound parameters.
type AsOfQuery struct {
	Snapshot    time.Time
	ConceptCode string
	// Component filters by catalog component name, substring match,
	// case-insensitive.
	Component string
	// From/To bound the valid-time range, inclusive on both ends.
	From *time.Time
	To   *time.Time
}

const measurementCols = `m.id, m.patient_id, m.concept_code, c.component, m.value, m.unit,
	m.valid_start_time, m.tx_insert_time, m.tx_delete_time`

// build assembles the snapshot SQL and its bound arguments. The inner query
// picks the latest visible version per fact with DISTINCT ON; the outer
// query orders the surviving rows for callers.
func (q AsOfQuery) build(patientID interface{}) (string, []interface{}) {
	args := []interface{}{patientID, q.Snapshot}

	var where strings.Builder
	where.WriteString(`m.patient_id = $1
	  AND m.tx_insert_time <= $2
	  AND (m.tx_delete_time IS NULL OR m.tx_delete_time > $2)`)

	if q.ConceptCode != "" {
		args = append(args, q.ConceptCode)
		fmt.Fprintf(&where, "\n\t  AND m.concept_code = $%d", len(args))
	}
	if q.Component != "" {
		args = append(args, "%"+q.Component+"%")
		fmt.Fprintf(&where, "\n\t  AND c.component ILIKE $%d", len(args))
	}
	if q.From != nil {
		args = append(args, *q.From)
		fmt.Fprintf(&where, "\n\t  AND m.valid_start_time >= $%d", len(args))
	}
	if q.To != nil {
		args = append(args, *q.To)
		fmt.Fprintf(&where, "\n\t  AND m.valid_start_time <= $%d", len(args))
	}

	sql := `SELECT * FROM (
	SELECT DISTINCT ON (m.patient_id, m.concept_code, m.valid_start_time) ` + measurementCols + `
	FROM measurement m
	JOIN concept c ON c.code = m.concept_code
	WHERE ` + where.String() + `
	ORDER BY m.patient_id, m.concept_code, m.valid_start_time, m.tx_insert_time DESC
) v ORDER BY v.valid_start_time ASC, v.tx_insert_time ASC`

	return sql, args
}
