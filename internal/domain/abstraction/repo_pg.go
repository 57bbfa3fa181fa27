package abstraction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cdss/cdss/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const intervalCols = `id, patient_id, concept_code, concept_name, label, start_time, end_time`

func (r *repoPG) ReplaceWindow(ctx context.Context, patientID uuid.UUID, conceptCode string, windowStart, windowEnd time.Time, intervals []Interval) error {
	q := r.conn(ctx)

	_, err := q.Exec(ctx,
		`DELETE FROM abstracted_interval
		 WHERE patient_id = $1 AND concept_code = $2
		   AND start_time >= $3 AND start_time < $4`,
		patientID, conceptCode, windowStart, windowEnd)
	if err != nil {
		return fmt.Errorf("clear interval window: %w", err)
	}

	for i := range intervals {
		iv := &intervals[i]
		if iv.ID == uuid.Nil {
			iv.ID = uuid.New()
		}
		iv.PatientID = patientID
		_, err := q.Exec(ctx,
			`INSERT INTO abstracted_interval (`+intervalCols+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			iv.ID, iv.PatientID, iv.ConceptCode, iv.ConceptName, iv.Label, iv.Start, iv.End)
		if err != nil {
			return fmt.Errorf("insert interval: %w", err)
		}
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, patientID uuid.UUID, conceptCode string) ([]Interval, error) {
	sql := `SELECT ` + intervalCols + ` FROM abstracted_interval WHERE patient_id = $1`
	args := []interface{}{patientID}
	if conceptCode != "" {
		args = append(args, conceptCode)
		sql += fmt.Sprintf(" AND concept_code = $%d", len(args))
	}
	sql += " ORDER BY concept_code, start_time"

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list intervals: %w", err)
	}
	defer rows.Close()

	var out []Interval
	for rows.Next() {
		var iv Interval
		if err := rows.Scan(&iv.ID, &iv.PatientID, &iv.ConceptCode, &iv.ConceptName,
			&iv.Label, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intervals: %w", err)
	}
	return out, nil
}
