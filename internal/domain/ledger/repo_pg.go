package ledger

import (
	"context"
	"errors"
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

func scanMeasurement(row pgx.Row) (*Measurement, error) {
	var m Measurement
	err := row.Scan(&m.ID, &m.PatientID, &m.ConceptCode, &m.ConceptName, &m.Value, &m.Unit,
		&m.ValidStart, &m.TxInsertTime, &m.TxDeleteTime)
	return &m, err
}

func (r *repoPG) InsertVersion(ctx context.Context, m *Measurement) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO measurement (id, patient_id, concept_code, value, unit, valid_start_time, tx_insert_time, tx_delete_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)`,
		m.ID, m.PatientID, m.ConceptCode, m.Value, m.Unit, m.ValidStart, m.TxInsertTime)
	if err != nil {
		return fmt.Errorf("insert measurement version: %w", err)
	}
	return nil
}

func (r *repoPG) CloseVersion(ctx context.Context, id uuid.UUID, deletedAt time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE measurement SET tx_delete_time = $1 WHERE id = $2 AND tx_delete_time IS NULL`,
		deletedAt, id)
	if err != nil {
		return fmt.Errorf("close measurement version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoOpenVersion
	}
	return nil
}

func (r *repoPG) OpenVersion(ctx context.Context, key FactKey) (*Measurement, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT m.id, m.patient_id, m.concept_code, c.component, m.value, m.unit,
			m.valid_start_time, m.tx_insert_time, m.tx_delete_time
		 FROM measurement m
		 JOIN concept c ON c.code = m.concept_code
		 WHERE m.patient_id = $1 AND m.concept_code = $2 AND m.valid_start_time = $3
		   AND m.tx_delete_time IS NULL`,
		key.PatientID, key.ConceptCode, key.ValidStart)
	m, err := scanMeasurement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open version: %w", err)
	}
	return m, nil
}

func (r *repoPG) MaxTxTime(ctx context.Context, key FactKey) (time.Time, bool, error) {
	var t *time.Time
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT GREATEST(MAX(tx_insert_time), MAX(tx_delete_time)) FROM measurement
		 WHERE patient_id = $1 AND concept_code = $2 AND valid_start_time = $3`,
		key.PatientID, key.ConceptCode, key.ValidStart).Scan(&t)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("max transaction time: %w", err)
	}
	if t == nil {
		return time.Time{}, false, nil
	}
	return *t, true, nil
}

func (r *repoPG) QueryAsOf(ctx context.Context, patientID uuid.UUID, q AsOfQuery) ([]*Measurement, error) {
	sql, args := q.build(patientID)
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query measurements as of: %w", err)
	}
	return collectMeasurements(rows)
}

func (r *repoPG) History(ctx context.Context, key FactKey) ([]*Measurement, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT m.id, m.patient_id, m.concept_code, c.component, m.value, m.unit,
			m.valid_start_time, m.tx_insert_time, m.tx_delete_time
		 FROM measurement m
		 JOIN concept c ON c.code = m.concept_code
		 WHERE m.patient_id = $1 AND m.concept_code = $2 AND m.valid_start_time = $3
		 ORDER BY m.tx_insert_time DESC`,
		key.PatientID, key.ConceptCode, key.ValidStart)
	if err != nil {
		return nil, fmt.Errorf("query fact history: %w", err)
	}
	return collectMeasurements(rows)
}

func collectMeasurements(rows pgx.Rows) ([]*Measurement, error) {
	defer rows.Close()
	var out []*Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurements: %w", err)
	}
	return out, nil
}
