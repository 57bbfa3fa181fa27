package catalog

import (
	"context"
	"errors"
	"fmt"

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

const conceptCols = `code, component, property, time_aspect, system, scale_type, method_type, allowed_values, unit`

func scanConcept(row pgx.Row) (*Concept, error) {
	var c Concept
	err := row.Scan(&c.Code, &c.Component, &c.Property, &c.TimeAspect, &c.System,
		&c.ScaleType, &c.MethodType, &c.AllowedValues, &c.Unit)
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *Concept) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO concept (code, component, property, time_aspect, system, scale_type, method_type, allowed_values, unit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.Code, c.Component, c.Property, c.TimeAspect, c.System, c.ScaleType, c.MethodType, c.AllowedValues, c.Unit)
	if err != nil {
		return fmt.Errorf("insert concept: %w", err)
	}
	return nil
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Concept, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+conceptCols+` FROM concept WHERE code = $1`, code)
	c, err := scanConcept(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownConcept
	}
	if err != nil {
		return nil, fmt.Errorf("get concept: %w", err)
	}
	return c, nil
}

func (r *repoPG) FindByComponent(ctx context.Context, name string) ([]*Concept, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+conceptCols+` FROM concept WHERE LOWER(component) = LOWER($1) ORDER BY code`, name)
	if err != nil {
		return nil, fmt.Errorf("find concepts by component: %w", err)
	}
	return collectConcepts(rows)
}

func (r *repoPG) FindReferencedByComponent(ctx context.Context, name string) ([]*Concept, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+conceptCols+` FROM concept c
		 WHERE LOWER(c.component) = LOWER($1)
		   AND EXISTS (SELECT 1 FROM measurement m WHERE m.concept_code = c.code)
		 ORDER BY c.code`, name)
	if err != nil {
		return nil, fmt.Errorf("find referenced concepts: %w", err)
	}
	return collectConcepts(rows)
}

func (r *repoPG) SearchComponent(ctx context.Context, fragment string, limit, offset int) ([]*Concept, int, error) {
	pattern := "%" + fragment + "%"

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM concept WHERE component ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count concept search: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+conceptCols+` FROM concept WHERE component ILIKE $1
		 ORDER BY component, code LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search concepts: %w", err)
	}
	concepts, err := collectConcepts(rows)
	return concepts, total, err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Concept, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM concept`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count concepts: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+conceptCols+` FROM concept ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list concepts: %w", err)
	}
	concepts, err := collectConcepts(rows)
	return concepts, total, err
}

func collectConcepts(rows pgx.Rows) ([]*Concept, error) {
	defer rows.Close()
	var concepts []*Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		concepts = append(concepts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate concepts: %w", err)
	}
	return concepts, nil
}
