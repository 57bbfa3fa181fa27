package catalog

import "context"

// Repository persists catalog concepts.
type Repository interface {
	Create(ctx context.Context, c *Concept) error
	GetByCode(ctx context.Context, code string) (*Concept, error)
	// FindByComponent returns all concepts whose component matches name
	// case-insensitively.
	FindByComponent(ctx context.Context, name string) ([]*Concept, error)
	// FindReferencedByComponent is FindByComponent narrowed to concepts that
	// have at least one measurement in the ledger.
	FindReferencedByComponent(ctx context.Context, name string) ([]*Concept, error)
	SearchComponent(ctx context.Context, fragment string, limit, offset int) ([]*Concept, int, error)
	List(ctx context.Context, limit, offset int) ([]*Concept, int, error)
}
