package catalog

import (
	"context"
	"fmt"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, c *Concept) error {
	if c.Code == "" || c.Component == "" {
		return fmt.Errorf("code and component are required")
	}
	return s.repo.Create(ctx, c)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Concept, error) {
	return s.repo.GetByCode(ctx, code)
}

// ResolveComponent maps a human-readable component name to a single concept.
// The match is case-insensitive. When several concepts share the name, the
// one already referenced by ledger measurements wins; if that still leaves
// more than one candidate the name is ambiguous.
func (s *Service) ResolveComponent(ctx context.Context, name string) (*Concept, error) {
	candidates, err := s.repo.FindByComponent(ctx, name)
	if err != nil {
		return nil, err
	}
	switch len(candidates) {
	case 0:
		return nil, ErrUnknownConcept
	case 1:
		return candidates[0], nil
	}

	referenced, err := s.repo.FindReferencedByComponent(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(referenced) == 1 {
		return referenced[0], nil
	}
	return nil, fmt.Errorf("%w: component %q matches %d concepts", ErrAmbiguousConcept, name, len(candidates))
}

func (s *Service) SearchComponent(ctx context.Context, fragment string, limit, offset int) ([]*Concept, int, error) {
	return s.repo.SearchComponent(ctx, fragment, limit, offset)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Concept, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// CheckValue validates v against the concept's allowed-values list.
func (s *Service) CheckValue(ctx context.Context, code, v string) error {
	c, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if !c.AllowsValue(v) {
		return fmt.Errorf("%w: %q for concept %s", ErrValueNotAllowed, v, code)
	}
	return nil
}
