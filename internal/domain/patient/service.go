package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Register(ctx context.Context, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first and last name are required")
	}
	if p.Sex == "" {
		p.Sex = SexUnknown
	}
	if !ValidSex(p.Sex) {
		return fmt.Errorf("invalid sex %q", p.Sex)
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// UpdateDemographics corrects a patient's name or sex. Demographics are not
// versioned; only measurement facts carry history.
func (s *Service) UpdateDemographics(ctx context.Context, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first and last name are required")
	}
	if !ValidSex(p.Sex) {
		return fmt.Errorf("invalid sex %q", p.Sex)
	}
	return s.repo.Update(ctx, p)
}
