package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Service exposes catalog operations. Stock quantities are read-only here;
// they move through the stock ledger only.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, companyID uuid.UUID, filters ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, companyID, filters)
}

func (s *Service) Get(ctx context.Context, companyID, id uuid.UUID) (Product, error) {
	if id == uuid.Nil {
		return Product{}, errors.New("catalog: invalid product id")
	}
	return s.repo.Get(ctx, companyID, id)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	// New products start at zero; opening stock arrives as an inward entry.
	product.StockQuantity = 0
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, companyID, id uuid.UUID, product Product) error {
	if id == uuid.Nil {
		return errors.New("catalog: invalid product id")
	}
	if err := s.validate(product); err != nil {
		return err
	}
	return s.repo.Update(ctx, companyID, id, product)
}

func (s *Service) Deactivate(ctx context.Context, companyID, id uuid.UUID) error {
	if id == uuid.Nil {
		return errors.New("catalog: invalid product id")
	}
	return s.repo.Deactivate(ctx, companyID, id)
}

func (s *Service) validate(p Product) error {
	if p.CompanyID == uuid.Nil {
		return errors.New("catalog: company is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("catalog: product name is required")
	}
	if p.Price < 0 {
		return errors.New("catalog: price must be >= 0")
	}
	if p.MinStockLevel < 0 || p.ReorderLevel < 0 {
		return errors.New("catalog: stock levels must be >= 0")
	}
	return nil
}
