package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	products map[uuid.UUID]Product
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{products: make(map[uuid.UUID]Product)}
}

func (r *fakeRepo) List(ctx context.Context, companyID uuid.UUID, filters ListFilters) ([]Product, int, error) {
	var out []Product
	for _, p := range r.products {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (r *fakeRepo) Get(ctx context.Context, companyID, id uuid.UUID) (Product, error) {
	p, ok := r.products[id]
	if !ok || p.CompanyID != companyID {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *fakeRepo) Create(ctx context.Context, product Product) (Product, error) {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	r.products[product.ID] = product
	return product, nil
}

func (r *fakeRepo) Update(ctx context.Context, companyID, id uuid.UUID, product Product) error {
	stored, ok := r.products[id]
	if !ok || stored.CompanyID != companyID {
		return ErrProductNotFound
	}
	product.ID = id
	product.CompanyID = companyID
	product.StockQuantity = stored.StockQuantity
	r.products[id] = product
	return nil
}

func (r *fakeRepo) Deactivate(ctx context.Context, companyID, id uuid.UUID) error {
	stored, ok := r.products[id]
	if !ok || stored.CompanyID != companyID {
		return ErrProductNotFound
	}
	stored.IsActive = false
	r.products[id] = stored
	return nil
}

func TestCreateStartsAtZeroStock(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	created, err := svc.Create(context.Background(), Product{
		CompanyID:     uuid.New(),
		Name:          "Widget",
		Price:         10,
		StockQuantity: 99,
		IsActive:      true,
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), created.StockQuantity)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Product{CompanyID: uuid.New(), Name: "   "})
	require.Error(t, err)

	_, err = svc.Create(ctx, Product{Name: "Widget"})
	require.Error(t, err)

	_, err = svc.Create(ctx, Product{CompanyID: uuid.New(), Name: "Widget", Price: -1})
	require.Error(t, err)

	_, err = svc.Create(ctx, Product{CompanyID: uuid.New(), Name: "Widget", MinStockLevel: -1})
	require.Error(t, err)
}

func TestUpdatePreservesStockQuantity(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()
	companyID := uuid.New()

	created, err := svc.Create(ctx, Product{CompanyID: companyID, Name: "Widget", Price: 10, IsActive: true})
	require.NoError(t, err)

	stored := repo.products[created.ID]
	stored.StockQuantity = 42
	repo.products[created.ID] = stored

	err = svc.Update(ctx, companyID, created.ID, Product{CompanyID: companyID, Name: "Widget v2", Price: 12, IsActive: true})
	require.NoError(t, err)

	got, err := svc.Get(ctx, companyID, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Widget v2", got.Name)
	require.Equal(t, int64(42), got.StockQuantity)
}

func TestTenantScoping(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, Product{CompanyID: uuid.New(), Name: "Widget", IsActive: true})
	require.NoError(t, err)

	_, err = svc.Get(ctx, uuid.New(), created.ID)
	require.ErrorIs(t, err, ErrProductNotFound)

	err = svc.Deactivate(ctx, uuid.New(), created.ID)
	require.ErrorIs(t, err, ErrProductNotFound)
}
