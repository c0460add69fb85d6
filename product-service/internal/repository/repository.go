package repository

import (
	"context"
	"errors"

	"github.com/fjod/go_shop/product-service/internal/domain"
	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

// Page is one slice of a paginated listing. Number is zero-based.
type Page struct {
	Content       []*domain.Product `json:"content"`
	TotalElements int64             `json:"totalElements"`
	TotalPages    int               `json:"totalPages"`
	Number        int               `json:"number"`
	Size          int               `json:"size"`
}

type ProductRepository interface {
	EnsureIndex(ctx context.Context) error
	Save(ctx context.Context, p *domain.Product) error
	SaveAll(ctx context.Context, products []*domain.Product) error
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	FindBySKU(ctx context.Context, sku string) (*domain.Product, error)
	FindAll(ctx context.Context) ([]*domain.Product, error)
	FindPage(ctx context.Context, page, size int) (*Page, error)
	SearchByName(ctx context.Context, name string) ([]*domain.Product, error)
	FindByCategory(ctx context.Context, category string) ([]*domain.Product, error)
	FindByBrand(ctx context.Context, brand string) ([]*domain.Product, error)
	FindByTag(ctx context.Context, tag string) ([]*domain.Product, error)
	FindByPriceRange(ctx context.Context, minPrice, maxPrice decimal.Decimal) ([]*domain.Product, error)
	FindInStock(ctx context.Context) ([]*domain.Product, error)
	FindTopRated(ctx context.Context, limit int) ([]*domain.Product, error)
	FindLatest(ctx context.Context, limit int) ([]*domain.Product, error)
	FindRecommended(ctx context.Context, category string, minRating float64, limit int) ([]*domain.Product, error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}
