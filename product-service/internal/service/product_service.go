package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_shop/product-service/internal/domain"
	"github.com/fjod/go_shop/product-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	RecommendedMinRating = 4.0
	DefaultLimit         = 10
)

var (
	ErrInvalidPage       = fmt.Errorf("page must be >= 0, size > 0 and (page+1)*size <= %d", repository.MaxResultWindow)
	ErrInvalidLimit      = errors.New("limit must be > 0")
	ErrInvalidPriceRange = errors.New("minPrice must not exceed maxPrice")
)

type ProductService struct {
	repo  repository.ProductRepository
	log   logrus.FieldLogger
	clock func() time.Time
	sfg   singleflight.Group // coalesces concurrent reads of one id
}

func NewProductService(repo repository.ProductRepository, log logrus.FieldLogger) *ProductService {
	return &ProductService{
		repo:  repo,
		log:   log,
		clock: time.Now,
	}
}

func (s *ProductService) prepareNew(p *domain.Product, now time.Time) error {
	if p.Status != "" {
		if _, err := domain.ParseStatus(string(p.Status)); err != nil {
			return err
		}
	}
	p.InitDefaults(uuid.NewString(), now)
	return nil
}

func (s *ProductService) CreateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	if err := s.prepareNew(p, s.clock().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"product_id": p.ID,
		"sku":        p.SKU,
	}).Info("product created")
	return p, nil
}

func (s *ProductService) CreateProducts(ctx context.Context, products []*domain.Product) ([]*domain.Product, error) {
	now := s.clock().UTC()
	for _, p := range products {
		if err := s.prepareNew(p, now); err != nil {
			return nil, err
		}
	}
	if err := s.repo.SaveAll(ctx, products); err != nil {
		return nil, err
	}

	s.log.WithField("count", len(products)).Info("products created")
	return products, nil
}

func (s *ProductService) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	v, err, _ := s.sfg.Do(id, func() (interface{}, error) {
		return s.repo.FindByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	// callers may mutate the product, so each gets its own copy
	p := *v.(*domain.Product)
	p.Tags = append([]string(nil), p.Tags...)
	return &p, nil
}

func (s *ProductService) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return s.repo.FindBySKU(ctx, sku)
}

func (s *ProductService) GetAllProducts(ctx context.Context) ([]*domain.Product, error) {
	return s.repo.FindAll(ctx)
}

func (s *ProductService) GetProductsPage(ctx context.Context, page, size int) (*repository.Page, error) {
	if page < 0 || size <= 0 || size > repository.MaxResultWindow || page >= repository.MaxResultWindow/size {
		return nil, ErrInvalidPage
	}
	return s.repo.FindPage(ctx, page, size)
}

func (s *ProductService) SearchProductsByName(ctx context.Context, name string) ([]*domain.Product, error) {
	return s.repo.SearchByName(ctx, name)
}

func (s *ProductService) GetProductsByCategory(ctx context.Context, category string) ([]*domain.Product, error) {
	return s.repo.FindByCategory(ctx, category)
}

func (s *ProductService) GetProductsByBrand(ctx context.Context, brand string) ([]*domain.Product, error) {
	return s.repo.FindByBrand(ctx, brand)
}

func (s *ProductService) GetProductsByTag(ctx context.Context, tag string) ([]*domain.Product, error) {
	return s.repo.FindByTag(ctx, tag)
}

func (s *ProductService) GetProductsByPriceRange(ctx context.Context, minPrice, maxPrice decimal.Decimal) ([]*domain.Product, error) {
	if minPrice.GreaterThan(maxPrice) {
		return nil, ErrInvalidPriceRange
	}
	return s.repo.FindByPriceRange(ctx, minPrice, maxPrice)
}

func (s *ProductService) GetAvailableProducts(ctx context.Context) ([]*domain.Product, error) {
	return s.repo.FindInStock(ctx)
}

// GetTopRatedProducts, GetLatestProducts and GetRecommendedProducts are
// storefront widgets: a store failure is logged and yields an empty list.

func (s *ProductService) GetTopRatedProducts(ctx context.Context, limit int) ([]*domain.Product, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	products, err := s.repo.FindTopRated(ctx, limit)
	return s.orEmpty(products, err, "top rated")
}

func (s *ProductService) GetLatestProducts(ctx context.Context, limit int) ([]*domain.Product, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	products, err := s.repo.FindLatest(ctx, limit)
	return s.orEmpty(products, err, "latest")
}

func (s *ProductService) GetRecommendedProducts(ctx context.Context, category string, limit int) ([]*domain.Product, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	products, err := s.repo.FindRecommended(ctx, category, RecommendedMinRating, limit)
	return s.orEmpty(products, err, "recommended")
}

func (s *ProductService) orEmpty(products []*domain.Product, err error, listing string) ([]*domain.Product, error) {
	if err != nil {
		s.log.WithError(err).WithField("listing", listing).Warn("product listing failed, returning empty list")
		return []*domain.Product{}, nil
	}
	return products, nil
}

// UpdateProduct replaces every field but id and creation time. An empty
// status keeps the stored one.
func (s *ProductService) UpdateProduct(ctx context.Context, id string, p *domain.Product) (*domain.Product, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Status == "" {
		p.Status = existing.Status
	} else if _, err := domain.ParseStatus(string(p.Status)); err != nil {
		return nil, err
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.ID = id
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.clock().UTC()

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProductService) UpdateStock(ctx context.Context, id string, stock int) (*domain.Product, error) {
	return s.modify(ctx, id, func(p *domain.Product, now time.Time) error {
		p.ApplyStock(stock, now)
		return nil
	})
}

func (s *ProductService) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (*domain.Product, error) {
	return s.modify(ctx, id, func(p *domain.Product, now time.Time) error {
		p.SetPrice(price, now)
		return nil
	})
}

func (s *ProductService) UpdateStatus(ctx context.Context, id, status string) (*domain.Product, error) {
	if _, err := domain.ParseStatus(status); err != nil {
		return nil, err
	}
	return s.modify(ctx, id, func(p *domain.Product, now time.Time) error {
		return p.SetStatus(status, now)
	})
}

func (s *ProductService) modify(ctx context.Context, id string, apply func(*domain.Product, time.Time) error) (*domain.Product, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	prev := p.Status
	if err := apply(p, s.clock().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}

	if prev != p.Status {
		s.log.WithFields(logrus.Fields{
			"product_id": id,
			"from":       prev,
			"to":         p.Status,
		}).Info("product status changed")
	}
	return p, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("delete product %s: %w", id, repository.ErrProductNotFound)
	}
	return s.repo.Delete(ctx, id)
}
