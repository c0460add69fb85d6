package service

import (
	"context"
	"sort"
	"sync"

	"github.com/fjod/go_shop/product-service/internal/domain"
	"github.com/fjod/go_shop/product-service/internal/repository"
	"github.com/shopspring/decimal"
)

// mockRepository keeps products in memory. Finders that Elasticsearch
// answers with a query are good enough here as simple filters.
type mockRepository struct {
	mu       sync.Mutex
	products map[string]*domain.Product

	findCalls int
	saves     int
	// findGate, when set, blocks FindByID until closed.
	findGate    chan struct{}
	findEntered chan struct{}

	listErr error
	saveErr error
}

var _ repository.ProductRepository = (*mockRepository)(nil)

func newMockRepository() *mockRepository {
	return &mockRepository{products: map[string]*domain.Product{}}
}

func (m *mockRepository) put(p *domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.products[p.ID] = &cp
}

func (m *mockRepository) stored(id string) *domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (m *mockRepository) EnsureIndex(context.Context) error { return nil }

func (m *mockRepository) Save(_ context.Context, p *domain.Product) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	m.saves++
	m.mu.Unlock()
	m.put(p)
	return nil
}

func (m *mockRepository) SaveAll(ctx context.Context, products []*domain.Product) error {
	for _, p := range products {
		if err := m.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockRepository) FindByID(_ context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	m.findCalls++
	gate, entered := m.findGate, m.findEntered
	m.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	if p := m.stored(id); p != nil {
		return p, nil
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockRepository) filter(keep func(*domain.Product) bool) ([]*domain.Product, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*domain.Product{}
	for _, p := range m.products {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepository) FindBySKU(_ context.Context, sku string) (*domain.Product, error) {
	out, err := m.filter(func(p *domain.Product) bool { return p.SKU == sku })
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, repository.ErrProductNotFound
	}
	return out[0], nil
}

func (m *mockRepository) FindAll(context.Context) ([]*domain.Product, error) {
	return m.filter(func(*domain.Product) bool { return true })
}

func (m *mockRepository) FindPage(_ context.Context, page, size int) (*repository.Page, error) {
	all, err := m.filter(func(*domain.Product) bool { return true })
	if err != nil {
		return nil, err
	}
	from := min(page*size, len(all))
	to := min(from+size, len(all))
	return &repository.Page{
		Content:       all[from:to],
		TotalElements: int64(len(all)),
		TotalPages:    (len(all) + size - 1) / size,
		Number:        page,
		Size:          size,
	}, nil
}

func (m *mockRepository) SearchByName(_ context.Context, name string) ([]*domain.Product, error) {
	return m.filter(func(p *domain.Product) bool { return p.Name == name })
}

func (m *mockRepository) FindByCategory(_ context.Context, category string) ([]*domain.Product, error) {
	return m.filter(func(p *domain.Product) bool { return p.Category == category })
}

func (m *mockRepository) FindByBrand(_ context.Context, brand string) ([]*domain.Product, error) {
	return m.filter(func(p *domain.Product) bool { return p.Brand == brand })
}

func (m *mockRepository) FindByTag(_ context.Context, tag string) ([]*domain.Product, error) {
	return m.filter(func(p *domain.Product) bool {
		for _, t := range p.Tags {
			if t == tag {
				return true
			}
		}
		return false
	})
}

func (m *mockRepository) FindByPriceRange(_ context.Context, minPrice, maxPrice decimal.Decimal) ([]*domain.Product, error) {
	return m.filter(func(p *domain.Product) bool {
		return p.Price.GreaterThanOrEqual(minPrice) && p.Price.LessThanOrEqual(maxPrice)
	})
}

func (m *mockRepository) FindInStock(context.Context) ([]*domain.Product, error) {
	return m.filter(func(p *domain.Product) bool { return p.Stock > 0 })
}

func (m *mockRepository) sorted(out []*domain.Product, err error, less func(a, b *domain.Product) bool, limit int) ([]*domain.Product, error) {
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepository) FindTopRated(_ context.Context, limit int) ([]*domain.Product, error) {
	out, err := m.filter(func(*domain.Product) bool { return true })
	return m.sorted(out, err, func(a, b *domain.Product) bool { return a.Rating > b.Rating }, limit)
}

func (m *mockRepository) FindLatest(_ context.Context, limit int) ([]*domain.Product, error) {
	out, err := m.filter(func(*domain.Product) bool { return true })
	return m.sorted(out, err, func(a, b *domain.Product) bool { return a.CreatedAt.After(b.CreatedAt) }, limit)
}

func (m *mockRepository) FindRecommended(_ context.Context, category string, minRating float64, limit int) ([]*domain.Product, error) {
	out, err := m.filter(func(p *domain.Product) bool { return p.Category == category && p.Rating >= minRating })
	return m.sorted(out, err, func(a, b *domain.Product) bool { return a.Rating > b.Rating }, limit)
}

func (m *mockRepository) Exists(_ context.Context, id string) (bool, error) {
	return m.stored(id) != nil, nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}
