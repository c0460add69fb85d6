package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_shop/orders-service/internal/alert"
	"github.com/fjod/go_shop/orders-service/internal/domain"
	"github.com/fjod/go_shop/orders-service/internal/repository"
)

type mockRepository struct {
	m        sync.Mutex
	orders   map[int64]*domain.Order
	nextID   int64
	err      error
	createFn func(*domain.Order) error
	updates  int
}

func newMockRepository() *mockRepository {
	return &mockRepository{orders: map[int64]*domain.Order{}}
}

func clone(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	return &c
}

func (m *mockRepository) put(o *domain.Order) *domain.Order {
	m.m.Lock()
	defer m.m.Unlock()
	m.nextID++
	o.ID = m.nextID
	m.orders[o.ID] = clone(o)
	return o
}

func (m *mockRepository) stored(id int64) *domain.Order {
	m.m.Lock()
	defer m.m.Unlock()
	return m.orders[id]
}

func (m *mockRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	if m.createFn != nil {
		if err := m.createFn(order); err != nil {
			return err
		}
	}
	if m.err != nil {
		return m.err
	}
	m.put(order)
	return nil
}

func (m *mockRepository) GetOrderByID(_ context.Context, id int64) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return clone(o), nil
}

func (m *mockRepository) GetOrderByOrderID(_ context.Context, orderID string) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, o := range m.orders {
		if o.OrderID == orderID {
			return clone(o), nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockRepository) filter(keep func(*domain.Order) bool) ([]*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*domain.Order, 0)
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepository) ListOrders(context.Context) ([]*domain.Order, error) {
	return m.filter(func(*domain.Order) bool { return true })
}

func (m *mockRepository) ListOrdersByUserID(_ context.Context, userID int64) ([]*domain.Order, error) {
	return m.filter(func(o *domain.Order) bool { return o.UserID == userID })
}

func (m *mockRepository) ListByStatusBefore(_ context.Context, status domain.OrderStatus, threshold time.Time) ([]*domain.Order, error) {
	return m.filter(func(o *domain.Order) bool { return o.Status == status && o.OrderTime.Before(threshold) })
}

func (m *mockRepository) UpdateOrder(_ context.Context, order *domain.Order) error {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.orders[order.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	m.updates++
	m.orders[order.ID] = clone(order)
	return nil
}

func (m *mockRepository) UpdateStatus(_ context.Context, id int64, status domain.OrderStatus) error {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	m.updates++
	o.Status = status
	return nil
}

func (m *mockRepository) DeleteOrder(_ context.Context, id int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.orders[id]; !ok {
		return repository.ErrOrderNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *mockRepository) RunMigrations(*repository.Credentials) error { return nil }

func (m *mockRepository) Close() error { return nil }

type recordingSink struct {
	m      sync.Mutex
	alerts []alert.Alert
	err    error
}

func (s *recordingSink) Emit(_ context.Context, a alert.Alert) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.alerts = append(s.alerts, a)
	return s.err
}
