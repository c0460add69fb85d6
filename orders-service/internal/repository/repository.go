package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_shop/orders-service/internal/domain"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrDuplicateOrderID = errors.New("order with this order id already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id int64) (*domain.Order, error)
	GetOrderByOrderID(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID int64) ([]*domain.Order, error)
	// ListByStatusBefore returns orders in status placed strictly before threshold.
	ListByStatusBefore(ctx context.Context, status domain.OrderStatus, threshold time.Time) ([]*domain.Order, error)
	UpdateOrder(ctx context.Context, order *domain.Order) error
	UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error
	DeleteOrder(ctx context.Context, id int64) error
	RunMigrations(*Credentials) error
	Close() error
}
