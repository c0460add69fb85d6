package repository

import (
	"context"
	"errors"

	"github.com/fjod/go_shop/payment-service/internal/domain"
)

var ErrPaymentNotFound = errors.New("payment not found")

type PaymentRepository interface {
	Save(ctx context.Context, p *domain.Payment) error
	FindByID(ctx context.Context, id string) (*domain.Payment, error)
	FindAll(ctx context.Context) ([]*domain.Payment, error)
	FindByUserID(ctx context.Context, userID string) ([]*domain.Payment, error)
	FindByStatus(ctx context.Context, status domain.Status) ([]*domain.Payment, error)
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id string) error
}
