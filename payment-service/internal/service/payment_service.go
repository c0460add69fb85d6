package service

import (
	"context"
	"time"

	"github.com/fjod/go_shop/payment-service/internal/domain"
	"github.com/fjod/go_shop/payment-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaymentDetails is the caller-supplied part of a payment.
// An empty Status means PENDING on create.
type PaymentDetails struct {
	OrderID string
	UserID  string
	Amount  decimal.Decimal
	Status  string
}

type PaymentService struct {
	repo  repository.PaymentRepository
	log   logrus.FieldLogger
	clock func() time.Time
}

func NewPaymentService(repo repository.PaymentRepository, log logrus.FieldLogger) *PaymentService {
	return &PaymentService{
		repo:  repo,
		log:   log,
		clock: time.Now,
	}
}

func (s *PaymentService) CreatePayment(ctx context.Context, d PaymentDetails) (*domain.Payment, error) {
	status := domain.StatusPending
	if d.Status != "" {
		st, err := domain.ParseStatus(d.Status)
		if err != nil {
			return nil, err
		}
		status = st
	}

	now := s.clock().UTC()
	p := &domain.Payment{
		ID:        uuid.NewString(),
		OrderID:   d.OrderID,
		UserID:    d.UserID,
		Amount:    d.Amount,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"payment_id": p.ID,
		"order_id":   p.OrderID,
		"status":     p.Status,
	}).Info("payment created")
	return p, nil
}

func (s *PaymentService) GetPaymentByID(ctx context.Context, id string) (*domain.Payment, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *PaymentService) GetAllPayments(ctx context.Context) ([]*domain.Payment, error) {
	return s.repo.FindAll(ctx)
}

func (s *PaymentService) GetPaymentsByUserID(ctx context.Context, userID string) ([]*domain.Payment, error) {
	return s.repo.FindByUserID(ctx, userID)
}

func (s *PaymentService) GetPaymentsByStatus(ctx context.Context, status string) ([]*domain.Payment, error) {
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByStatus(ctx, st)
}

// UpdatePayment replaces order id, amount and status. The status goes
// through the same whitelist as UpdatePaymentStatus.
func (s *PaymentService) UpdatePayment(ctx context.Context, id string, d PaymentDetails) (*domain.Payment, error) {
	st, err := domain.ParseStatus(d.Status)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	p.OrderID = d.OrderID
	p.Amount = d.Amount
	p.Status = st
	p.UpdatedAt = s.clock().UTC()
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePaymentStatus validates status before looking the payment up, so an
// invalid value is reported even for an unknown id.
func (s *PaymentService) UpdatePaymentStatus(ctx context.Context, id, status string) (*domain.Payment, error) {
	if _, err := domain.ParseStatus(status); err != nil {
		s.log.WithField("payment_id", id).WithError(err).Warn("payment status update rejected")
		return nil, err
	}

	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := p.Status
	if err := p.SetStatus(status, s.clock().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"payment_id": id,
		"from":       previous,
		"to":         p.Status,
	}).Info("payment status updated")
	return p, nil
}

// DeletePayment has no existence check and no status guard.
func (s *PaymentService) DeletePayment(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
