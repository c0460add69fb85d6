package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_shop/orders-service/internal/alert"
	"github.com/fjod/go_shop/orders-service/internal/domain"
	"github.com/fjod/go_shop/orders-service/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const AnomalyReasonPendingTooLong = "Order pending payment for too long."

// OrderUpdate carries the fields of a generic update; nil means keep.
type OrderUpdate struct {
	UserID          *int64
	TotalAmount     *decimal.Decimal
	ShippingAddress *string
	Status          *string
}

type OrderService struct {
	repo  repository.OrderRepository
	sink  alert.Sink
	log   logrus.FieldLogger
	clock func() time.Time
}

func NewOrderService(repo repository.OrderRepository, sink alert.Sink, log logrus.FieldLogger) *OrderService {
	return &OrderService{
		repo:  repo,
		sink:  sink,
		log:   log,
		clock: time.Now,
	}
}

func (s *OrderService) GetAllOrders(ctx context.Context) ([]*domain.Order, error) {
	return s.repo.ListOrders(ctx)
}

func (s *OrderService) GetOrderByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.repo.GetOrderByOrderID(ctx, orderID)
}

func (s *OrderService) FindOrdersByUserID(ctx context.Context, userID int64) ([]*domain.Order, error) {
	return s.repo.ListOrdersByUserID(ctx, userID)
}

// CreateOrder assigns id, time, status and total, then stores the order.
// A business id collision surfaces as repository.ErrDuplicateOrderID.
func (s *OrderService) CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := order.ValidateAmounts(); err != nil {
		return nil, err
	}
	order.Place(s.clock())

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": order.OrderID,
		"user_id":  order.UserID,
		"total":    order.TotalAmount.StringFixed(2),
	}).Info("order created")
	return order, nil
}

// SimulatePayment reports false when the order is unknown or not awaiting payment.
func (s *OrderService) SimulatePayment(ctx context.Context, orderID string) (bool, error) {
	order, err := s.repo.GetOrderByOrderID(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !order.MarkPaid() {
		return false, nil
	}
	if err := s.repo.UpdateStatus(ctx, order.ID, order.Status); err != nil {
		return false, fmt.Errorf("store paid status: %w", err)
	}

	s.log.WithField("order_id", orderID).Info("order paid")
	return true, nil
}

func (s *OrderService) UpdateOrder(ctx context.Context, orderID string, upd OrderUpdate) (*domain.Order, error) {
	order, err := s.repo.GetOrderByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if upd.Status != nil {
		if err := order.TransitionTo(*upd.Status); err != nil {
			return nil, err
		}
	}
	if upd.UserID != nil {
		order.UserID = *upd.UserID
	}
	if upd.TotalAmount != nil {
		if err := order.SetTotal(*upd.TotalAmount); err != nil {
			return nil, err
		}
	}
	if upd.ShippingAddress != nil {
		order.ShippingAddress = *upd.ShippingAddress
	}

	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateOrderStatus applies the revert guard and stores the new status.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID, newStatus string) (*domain.Order, error) {
	order, err := s.repo.GetOrderByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	previous := order.Status
	if err := order.TransitionTo(newStatus); err != nil {
		s.log.WithError(err).WithField("order_id", orderID).Warn("order status change rejected")
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, order.ID, order.Status); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"from":     previous,
		"to":       order.Status,
	}).Info("order status updated")
	return order, nil
}

func (s *OrderService) DeleteOrder(ctx context.Context, id int64) error {
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		return err
	}
	s.log.WithField("id", id).Info("order deleted")
	return nil
}

func (s *OrderService) DeleteOrderByOrderID(ctx context.Context, orderID string) error {
	order, err := s.repo.GetOrderByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteOrder(ctx, order.ID); err != nil {
		return err
	}
	s.log.WithField("order_id", orderID).Info("order deleted")
	return nil
}

// FindLongPendingPaymentOrders returns orders still awaiting payment that
// were placed more than age ago.
func (s *OrderService) FindLongPendingPaymentOrders(ctx context.Context, age time.Duration) ([]*domain.Order, error) {
	threshold := s.clock().Add(-age)
	return s.repo.ListByStatusBefore(ctx, domain.OrderStatusPendingPayment, threshold)
}

// MarkOrderAsAbnormal emits an alert for the order. Stored state is never
// changed; an unknown order id is ignored.
func (s *OrderService) MarkOrderAsAbnormal(ctx context.Context, orderID, reason string) error {
	order, err := s.repo.GetOrderByOrderID(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.sink.Emit(ctx, alert.New(order, reason, s.clock()))
}
