package alert

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_shop/orders-service/internal/domain"
	"github.com/sirupsen/logrus"
)

// Alert is the advisory record emitted for an abnormal order.
// Status is always ANOMALY; the stored order is not touched.
type Alert struct {
	OrderID    string             `json:"order_id"`
	UserID     int64              `json:"user_id"`
	Status     domain.OrderStatus `json:"status"`
	Reason     string             `json:"reason"`
	OrderTime  time.Time          `json:"order_time"`
	DetectedAt time.Time          `json:"detected_at"`
}

func New(order *domain.Order, reason string, now time.Time) Alert {
	return Alert{
		OrderID:    order.OrderID,
		UserID:     order.UserID,
		Status:     domain.OrderStatusAnomaly,
		Reason:     reason,
		OrderTime:  order.OrderTime,
		DetectedAt: now,
	}
}

type Sink interface {
	Emit(ctx context.Context, a Alert) error
}

// LogSink writes alerts as warn-level log entries.
type LogSink struct {
	log logrus.FieldLogger
}

func NewLogSink(log logrus.FieldLogger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, a Alert) error {
	s.log.WithFields(logrus.Fields{
		"order_id":   a.OrderID,
		"user_id":    a.UserID,
		"status":     a.Status,
		"reason":     a.Reason,
		"order_time": a.OrderTime,
	}).Warn("order is abnormal")
	return nil
}

// MultiSink emits to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
