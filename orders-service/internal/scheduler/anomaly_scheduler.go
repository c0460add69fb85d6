package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_shop/orders-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	DefaultInterval  = 5 * time.Minute
	DefaultThreshold = 10 * time.Minute
)

type Detector interface {
	FindLongPendingPaymentOrders(ctx context.Context, age time.Duration) ([]*domain.Order, error)
	MarkOrderAsAbnormal(ctx context.Context, orderID, reason string) error
}

type metrics struct {
	detected prometheus.Counter
	sweeps   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		detected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stale_orders_detected_total",
			Help: "Orders reported as pending payment for too long. Re-reported on every sweep.",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anomaly_sweeps_total",
			Help: "Stale order sweeps by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.detected, m.sweeps)
	}
	return m
}

// AnomalyScheduler periodically reports orders stuck in PENDING_PAYMENT.
// Every tick re-detects all matching orders; nothing is deduplicated.
type AnomalyScheduler struct {
	detector  Detector
	reason    string
	interval  time.Duration
	threshold time.Duration
	log       logrus.FieldLogger
	metrics   *metrics
}

func NewAnomalyScheduler(detector Detector, reason string, interval, threshold time.Duration, reg prometheus.Registerer, log logrus.FieldLogger) *AnomalyScheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &AnomalyScheduler{
		detector:  detector,
		reason:    reason,
		interval:  interval,
		threshold: threshold,
		log:       log,
		metrics:   newMetrics(reg),
	}
}

// Run blocks until ctx is cancelled. The first sweep happens one interval
// after start.
func (s *AnomalyScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithFields(logrus.Fields{
		"interval":  s.interval.String(),
		"threshold": s.threshold.String(),
	}).Info("anomaly scheduler started")

	for {
		select {
		case <-ticker.C:
			s.runCycle(ctx)
		case <-ctx.Done():
			s.log.Info("anomaly scheduler stopped")
			return
		}
	}
}

func (s *AnomalyScheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.sweeps.WithLabelValues("panic").Inc()
			s.log.WithField("panic", fmt.Sprint(r)).Error("anomaly sweep panicked")
		}
	}()

	if _, err := s.Sweep(ctx); err != nil {
		s.log.WithError(err).Error("anomaly sweep failed")
	}
}

// Sweep runs one detection pass and returns how many orders were reported.
func (s *AnomalyScheduler) Sweep(ctx context.Context) (int, error) {
	s.log.Debug("checking for long pending payment orders")

	orders, err := s.detector.FindLongPendingPaymentOrders(ctx, s.threshold)
	if err != nil {
		s.metrics.sweeps.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("find pending orders: %w", err)
	}

	if len(orders) == 0 {
		s.metrics.sweeps.WithLabelValues("ok").Inc()
		s.log.Debug("no long pending payment orders found")
		return 0, nil
	}

	s.log.WithField("count", len(orders)).Info("found abnormal pending orders")
	reported := 0
	for _, o := range orders {
		if err := s.detector.MarkOrderAsAbnormal(ctx, o.OrderID, s.reason); err != nil {
			s.log.WithError(err).WithField("order_id", o.OrderID).Error("failed to report abnormal order")
			continue
		}
		reported++
	}

	s.metrics.detected.Add(float64(reported))
	s.metrics.sweeps.WithLabelValues("ok").Inc()
	return reported, nil
}
