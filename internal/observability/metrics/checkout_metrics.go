package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	catalogdomain "github.com/smallbiznis/martpos/internal/catalog/domain"
	"gorm.io/gorm"
)

const (
	CheckoutReasonInsufficientStock    = "insufficient_stock"
	CheckoutReasonProductNotFound      = "product_not_found"
	CheckoutReasonDeadlineExceeded     = "deadline_exceeded"
	CheckoutReasonDBLockTimeout        = "db_lock_timeout"
	CheckoutReasonSerializationFailure = "serialization_failure"
	CheckoutReasonUniqueViolation      = "unique_violation"
	CheckoutReasonUnknown              = "unknown"
)

// CheckoutMetrics tracks bill creation latency and why checkouts fail.
type CheckoutMetrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) (*CheckoutMetrics, error) {
	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "martpos_checkout_duration_seconds",
		Help:    "Bill creation latency including the stock transaction.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}
	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "martpos_checkout_failures_total",
		Help: "Failed bill creations by reason.",
	}, []string{"reason"}))
	if err != nil {
		return nil, err
	}
	return &CheckoutMetrics{duration: duration, failures: failures}, nil
}

// Observe records one checkout attempt that started at start.
func (m *CheckoutMetrics) Observe(start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
		m.failures.WithLabelValues(ClassifyCheckoutFailure(err)).Inc()
	}
	m.duration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func ClassifyCheckoutFailure(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, catalogdomain.ErrInsufficientStock):
		return CheckoutReasonInsufficientStock
	case errors.Is(err, catalogdomain.ErrNotFound):
		return CheckoutReasonProductNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return CheckoutReasonDeadlineExceeded
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return CheckoutReasonUniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return CheckoutReasonDBLockTimeout
		case "40001", "40P01":
			return CheckoutReasonSerializationFailure
		case "23505":
			return CheckoutReasonUniqueViolation
		}
	}
	return CheckoutReasonUnknown
}
