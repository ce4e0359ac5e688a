package booking

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing booking operation.
type OperationLog struct {
	Operation string
	UserID    string
	ClassID   string
	BookingID string
	EntryID   string
	BalanceID string
	Credits   int
	Refunded  bool
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithNotifier wires a publisher for booking lifecycle events.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(service *Service) {
		service.notifier = notifier
	}
}

// WithPaymentCharger wires the gateway used by package purchases.
func WithPaymentCharger(charger PaymentCharger) ServiceOption {
	return func(service *Service) {
		service.charger = charger
	}
}

// WithLockTTL overrides the per-class lock expiry.
func WithLockTTL(ttl time.Duration) ServiceOption {
	return func(service *Service) {
		if ttl > 0 {
			service.lockTTL = ttl
		}
	}
}

// WithSweepPeriod overrides the refund sweep cadence.
func WithSweepPeriod(period time.Duration) ServiceOption {
	return func(service *Service) {
		if period > 0 {
			service.sweepPeriod = period
		}
	}
}
