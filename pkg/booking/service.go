package booking

import (
	"context"
	"fmt"
	"time"
)

// Service orchestrates booking, cancellation, check-in, waitlisting, and the
// refund sweep over a Store, a ResourceLock, and a clock.
type Service struct {
	store       Store
	locks       ResourceLock
	nowFn       func() time.Time
	logger      OperationLogger
	notifier    Notifier
	charger     PaymentCharger
	lockTTL     time.Duration
	sweepPeriod time.Duration
}

// NewService wires a Service.
func NewService(store Store, locks ResourceLock, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if locks == nil {
		return nil, fmt.Errorf("%w: lock dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:       store,
		locks:       locks,
		nowFn:       now,
		lockTTL:     DefaultLockTTL,
		sweepPeriod: DefaultSweepPeriod,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// BookClass books one slot in a class for the user, debiting the
// earliest-expiring qualifying balance. The capacity check and the debit run
// under the per-class lock so two callers cannot both take the last slot.
func (service *Service) BookClass(ctx context.Context, userID string, classID string) (Booking, error) {
	var booked Booking
	acquired, operationError := service.locks.TryAcquire(ctx, classLockKey(classID), service.lockTTL)
	if operationError == nil && !acquired {
		operationError = ErrClassLocked
	}
	if operationError == nil {
		booked, operationError = service.bookClassLocked(ctx, userID, classID)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationBook,
		UserID:    userID,
		ClassID:   classID,
		BookingID: booked.ID,
		BalanceID: booked.CreditBalanceID,
		Error:     operationError,
	})
	if operationError != nil {
		return Booking{}, operationError
	}
	service.publish(ctx, eventBookingCreated, booked)
	return booked, nil
}

// bookClassLocked runs the validate-debit-persist sequence. The caller has
// already acquired the class lock; it is released here on every exit path.
func (service *Service) bookClassLocked(ctx context.Context, userID string, classID string) (Booking, error) {
	defer func() { _ = service.locks.Release(ctx, classLockKey(classID)) }()

	now := service.nowFn()
	var created Booking
	err := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		slot, err := txStore.GetClassSlot(ctx, classID)
		if err != nil {
			return err
		}
		if err := validateNotBookedOrWaitlisted(ctx, txStore, userID, classID); err != nil {
			return err
		}
		overlaps, err := txStore.HasOverlappingBooking(ctx, userID, slot.StartTime, slot.EndTime)
		if err != nil {
			return err
		}
		if overlaps {
			return ErrOverlappingBooking
		}
		currentBookings, err := txStore.CountBookings(ctx, classID, StatusBooked)
		if err != nil {
			return err
		}
		if currentBookings >= slot.Capacity {
			return ErrClassFull
		}
		balance, err := NewCreditLedger(txStore).SelectAndDebit(ctx, userID, slot.Country, slot.RequiredCredits, now)
		if err != nil {
			return err
		}
		created, err = txStore.CreateBooking(ctx, Booking{
			UserID:          userID,
			ClassID:         classID,
			CreditBalanceID: balance.ID,
			Status:          StatusBooked,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		return err
	})
	if err != nil {
		return Booking{}, err
	}
	return created, nil
}

// CancelBooking cancels a BOOKED booking owned by userID, refunding the
// debited credits when the cancellation lands more than four hours before the
// class starts. A freed slot triggers one waitlist promotion round, outside
// the class lock.
func (service *Service) CancelBooking(ctx context.Context, bookingID string, userID string) (bool, error) {
	now := service.nowFn()
	refunded := false
	var classID string
	var balanceID string
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		record, err := txStore.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if record.UserID != userID {
			return ErrNotOwner
		}
		if record.Status != StatusBooked {
			return ErrNotBooked
		}
		slot, err := txStore.GetClassSlot(ctx, record.ClassID)
		if err != nil {
			return err
		}
		classID = slot.ID
		balanceID = record.CreditBalanceID
		if err := txStore.UpdateBookingStatus(ctx, bookingID, StatusBooked, StatusCancelled); err != nil {
			return err
		}
		if now.Before(slot.StartTime.Add(-refundCutoff)) {
			if err := NewCreditLedger(txStore).Refund(ctx, record.CreditBalanceID, slot.RequiredCredits); err != nil {
				return err
			}
			refunded = true
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCancel,
		UserID:    userID,
		ClassID:   classID,
		BookingID: bookingID,
		BalanceID: balanceID,
		Refunded:  refunded,
		Error:     operationError,
	})
	if operationError != nil {
		return false, operationError
	}
	service.publish(ctx, eventBookingCancelled, map[string]any{
		"booking_id": bookingID,
		"class_id":   classID,
		"user_id":    userID,
		"refunded":   refunded,
	})
	// The promotion runs after the cancellation commits and without the class
	// lock: a concurrent fresh booking may take the freed slot first. A failed
	// round does not fail the cancellation, but it is recorded against the
	// cancel so the trigger stays traceable.
	if _, _, promoteErr := service.Promote(ctx, classID); promoteErr != nil {
		service.logOperation(ctx, OperationLog{
			Operation: operationCancel,
			UserID:    userID,
			ClassID:   classID,
			BookingID: bookingID,
			Error:     fmt.Errorf("waitlist promotion after cancel: %w", promoteErr),
		})
	}
	return refunded, nil
}

// CheckIn marks a BOOKED booking CHECKED_IN when called between 30 minutes
// before the class starts and the class end, bounds inclusive.
func (service *Service) CheckIn(ctx context.Context, bookingID string, userID string) error {
	now := service.nowFn()
	var classID string
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		record, err := txStore.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if record.UserID != userID {
			return ErrNotOwner
		}
		if record.Status != StatusBooked {
			return ErrNotBooked
		}
		slot, err := txStore.GetClassSlot(ctx, record.ClassID)
		if err != nil {
			return err
		}
		classID = slot.ID
		if now.Before(slot.StartTime.Add(-checkInEarlyWindow)) || now.After(slot.EndTime) {
			return ErrOutsideCheckInWindow
		}
		return txStore.UpdateBookingStatus(ctx, bookingID, StatusBooked, StatusCheckedIn)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCheckIn,
		UserID:    userID,
		ClassID:   classID,
		BookingID: bookingID,
		Error:     operationError,
	})
	if operationError != nil {
		return operationError
	}
	service.publish(ctx, eventBookingCheckedIn, map[string]any{
		"booking_id": bookingID,
		"class_id":   classID,
		"user_id":    userID,
	})
	return nil
}

// ListUpcomingClasses returns classes for a country that have not started
// yet, each with its current number of BOOKED bookings.
func (service *Service) ListUpcomingClasses(ctx context.Context, country Country) ([]ClassListing, error) {
	slots, err := service.store.ListUpcomingClasses(ctx, country, service.nowFn())
	if err != nil {
		return nil, err
	}
	listings := make([]ClassListing, 0, len(slots))
	for _, slot := range slots {
		bookedCount, err := service.store.CountBookings(ctx, slot.ID, StatusBooked)
		if err != nil {
			return nil, err
		}
		listings = append(listings, ClassListing{ClassSlot: slot, BookedCount: bookedCount})
	}
	return listings, nil
}

// MyBookings returns all bookings for a user, any status.
func (service *Service) MyBookings(ctx context.Context, userID string) ([]Booking, error) {
	return service.store.ListBookingsByUser(ctx, userID)
}

// MyBalances returns all credit balances for a user, expired ones included.
func (service *Service) MyBalances(ctx context.Context, userID string) ([]CreditBalance, error) {
	return service.store.ListBalancesByUser(ctx, userID)
}

func validateNotBookedOrWaitlisted(ctx context.Context, txStore Store, userID string, classID string) error {
	alreadyBooked, err := txStore.HasBooking(ctx, userID, classID, StatusBooked)
	if err != nil {
		return err
	}
	if alreadyBooked {
		return ErrAlreadyBooked
	}
	alreadyWaiting, err := txStore.HasWaitlistEntry(ctx, userID, classID, WaitlistWaiting)
	if err != nil {
		return err
	}
	if alreadyWaiting {
		return ErrAlreadyWaitlisted
	}
	return nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func (service *Service) publish(ctx context.Context, routingKey string, payload any) {
	if service.notifier == nil {
		return
	}
	if err := service.notifier.Publish(ctx, routingKey, payload); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation: routingKey,
			Status:    operationStatusError,
			Error:     err,
		})
	}
}
