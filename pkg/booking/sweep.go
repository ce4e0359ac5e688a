package booking

import (
	"context"
	"errors"
	"time"
)

// RunRefundSweep refunds credits to entries still WAITING for classes that
// ended within the most recently elapsed sweep period. Each entry is refunded
// at most once: the WAITING to CREDIT_REFUNDED transition guards the credit,
// so duplicate or late ticks are harmless.
func (service *Service) RunRefundSweep(ctx context.Context) error {
	now := service.nowFn()
	return service.sweepWindow(ctx, now.Add(-service.sweepPeriod), now)
}

func (service *Service) sweepWindow(ctx context.Context, from, to time.Time) error {
	endedClasses, err := service.store.ListClassesEndedBetween(ctx, from, to)
	if err != nil {
		return err
	}
	for _, slot := range endedClasses {
		waiting, err := service.store.ListWaitingEntries(ctx, slot.ID)
		if err != nil {
			return err
		}
		for _, entry := range waiting {
			if err := service.refundWaitlistEntry(ctx, slot, entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func (service *Service) refundWaitlistEntry(ctx context.Context, slot ClassSlot, entry WaitlistEntry) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		if err := txStore.UpdateWaitlistStatus(ctx, entry.ID, WaitlistWaiting, WaitlistRefunded); err != nil {
			return err
		}
		return NewCreditLedger(txStore).Refund(ctx, entry.CreditBalanceID, slot.RequiredCredits)
	})
	if errors.Is(operationError, ErrWaitlistStateChanged) {
		// Another sweep or a promotion got there first.
		return nil
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationSweepRefund,
		UserID:    entry.UserID,
		ClassID:   slot.ID,
		EntryID:   entry.ID,
		BalanceID: entry.CreditBalanceID,
		Credits:   slot.RequiredCredits,
		Refunded:  operationError == nil,
		Error:     operationError,
	})
	if operationError != nil {
		return operationError
	}
	service.publish(ctx, eventWaitlistRefunded, map[string]any{
		"entry_id":   entry.ID,
		"class_id":   slot.ID,
		"user_id":    entry.UserID,
		"credits":    slot.RequiredCredits,
		"balance_id": entry.CreditBalanceID,
	})
	return nil
}

// RunSweepLoop drives RunRefundSweep on a fixed ticker until ctx is done.
// Sweep errors are reported through the operation logger and do not stop the
// loop.
func (service *Service) RunSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(service.sweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := service.RunRefundSweep(ctx); err != nil {
				service.logOperation(ctx, OperationLog{
					Operation: operationSweepRefund,
					Status:    operationStatusError,
					Error:     err,
				})
			}
		}
	}
}
