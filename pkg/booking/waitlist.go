package booking

import "context"

// JoinWaitlist queues the user for a full class. Credits are deducted up
// front and held by the entry until promotion or refund.
func (service *Service) JoinWaitlist(ctx context.Context, userID string, classID string) (WaitlistEntry, error) {
	now := service.nowFn()
	var created WaitlistEntry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		slot, err := txStore.GetClassSlot(ctx, classID)
		if err != nil {
			return err
		}
		currentBookings, err := txStore.CountBookings(ctx, classID, StatusBooked)
		if err != nil {
			return err
		}
		if currentBookings < slot.Capacity {
			return ErrClassNotFull
		}
		if err := validateNotBookedOrWaitlisted(ctx, txStore, userID, classID); err != nil {
			return err
		}
		balance, err := NewCreditLedger(txStore).SelectAndDebit(ctx, userID, slot.Country, slot.RequiredCredits, now)
		if err != nil {
			return err
		}
		created, err = txStore.CreateWaitlistEntry(ctx, WaitlistEntry{
			UserID:          userID,
			ClassID:         classID,
			CreditBalanceID: balance.ID,
			Status:          WaitlistWaiting,
			CreatedAt:       now,
		})
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationJoinWaitlist,
		UserID:    userID,
		ClassID:   classID,
		EntryID:   created.ID,
		BalanceID: created.CreditBalanceID,
		Error:     operationError,
	})
	if operationError != nil {
		return WaitlistEntry{}, operationError
	}
	service.publish(ctx, eventWaitlistJoined, created)
	return created, nil
}

// Promote converts the oldest WAITING entry for the class into a BOOKED
// booking. Credits were already taken at join time, so no second debit
// happens; the new booking only needs a live balance to reference. When the
// user has no unexpired balance left the entry stays WAITING and keeps its
// place in the queue, which also means the joined credits stay stranded until
// the refund sweep picks the entry up after the class ends.
func (service *Service) Promote(ctx context.Context, classID string) (Booking, bool, error) {
	now := service.nowFn()
	var promoted Booking
	var entryID string
	var promotedUserID string
	didPromote := false
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		entry, found, err := txStore.OldestWaitingEntry(ctx, classID)
		if err != nil || !found {
			return err
		}
		entryID = entry.ID
		promotedUserID = entry.UserID
		slot, err := txStore.GetClassSlot(ctx, classID)
		if err != nil {
			return err
		}
		balances, err := txStore.ListEligibleBalances(ctx, entry.UserID, slot.Country, 0, now)
		if err != nil {
			return err
		}
		if len(balances) == 0 {
			return nil
		}
		promoted, err = txStore.CreateBooking(ctx, Booking{
			UserID:          entry.UserID,
			ClassID:         classID,
			CreditBalanceID: balances[0].ID,
			Status:          StatusBooked,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			return err
		}
		if err := txStore.UpdateWaitlistStatus(ctx, entry.ID, WaitlistWaiting, WaitlistPromoted); err != nil {
			return err
		}
		didPromote = true
		return nil
	})
	if entryID != "" || operationError != nil {
		service.logOperation(ctx, OperationLog{
			Operation: operationPromote,
			UserID:    promotedUserID,
			ClassID:   classID,
			BookingID: promoted.ID,
			EntryID:   entryID,
			Error:     operationError,
		})
	}
	if operationError != nil {
		return Booking{}, false, operationError
	}
	if didPromote {
		service.publish(ctx, eventWaitlistPromoted, map[string]any{
			"entry_id":   entryID,
			"booking_id": promoted.ID,
			"class_id":   classID,
			"user_id":    promotedUserID,
		})
	}
	return promoted, didPromote, nil
}
