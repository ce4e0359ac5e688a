package booking

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSelectAndDebitPicksEarliestExpiryWithEnoughCredits(test *testing.T) {
	test.Parallel()

	store := newStubStore()
	// Expires soonest but cannot cover the debit.
	store.addBalance(CreditBalance{
		UserID:           "user-1",
		Country:          "SG",
		RemainingCredits: 1,
		ExpiryDate:       baseTime.Add(24 * time.Hour),
	})
	covering := store.addBalance(CreditBalance{
		UserID:           "user-1",
		Country:          "SG",
		RemainingCredits: 4,
		ExpiryDate:       baseTime.Add(48 * time.Hour),
	})
	store.addBalance(CreditBalance{
		UserID:           "user-1",
		Country:          "SG",
		RemainingCredits: 10,
		ExpiryDate:       baseTime.Add(96 * time.Hour),
	})
	ledger := NewCreditLedger(store)

	selected, err := ledger.SelectAndDebit(context.Background(), "user-1", "SG", 2, baseTime)
	if err != nil {
		test.Fatalf("select and debit: %v", err)
	}
	if selected.ID != covering.ID {
		test.Fatalf("selected %s, want %s", selected.ID, covering.ID)
	}
	if selected.RemainingCredits != 2 {
		test.Fatalf("returned remaining = %d, want 2", selected.RemainingCredits)
	}
	if remaining := store.balanceByID(test, covering.ID).RemainingCredits; remaining != 2 {
		test.Fatalf("stored remaining = %d, want 2", remaining)
	}
}

func TestSelectAndDebitFiltering(test *testing.T) {
	test.Parallel()

	testCases := []struct {
		name    string
		balance CreditBalance
	}{
		{
			name: "expired balance",
			balance: CreditBalance{
				UserID:           "user-1",
				Country:          "SG",
				RemainingCredits: 10,
				ExpiryDate:       baseTime.Add(-time.Minute),
			},
		},
		{
			name: "wrong country",
			balance: CreditBalance{
				UserID:           "user-1",
				Country:          "MY",
				RemainingCredits: 10,
				ExpiryDate:       baseTime.Add(24 * time.Hour),
			},
		},
		{
			name: "other user's balance",
			balance: CreditBalance{
				UserID:           "user-2",
				Country:          "SG",
				RemainingCredits: 10,
				ExpiryDate:       baseTime.Add(24 * time.Hour),
			},
		},
	}

	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()

			store := newStubStore()
			store.addBalance(testCase.balance)
			ledger := NewCreditLedger(store)

			_, err := ledger.SelectAndDebit(context.Background(), "user-1", "SG", 2, baseTime)
			if !errors.Is(err, ErrInsufficientCredits) {
				test.Fatalf("error = %v, want %v", err, ErrInsufficientCredits)
			}
		})
	}
}

func TestSelectAndDebitAcceptsBalanceExpiringToday(test *testing.T) {
	test.Parallel()

	store := newStubStore()
	balance := store.addBalance(CreditBalance{
		UserID:           "user-1",
		Country:          "SG",
		RemainingCredits: 3,
		ExpiryDate:       baseTime,
	})
	ledger := NewCreditLedger(store)

	selected, err := ledger.SelectAndDebit(context.Background(), "user-1", "SG", 2, baseTime)
	if err != nil {
		test.Fatalf("select and debit: %v", err)
	}
	if selected.ID != balance.ID {
		test.Fatalf("selected %s, want %s", selected.ID, balance.ID)
	}
}

func TestRefundAddsCreditsBack(test *testing.T) {
	test.Parallel()

	store := newStubStore()
	balance := store.addBalance(CreditBalance{
		UserID:           "user-1",
		Country:          "SG",
		RemainingCredits: 1,
		ExpiryDate:       baseTime.Add(24 * time.Hour),
	})
	ledger := NewCreditLedger(store)

	if err := ledger.Refund(context.Background(), balance.ID, 2); err != nil {
		test.Fatalf("refund: %v", err)
	}
	if remaining := store.balanceByID(test, balance.ID).RemainingCredits; remaining != 3 {
		test.Fatalf("remaining = %d, want 3", remaining)
	}

	if err := ledger.Refund(context.Background(), "missing", 2); !errors.Is(err, ErrBalanceNotFound) {
		test.Fatalf("error = %v, want %v", err, ErrBalanceNotFound)
	}
}
