package booking

import (
	"context"
	"time"
)

// CreditLedger selects and atomically adjusts a user's credit balances.
// It operates on whatever Store it is handed, so callers inside a
// transaction construct one over the transactional store.
type CreditLedger struct {
	store Store
}

// NewCreditLedger wires a ledger over a store.
func NewCreditLedger(store Store) *CreditLedger {
	return &CreditLedger{store: store}
}

// SelectAndDebit picks the earliest-expiring balance for the user and country
// holding at least requiredCredits that has not expired as of asOf, and debits
// it. Earliest expiry first keeps credits from going to waste.
func (ledger *CreditLedger) SelectAndDebit(ctx context.Context, userID string, country Country, requiredCredits int, asOf time.Time) (CreditBalance, error) {
	balances, err := ledger.store.ListEligibleBalances(ctx, userID, country, requiredCredits, asOf)
	if err != nil {
		return CreditBalance{}, err
	}
	if len(balances) == 0 {
		return CreditBalance{}, ErrInsufficientCredits
	}
	selected := balances[0]
	if err := ledger.store.DebitCredits(ctx, selected.ID, requiredCredits); err != nil {
		return CreditBalance{}, err
	}
	selected.RemainingCredits -= requiredCredits
	return selected, nil
}

// Refund adds amount back onto a balance. Callers guarantee at-most-once per
// booking or waitlist entry; the ledger enforces no upper bound.
func (ledger *CreditLedger) Refund(ctx context.Context, balanceID string, amount int) error {
	return ledger.store.AddCredits(ctx, balanceID, amount)
}
