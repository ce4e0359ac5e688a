package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ListPackages returns the purchasable packages for a country.
func (service *Service) ListPackages(ctx context.Context, country Country) ([]CreditPackage, error) {
	return service.store.ListPackages(ctx, country)
}

// PurchasePackage charges the package price through the payment gateway and,
// on approval, creates a fresh credit balance expiring after the package's
// validity window.
func (service *Service) PurchasePackage(ctx context.Context, userID string, packageID string) (CreditBalance, error) {
	now := service.nowFn()
	var created CreditBalance
	operationError := func() error {
		if service.charger == nil {
			return fmt.Errorf("%w: payment charger is nil", ErrInvalidServiceConfig)
		}
		pkg, err := service.store.GetPackage(ctx, packageID)
		if err != nil {
			return err
		}
		approved, err := service.charger.Charge(ctx, uuid.NewString(), pkg.PriceCents, purchaseCurrency)
		if err != nil {
			return err
		}
		if !approved {
			return ErrPaymentDeclined
		}
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			created, err = txStore.CreateBalance(ctx, CreditBalance{
				UserID:           userID,
				Country:          pkg.Country,
				RemainingCredits: pkg.Credits,
				PurchaseDate:     now,
				ExpiryDate:       now.AddDate(0, 0, pkg.ValidityDays),
			})
			return err
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationPurchase,
		UserID:    userID,
		BalanceID: created.ID,
		Credits:   created.RemainingCredits,
		Error:     operationError,
	})
	if operationError != nil {
		return CreditBalance{}, operationError
	}
	return created, nil
}

// MockCharger approves every charge. Stands in for a real gateway in local
// and test environments.
type MockCharger struct{}

// Charge implements PaymentCharger.
func (MockCharger) Charge(ctx context.Context, transactionRef string, amountCents int64, currency string) (bool, error) {
	return true, nil
}
