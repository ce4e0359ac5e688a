package booking

import (
	"context"
	"time"
)

// Country scopes class slots, packages, and credit balances to one market.
type Country string

// BookingStatus defines the booking lifecycle.
type BookingStatus string

const (
	StatusBooked    BookingStatus = "BOOKED"
	StatusCancelled BookingStatus = "CANCELLED"
	StatusCheckedIn BookingStatus = "CHECKED_IN"
	StatusCompleted BookingStatus = "COMPLETED"
)

// WaitlistStatus defines the waitlist entry lifecycle.
type WaitlistStatus string

const (
	WaitlistWaiting  WaitlistStatus = "WAITING"
	WaitlistPromoted WaitlistStatus = "PROMOTED_TO_BOOKING"
	WaitlistRefunded WaitlistStatus = "CREDIT_REFUNDED"
)

// ClassSlot is a scheduled, capacity-bounded event bookable with credits.
// Slots are immutable once created.
type ClassSlot struct {
	ID              string
	Name            string
	StartTime       time.Time
	EndTime         time.Time
	Capacity        int
	Country         Country
	RequiredCredits int
}

// ClassListing is a ClassSlot together with its current number of BOOKED
// bookings, as shown on the schedule.
type ClassListing struct {
	ClassSlot
	BookedCount int
}

// CreditBalance is a purchased, expiring pool of credits usable within one country.
// RemainingCredits never goes negative; only the ledger mutates it.
type CreditBalance struct {
	ID               string
	UserID           string
	Country          Country
	RemainingCredits int
	PurchaseDate     time.Time
	ExpiryDate       time.Time
}

// Booking ties a user to a class slot and the balance that paid for it.
type Booking struct {
	ID              string
	UserID          string
	ClassID         string
	CreditBalanceID string
	Status          BookingStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WaitlistEntry holds a user's place in the FIFO queue for a full class.
// Credits are deducted at join time and travel with the entry.
type WaitlistEntry struct {
	ID              string
	UserID          string
	ClassID         string
	CreditBalanceID string
	Status          WaitlistStatus
	CreatedAt       time.Time
}

// CreditPackage is a purchasable bundle of credits for one country.
type CreditPackage struct {
	ID           string
	Name         string
	Credits      int
	PriceCents   int64
	Country      Country
	ValidityDays int
}

// Store is the persistence contract used by Service.
// All writes of a single operation happen inside one WithTx scope.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	GetClassSlot(ctx context.Context, classID string) (ClassSlot, error)
	ListUpcomingClasses(ctx context.Context, country Country, after time.Time) ([]ClassSlot, error)
	ListClassesEndedBetween(ctx context.Context, from, to time.Time) ([]ClassSlot, error)

	GetBooking(ctx context.Context, bookingID string) (Booking, error)
	CountBookings(ctx context.Context, classID string, status BookingStatus) (int, error)
	HasBooking(ctx context.Context, userID string, classID string, status BookingStatus) (bool, error)
	HasOverlappingBooking(ctx context.Context, userID string, start, end time.Time) (bool, error)
	ListBookingsByUser(ctx context.Context, userID string) ([]Booking, error)
	CreateBooking(ctx context.Context, record Booking) (Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID string, from, to BookingStatus) error

	HasWaitlistEntry(ctx context.Context, userID string, classID string, status WaitlistStatus) (bool, error)
	CreateWaitlistEntry(ctx context.Context, record WaitlistEntry) (WaitlistEntry, error)
	OldestWaitingEntry(ctx context.Context, classID string) (WaitlistEntry, bool, error)
	ListWaitingEntries(ctx context.Context, classID string) ([]WaitlistEntry, error)
	UpdateWaitlistStatus(ctx context.Context, entryID string, from, to WaitlistStatus) error

	ListEligibleBalances(ctx context.Context, userID string, country Country, minCredits int, asOf time.Time) ([]CreditBalance, error)
	ListBalancesByUser(ctx context.Context, userID string) ([]CreditBalance, error)
	CreateBalance(ctx context.Context, record CreditBalance) (CreditBalance, error)
	DebitCredits(ctx context.Context, balanceID string, amount int) error
	AddCredits(ctx context.Context, balanceID string, amount int) error

	GetPackage(ctx context.Context, packageID string) (CreditPackage, error)
	ListPackages(ctx context.Context, country Country) ([]CreditPackage, error)
}

// ResourceLock is a per-resource mutual-exclusion primitive with automatic
// expiry. TryAcquire is non-blocking: false means another holder owns the
// resource and the caller must not enter the critical section. Release of an
// absent or expired entry is a no-op.
type ResourceLock interface {
	TryAcquire(ctx context.Context, resourceID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, resourceID string) error
}

// PaymentCharger charges a purchase against an external gateway.
// A false result means the charge was declined, not that the call failed.
type PaymentCharger interface {
	Charge(ctx context.Context, transactionRef string, amountCents int64, currency string) (bool, error)
}

// Notifier publishes booking lifecycle events. Publish failures are logged
// and never fail the operation that emitted them.
type Notifier interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}
