package booking

import "time"

const (
	operationBook         = "book_class"
	operationCancel       = "cancel_booking"
	operationCheckIn      = "check_in"
	operationJoinWaitlist = "join_waitlist"
	operationPromote      = "promote_waitlist"
	operationSweepRefund  = "sweep_refund"
	operationPurchase     = "purchase_package"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	eventBookingCreated   = "booking.created"
	eventBookingCancelled = "booking.cancelled"
	eventBookingCheckedIn = "booking.checked_in"
	eventWaitlistJoined   = "waitlist.joined"
	eventWaitlistPromoted = "waitlist.promoted"
	eventWaitlistRefunded = "waitlist.refunded"

	classLockPrefix = "lock:class:"

	// DefaultLockTTL bounds how long a crashed holder can keep a class locked.
	DefaultLockTTL = 10 * time.Second
	// DefaultSweepPeriod is the cadence of the waitlist refund sweep.
	DefaultSweepPeriod = 15 * time.Minute

	refundCutoff       = 4 * time.Hour
	checkInEarlyWindow = 30 * time.Minute

	purchaseCurrency = "SGD"
)

func classLockKey(classID string) string {
	return classLockPrefix + classID
}
