package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

// stubStore is an in-memory Store with per-method error injection. Methods
// lock individually so concurrent engine calls stay race-free; atomicity of
// a full operation comes from the engine's resource lock, as in production.
type stubStore struct {
	mu sync.Mutex

	classes  map[string]ClassSlot
	bookings map[string]Booking
	entries  map[string]WaitlistEntry
	balances map[string]CreditBalance
	packages map[string]CreditPackage

	nextID int

	withTxError         error
	getClassError       error
	countBookingsError  error
	hasBookingError     error
	hasWaitlistError    error
	overlapError        error
	listBalancesError   error
	debitError          error
	creditError         error
	createBookingError  error
	createEntryError    error
	createBalanceError  error
	updateBookingError  error
	updateWaitlistError error
	oldestWaitingError  error
	listWaitingError    error
	listEndedError      error
	getPackageError     error
}

func newStubStore() *stubStore {
	return &stubStore{
		classes:  make(map[string]ClassSlot),
		bookings: make(map[string]Booking),
		entries:  make(map[string]WaitlistEntry),
		balances: make(map[string]CreditBalance),
		packages: make(map[string]CreditPackage),
	}
}

func (store *stubStore) newID(prefix string) string {
	store.nextID++
	return fmt.Sprintf("%s-%d", prefix, store.nextID)
}

func (store *stubStore) addClass(slot ClassSlot) ClassSlot {
	store.mu.Lock()
	defer store.mu.Unlock()
	if slot.ID == "" {
		slot.ID = store.newID("class")
	}
	store.classes[slot.ID] = slot
	return slot
}

func (store *stubStore) addBalance(balance CreditBalance) CreditBalance {
	store.mu.Lock()
	defer store.mu.Unlock()
	if balance.ID == "" {
		balance.ID = store.newID("balance")
	}
	store.balances[balance.ID] = balance
	return balance
}

func (store *stubStore) addBooking(record Booking) Booking {
	store.mu.Lock()
	defer store.mu.Unlock()
	if record.ID == "" {
		record.ID = store.newID("booking")
	}
	store.bookings[record.ID] = record
	return record
}

func (store *stubStore) addEntry(entry WaitlistEntry) WaitlistEntry {
	store.mu.Lock()
	defer store.mu.Unlock()
	if entry.ID == "" {
		entry.ID = store.newID("entry")
	}
	store.entries[entry.ID] = entry
	return entry
}

func (store *stubStore) addPackage(pkg CreditPackage) CreditPackage {
	store.mu.Lock()
	defer store.mu.Unlock()
	if pkg.ID == "" {
		pkg.ID = store.newID("package")
	}
	store.packages[pkg.ID] = pkg
	return pkg
}

func (store *stubStore) bookingByID(test *testing.T, bookingID string) Booking {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	record, ok := store.bookings[bookingID]
	if !ok {
		test.Fatalf("booking %s not found", bookingID)
	}
	return record
}

func (store *stubStore) entryByID(test *testing.T, entryID string) WaitlistEntry {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	entry, ok := store.entries[entryID]
	if !ok {
		test.Fatalf("waitlist entry %s not found", entryID)
	}
	return entry
}

func (store *stubStore) balanceByID(test *testing.T, balanceID string) CreditBalance {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	balance, ok := store.balances[balanceID]
	if !ok {
		test.Fatalf("balance %s not found", balanceID)
	}
	return balance
}

func (store *stubStore) countStatus(classID string, status BookingStatus) int {
	store.mu.Lock()
	defer store.mu.Unlock()
	count := 0
	for _, record := range store.bookings {
		if record.ClassID == classID && record.Status == status {
			count++
		}
	}
	return count
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if store.withTxError != nil {
		return store.withTxError
	}
	return fn(ctx, store)
}

func (store *stubStore) GetClassSlot(ctx context.Context, classID string) (ClassSlot, error) {
	if store.getClassError != nil {
		return ClassSlot{}, store.getClassError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	slot, ok := store.classes[classID]
	if !ok {
		return ClassSlot{}, ErrClassNotFound
	}
	return slot, nil
}

func (store *stubStore) ListUpcomingClasses(ctx context.Context, country Country, after time.Time) ([]ClassSlot, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var slots []ClassSlot
	for _, slot := range store.classes {
		if slot.Country == country && slot.StartTime.After(after) {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].StartTime.Before(slots[j].StartTime) })
	return slots, nil
}

func (store *stubStore) ListClassesEndedBetween(ctx context.Context, from, to time.Time) ([]ClassSlot, error) {
	if store.listEndedError != nil {
		return nil, store.listEndedError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	var slots []ClassSlot
	for _, slot := range store.classes {
		if slot.EndTime.After(from) && !slot.EndTime.After(to) {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].EndTime.Before(slots[j].EndTime) })
	return slots, nil
}

func (store *stubStore) GetBooking(ctx context.Context, bookingID string) (Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	record, ok := store.bookings[bookingID]
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	return record, nil
}

func (store *stubStore) CountBookings(ctx context.Context, classID string, status BookingStatus) (int, error) {
	if store.countBookingsError != nil {
		return 0, store.countBookingsError
	}
	return store.countStatus(classID, status), nil
}

func (store *stubStore) HasBooking(ctx context.Context, userID string, classID string, status BookingStatus) (bool, error) {
	if store.hasBookingError != nil {
		return false, store.hasBookingError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, record := range store.bookings {
		if record.UserID == userID && record.ClassID == classID && record.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (store *stubStore) HasOverlappingBooking(ctx context.Context, userID string, start, end time.Time) (bool, error) {
	if store.overlapError != nil {
		return false, store.overlapError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, record := range store.bookings {
		if record.UserID != userID || record.Status != StatusBooked {
			continue
		}
		slot, ok := store.classes[record.ClassID]
		if !ok {
			continue
		}
		if slot.StartTime.Before(end) && slot.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (store *stubStore) ListBookingsByUser(ctx context.Context, userID string) ([]Booking, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var records []Booking
	for _, record := range store.bookings {
		if record.UserID == userID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (store *stubStore) CreateBooking(ctx context.Context, record Booking) (Booking, error) {
	if store.createBookingError != nil {
		return Booking{}, store.createBookingError
	}
	return store.addBooking(record), nil
}

func (store *stubStore) UpdateBookingStatus(ctx context.Context, bookingID string, from, to BookingStatus) error {
	if store.updateBookingError != nil {
		return store.updateBookingError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	record, ok := store.bookings[bookingID]
	if !ok || record.Status != from {
		return ErrNotBooked
	}
	record.Status = to
	store.bookings[bookingID] = record
	return nil
}

func (store *stubStore) HasWaitlistEntry(ctx context.Context, userID string, classID string, status WaitlistStatus) (bool, error) {
	if store.hasWaitlistError != nil {
		return false, store.hasWaitlistError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, entry := range store.entries {
		if entry.UserID == userID && entry.ClassID == classID && entry.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (store *stubStore) CreateWaitlistEntry(ctx context.Context, entry WaitlistEntry) (WaitlistEntry, error) {
	if store.createEntryError != nil {
		return WaitlistEntry{}, store.createEntryError
	}
	return store.addEntry(entry), nil
}

func (store *stubStore) OldestWaitingEntry(ctx context.Context, classID string) (WaitlistEntry, bool, error) {
	if store.oldestWaitingError != nil {
		return WaitlistEntry{}, false, store.oldestWaitingError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	var oldest WaitlistEntry
	found := false
	for _, entry := range store.entries {
		if entry.ClassID != classID || entry.Status != WaitlistWaiting {
			continue
		}
		if !found || entry.CreatedAt.Before(oldest.CreatedAt) ||
			(entry.CreatedAt.Equal(oldest.CreatedAt) && entry.ID < oldest.ID) {
			oldest = entry
			found = true
		}
	}
	return oldest, found, nil
}

func (store *stubStore) ListWaitingEntries(ctx context.Context, classID string) ([]WaitlistEntry, error) {
	if store.listWaitingError != nil {
		return nil, store.listWaitingError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	var waiting []WaitlistEntry
	for _, entry := range store.entries {
		if entry.ClassID == classID && entry.Status == WaitlistWaiting {
			waiting = append(waiting, entry)
		}
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].CreatedAt.Before(waiting[j].CreatedAt) })
	return waiting, nil
}

func (store *stubStore) UpdateWaitlistStatus(ctx context.Context, entryID string, from, to WaitlistStatus) error {
	if store.updateWaitlistError != nil {
		return store.updateWaitlistError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	entry, ok := store.entries[entryID]
	if !ok || entry.Status != from {
		return ErrWaitlistStateChanged
	}
	entry.Status = to
	store.entries[entryID] = entry
	return nil
}

func (store *stubStore) ListEligibleBalances(ctx context.Context, userID string, country Country, minCredits int, asOf time.Time) ([]CreditBalance, error) {
	if store.listBalancesError != nil {
		return nil, store.listBalancesError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	var eligible []CreditBalance
	for _, balance := range store.balances {
		if balance.UserID == userID && balance.Country == country &&
			balance.RemainingCredits >= minCredits && !balance.ExpiryDate.Before(asOf) {
			eligible = append(eligible, balance)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].ExpiryDate.Equal(eligible[j].ExpiryDate) {
			return eligible[i].ID < eligible[j].ID
		}
		return eligible[i].ExpiryDate.Before(eligible[j].ExpiryDate)
	})
	return eligible, nil
}

func (store *stubStore) ListBalancesByUser(ctx context.Context, userID string) ([]CreditBalance, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var owned []CreditBalance
	for _, balance := range store.balances {
		if balance.UserID == userID {
			owned = append(owned, balance)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })
	return owned, nil
}

func (store *stubStore) CreateBalance(ctx context.Context, record CreditBalance) (CreditBalance, error) {
	if store.createBalanceError != nil {
		return CreditBalance{}, store.createBalanceError
	}
	return store.addBalance(record), nil
}

func (store *stubStore) DebitCredits(ctx context.Context, balanceID string, amount int) error {
	if store.debitError != nil {
		return store.debitError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	balance, ok := store.balances[balanceID]
	if !ok || balance.RemainingCredits < amount {
		return ErrInsufficientCredits
	}
	balance.RemainingCredits -= amount
	store.balances[balanceID] = balance
	return nil
}

func (store *stubStore) AddCredits(ctx context.Context, balanceID string, amount int) error {
	if store.creditError != nil {
		return store.creditError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	balance, ok := store.balances[balanceID]
	if !ok {
		return ErrBalanceNotFound
	}
	balance.RemainingCredits += amount
	store.balances[balanceID] = balance
	return nil
}

func (store *stubStore) GetPackage(ctx context.Context, packageID string) (CreditPackage, error) {
	if store.getPackageError != nil {
		return CreditPackage{}, store.getPackageError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	pkg, ok := store.packages[packageID]
	if !ok {
		return CreditPackage{}, ErrPackageNotFound
	}
	return pkg, nil
}

func (store *stubStore) ListPackages(ctx context.Context, country Country) ([]CreditPackage, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var packages []CreditPackage
	for _, pkg := range store.packages {
		if pkg.Country == country {
			packages = append(packages, pkg)
		}
	}
	sort.Slice(packages, func(i, j int) bool { return packages[i].PriceCents < packages[j].PriceCents })
	return packages, nil
}

// countingLock wraps acquisition bookkeeping around an always-available lock
// so tests can assert release-per-acquire discipline.
type countingLock struct {
	mu           sync.Mutex
	acquires     int
	releases     int
	denyAcquire  bool
	acquireError error
}

func (lock *countingLock) TryAcquire(ctx context.Context, resourceID string, ttl time.Duration) (bool, error) {
	lock.mu.Lock()
	defer lock.mu.Unlock()
	if lock.acquireError != nil {
		return false, lock.acquireError
	}
	if lock.denyAcquire {
		return false, nil
	}
	lock.acquires++
	return true, nil
}

func (lock *countingLock) Release(ctx context.Context, resourceID string) error {
	lock.mu.Lock()
	defer lock.mu.Unlock()
	lock.releases++
	return nil
}

// recordingLogger captures operation log entries for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recordingLogger) LogOperation(ctx context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recordingLogger) byOperation(operation string) []OperationLog {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	var matched []OperationLog
	for _, entry := range logger.entries {
		if entry.Operation == operation {
			matched = append(matched, entry)
		}
	}
	return matched
}

// recordingNotifier captures published routing keys.
type recordingNotifier struct {
	mu   sync.Mutex
	keys []string
}

func (notifier *recordingNotifier) Publish(ctx context.Context, routingKey string, payload any) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.keys = append(notifier.keys, routingKey)
	return nil
}

func (notifier *recordingNotifier) published() []string {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	return append([]string(nil), notifier.keys...)
}

// recordingCharger captures the charge request and answers with a canned
// verdict.
type recordingCharger struct {
	approve     bool
	chargeError error

	amountCents int64
	currency    string
}

func (charger *recordingCharger) Charge(ctx context.Context, transactionRef string, amountCents int64, currency string) (bool, error) {
	charger.amountCents = amountCents
	charger.currency = currency
	if charger.chargeError != nil {
		return false, charger.chargeError
	}
	return charger.approve, nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func mustNewService(test *testing.T, store Store, locks ResourceLock, now func() time.Time, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, locks, now, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
