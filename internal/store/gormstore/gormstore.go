package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/classbook/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore  = "store"
	errorSubjectClass    = "class"
	errorSubjectBooking  = "booking"
	errorSubjectWaitlist = "waitlist"
	errorSubjectBalance  = "balance"
	errorSubjectPackage  = "package"
	errorCodeGet         = "get"
	errorCodeList        = "list"
	errorCodeCount       = "count"
	errorCodeCreate      = "create"
	errorCodeUpdate      = "update"
	errorCodeDebit       = "debit"
	errorCodeCredit      = "credit"
)

// Store implements booking.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetClassSlot(ctx context.Context, classID string) (booking.ClassSlot, error) {
	var row ClassSlot
	err := store.db.WithContext(ctx).Take(&row, "id = ?", classID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.ClassSlot{}, wrapStoreError(errorSubjectClass, errorCodeGet, booking.ErrClassNotFound)
	}
	if err != nil {
		return booking.ClassSlot{}, wrapStoreError(errorSubjectClass, errorCodeGet, err)
	}
	return mapClassSlot(row), nil
}

func (store *Store) ListUpcomingClasses(ctx context.Context, country booking.Country, after time.Time) ([]booking.ClassSlot, error) {
	var rows []ClassSlot
	err := store.db.WithContext(ctx).
		Where("country = ? AND start_time > ?", string(country), after).
		Order("start_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectClass, errorCodeList, err)
	}
	slots := make([]booking.ClassSlot, 0, len(rows))
	for _, row := range rows {
		slots = append(slots, mapClassSlot(row))
	}
	return slots, nil
}

func (store *Store) ListClassesEndedBetween(ctx context.Context, from, to time.Time) ([]booking.ClassSlot, error) {
	var rows []ClassSlot
	err := store.db.WithContext(ctx).
		Where("end_time > ? AND end_time <= ?", from, to).
		Order("end_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectClass, errorCodeList, err)
	}
	slots := make([]booking.ClassSlot, 0, len(rows))
	for _, row := range rows {
		slots = append(slots, mapClassSlot(row))
	}
	return slots, nil
}

func (store *Store) GetBooking(ctx context.Context, bookingID string) (booking.Booking, error) {
	var row Booking
	err := store.db.WithContext(ctx).Take(&row, "id = ?", bookingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, booking.ErrBookingNotFound)
	}
	if err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	return mapBooking(row), nil
}

func (store *Store) CountBookings(ctx context.Context, classID string, status booking.BookingStatus) (int, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("class_id = ? AND status = ?", classID, string(status)).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBooking, errorCodeCount, err)
	}
	return int(count), nil
}

func (store *Store) HasBooking(ctx context.Context, userID string, classID string, status booking.BookingStatus) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("user_id = ? AND class_id = ? AND status = ?", userID, classID, string(status)).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectBooking, errorCodeCount, err)
	}
	return count > 0, nil
}

func (store *Store) HasOverlappingBooking(ctx context.Context, userID string, start, end time.Time) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Booking{}).
		Joins("JOIN class_slots ON class_slots.id = bookings.class_id").
		Where("bookings.user_id = ? AND bookings.status = ?", userID, string(booking.StatusBooked)).
		Where("class_slots.start_time < ? AND class_slots.end_time > ?", end, start).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectBooking, errorCodeCount, err)
	}
	return count > 0, nil
}

func (store *Store) ListBookingsByUser(ctx context.Context, userID string) ([]booking.Booking, error) {
	var rows []Booking
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	records := make([]booking.Booking, 0, len(rows))
	for _, row := range rows {
		records = append(records, mapBooking(row))
	}
	return records, nil
}

func (store *Store) CreateBooking(ctx context.Context, record booking.Booking) (booking.Booking, error) {
	row := Booking{
		ID:              record.ID,
		UserID:          record.UserID,
		ClassID:         record.ClassID,
		CreditBalanceID: record.CreditBalanceID,
		Status:          string(record.Status),
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return booking.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeCreate, err)
	}
	return mapBooking(row), nil
}

func (store *Store) UpdateBookingStatus(ctx context.Context, bookingID string, from, to booking.BookingStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("id = ? AND status = ?", bookingID, string(from)).
		Update("status", string(to))
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, booking.ErrNotBooked)
	}
	return nil
}

func (store *Store) HasWaitlistEntry(ctx context.Context, userID string, classID string, status booking.WaitlistStatus) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Where("user_id = ? AND class_id = ? AND status = ?", userID, classID, string(status)).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectWaitlist, errorCodeCount, err)
	}
	return count > 0, nil
}

func (store *Store) CreateWaitlistEntry(ctx context.Context, record booking.WaitlistEntry) (booking.WaitlistEntry, error) {
	row := WaitlistEntry{
		ID:              record.ID,
		UserID:          record.UserID,
		ClassID:         record.ClassID,
		CreditBalanceID: record.CreditBalanceID,
		Status:          string(record.Status),
		CreatedAt:       record.CreatedAt,
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeCreate, err)
	}
	return mapWaitlistEntry(row), nil
}

func (store *Store) OldestWaitingEntry(ctx context.Context, classID string) (booking.WaitlistEntry, bool, error) {
	var row WaitlistEntry
	err := store.db.WithContext(ctx).
		Where("class_id = ? AND status = ?", classID, string(booking.WaitlistWaiting)).
		Order("created_at ASC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.WaitlistEntry{}, false, nil
	}
	if err != nil {
		return booking.WaitlistEntry{}, false, wrapStoreError(errorSubjectWaitlist, errorCodeGet, err)
	}
	return mapWaitlistEntry(row), true, nil
}

func (store *Store) ListWaitingEntries(ctx context.Context, classID string) ([]booking.WaitlistEntry, error) {
	var rows []WaitlistEntry
	err := store.db.WithContext(ctx).
		Where("class_id = ? AND status = ?", classID, string(booking.WaitlistWaiting)).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectWaitlist, errorCodeList, err)
	}
	entries := make([]booking.WaitlistEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, mapWaitlistEntry(row))
	}
	return entries, nil
}

func (store *Store) UpdateWaitlistStatus(ctx context.Context, entryID string, from, to booking.WaitlistStatus) error {
	result := store.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Where("id = ? AND status = ?", entryID, string(from)).
		Update("status", string(to))
	if result.Error != nil {
		return wrapStoreError(errorSubjectWaitlist, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectWaitlist, errorCodeUpdate, booking.ErrWaitlistStateChanged)
	}
	return nil
}

func (store *Store) ListEligibleBalances(ctx context.Context, userID string, country booking.Country, minCredits int, asOf time.Time) ([]booking.CreditBalance, error) {
	var rows []CreditBalance
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND country = ? AND remaining_credits >= ? AND expiry_date >= ?",
			userID, string(country), minCredits, asOf).
		Order("expiry_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBalance, errorCodeList, err)
	}
	balances := make([]booking.CreditBalance, 0, len(rows))
	for _, row := range rows {
		balances = append(balances, mapCreditBalance(row))
	}
	return balances, nil
}

func (store *Store) ListBalancesByUser(ctx context.Context, userID string) ([]booking.CreditBalance, error) {
	var rows []CreditBalance
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("expiry_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBalance, errorCodeList, err)
	}
	balances := make([]booking.CreditBalance, 0, len(rows))
	for _, row := range rows {
		balances = append(balances, mapCreditBalance(row))
	}
	return balances, nil
}

func (store *Store) CreateBalance(ctx context.Context, record booking.CreditBalance) (booking.CreditBalance, error) {
	row := CreditBalance{
		ID:               record.ID,
		UserID:           record.UserID,
		Country:          string(record.Country),
		RemainingCredits: record.RemainingCredits,
		PurchaseDate:     record.PurchaseDate,
		ExpiryDate:       record.ExpiryDate,
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return booking.CreditBalance{}, wrapStoreError(errorSubjectBalance, errorCodeCreate, err)
	}
	return mapCreditBalance(row), nil
}

// DebitCredits decrements remaining_credits only when the balance still holds
// at least amount, so the column can never go negative.
func (store *Store) DebitCredits(ctx context.Context, balanceID string, amount int) error {
	result := store.db.WithContext(ctx).
		Model(&CreditBalance{}).
		Where("id = ? AND remaining_credits >= ?", balanceID, amount).
		UpdateColumn("remaining_credits", gorm.Expr("remaining_credits - ?", amount))
	if result.Error != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeDebit, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBalance, errorCodeDebit, booking.ErrInsufficientCredits)
	}
	return nil
}

func (store *Store) AddCredits(ctx context.Context, balanceID string, amount int) error {
	result := store.db.WithContext(ctx).
		Model(&CreditBalance{}).
		Where("id = ?", balanceID).
		UpdateColumn("remaining_credits", gorm.Expr("remaining_credits + ?", amount))
	if result.Error != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeCredit, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBalance, errorCodeCredit, booking.ErrBalanceNotFound)
	}
	return nil
}

func (store *Store) GetPackage(ctx context.Context, packageID string) (booking.CreditPackage, error) {
	var row CreditPackage
	err := store.db.WithContext(ctx).Take(&row, "id = ?", packageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.CreditPackage{}, wrapStoreError(errorSubjectPackage, errorCodeGet, booking.ErrPackageNotFound)
	}
	if err != nil {
		return booking.CreditPackage{}, wrapStoreError(errorSubjectPackage, errorCodeGet, err)
	}
	return mapCreditPackage(row), nil
}

func (store *Store) ListPackages(ctx context.Context, country booking.Country) ([]booking.CreditPackage, error) {
	var rows []CreditPackage
	err := store.db.WithContext(ctx).
		Where("country = ?", string(country)).
		Order("price_cents ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPackage, errorCodeList, err)
	}
	packages := make([]booking.CreditPackage, 0, len(rows))
	for _, row := range rows {
		packages = append(packages, mapCreditPackage(row))
	}
	return packages, nil
}

var _ booking.Store = (*Store)(nil)

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func mapClassSlot(row ClassSlot) booking.ClassSlot {
	return booking.ClassSlot{
		ID:              row.ID,
		Name:            row.Name,
		StartTime:       row.StartTime,
		EndTime:         row.EndTime,
		Capacity:        row.Capacity,
		Country:         booking.Country(row.Country),
		RequiredCredits: row.RequiredCredits,
	}
}

func mapBooking(row Booking) booking.Booking {
	return booking.Booking{
		ID:              row.ID,
		UserID:          row.UserID,
		ClassID:         row.ClassID,
		CreditBalanceID: row.CreditBalanceID,
		Status:          booking.BookingStatus(row.Status),
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

func mapWaitlistEntry(row WaitlistEntry) booking.WaitlistEntry {
	return booking.WaitlistEntry{
		ID:              row.ID,
		UserID:          row.UserID,
		ClassID:         row.ClassID,
		CreditBalanceID: row.CreditBalanceID,
		Status:          booking.WaitlistStatus(row.Status),
		CreatedAt:       row.CreatedAt,
	}
}

func mapCreditBalance(row CreditBalance) booking.CreditBalance {
	return booking.CreditBalance{
		ID:               row.ID,
		UserID:           row.UserID,
		Country:          booking.Country(row.Country),
		RemainingCredits: row.RemainingCredits,
		PurchaseDate:     row.PurchaseDate,
		ExpiryDate:       row.ExpiryDate,
	}
}

func mapCreditPackage(row CreditPackage) booking.CreditPackage {
	return booking.CreditPackage{
		ID:           row.ID,
		Name:         row.Name,
		Credits:      row.Credits,
		PriceCents:   row.PriceCents,
		Country:      booking.Country(row.Country),
		ValidityDays: row.ValidityDays,
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
