package gormstore

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/classbook/pkg/booking"
	"gorm.io/gorm"
)

const (
	errorSubjectLock = "lock"
	errorCodeAcquire = "acquire"
	errorCodeRelease = "release"
)

// LockStore implements booking.ResourceLock with one row per held lock.
// Acquisition clears any expired holder and then races on the primary-key
// insert, giving the same set-if-absent-with-expiry behavior as an external
// key-value store.
type LockStore struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewLockStore returns a LockStore backed by gorm.DB.
func NewLockStore(db *gorm.DB, now func() time.Time) *LockStore {
	if now == nil {
		now = time.Now
	}
	return &LockStore{db: db, nowFn: now}
}

func (store *LockStore) TryAcquire(ctx context.Context, resourceID string, ttl time.Duration) (bool, error) {
	now := store.nowFn()
	err := store.db.WithContext(ctx).
		Where("resource_id = ? AND expires_at <= ?", resourceID, now).
		Delete(&ResourceLockRow{}).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectLock, errorCodeAcquire, err)
	}
	row := ResourceLockRow{
		ResourceID: resourceID,
		ExpiresAt:  now.Add(ttl),
	}
	err = store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, wrapStoreError(errorSubjectLock, errorCodeAcquire, err)
	}
	return true, nil
}

// Release drops the lock row. Releasing an absent lock is a no-op.
func (store *LockStore) Release(ctx context.Context, resourceID string) error {
	err := store.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Delete(&ResourceLockRow{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectLock, errorCodeRelease, err)
	}
	return nil
}

var _ booking.ResourceLock = (*LockStore)(nil)
