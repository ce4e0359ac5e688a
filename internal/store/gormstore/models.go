package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ClassSlot mirrors the class_slots table.
type ClassSlot struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	Name            string    `gorm:"not null"`
	StartTime       time.Time `gorm:"not null;index"`
	EndTime         time.Time `gorm:"not null;index"`
	Capacity        int       `gorm:"not null"`
	Country         string    `gorm:"not null;index"`
	RequiredCredits int       `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (ClassSlot) TableName() string { return "class_slots" }

func (slot *ClassSlot) BeforeCreate(tx *gorm.DB) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	return nil
}

// Booking mirrors the bookings table.
type Booking struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	UserID          string    `gorm:"not null;index:idx_bookings_user_class,priority:1"`
	ClassID         string    `gorm:"type:uuid;not null;index:idx_bookings_user_class,priority:2;index:idx_bookings_class_status,priority:1"`
	CreditBalanceID string    `gorm:"type:uuid;not null"`
	Status          string    `gorm:"not null;index:idx_bookings_class_status,priority:2"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }

func (booking *Booking) BeforeCreate(tx *gorm.DB) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	return nil
}

// WaitlistEntry mirrors the waitlist_entries table.
type WaitlistEntry struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	UserID          string    `gorm:"not null;index:idx_waitlist_user_class,priority:1"`
	ClassID         string    `gorm:"type:uuid;not null;index:idx_waitlist_user_class,priority:2;index:idx_waitlist_class_status_created,priority:1"`
	CreditBalanceID string    `gorm:"type:uuid;not null"`
	Status          string    `gorm:"not null;index:idx_waitlist_class_status_created,priority:2"`
	CreatedAt       time.Time `gorm:"not null;index:idx_waitlist_class_status_created,priority:3"`
}

func (WaitlistEntry) TableName() string { return "waitlist_entries" }

func (entry *WaitlistEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	return nil
}

// CreditBalance mirrors the credit_balances table.
type CreditBalance struct {
	ID               string    `gorm:"type:uuid;primaryKey"`
	UserID           string    `gorm:"not null;index:idx_balances_user_country,priority:1"`
	Country          string    `gorm:"not null;index:idx_balances_user_country,priority:2"`
	RemainingCredits int       `gorm:"not null"`
	PurchaseDate     time.Time `gorm:"not null"`
	ExpiryDate       time.Time `gorm:"not null;index"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (CreditBalance) TableName() string { return "credit_balances" }

func (balance *CreditBalance) BeforeCreate(tx *gorm.DB) error {
	if balance.ID == "" {
		balance.ID = uuid.NewString()
	}
	return nil
}

// CreditPackage mirrors the credit_packages table.
type CreditPackage struct {
	ID           string    `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"not null"`
	Credits      int       `gorm:"not null"`
	PriceCents   int64     `gorm:"not null"`
	Country      string    `gorm:"not null;index"`
	ValidityDays int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (CreditPackage) TableName() string { return "credit_packages" }

func (pkg *CreditPackage) BeforeCreate(tx *gorm.DB) error {
	if pkg.ID == "" {
		pkg.ID = uuid.NewString()
	}
	return nil
}

// ResourceLockRow mirrors the resource_locks table. One row per held lock;
// acquisition is an insert racing on the primary key.
type ResourceLockRow struct {
	ResourceID string    `gorm:"primaryKey"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (ResourceLockRow) TableName() string { return "resource_locks" }

// AuditRecord mirrors the audit_records table.
type AuditRecord struct {
	ID        string         `gorm:"type:uuid;primaryKey"`
	Operation string         `gorm:"not null;index"`
	UserID    string         `gorm:"index"`
	Status    string         `gorm:"not null"`
	Details   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (AuditRecord) TableName() string { return "audit_records" }

func (record *AuditRecord) BeforeCreate(tx *gorm.DB) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	return nil
}

// Models lists every table for sqlite auto-migration.
func Models() []any {
	return []any{
		&ClassSlot{},
		&Booking{},
		&WaitlistEntry{},
		&CreditBalance{},
		&CreditPackage{},
		&ResourceLockRow{},
		&AuditRecord{},
	}
}
