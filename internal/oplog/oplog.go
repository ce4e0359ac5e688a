// Package oplog adapts booking.OperationLogger to zap and to a durable
// audit table.
package oplog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/classbook/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/classbook/pkg/booking"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ZapLogger writes every operation to a zap logger.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wires a ZapLogger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: logger}
}

func (zapLogger *ZapLogger) LogOperation(ctx context.Context, entry booking.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.UserID != "" {
		fields = append(fields, zap.String("user_id", entry.UserID))
	}
	if entry.ClassID != "" {
		fields = append(fields, zap.String("class_id", entry.ClassID))
	}
	if entry.BookingID != "" {
		fields = append(fields, zap.String("booking_id", entry.BookingID))
	}
	if entry.EntryID != "" {
		fields = append(fields, zap.String("entry_id", entry.EntryID))
	}
	if entry.BalanceID != "" {
		fields = append(fields, zap.String("balance_id", entry.BalanceID))
	}
	if entry.Credits != 0 {
		fields = append(fields, zap.Int("credits", entry.Credits))
	}
	fields = append(fields, zap.Bool("refunded", entry.Refunded))
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		zapLogger.logger.Warn("booking operation failed", fields...)
		return
	}
	zapLogger.logger.Info("booking operation", fields...)
}

// AuditSink persists operations as audit records and forwards them to the
// next logger. Persistence failures only surface through next.
type AuditSink struct {
	db   *gorm.DB
	next booking.OperationLogger
}

// NewAuditSink wires an AuditSink; next may be nil.
func NewAuditSink(db *gorm.DB, next booking.OperationLogger) *AuditSink {
	return &AuditSink{db: db, next: next}
}

func (sink *AuditSink) LogOperation(ctx context.Context, entry booking.OperationLog) {
	details := map[string]any{
		"class_id":   entry.ClassID,
		"booking_id": entry.BookingID,
		"entry_id":   entry.EntryID,
		"balance_id": entry.BalanceID,
		"credits":    entry.Credits,
		"refunded":   entry.Refunded,
	}
	if entry.Error != nil {
		details["error"] = entry.Error.Error()
	}
	payload, err := json.Marshal(details)
	if err == nil {
		record := gormstore.AuditRecord{
			Operation: entry.Operation,
			UserID:    entry.UserID,
			Status:    entry.Status,
			Details:   datatypes.JSON(payload),
			CreatedAt: time.Now().UTC(),
		}
		if writeErr := sink.db.WithContext(ctx).Create(&record).Error; writeErr != nil && sink.next != nil {
			sink.next.LogOperation(ctx, booking.OperationLog{
				Operation: entry.Operation,
				UserID:    entry.UserID,
				Status:    "error",
				Error:     fmt.Errorf("audit record write: %w", writeErr),
			})
		}
	}
	if sink.next != nil {
		sink.next.LogOperation(ctx, entry)
	}
}
