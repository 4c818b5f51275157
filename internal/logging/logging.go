// Package logging adapts ledger operation callbacks to zap.
package logging

import (
	"context"

	"github.com/MarkoPoloResearchLab/scholarcash/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const operationMessage = "ledger operation"

// OperationLogger writes one structured line per ledger operation: info on
// success, warn on a business rejection, error on infrastructure failure.
type OperationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger wraps logger; a nil logger discards everything.
func NewOperationLogger(logger *zap.Logger) *OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLogger{logger: logger}
}

// LogOperation implements ledger.OperationLogger.
func (operationLogger *OperationLogger) LogOperation(ctx context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", string(entry.Status)),
	}
	if !entry.Actor.IsZero() {
		fields = append(fields, zap.String("actor_id", entry.Actor.String()))
	}
	if !entry.Identity.IsZero() {
		fields = append(fields, zap.String("identity_id", entry.Identity.String()))
	}
	if !entry.ItemID.IsZero() {
		fields = append(fields, zap.String("item_id", entry.ItemID.String()))
	}
	if !entry.Amount.IsZero() {
		fields = append(fields, zap.String("amount", entry.Amount.String()))
	}
	if entry.Sequence > 0 {
		fields = append(fields,
			zap.String("entry_id", entry.EntryID.String()),
			zap.Int64("sequence", entry.Sequence),
		)
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}
	operationLogger.logger.Log(levelFor(entry.Status), operationMessage, fields...)
}

func levelFor(status ledger.OperationStatus) zapcore.Level {
	switch status {
	case ledger.OperationStatusRejected:
		return zapcore.WarnLevel
	case ledger.OperationStatusError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
