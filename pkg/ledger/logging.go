package ledger

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationStatus classifies the outcome of an operation.
type OperationStatus string

const (
	OperationStatusOK       OperationStatus = "ok"
	OperationStatusRejected OperationStatus = "rejected"
	OperationStatusError    OperationStatus = "error"
)

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation string
	Actor     IdentityID
	Identity  IdentityID
	ItemID    ItemID
	Amount    Tokens
	EntryID   EntryID
	Sequence  int64
	Status    OperationStatus
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
// It may be passed more than once; loggers are called in order.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		if logger != nil {
			service.loggers = append(service.loggers, logger)
		}
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if len(service.loggers) == 0 {
		return
	}
	if entry.Status == "" {
		switch {
		case entry.Error == nil:
			entry.Status = OperationStatusOK
		case IsRejection(entry.Error):
			entry.Status = OperationStatusRejected
		default:
			entry.Status = OperationStatusError
		}
	}
	for _, logger := range service.loggers {
		logger.LogOperation(ctx, entry)
	}
}

func receiptLog(operation string, actor IdentityID, identity IdentityID, receipt Receipt, err error) OperationLog {
	entry := OperationLog{
		Operation: operation,
		Actor:     actor,
		Identity:  identity,
		Error:     err,
	}
	if err == nil {
		entry.Amount = receipt.Entry.Amount().Tokens()
		entry.EntryID = receipt.Entry.EntryID()
		entry.Sequence = receipt.Entry.Sequence()
		if itemID, ok := receipt.Entry.ItemID(); ok {
			entry.ItemID = itemID
		}
	}
	return entry
}
