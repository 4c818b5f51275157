package gateway

import (
	"errors"

	"github.com/MarkoPoloResearchLab/scholarcash/pkg/ledger"
)

// Machine-readable error codes shared by every transport.
const (
	ErrorInsufficientFunds      = "insufficient_funds"
	ErrorBalanceLimit           = "balance_limit_exceeded"
	ErrorOutOfStock             = "out_of_stock"
	ErrorItemRemoved            = "item_removed"
	ErrorInvalidTarget          = "invalid_target"
	ErrorNotFound               = "not_found"
	ErrorNotAuthorized          = "not_authorized"
	ErrorDuplicateIdentity      = "duplicate_identity"
	ErrorConcurrentModification = "concurrent_modification"
	ErrorInvalidIdentityID      = "invalid_identity_id"
	ErrorInvalidItemID          = "invalid_item_id"
	ErrorInvalidRole            = "invalid_role"
	ErrorInvalidAmount          = "invalid_amount"
	ErrorInvalidDescription     = "invalid_description"
	ErrorInvalidMetadata        = "invalid_metadata_json"
	ErrorInvalidItem            = "invalid_item"
	ErrorInvalidThreshold       = "invalid_threshold"
	ErrorInvalidLimit           = "invalid_limit"
	ErrorInvalidRequest         = "invalid_request"
	ErrorInternal               = "internal_error"
)

// Class groups error codes by how a transport should report them.
type Class int

const (
	ClassInternal Class = iota
	ClassInvalid
	ClassNotFound
	ClassRejected
	ClassForbidden
	ClassConflict
	ClassRetryable
)

var classifiedErrors = []struct {
	target error
	code   string
	class  Class
}{
	{target: ledger.ErrInsufficientFunds, code: ErrorInsufficientFunds, class: ClassRejected},
	{target: ledger.ErrBalanceLimit, code: ErrorBalanceLimit, class: ClassRejected},
	{target: ledger.ErrOutOfStock, code: ErrorOutOfStock, class: ClassRejected},
	{target: ledger.ErrItemRemoved, code: ErrorItemRemoved, class: ClassRejected},
	{target: ledger.ErrInvalidTarget, code: ErrorInvalidTarget, class: ClassInvalid},
	{target: ledger.ErrNotFound, code: ErrorNotFound, class: ClassNotFound},
	{target: ledger.ErrNotAuthorized, code: ErrorNotAuthorized, class: ClassForbidden},
	{target: ledger.ErrDuplicateIdentity, code: ErrorDuplicateIdentity, class: ClassConflict},
	{target: ledger.ErrConcurrentModification, code: ErrorConcurrentModification, class: ClassRetryable},
	{target: ledger.ErrInvalidIdentityID, code: ErrorInvalidIdentityID, class: ClassInvalid},
	{target: ledger.ErrInvalidItemID, code: ErrorInvalidItemID, class: ClassInvalid},
	{target: ledger.ErrInvalidRole, code: ErrorInvalidRole, class: ClassInvalid},
	{target: ledger.ErrInvalidAmount, code: ErrorInvalidAmount, class: ClassInvalid},
	{target: ledger.ErrInvalidDescription, code: ErrorInvalidDescription, class: ClassInvalid},
	{target: ledger.ErrInvalidMetadataJSON, code: ErrorInvalidMetadata, class: ClassInvalid},
	{target: ledger.ErrInvalidItemName, code: ErrorInvalidItem, class: ClassInvalid},
	{target: ledger.ErrInvalidCategory, code: ErrorInvalidItem, class: ClassInvalid},
	{target: ledger.ErrInvalidStock, code: ErrorInvalidItem, class: ClassInvalid},
	{target: ledger.ErrInvalidThreshold, code: ErrorInvalidThreshold, class: ClassInvalid},
	{target: ledger.ErrInvalidLimit, code: ErrorInvalidLimit, class: ClassInvalid},
}

// Classify returns the machine code and class for err.
func Classify(err error) (string, Class) {
	for _, candidate := range classifiedErrors {
		if errors.Is(err, candidate.target) {
			return candidate.code, candidate.class
		}
	}
	return ErrorInternal, ClassInternal
}

// FailureDetails exposes the structured fields of business rejections.
func FailureDetails(err error) map[string]any {
	var insufficientFunds ledger.InsufficientFundsError
	if errors.As(err, &insufficientFunds) {
		return map[string]any{
			"identity_id": insufficientFunds.Identity.String(),
			"balance":     insufficientFunds.Balance.String(),
			"requested":   insufficientFunds.Requested.String(),
			"shortfall":   insufficientFunds.Shortfall.String(),
		}
	}
	var balanceLimit ledger.BalanceLimitError
	if errors.As(err, &balanceLimit) {
		return map[string]any{
			"identity_id": balanceLimit.Identity.String(),
			"balance":     balanceLimit.Balance.String(),
			"requested":   balanceLimit.Requested.String(),
			"limit":       balanceLimit.Limit.String(),
		}
	}
	var outOfStock ledger.OutOfStockError
	if errors.As(err, &outOfStock) {
		return map[string]any{
			"item_id":   outOfStock.Item.String(),
			"stock":     outOfStock.Stock,
			"requested": outOfStock.Requested,
			"active":    outOfStock.Active,
			"removed":   outOfStock.Removed,
		}
	}
	var notFound ledger.NotFoundError
	if errors.As(err, &notFound) {
		return map[string]any{
			"resource": notFound.Resource,
			"id":       notFound.ID,
		}
	}
	return nil
}
