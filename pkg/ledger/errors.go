package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger service.
var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrBalanceLimit           = errors.New("balance limit exceeded")
	ErrOutOfStock             = errors.New("out of stock")
	ErrInvalidTarget          = errors.New("invalid target")
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrNotAuthorized          = errors.New("not authorized")
	ErrDuplicateIdentity      = errors.New("duplicate identity")
	ErrItemRemoved            = errors.New("item removed")
	ErrInvalidIdentityID      = errors.New("invalid identity id")
	ErrInvalidItemID          = errors.New("invalid item id")
	ErrInvalidEntryID         = errors.New("invalid entry id")
	ErrInvalidRole            = errors.New("invalid role")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidDescription     = errors.New("invalid description")
	ErrInvalidMetadataJSON    = errors.New("invalid metadata json")
	ErrInvalidEntryKind       = errors.New("invalid entry kind")
	ErrInvalidEntryParties    = errors.New("invalid entry parties")
	ErrInvalidItemName        = errors.New("invalid item name")
	ErrInvalidCategory        = errors.New("invalid category")
	ErrInvalidStock           = errors.New("invalid stock quantity")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidThreshold       = errors.New("invalid threshold")
	ErrInvalidLimit           = errors.New("invalid limit")
	ErrInvalidVersion         = errors.New("invalid version")
	ErrInvalidTimestamp       = errors.New("invalid timestamp")
	ErrInvalidSequence        = errors.New("invalid sequence")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
)

// InsufficientFundsError reports a debit that would drive a balance negative.
type InsufficientFundsError struct {
	Identity  IdentityID
	Balance   Tokens
	Requested PositiveTokens
	Shortfall Tokens
}

func newInsufficientFundsError(wallet Wallet, requested PositiveTokens) InsufficientFundsError {
	return InsufficientFundsError{
		Identity:  wallet.Identity(),
		Balance:   wallet.Balance(),
		Requested: requested,
		Shortfall: wallet.Balance().Shortfall(requested),
	}
}

func (failure InsufficientFundsError) Error() string {
	return fmt.Sprintf("%v: identity %s balance %s requested %s", ErrInsufficientFunds, failure.Identity, failure.Balance, failure.Requested)
}

// Unwrap returns ErrInsufficientFunds.
func (failure InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// BalanceLimitError reports a credit that would push a balance above MaxTokens.
type BalanceLimitError struct {
	Identity  IdentityID
	Balance   Tokens
	Requested PositiveTokens
	Limit     Tokens
}

func (failure BalanceLimitError) Error() string {
	return fmt.Sprintf("%v: identity %s balance %s requested %s limit %s", ErrBalanceLimit, failure.Identity, failure.Balance, failure.Requested, failure.Limit)
}

// Unwrap returns ErrBalanceLimit.
func (failure BalanceLimitError) Unwrap() error {
	return ErrBalanceLimit
}

// OutOfStockError reports an item that cannot supply the requested units.
type OutOfStockError struct {
	Item      ItemID
	Name      string
	Stock     int64
	Requested int64
	Active    bool
	Removed   bool
}

func newOutOfStockError(item Item, requested int64) OutOfStockError {
	return OutOfStockError{
		Item:      item.ID(),
		Name:      item.Name(),
		Stock:     item.Stock(),
		Requested: requested,
		Active:    item.Active(),
		Removed:   item.Removed(),
	}
}

func (failure OutOfStockError) Error() string {
	return fmt.Sprintf("%v: item %s stock %d requested %d active %t", ErrOutOfStock, failure.Item, failure.Stock, failure.Requested, failure.Active)
}

// Unwrap returns ErrOutOfStock.
func (failure OutOfStockError) Unwrap() error {
	return ErrOutOfStock
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

// NewNotFoundError is used by stores to report a missing identity, wallet or item.
func NewNotFoundError(resource string, id string) NotFoundError {
	return NotFoundError{Resource: resource, ID: id}
}

func (failure NotFoundError) Error() string {
	return fmt.Sprintf("%s %q %v", failure.Resource, failure.ID, ErrNotFound)
}

// Unwrap returns ErrNotFound.
func (failure NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InvalidTargetError reports an identity whose role does not fit the operation.
type InvalidTargetError struct {
	Identity IdentityID
	Role     Role
	Expected Role
}

func (failure InvalidTargetError) Error() string {
	return fmt.Sprintf("%v: identity %s has role %s, expected %s", ErrInvalidTarget, failure.Identity, failure.Role, failure.Expected)
}

// Unwrap returns ErrInvalidTarget.
func (failure InvalidTargetError) Unwrap() error {
	return ErrInvalidTarget
}

// IsRetryable reports whether the identical call may be attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsRejection reports whether err is a business rejection rather than an infrastructure fault.
func IsRejection(err error) bool {
	for _, sentinel := range rejectionErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

var rejectionErrors = []error{
	ErrInsufficientFunds,
	ErrBalanceLimit,
	ErrOutOfStock,
	ErrInvalidTarget,
	ErrNotFound,
	ErrNotAuthorized,
	ErrDuplicateIdentity,
	ErrItemRemoved,
	ErrInvalidIdentityID,
	ErrInvalidItemID,
	ErrInvalidRole,
	ErrInvalidAmount,
	ErrInvalidDescription,
	ErrInvalidMetadataJSON,
	ErrInvalidItemName,
	ErrInvalidCategory,
	ErrInvalidStock,
	ErrInvalidQuantity,
	ErrInvalidThreshold,
	ErrInvalidLimit,
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
