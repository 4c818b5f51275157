package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Service is the transaction engine: every mutating call runs as one unit of
// work over the Store, takes the wallet lock before the item lock, and appends
// exactly one ledger entry.
type Service struct {
	store   Store
	clock   *monotonicClock
	loggers []OperationLogger
}

// Receipt is returned by successful engine operations.
type Receipt struct {
	Entry  Entry
	Wallet Wallet
	// Item is set for purchases and refunds.
	Item *Item
	// Restocked is false when a refund targeted a removed item.
	Restocked bool
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, clock: &monotonicClock{now: now}}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// ProvisionIdentity creates an identity together with its empty wallet.
func (service *Service) ProvisionIdentity(ctx context.Context, identityID IdentityID, role Role) (Identity, Wallet, error) {
	var wallet Wallet
	identity, operationError := NewIdentity(identityID, role, service.clock.Now())
	if operationError == nil {
		operationError = service.store.WithTx(context.WithoutCancel(ctx), func(ctx context.Context, transactionStore Store) error {
			created, err := transactionStore.CreateIdentity(ctx, identity)
			if err != nil {
				return err
			}
			wallet = created
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationProvision,
		Identity:  identityID,
		Error:     operationError,
	})
	if operationError != nil {
		return Identity{}, Wallet{}, operationError
	}
	return identity, wallet, nil
}

// Authorize checks that actorID exists and holds capability.
func (service *Service) Authorize(ctx context.Context, actorID IdentityID, capability Capability) error {
	return authorize(ctx, service.store, actorID, capability)
}

// Credit adds amount to a student's wallet.
func (service *Service) Credit(ctx context.Context, actorID IdentityID, studentID IdentityID, amount PositiveTokens, reason Description, metadata MetadataJSON) (Receipt, error) {
	var receipt Receipt
	operationError := service.store.WithTx(context.WithoutCancel(ctx), func(ctx context.Context, transactionStore Store) error {
		if err := authorize(ctx, transactionStore, actorID, CapabilityAdminOperations); err != nil {
			return err
		}
		if err := requireStudent(ctx, transactionStore, studentID); err != nil {
			return err
		}
		at := service.clock.Now()
		wallet, err := service.accounts(transactionStore, at).AdjustBalance(ctx, studentID, CreditOf(amount))
		if err != nil {
			return err
		}
		entryInput, err := NewEntryInput(EntryCredit, nil, &studentID, amount, reason, nil, metadata, at)
		if err != nil {
			return err
		}
		entry, err := transactionStore.AppendEntry(ctx, entryInput)
		if err != nil {
			return err
		}
		receipt = Receipt{Entry: entry, Wallet: wallet}
		return nil
	})
	service.logOperation(ctx, withAmount(receiptLog(operationCredit, actorID, studentID, receipt, operationError), amount))
	if operationError != nil {
		return Receipt{}, operationError
	}
	return receipt, nil
}

// Purchase sells one unit of itemID to a student at the current price.
//
// Availability is checked before funds. Both checks run once without locks to
// fail fast and again under the wallet and item locks against committed state.
func (service *Service) Purchase(ctx context.Context, studentID IdentityID, itemID ItemID, metadata MetadataJSON) (Receipt, error) {
	var receipt Receipt
	operationError := service.checkPurchase(ctx, service.store, studentID, itemID)
	if operationError == nil {
		operationError = service.store.WithTx(context.WithoutCancel(ctx), func(ctx context.Context, transactionStore Store) error {
			if err := requireStudent(ctx, transactionStore, studentID); err != nil {
				return err
			}
			wallet, err := transactionStore.LockWallet(ctx, studentID)
			if err != nil {
				return err
			}
			item, err := transactionStore.LockItem(ctx, itemID)
			if err != nil {
				return err
			}
			if err := checkStock(item, unitQuantity); err != nil {
				return err
			}
			if !wallet.Balance().Covers(item.Price()) {
				return newInsufficientFundsError(wallet, item.Price())
			}
			at := service.clock.Now()
			updatedWallet, err := service.accounts(transactionStore, at).AdjustBalance(ctx, studentID, DebitOf(item.Price()))
			if err != nil {
				return err
			}
			updatedItem, err := service.catalog(transactionStore).ReserveStock(ctx, itemID, unitQuantity)
			if err != nil {
				return err
			}
			description, err := NewDescription(purchaseDescriptionPrefix + item.Name())
			if err != nil {
				return err
			}
			entryInput, err := NewEntryInput(EntryPurchase, &studentID, nil, item.Price(), description, &itemID, metadata, at)
			if err != nil {
				return err
			}
			entry, err := transactionStore.AppendEntry(ctx, entryInput)
			if err != nil {
				return err
			}
			receipt = Receipt{Entry: entry, Wallet: updatedWallet, Item: &updatedItem}
			return nil
		})
	}
	logEntry := receiptLog(operationPurchase, studentID, studentID, receipt, operationError)
	logEntry.ItemID = itemID
	service.logOperation(ctx, logEntry)
	if operationError != nil {
		return Receipt{}, operationError
	}
	return receipt, nil
}

// Refund returns amount to a student and puts one unit of itemID back in stock.
func (service *Service) Refund(ctx context.Context, actorID IdentityID, studentID IdentityID, itemID ItemID, amount PositiveTokens, reason Description, metadata MetadataJSON) (Receipt, error) {
	var receipt Receipt
	operationError := service.store.WithTx(context.WithoutCancel(ctx), func(ctx context.Context, transactionStore Store) error {
		if err := authorize(ctx, transactionStore, actorID, CapabilityAdminOperations); err != nil {
			return err
		}
		if err := requireStudent(ctx, transactionStore, studentID); err != nil {
			return err
		}
		if _, err := transactionStore.LockWallet(ctx, studentID); err != nil {
			return err
		}
		if _, err := transactionStore.LockItem(ctx, itemID); err != nil {
			return err
		}
		at := service.clock.Now()
		wallet, err := service.accounts(transactionStore, at).AdjustBalance(ctx, studentID, CreditOf(amount))
		if err != nil {
			return err
		}
		item, restocked, err := service.catalog(transactionStore).ReleaseStock(ctx, itemID, unitQuantity)
		if err != nil {
			return err
		}
		entryInput, err := NewEntryInput(EntryRefund, nil, &studentID, amount, reason, &itemID, metadata, at)
		if err != nil {
			return err
		}
		entry, err := transactionStore.AppendEntry(ctx, entryInput)
		if err != nil {
			return err
		}
		receipt = Receipt{Entry: entry, Wallet: wallet, Item: &item, Restocked: restocked}
		return nil
	})
	logEntry := withAmount(receiptLog(operationRefund, actorID, studentID, receipt, operationError), amount)
	logEntry.ItemID = itemID
	service.logOperation(ctx, logEntry)
	if operationError != nil {
		return Receipt{}, operationError
	}
	return receipt, nil
}

// Penalty removes amount from a student's wallet. It never overdraws.
func (service *Service) Penalty(ctx context.Context, actorID IdentityID, studentID IdentityID, amount PositiveTokens, reason Description, metadata MetadataJSON) (Receipt, error) {
	var receipt Receipt
	operationError := service.store.WithTx(context.WithoutCancel(ctx), func(ctx context.Context, transactionStore Store) error {
		if err := authorize(ctx, transactionStore, actorID, CapabilityAdminOperations); err != nil {
			return err
		}
		if err := requireStudent(ctx, transactionStore, studentID); err != nil {
			return err
		}
		at := service.clock.Now()
		wallet, err := service.accounts(transactionStore, at).AdjustBalance(ctx, studentID, DebitOf(amount))
		if err != nil {
			return err
		}
		entryInput, err := NewEntryInput(EntryPenalty, &studentID, nil, amount, reason, nil, metadata, at)
		if err != nil {
			return err
		}
		entry, err := transactionStore.AppendEntry(ctx, entryInput)
		if err != nil {
			return err
		}
		receipt = Receipt{Entry: entry, Wallet: wallet}
		return nil
	})
	service.logOperation(ctx, withAmount(receiptLog(operationPenalty, actorID, studentID, receipt, operationError), amount))
	if operationError != nil {
		return Receipt{}, operationError
	}
	return receipt, nil
}

// checkPurchase is the unlocked fast-fail pass over committed state.
func (service *Service) checkPurchase(ctx context.Context, store Store, studentID IdentityID, itemID ItemID) error {
	if err := requireStudent(ctx, store, studentID); err != nil {
		return err
	}
	available, err := service.catalog(store).IsAvailable(ctx, itemID)
	if err != nil {
		return err
	}
	item, err := store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !available {
		if err := checkStock(item, unitQuantity); err != nil {
			return err
		}
	}
	accounts := &Accounts{store: store, now: service.clock.Now}
	sufficient, err := accounts.HasSufficientBalance(ctx, studentID, item.Price())
	if err != nil {
		return err
	}
	if !sufficient {
		wallet, err := store.GetWallet(ctx, studentID)
		if err != nil {
			return err
		}
		return newInsufficientFundsError(wallet, item.Price())
	}
	return nil
}

func (service *Service) accounts(transactionStore Store, at time.Time) *Accounts {
	return &Accounts{store: transactionStore, now: func() time.Time { return at }}
}

func (service *Service) catalog(transactionStore Store) *Catalog {
	return &Catalog{store: transactionStore}
}

func authorize(ctx context.Context, store Store, actorID IdentityID, capability Capability) error {
	actor, err := store.GetIdentity(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.Role().Allows(capability) {
		return fmt.Errorf("%w: identity %s lacks %s", ErrNotAuthorized, actorID, capability)
	}
	return nil
}

func requireStudent(ctx context.Context, store Store, identityID IdentityID) error {
	identity, err := store.GetIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	if identity.Role() != RoleStudent {
		return InvalidTargetError{Identity: identityID, Role: identity.Role(), Expected: RoleStudent}
	}
	return nil
}

func withAmount(entry OperationLog, amount PositiveTokens) OperationLog {
	entry.Amount = amount.Tokens()
	return entry
}

// monotonicClock never returns a timestamp earlier than one it already returned.
type monotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// Now returns the current UTC time at microsecond precision.
func (clock *monotonicClock) Now() time.Time {
	current := clock.now().UTC().Truncate(time.Microsecond)
	clock.mu.Lock()
	defer clock.mu.Unlock()
	if current.Before(clock.last) {
		current = clock.last
	}
	clock.last = current
	return current
}
