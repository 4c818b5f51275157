package ledger

import "context"

// AddItem stores a new catalog item. Requires the admin-operations capability.
func (service *Service) AddItem(ctx context.Context, actorID IdentityID, draft ItemDraft) (Item, error) {
	var item Item
	operationError := service.store.WithTx(context.WithoutCancel(ctx), func(ctx context.Context, transactionStore Store) error {
		if err := authorize(ctx, transactionStore, actorID, CapabilityAdminOperations); err != nil {
			return err
		}
		created, err := transactionStore.CreateItem(ctx, draft, service.clock.Now())
		if err != nil {
			return err
		}
		item = created
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationAddItem,
		Actor:     actorID,
		ItemID:    item.ID(),
		Error:     operationError,
	})
	if operationError != nil {
		return Item{}, operationError
	}
	return item, nil
}

// UpdateItem applies catalog-management edits under the item lock, so they
// serialize with purchases and refunds of the same item.
func (service *Service) UpdateItem(ctx context.Context, actorID IdentityID, itemID ItemID, changes ItemChanges) (Item, error) {
	var item Item
	operationError := service.store.WithTx(context.WithoutCancel(ctx), func(ctx context.Context, transactionStore Store) error {
		if err := authorize(ctx, transactionStore, actorID, CapabilityAdminOperations); err != nil {
			return err
		}
		locked, err := transactionStore.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		changed, err := locked.apply(changes)
		if err != nil {
			return err
		}
		item, err = transactionStore.UpdateItem(ctx, changed)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationUpdateItem,
		Actor:     actorID,
		ItemID:    itemID,
		Error:     operationError,
	})
	if operationError != nil {
		return Item{}, operationError
	}
	return item, nil
}

// RemoveItem withdraws an item permanently. Removing twice is a no-op.
func (service *Service) RemoveItem(ctx context.Context, actorID IdentityID, itemID ItemID) (Item, error) {
	var item Item
	operationError := service.store.WithTx(context.WithoutCancel(ctx), func(ctx context.Context, transactionStore Store) error {
		if err := authorize(ctx, transactionStore, actorID, CapabilityAdminOperations); err != nil {
			return err
		}
		locked, err := transactionStore.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if locked.Removed() {
			item = locked
			return nil
		}
		item, err = transactionStore.UpdateItem(ctx, locked.withRemoved())
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRemoveItem,
		Actor:     actorID,
		ItemID:    itemID,
		Error:     operationError,
	})
	if operationError != nil {
		return Item{}, operationError
	}
	return item, nil
}
