package ledger

const (
	operationProvision  = "provision"
	operationCredit     = "credit"
	operationPurchase   = "purchase"
	operationRefund     = "refund"
	operationPenalty    = "penalty"
	operationAddItem    = "add_item"
	operationUpdateItem = "update_item"
	operationRemoveItem = "remove_item"

	purchaseDescriptionPrefix = "Purchased "

	tokenScale           = 2
	maxTokenCents        = 9_999_999_999
	maxDescriptionLength = 200
	maxItemNameLength    = 100
	maxCategoryLength    = 50
	defaultActivityLimit = 10
	maxActivityLimit     = 200
	defaultMetadataJSON  = "{}"
	unitQuantity         = 1
)

// Resource names reported by NotFoundError.
const (
	ResourceIdentity = "identity"
	ResourceWallet   = "wallet"
	ResourceItem     = "item"
)
