package ledger

import (
	"fmt"
	"strings"
	"time"
)

// EntryKind enumerates ledger entry kinds.
type EntryKind string

const (
	EntryCredit   EntryKind = "CREDIT"
	EntryPurchase EntryKind = "PURCHASE"
	EntryRefund   EntryKind = "REFUND"
	EntryPenalty  EntryKind = "PENALTY"
)

// ParseEntryKind normalizes a stored kind.
func ParseEntryKind(raw string) (EntryKind, error) {
	kind := EntryKind(strings.ToUpper(strings.TrimSpace(raw)))
	switch kind {
	case EntryCredit, EntryPurchase, EntryRefund, EntryPenalty:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryKind, raw)
	}
}

// String returns the kind name.
func (kind EntryKind) String() string {
	return string(kind)
}

// paysIn reports whether the kind moves value from the system to the identity.
func (kind EntryKind) paysIn() bool {
	return kind == EntryCredit || kind == EntryRefund
}

// EntryInput is a validated ledger line that has not been appended yet.
type EntryInput struct {
	kind        EntryKind
	sender      *IdentityID
	receiver    *IdentityID
	amount      PositiveTokens
	description Description
	itemID      *ItemID
	metadata    MetadataJSON
	createdAt   time.Time
}

// NewEntryInput validates a ledger line. Credits and refunds have only a receiver;
// purchases and penalties have only a sender; purchases always name an item.
func NewEntryInput(
	kind EntryKind,
	sender *IdentityID,
	receiver *IdentityID,
	amount PositiveTokens,
	description Description,
	itemID *ItemID,
	metadata MetadataJSON,
	createdAt time.Time,
) (EntryInput, error) {
	if _, err := ParseEntryKind(kind.String()); err != nil {
		return EntryInput{}, err
	}
	if err := validateParties(kind, sender, receiver); err != nil {
		return EntryInput{}, err
	}
	if amount.isZero() {
		return EntryInput{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if description.value == "" {
		return EntryInput{}, fmt.Errorf("%w: empty value", ErrInvalidDescription)
	}
	if itemID != nil && itemID.IsZero() {
		return EntryInput{}, fmt.Errorf("%w: empty value", ErrInvalidItemID)
	}
	if kind == EntryPurchase && itemID == nil {
		return EntryInput{}, fmt.Errorf("%w: purchase without item", ErrInvalidItemID)
	}
	if createdAt.IsZero() {
		return EntryInput{}, fmt.Errorf("%w: created at is zero", ErrInvalidTimestamp)
	}
	return EntryInput{
		kind:        kind,
		sender:      copyIdentity(sender),
		receiver:    copyIdentity(receiver),
		amount:      amount,
		description: description,
		itemID:      copyItemID(itemID),
		metadata:    metadata,
		createdAt:   createdAt.UTC(),
	}, nil
}

func validateParties(kind EntryKind, sender *IdentityID, receiver *IdentityID) error {
	if kind.paysIn() {
		if sender != nil || receiver == nil || receiver.IsZero() {
			return fmt.Errorf("%w: %s needs a receiver only", ErrInvalidEntryParties, kind)
		}
		return nil
	}
	if receiver != nil || sender == nil || sender.IsZero() {
		return fmt.Errorf("%w: %s needs a sender only", ErrInvalidEntryParties, kind)
	}
	return nil
}

// Kind returns the entry kind.
func (input EntryInput) Kind() EntryKind {
	return input.kind
}

// Sender returns the paying identity, if any.
func (input EntryInput) Sender() (IdentityID, bool) {
	if input.sender == nil {
		return IdentityID{}, false
	}
	return *input.sender, true
}

// Receiver returns the paid identity, if any.
func (input EntryInput) Receiver() (IdentityID, bool) {
	if input.receiver == nil {
		return IdentityID{}, false
	}
	return *input.receiver, true
}

// Amount returns the moved amount.
func (input EntryInput) Amount() PositiveTokens {
	return input.amount
}

// Description returns the recorded reason.
func (input EntryInput) Description() Description {
	return input.description
}

// ItemID returns the related item, if any.
func (input EntryInput) ItemID() (ItemID, bool) {
	if input.itemID == nil {
		return ItemID{}, false
	}
	return *input.itemID, true
}

// Metadata returns the attached metadata.
func (input EntryInput) Metadata() MetadataJSON {
	return input.metadata
}

// CreatedAt returns the entry timestamp.
func (input EntryInput) CreatedAt() time.Time {
	return input.createdAt
}

// Involves reports whether identity is the sender or the receiver.
func (input EntryInput) Involves(identity IdentityID) bool {
	if input.sender != nil && *input.sender == identity {
		return true
	}
	return input.receiver != nil && *input.receiver == identity
}

// Entry is a single immutable line in the ledger.
type Entry struct {
	EntryInput
	entryID  EntryID
	sequence int64
}

// NewEntry attaches the store-assigned id and sequence to input.
func NewEntry(entryID EntryID, sequence int64, input EntryInput) (Entry, error) {
	if entryID.value == "" {
		return Entry{}, fmt.Errorf("%w: empty value", ErrInvalidEntryID)
	}
	if sequence <= 0 {
		return Entry{}, fmt.Errorf("%w: %d", ErrInvalidSequence, sequence)
	}
	if input.kind == "" {
		return Entry{}, fmt.Errorf("%w: empty input", ErrInvalidEntryKind)
	}
	return Entry{EntryInput: input, entryID: entryID, sequence: sequence}, nil
}

// EntryID returns the entry id.
func (entry Entry) EntryID() EntryID {
	return entry.entryID
}

// Sequence returns the insertion order, strictly increasing across the ledger.
func (entry Entry) Sequence() int64 {
	return entry.sequence
}

// NewerThan reports whether entry sorts before other in display order.
func (entry Entry) NewerThan(other Entry) bool {
	if !entry.createdAt.Equal(other.createdAt) {
		return entry.createdAt.After(other.createdAt)
	}
	return entry.sequence > other.sequence
}

// Totals aggregates the ledger for one identity.
type Totals struct {
	Credits Tokens
	Debits  Tokens
}

// Net returns credits minus debits.
func (totals Totals) Net() TokenDelta {
	return TokenDelta{value: totals.Credits.value.Sub(totals.Debits.value)}
}

func copyIdentity(source *IdentityID) *IdentityID {
	if source == nil {
		return nil
	}
	value := *source
	return &value
}

func copyItemID(source *ItemID) *ItemID {
	if source == nil {
		return nil
	}
	value := *source
	return &value
}
