/*
store.go - Persistence interfaces consumed by the ledger

PURPOSE:
  Defines what the ledger needs from storage without binding it to a
  database. Two implementations exist:
  - ledger/store: in-memory (tests, dev)
  - store/sqlite: SQLite (production)

ATOMICITY:
  Record needs "insert event + apply delta" as one unit of work. WithTx
  provides that: the callback runs against a TxStore whose writes all
  commit together or are all rolled back.

APPEND-ONLY ENFORCEMENT:
  EventStore has no update or delete operation. That is deliberate, not
  an omission: corrections are modeled as new offsetting events.
*/
package ledger

import "context"

// EventStore persists transaction events.
type EventStore interface {
	// ListEvents returns every event, newest-first by OccurredOn with
	// Seq descending as tie-break (latest insertion first).
	ListEvents(ctx context.Context) ([]TransactionEvent, error)
}

// InventoryStore exposes read access to current inventory state. The
// delta write lives on TxStore so it only happens inside a unit of work.
type InventoryStore interface {
	// GetItem returns nil when the item does not exist.
	GetItem(ctx context.Context, id string) (*InventoryItem, error)

	// ListItems returns all items (used for the low-stock scan).
	ListItems(ctx context.Context) ([]InventoryItem, error)
}

// DirectoryStore answers existence checks against the staff and patient
// tables. The ledger consumes these read-only.
type DirectoryStore interface {
	StaffExists(ctx context.Context, id string) (bool, error)
	PatientExists(ctx context.Context, id string) (bool, error)
}

// TxStore is the write surface available inside a unit of work.
type TxStore interface {
	// AppendEvent inserts the event and returns it with Seq assigned.
	AppendEvent(ctx context.Context, ev TransactionEvent) (TransactionEvent, error)

	// ApplyDelta adds delta (positive or negative) to the item's
	// quantity and returns the new quantity. Fails with
	// ErrInsufficientStock if the result would be negative, and with
	// ErrNotFound if the item is gone.
	ApplyDelta(ctx context.Context, itemID string, delta int64) (int64, error)
}

// Store is the full persistence surface the ledger engine depends on.
type Store interface {
	EventStore
	InventoryStore
	DirectoryStore

	// WithTx runs fn inside a single unit of work. If fn returns an
	// error the work is rolled back and nothing is visible to
	// subsequent reads.
	WithTx(ctx context.Context, fn func(tx TxStore) error) error
}
