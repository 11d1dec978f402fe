/*
Package ledger provides the clinic's transaction ledger and
inventory-consistency engine.

PURPOSE:
  This package contains the domain types and business logic for recording
  dispense/restock events and keeping inventory quantities consistent with
  the recorded history. Staff and patient records are managed elsewhere;
  the ledger only holds their identifiers and validates that they exist
  at transaction time.

KEY CONCEPTS IN THIS FILE (types.go):
  - TransactionEvent: An immutable ledger entry (Dispense or Restock)
  - InventoryItem: Current quantity-on-hand for a stocked item
  - StaffMember / PatientRecord: Opaque referenced directory entities
  - RecordRequest: The input to Ledger.Record

DESIGN PRINCIPLES:
  1. Immutability: Events are never modified or deleted; corrections are
     new offsetting events
  2. Consistency: An event and its inventory delta commit together or
     not at all
  3. Derivation: Reports are recomputed from history on every request,
     never cached

SEE ALSO:
  - ledger.go: Record/Transactions operations
  - report.go: Monthly aggregation and low-stock scan
  - store.go: Persistence interfaces
*/
package ledger

import "time"

// =============================================================================
// TRANSACTION EVENT - Append-only ledger entry
// =============================================================================

type TransactionType string

const (
	TxDispense TransactionType = "Dispense" // Decreases item quantity, attributed to a patient
	TxRestock  TransactionType = "Restock"  // Increases item quantity, no patient
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TxDispense || t == TxRestock
}

// TransactionEvent is one immutable entry in the ledger.
//
// INVARIANTS:
//   - Quantity > 0 always (the sign lives in the Type, not the number)
//   - PatientID is non-empty iff Type is Dispense
//   - StaffID and ItemID referenced existing records at creation time
//
// Seq is assigned by the store on insert and reflects insertion order,
// which is the tie-break for events sharing an OccurredOn date.
type TransactionEvent struct {
	ID         string
	Seq        int64
	StaffID    string
	PatientID  string // empty for Restock
	ItemID     string
	Type       TransactionType
	Quantity   int64
	OccurredOn time.Time // calendar date, UTC midnight
	CreatedAt  time.Time
}

// Delta returns the signed quantity adjustment this event applies to
// its item: negative for Dispense, positive for Restock.
func (e TransactionEvent) Delta() int64 {
	if e.Type == TxDispense {
		return -e.Quantity
	}
	return e.Quantity
}

// =============================================================================
// RECORD REQUEST - Input to Ledger.Record
// =============================================================================

// RecordRequest describes a transaction to append. OccurredOn may be the
// zero time, in which case the submission date (UTC) is used.
type RecordRequest struct {
	StaffID    string
	PatientID  string
	ItemID     string
	Type       TransactionType
	Quantity   int64
	OccurredOn time.Time
}

// =============================================================================
// INVENTORY ITEM
// =============================================================================

// InventoryItem holds the current quantity-on-hand for a stocked item.
// The ledger mutates only Quantity, and only through ApplyDelta; every
// other field belongs to the inventory CRUD surface.
type InventoryItem struct {
	ID         string
	Name       string
	Category   string
	Quantity   int64 // never negative after an applied transaction
	Unit       string
	Expiration *time.Time
}

// =============================================================================
// DIRECTORY ENTITIES - Owned by external collaborators
// =============================================================================

// StaffMember is a directory record the ledger references by ID.
type StaffMember struct {
	ID          string
	DisplayName string
	Role        string
	Username    string
}

// PatientRecord is a directory record the ledger references by ID.
type PatientRecord struct {
	ID          string
	DisplayName string
	Role        string
	Reason      string
}

// =============================================================================
// DATE HELPERS
// =============================================================================

// DateOnly truncates t to a UTC calendar date. All OccurredOn values
// pass through here so month filtering compares plain dates.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current UTC calendar date.
func Today() time.Time {
	return DateOnly(time.Now())
}
