/*
ledger.go - Transaction recording and history

PURPOSE:
  The Ledger is the one component with business logic: it validates a
  transaction request, applies the inventory delta, and persists the
  event, all in a single unit of work.

VALIDATION ORDER:
  1. Required-field presence
  2. Quantity positivity
  3. Type / patient consistency
  4. Referential existence (staff, item, patient)
  The first failing check short-circuits; no partial state is written.

STOCK POLICY:
  A dispense that would drive quantity negative is rejected with
  InsufficientStockError. The guard is enforced twice: a pre-check
  against the item read (for an accurate shortfall message) and the
  store's guarded delta inside the transaction (for correctness under
  concurrent dispensers).
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER SERVICE
// =============================================================================

// Ledger records dispense/restock events and keeps inventory quantities
// consistent with them.
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Record validates req, then persists the event and applies the
// inventory delta atomically. On success it returns the persisted event
// with its assigned ID and sequence number.
func (l *Ledger) Record(ctx context.Context, req RecordRequest) (TransactionEvent, error) {
	if err := validate(req); err != nil {
		return TransactionEvent{}, err
	}

	// Referential existence. Checked before the unit of work: a dangling
	// reference is a client error, not a storage race worth a transaction.
	ok, err := l.store.StaffExists(ctx, req.StaffID)
	if err != nil {
		return TransactionEvent{}, fmt.Errorf("%w: checking staff: %v", ErrStorage, err)
	}
	if !ok {
		return TransactionEvent{}, &NotFoundError{Kind: "staff", ID: req.StaffID}
	}

	item, err := l.store.GetItem(ctx, req.ItemID)
	if err != nil {
		return TransactionEvent{}, fmt.Errorf("%w: checking item: %v", ErrStorage, err)
	}
	if item == nil {
		return TransactionEvent{}, &NotFoundError{Kind: "item", ID: req.ItemID}
	}

	if req.Type == TxDispense {
		ok, err := l.store.PatientExists(ctx, req.PatientID)
		if err != nil {
			return TransactionEvent{}, fmt.Errorf("%w: checking patient: %v", ErrStorage, err)
		}
		if !ok {
			return TransactionEvent{}, &NotFoundError{Kind: "patient", ID: req.PatientID}
		}

		// Pre-check so the caller sees the actual shortfall. The guarded
		// delta below re-checks under the transaction.
		if req.Quantity > item.Quantity {
			return TransactionEvent{}, &InsufficientStockError{
				ItemID:    req.ItemID,
				Available: item.Quantity,
				Requested: req.Quantity,
			}
		}
	}

	occurredOn := req.OccurredOn
	if occurredOn.IsZero() {
		occurredOn = Today()
	} else {
		occurredOn = DateOnly(occurredOn)
	}

	ev := TransactionEvent{
		ID:         uuid.NewString(),
		StaffID:    req.StaffID,
		PatientID:  req.PatientID,
		ItemID:     req.ItemID,
		Type:       req.Type,
		Quantity:   req.Quantity,
		OccurredOn: occurredOn,
	}

	// Single unit of work: event insert + inventory delta. Either both
	// succeed or neither is visible.
	err = l.store.WithTx(ctx, func(tx TxStore) error {
		persisted, err := tx.AppendEvent(ctx, ev)
		if err != nil {
			return err
		}
		ev = persisted

		if _, err := tx.ApplyDelta(ctx, ev.ItemID, ev.Delta()); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return TransactionEvent{}, err
	}

	return ev, nil
}

// Transactions returns the full event history, newest-first by date
// with insertion order as tie-break.
func (l *Ledger) Transactions(ctx context.Context) ([]TransactionEvent, error) {
	return l.store.ListEvents(ctx)
}

// =============================================================================
// VALIDATION
// =============================================================================

func validate(req RecordRequest) error {
	if req.StaffID == "" {
		return &ValidationError{Field: "staffId", Reason: "required"}
	}
	if req.ItemID == "" {
		return &ValidationError{Field: "itemId", Reason: "required"}
	}
	if req.Type == "" {
		return &ValidationError{Field: "type", Reason: "required"}
	}
	if req.Quantity <= 0 {
		return &ValidationError{Field: "qty", Reason: "must be a positive integer"}
	}
	if !req.Type.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown transaction type %q", req.Type)}
	}
	switch req.Type {
	case TxDispense:
		if req.PatientID == "" {
			return &ValidationError{Field: "patId", Reason: "required for Dispense"}
		}
	case TxRestock:
		if req.PatientID != "" {
			return &ValidationError{Field: "patId", Reason: "must be empty for Restock"}
		}
	}
	return nil
}
