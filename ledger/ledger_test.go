package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/clinic-stock/ledger"
	"github.com/medtrack/clinic-stock/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger() (*ledger.Ledger, *store.Memory) {
	mem := store.NewMemory()
	mem.PutStaff(ledger.StaffMember{ID: "staff-1", DisplayName: "Nurse Reyes", Role: "Nurse", Username: "nreyes"})
	mem.PutPatient(ledger.PatientRecord{ID: "pat-1", DisplayName: "Juan Cruz", Role: "Patient", Reason: "Checkup"})
	mem.PutItem(ledger.InventoryItem{ID: "item-1", Name: "Paracetamol 500mg", Category: "Medicine", Quantity: 15, Unit: "tablet"})
	return ledger.New(mem), mem
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dispense(qty int64, on time.Time) ledger.RecordRequest {
	return ledger.RecordRequest{
		StaffID:    "staff-1",
		PatientID:  "pat-1",
		ItemID:     "item-1",
		Type:       ledger.TxDispense,
		Quantity:   qty,
		OccurredOn: on,
	}
}

func restock(qty int64, on time.Time) ledger.RecordRequest {
	return ledger.RecordRequest{
		StaffID:    "staff-1",
		ItemID:     "item-1",
		Type:       ledger.TxRestock,
		Quantity:   qty,
		OccurredOn: on,
	}
}

func itemQty(t *testing.T, mem *store.Memory, id string) int64 {
	t.Helper()
	item, err := mem.GetItem(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item.Quantity
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestRecord_MissingFields_Rejected(t *testing.T) {
	// GIVEN: Requests each missing one required field
	// WHEN: Recording them
	// THEN: Each is rejected with a ValidationError naming the field

	l, mem := newTestLedger()
	ctx := context.Background()

	cases := []struct {
		name  string
		req   ledger.RecordRequest
		field string
	}{
		{"no staff", ledger.RecordRequest{ItemID: "item-1", Type: ledger.TxRestock, Quantity: 1}, "staffId"},
		{"no item", ledger.RecordRequest{StaffID: "staff-1", Type: ledger.TxRestock, Quantity: 1}, "itemId"},
		{"no type", ledger.RecordRequest{StaffID: "staff-1", ItemID: "item-1", Quantity: 1}, "type"},
		{"zero qty", restock(0, date(2024, time.March, 1)), "qty"},
		{"negative qty", restock(-3, date(2024, time.March, 1)), "qty"},
		{"dispense without patient", ledger.RecordRequest{StaffID: "staff-1", ItemID: "item-1", Type: ledger.TxDispense, Quantity: 1}, "patId"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Record(ctx, tc.req)
			require.Error(t, err)

			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}

	// No event should have been written
	events, err := l.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, int64(15), itemQty(t, mem, "item-1"))
}

func TestRecord_UnknownType_Rejected(t *testing.T) {
	// GIVEN: A request with an unrecognized transaction type
	// WHEN: Recording it
	// THEN: It is rejected as a validation error, not silently stored

	l, _ := newTestLedger()

	req := restock(1, date(2024, time.March, 1))
	req.Type = "Adjustment"

	_, err := l.Record(context.Background(), req)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestRecord_RestockWithPatient_Rejected(t *testing.T) {
	// GIVEN: A restock that names a patient
	// WHEN: Recording it
	// THEN: It is rejected (restocks have no patient attribution)

	l, _ := newTestLedger()

	req := restock(5, date(2024, time.March, 1))
	req.PatientID = "pat-1"

	_, err := l.Record(context.Background(), req)
	require.Error(t, err)

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "patId", verr.Field)
}

// =============================================================================
// REFERENTIAL EXISTENCE TESTS
// =============================================================================

func TestRecord_UnknownReferences_NotFound(t *testing.T) {
	// GIVEN: Requests referencing records that do not exist
	// WHEN: Recording them
	// THEN: Each fails with a NotFoundError naming the record kind

	l, _ := newTestLedger()
	ctx := context.Background()

	cases := []struct {
		name string
		req  ledger.RecordRequest
		kind string
	}{
		{"unknown staff", func() ledger.RecordRequest { r := restock(1, time.Time{}); r.StaffID = "ghost"; return r }(), "staff"},
		{"unknown item", func() ledger.RecordRequest { r := restock(1, time.Time{}); r.ItemID = "ghost"; return r }(), "item"},
		{"unknown patient", func() ledger.RecordRequest { r := dispense(1, time.Time{}); r.PatientID = "ghost"; return r }(), "patient"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Record(ctx, tc.req)
			require.Error(t, err)

			var nfe *ledger.NotFoundError
			require.ErrorAs(t, err, &nfe)
			assert.Equal(t, tc.kind, nfe.Kind)
			assert.ErrorIs(t, err, ledger.ErrNotFound)
		})
	}
}

// =============================================================================
// RECORDING TESTS
// =============================================================================

func TestRecord_Dispense_DecreasesStock(t *testing.T) {
	// GIVEN: An item with 15 units on hand
	// WHEN: Dispensing 5 units
	// THEN: The event is appended and the quantity drops to 10

	l, mem := newTestLedger()
	ctx := context.Background()

	ev, err := l.Record(ctx, dispense(5, date(2024, time.March, 10)))
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Positive(t, ev.Seq)
	assert.Equal(t, ledger.TxDispense, ev.Type)
	assert.Equal(t, int64(-5), ev.Delta())
	assert.Equal(t, int64(10), itemQty(t, mem, "item-1"))

	events, err := l.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
}

func TestRecord_Restock_IncreasesStock(t *testing.T) {
	// GIVEN: An item with 15 units on hand
	// WHEN: Restocking 20 units
	// THEN: The quantity rises to 35

	l, mem := newTestLedger()

	ev, err := l.Record(context.Background(), restock(20, date(2024, time.March, 15)))
	require.NoError(t, err)

	assert.Empty(t, ev.PatientID)
	assert.Equal(t, int64(20), ev.Delta())
	assert.Equal(t, int64(35), itemQty(t, mem, "item-1"))
}

func TestRecord_DefaultsDateToToday(t *testing.T) {
	// GIVEN: A request with no explicit date
	// WHEN: Recording it
	// THEN: The event carries today's UTC calendar date

	l, _ := newTestLedger()

	ev, err := l.Record(context.Background(), restock(1, time.Time{}))
	require.NoError(t, err)
	assert.Equal(t, ledger.Today(), ev.OccurredOn)
}

func TestRecord_TruncatesDateToMidnightUTC(t *testing.T) {
	// GIVEN: A request timestamped mid-afternoon in a non-UTC zone
	// WHEN: Recording it
	// THEN: The stored date is the UTC calendar date at midnight

	l, _ := newTestLedger()

	loc := time.FixedZone("UTC+8", 8*3600)
	at := time.Date(2024, time.March, 10, 15, 30, 0, 0, loc)

	ev, err := l.Record(context.Background(), restock(1, at))
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.March, 10), ev.OccurredOn)
}

// =============================================================================
// STOCK GUARD TESTS
// =============================================================================

func TestRecord_Overdraw_Rejected(t *testing.T) {
	// GIVEN: An item with 15 units on hand
	// WHEN: Dispensing 20 units
	// THEN: The request fails with the actual shortfall and nothing changes

	l, mem := newTestLedger()
	ctx := context.Background()

	_, err := l.Record(ctx, dispense(20, date(2024, time.March, 10)))
	require.Error(t, err)

	var ise *ledger.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(15), ise.Available)
	assert.Equal(t, int64(20), ise.Requested)

	events, err := l.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, events, "failed dispense must not leave a ledger entry")
	assert.Equal(t, int64(15), itemQty(t, mem, "item-1"))
}

func TestRecord_ExactStock_Allowed(t *testing.T) {
	// GIVEN: An item with 15 units on hand
	// WHEN: Dispensing exactly 15 units
	// THEN: The request succeeds and the quantity reaches zero

	l, mem := newTestLedger()

	_, err := l.Record(context.Background(), dispense(15, date(2024, time.March, 10)))
	require.NoError(t, err)
	assert.Equal(t, int64(0), itemQty(t, mem, "item-1"))
}

func TestWithTx_FailedDelta_RollsBackEvent(t *testing.T) {
	// GIVEN: A unit of work that appends an event then overdraws stock
	// WHEN: The delta fails inside the transaction
	// THEN: The appended event is rolled back with it

	_, mem := newTestLedger()
	ctx := context.Background()

	err := mem.WithTx(ctx, func(tx ledger.TxStore) error {
		_, err := tx.AppendEvent(ctx, ledger.TransactionEvent{
			ID:         "ev-1",
			StaffID:    "staff-1",
			PatientID:  "pat-1",
			ItemID:     "item-1",
			Type:       ledger.TxDispense,
			Quantity:   999,
			OccurredOn: date(2024, time.March, 10),
		})
		if err != nil {
			return err
		}
		_, err = tx.ApplyDelta(ctx, "item-1", -999)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	events, err := mem.ListEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, int64(15), itemQty(t, mem, "item-1"))
}

func TestRecord_ConcurrentDispense_ExactlyOneWins(t *testing.T) {
	// GIVEN: An item with 15 units and two submissions of 10 units each
	// WHEN: Both record concurrently
	// THEN: Exactly one succeeds and the final quantity is 5

	l, mem := newTestLedger()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Record(ctx, dispense(10, date(2024, time.March, 10)))
		}(i)
	}
	wg.Wait()

	var successes, shortfalls int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case ledger.IsClientError(err):
			shortfalls++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, shortfalls)
	assert.Equal(t, int64(5), itemQty(t, mem, "item-1"))

	events, err := l.Transactions(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1, "only the winning dispense leaves a ledger entry")
}

// =============================================================================
// HISTORY ORDERING TESTS
// =============================================================================

func TestTransactions_NewestFirstWithInsertionTieBreak(t *testing.T) {
	// GIVEN: Events on mixed dates, two sharing the same date
	// WHEN: Listing the history
	// THEN: Events come newest-first; same-date events keep reverse
	//       insertion order

	l, _ := newTestLedger()
	ctx := context.Background()

	first, err := l.Record(ctx, restock(1, date(2024, time.March, 10)))
	require.NoError(t, err)
	older, err := l.Record(ctx, restock(2, date(2024, time.March, 5)))
	require.NoError(t, err)
	second, err := l.Record(ctx, restock(3, date(2024, time.March, 10)))
	require.NoError(t, err)

	events, err := l.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, second.ID, events[0].ID)
	assert.Equal(t, first.ID, events[1].ID)
	assert.Equal(t, older.ID, events[2].ID)
}
