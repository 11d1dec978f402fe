/*
report.go - Monthly aggregation over the ledger

PURPOSE:
  Derives the monthly rollup (quantities dispensed, restock count,
  unique patients served) from recorded history, plus a live low-stock
  snapshot from current inventory state.

PURITY:
  The report is a pure function of the ledger and inventory at call
  time. There is no cached aggregate to invalidate: every request
  re-scans, which is a deliberate choice at this data volume.

MONTH MATCHING:
  Events are matched on the calendar year and month of their stored
  date, not a 30-day duration window. The month key arrives on the wire
  as "YYYY-MM" and is parsed into distinct integers.
*/
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LowStockThreshold is the fixed quantity at or below which an item is
// flagged on reports.
const LowStockThreshold = 10

// =============================================================================
// MONTH KEY
// =============================================================================

// MonthKey identifies a calendar month for reporting.
type MonthKey struct {
	Year  int
	Month time.Month
}

// ParseMonthKey parses a "YYYY-MM" string into a MonthKey.
func ParseMonthKey(s string) (MonthKey, error) {
	yearStr, monthStr, found := strings.Cut(s, "-")
	if !found {
		return MonthKey{}, &ValidationError{Field: "month", Reason: fmt.Sprintf("expected YYYY-MM, got %q", s)}
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil || year < 1 {
		return MonthKey{}, &ValidationError{Field: "month", Reason: fmt.Sprintf("invalid year in %q", s)}
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return MonthKey{}, &ValidationError{Field: "month", Reason: fmt.Sprintf("invalid month in %q", s)}
	}
	return MonthKey{Year: year, Month: time.Month(month)}, nil
}

// Contains reports whether t falls in this calendar month.
func (k MonthKey) Contains(t time.Time) bool {
	return t.Year() == k.Year && t.Month() == k.Month
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// =============================================================================
// MONTHLY REPORT
// =============================================================================

// MonthlyReport is the rollup for one calendar month plus the current
// low-stock snapshot.
type MonthlyReport struct {
	Month          MonthKey
	DispensedTotal int64
	RestockCount   int
	UniquePatients int
	MatchingEvents []TransactionEvent // newest-first, same order as ListEvents
	LowStockItems  []InventoryItem    // live snapshot, independent of Month
}

// Reporter computes monthly reports. It holds no state of its own: both
// inputs are read fresh on every call.
type Reporter struct {
	events    EventStore
	inventory InventoryStore
}

func NewReporter(events EventStore, inventory InventoryStore) *Reporter {
	return &Reporter{events: events, inventory: inventory}
}

// Monthly filters the ledger by calendar month and recomputes the
// statistics. An empty month is valid output, not an error; the only
// failures are storage read failures, propagated as-is.
func (r *Reporter) Monthly(ctx context.Context, month MonthKey) (MonthlyReport, error) {
	events, err := r.events.ListEvents(ctx)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("%w: reading ledger: %v", ErrStorage, err)
	}

	report := MonthlyReport{
		Month:          month,
		MatchingEvents: []TransactionEvent{},
	}

	patients := make(map[string]struct{})
	for _, ev := range events {
		if !month.Contains(ev.OccurredOn) {
			continue
		}
		report.MatchingEvents = append(report.MatchingEvents, ev)

		switch ev.Type {
		case TxDispense:
			report.DispensedTotal += ev.Quantity
			if ev.PatientID != "" {
				patients[ev.PatientID] = struct{}{}
			}
		case TxRestock:
			report.RestockCount++
		}
	}
	report.UniquePatients = len(patients)

	items, err := r.inventory.ListItems(ctx)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("%w: reading inventory: %v", ErrStorage, err)
	}

	report.LowStockItems = []InventoryItem{}
	for _, item := range items {
		if item.Quantity <= LowStockThreshold {
			report.LowStockItems = append(report.LowStockItems, item)
		}
	}

	return report, nil
}
