// Package store provides an in-memory ledger.Store implementation
// for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/medtrack/clinic-stock/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements ledger.Store with plain maps behind one RWMutex.
// WithTx holds the write lock for the whole unit of work and undoes
// applied writes on failure, so readers never observe a half-applied
// transaction.
type Memory struct {
	mu       sync.RWMutex
	seq      int64
	events   []ledger.TransactionEvent
	items    map[string]ledger.InventoryItem
	staff    map[string]ledger.StaffMember
	patients map[string]ledger.PatientRecord
}

func NewMemory() *Memory {
	return &Memory{
		items:    make(map[string]ledger.InventoryItem),
		staff:    make(map[string]ledger.StaffMember),
		patients: make(map[string]ledger.PatientRecord),
	}
}

// =============================================================================
// SEEDING - directory and inventory records for tests/dev
// =============================================================================

func (m *Memory) PutItem(item ledger.InventoryItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

func (m *Memory) PutStaff(s ledger.StaffMember) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[s.ID] = s
}

func (m *Memory) PutPatient(p ledger.PatientRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

// =============================================================================
// EVENT STORE
// =============================================================================

func (m *Memory) ListEvents(_ context.Context) ([]ledger.TransactionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.TransactionEvent, len(m.events))
	copy(out, m.events)

	// Newest-first by date, then latest insertion first.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredOn.Equal(out[j].OccurredOn) {
			return out[i].OccurredOn.After(out[j].OccurredOn)
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

// =============================================================================
// INVENTORY STORE
// =============================================================================

func (m *Memory) GetItem(_ context.Context, id string) (*ledger.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *Memory) ListItems(_ context.Context) ([]ledger.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]ledger.InventoryItem, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// =============================================================================
// DIRECTORY STORE
// =============================================================================

func (m *Memory) StaffExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.staff[id]
	return ok, nil
}

func (m *Memory) PatientExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.patients[id]
	return ok, nil
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithTx serializes all writes behind the mutex and rolls back applied
// work when fn fails. Delta application against the same item cannot
// race: the lock is held for the full unit of work.
func (m *Memory) WithTx(ctx context.Context, fn func(tx ledger.TxStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{parent: m}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memoryTx struct {
	parent   *Memory
	appended int              // events added, for rollback
	deltas   map[string]int64 // itemID -> applied delta
}

func (tx *memoryTx) AppendEvent(_ context.Context, ev ledger.TransactionEvent) (ledger.TransactionEvent, error) {
	p := tx.parent
	p.seq++
	ev.Seq = p.seq
	ev.CreatedAt = time.Now().UTC()
	p.events = append(p.events, ev)
	tx.appended++
	return ev, nil
}

func (tx *memoryTx) ApplyDelta(_ context.Context, itemID string, delta int64) (int64, error) {
	p := tx.parent
	item, ok := p.items[itemID]
	if !ok {
		return 0, &ledger.NotFoundError{Kind: "item", ID: itemID}
	}
	next := item.Quantity + delta
	if next < 0 {
		return 0, &ledger.InsufficientStockError{
			ItemID:    itemID,
			Available: item.Quantity,
			Requested: -delta,
		}
	}
	item.Quantity = next
	p.items[itemID] = item

	if tx.deltas == nil {
		tx.deltas = make(map[string]int64)
	}
	tx.deltas[itemID] += delta
	return next, nil
}

func (tx *memoryTx) rollback() {
	p := tx.parent
	if tx.appended > 0 {
		p.events = p.events[:len(p.events)-tx.appended]
		p.seq -= int64(tx.appended)
	}
	for itemID, delta := range tx.deltas {
		item := p.items[itemID]
		item.Quantity -= delta
		p.items[itemID] = item
	}
}
