/*
Package sqlite provides the SQLite-backed implementation of the ledger
storage interfaces, plus the directory tables (inventory, staff,
patients) the clinic's CRUD screens operate on.

INTERFACES IMPLEMENTED:
  ledger.Store: events, inventory reads, directory existence checks,
  and the WithTx unit of work.

APPEND-ONLY ENFORCEMENT:
  There are no UPDATE or DELETE statements against the transactions
  table anywhere in this package. Corrections are new offsetting events.

ATOMIC DELTA:
  ApplyDelta runs a guarded conditional UPDATE
  (quantity = quantity + ? WHERE id = ? AND quantity + ? >= 0) inside
  the same sql.Tx as the event insert. The rows-affected check is the
  serialization point that prevents two concurrent dispenses from both
  passing a stale stock read: at most one can win the row.

CONCURRENCY:
  WAL mode plus a sync.RWMutex, matching SQLite's single-writer model.
  "database is locked" errors surface as ledger.ErrConcurrencyConflict
  so callers know the whole call is retryable.

KEY TABLES:
  transactions: immutable ledger (seq = insertion order)
  inventory:    current quantity-on-hand per item
  staff, patients: directory records, consumed read-only by the ledger
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/medtrack/clinic-stock/ledger"
)

const dateFormat = "2006-01-02"

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Transactions (append-only ledger). seq is the insertion-order
	-- tie-break for events sharing an occurred_on date.
	CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		staff_id TEXT NOT NULL,
		patient_id TEXT,
		item_id TEXT NOT NULL,
		tx_type TEXT NOT NULL CHECK (tx_type IN ('Dispense', 'Restock')),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		occurred_on TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_occurred_on
		ON transactions(occurred_on DESC, seq DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_item
		ON transactions(item_id);

	-- Inventory (current state; quantity only changes via ApplyDelta
	-- or the item CRUD surface)
	CREATE TABLE IF NOT EXISTS inventory (
		id TEXT PRIMARY KEY,
		item_name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		unit TEXT NOT NULL DEFAULT '',
		expiration_date TEXT
	);

	-- Staff directory
	CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL UNIQUE
	);

	-- Patient directory
	CREATE TABLE IF NOT EXISTS patients (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT ''
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT STORE (ledger.EventStore interface)
// =============================================================================

// ListEvents returns all events, newest-first by occurred_on with
// insertion order descending as tie-break.
func (s *Store) ListEvents(ctx context.Context) ([]ledger.TransactionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT seq, id, staff_id, patient_id, item_id, tx_type, quantity, occurred_on, created_at
		FROM transactions
		ORDER BY occurred_on DESC, seq DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapStorageErr("query transactions", err)
	}
	defer rows.Close()

	var events []ledger.TransactionEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (ledger.TransactionEvent, error) {
	var (
		ev         ledger.TransactionEvent
		patientID  sql.NullString
		occurredOn string
		createdAt  string
	)

	err := rows.Scan(&ev.Seq, &ev.ID, &ev.StaffID, &patientID, &ev.ItemID,
		&ev.Type, &ev.Quantity, &occurredOn, &createdAt)
	if err != nil {
		return ev, fmt.Errorf("failed to scan transaction: %w", err)
	}

	ev.PatientID = patientID.String
	ev.OccurredOn, _ = time.Parse(dateFormat, occurredOn)
	ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return ev, nil
}

// =============================================================================
// UNIT OF WORK (ledger.Store interface)
// =============================================================================

// WithTx executes fn within a single database transaction. Event insert
// and inventory delta either both commit or neither is visible.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStorageErr("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return wrapStorageErr("commit transaction", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

// AppendEvent inserts the event and returns it with its assigned
// sequence number. Insert only: the ledger has no update or delete.
func (ts *txStore) AppendEvent(ctx context.Context, ev ledger.TransactionEvent) (ledger.TransactionEvent, error) {
	ev.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO transactions (id, staff_id, patient_id, item_id, tx_type, quantity, occurred_on, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := ts.tx.ExecContext(ctx, query,
		ev.ID,
		ev.StaffID,
		nullString(ev.PatientID),
		ev.ItemID,
		ev.Type,
		ev.Quantity,
		ev.OccurredOn.Format(dateFormat),
		ev.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return ev, wrapStorageErr("append transaction", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return ev, wrapStorageErr("read transaction seq", err)
	}
	ev.Seq = seq
	return ev, nil
}

// ApplyDelta adds delta to the item's quantity and returns the new
// quantity. The WHERE clause re-checks sufficiency under the
// transaction, so a stale pre-check read can never drive stock negative.
func (ts *txStore) ApplyDelta(ctx context.Context, itemID string, delta int64) (int64, error) {
	res, err := ts.tx.ExecContext(ctx,
		`UPDATE inventory SET quantity = quantity + ? WHERE id = ? AND quantity + ? >= 0`,
		delta, itemID, delta,
	)
	if err != nil {
		return 0, wrapStorageErr("apply inventory delta", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStorageErr("apply inventory delta", err)
	}

	var quantity int64
	if rows == 0 {
		// Distinguish a missing item from a guarded rejection.
		err := ts.tx.QueryRowContext(ctx, `SELECT quantity FROM inventory WHERE id = ?`, itemID).Scan(&quantity)
		if err == sql.ErrNoRows {
			return 0, &ledger.NotFoundError{Kind: "item", ID: itemID}
		}
		if err != nil {
			return 0, wrapStorageErr("read inventory quantity", err)
		}
		return 0, &ledger.InsufficientStockError{
			ItemID:    itemID,
			Available: quantity,
			Requested: -delta,
		}
	}

	if err := ts.tx.QueryRowContext(ctx, `SELECT quantity FROM inventory WHERE id = ?`, itemID).Scan(&quantity); err != nil {
		return 0, wrapStorageErr("read inventory quantity", err)
	}
	return quantity, nil
}

// =============================================================================
// INVENTORY STORE (ledger.InventoryStore interface + CRUD)
// =============================================================================

// GetItem returns nil when the item does not exist.
func (s *Store) GetItem(ctx context.Context, id string) (*ledger.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, item_name, category, quantity, unit, expiration_date FROM inventory WHERE id = ?`, id)

	item, err := scanItemRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorageErr("get item", err)
	}
	return &item, nil
}

// ListItems returns all items; used for inventory screens and the
// low-stock scan.
func (s *Store) ListItems(ctx context.Context) ([]ledger.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_name, category, quantity, unit, expiration_date FROM inventory ORDER BY item_name`)
	if err != nil {
		return nil, wrapStorageErr("list inventory", err)
	}
	defer rows.Close()

	var items []ledger.InventoryItem
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItemRow(row rowScanner) (ledger.InventoryItem, error) {
	var (
		item       ledger.InventoryItem
		expiration sql.NullString
	)
	err := row.Scan(&item.ID, &item.Name, &item.Category, &item.Quantity, &item.Unit, &expiration)
	if err != nil {
		return item, err
	}
	if expiration.Valid && expiration.String != "" {
		if t, err := time.Parse(dateFormat, expiration.String); err == nil {
			item.Expiration = &t
		}
	}
	return item, nil
}

// SaveItem inserts a new inventory item.
func (s *Store) SaveItem(ctx context.Context, item ledger.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inventory (id, item_name, category, quantity, unit, expiration_date) VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.Category, item.Quantity, item.Unit, formatExpiration(item.Expiration),
	)
	if err != nil {
		return wrapStorageErr("save item", err)
	}
	return nil
}

// UpdateItem replaces all editable fields of an item. This is the CRUD
// surface; the ledger itself never touches it.
func (s *Store) UpdateItem(ctx context.Context, item ledger.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE inventory SET item_name = ?, category = ?, quantity = ?, unit = ?, expiration_date = ? WHERE id = ?`,
		item.Name, item.Category, item.Quantity, item.Unit, formatExpiration(item.Expiration), item.ID,
	)
	if err != nil {
		return wrapStorageErr("update item", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "item", ID: item.ID}
	}
	return nil
}

// DeleteItem removes an item. Past transactions referencing it remain
// in the ledger; the read-side join tolerates the missing name.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM inventory WHERE id = ?`, id)
	if err != nil {
		return wrapStorageErr("delete item", err)
	}
	return nil
}

func formatExpiration(t *time.Time) *string {
	if t == nil {
		return nil
	}
	e := t.Format(dateFormat)
	return &e
}

// =============================================================================
// STAFF DIRECTORY (ledger.DirectoryStore + CRUD)
// =============================================================================

// ErrUsernameTaken is returned by SaveStaff and UpdateStaff on a
// duplicate username.
var ErrUsernameTaken = fmt.Errorf("%w: username already taken", ledger.ErrValidation)

func (s *Store) StaffExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM staff WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, wrapStorageErr("check staff", err)
	}
	return count > 0, nil
}

// SaveStaff inserts a staff member. Usernames are unique.
func (s *Store) SaveStaff(ctx context.Context, member ledger.StaffMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO staff (id, full_name, role, username) VALUES (?, ?, ?, ?)`,
		member.ID, member.DisplayName, member.Role, member.Username,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUsernameTaken
		}
		return wrapStorageErr("save staff", err)
	}
	return nil
}

// UpdateStaff replaces the editable fields of a staff member.
func (s *Store) UpdateStaff(ctx context.Context, member ledger.StaffMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE staff SET full_name = ?, role = ?, username = ? WHERE id = ?`,
		member.DisplayName, member.Role, member.Username, member.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUsernameTaken
		}
		return wrapStorageErr("update staff", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "staff", ID: member.ID}
	}
	return nil
}

// DeleteStaff removes a staff member.
func (s *Store) DeleteStaff(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM staff WHERE id = ?`, id)
	if err != nil {
		return wrapStorageErr("delete staff", err)
	}
	return nil
}

// ListStaff returns all staff members.
func (s *Store) ListStaff(ctx context.Context) ([]ledger.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, full_name, role, username FROM staff ORDER BY full_name`)
	if err != nil {
		return nil, wrapStorageErr("list staff", err)
	}
	defer rows.Close()

	var members []ledger.StaffMember
	for rows.Next() {
		var m ledger.StaffMember
		if err := rows.Scan(&m.ID, &m.DisplayName, &m.Role, &m.Username); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// =============================================================================
// PATIENT DIRECTORY (ledger.DirectoryStore + CRUD)
// =============================================================================

func (s *Store) PatientExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patients WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, wrapStorageErr("check patient", err)
	}
	return count > 0, nil
}

// SavePatient inserts a patient record.
func (s *Store) SavePatient(ctx context.Context, p ledger.PatientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO patients (id, full_name, role, reason) VALUES (?, ?, ?, ?)`,
		p.ID, p.DisplayName, p.Role, p.Reason,
	)
	if err != nil {
		return wrapStorageErr("save patient", err)
	}
	return nil
}

// UpdatePatient replaces the editable fields of a patient record.
func (s *Store) UpdatePatient(ctx context.Context, p ledger.PatientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE patients SET full_name = ?, role = ?, reason = ? WHERE id = ?`,
		p.DisplayName, p.Role, p.Reason, p.ID,
	)
	if err != nil {
		return wrapStorageErr("update patient", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "patient", ID: p.ID}
	}
	return nil
}

// DeletePatient removes a patient record.
func (s *Store) DeletePatient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM patients WHERE id = ?`, id)
	if err != nil {
		return wrapStorageErr("delete patient", err)
	}
	return nil
}

// ListPatients returns all patient records.
func (s *Store) ListPatients(ctx context.Context) ([]ledger.PatientRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, full_name, role, reason FROM patients ORDER BY full_name`)
	if err != nil {
		return nil, wrapStorageErr("list patients", err)
	}
	defer rows.Close()

	var patients []ledger.PatientRecord
	for rows.Next() {
		var p ledger.PatientRecord
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Role, &p.Reason); err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// =============================================================================
// READ MODEL - Denormalized transaction listing
// =============================================================================

// TransactionView is one joined row of the ledger read model: the event
// plus display names resolved at query time. The ledger table itself
// stores only foreign keys; the names are joined here at the query
// boundary.
type TransactionView struct {
	ID          string
	StaffID     string
	PatientID   string
	ItemID      string
	Type        ledger.TransactionType
	Quantity    int64
	OccurredOn  time.Time
	StaffName   string
	PatientName string
	ItemName    string
}

// ListTransactionViews returns the joined read view, newest-first.
// LEFT JOINs tolerate directory records deleted after the fact.
func (s *Store) ListTransactionViews(ctx context.Context) ([]TransactionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT t.id, t.staff_id, t.patient_id, t.item_id, t.tx_type, t.quantity, t.occurred_on,
		       COALESCE(s.full_name, ''), COALESCE(p.full_name, ''), COALESCE(i.item_name, '')
		FROM transactions t
		LEFT JOIN staff s ON t.staff_id = s.id
		LEFT JOIN patients p ON t.patient_id = p.id
		LEFT JOIN inventory i ON t.item_id = i.id
		ORDER BY t.occurred_on DESC, t.seq DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapStorageErr("list transaction views", err)
	}
	defer rows.Close()

	var views []TransactionView
	for rows.Next() {
		var (
			v          TransactionView
			patientID  sql.NullString
			occurredOn string
		)
		err := rows.Scan(&v.ID, &v.StaffID, &patientID, &v.ItemID, &v.Type, &v.Quantity,
			&occurredOn, &v.StaffName, &v.PatientName, &v.ItemName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction view: %w", err)
		}
		v.PatientID = patientID.String
		v.OccurredOn, _ = time.Parse(dateFormat, occurredOn)
		views = append(views, v)
	}
	return views, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transactions", "inventory", "staff", "patients"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func wrapStorageErr(op string, err error) error {
	if isBusyError(err) {
		return fmt.Errorf("%w: %s: %v", ledger.ErrConcurrencyConflict, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ledger.ErrStorage, op, err)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isBusyError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "database table is locked"))
}
