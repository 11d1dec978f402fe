/*
handlers.go - HTTP API handlers for the clinic stock system

PURPOSE:
  Exposes the ledger engine and the directory CRUD over REST. Handles
  HTTP request/response and JSON serialization, and delegates all
  business rules to the ledger package.

ENDPOINTS:
  Transactions:
    GET    /api/transactions        Denormalized ledger listing
    POST   /api/transactions        Record a dispense/restock

  Reports:
    GET    /api/reports/monthly     Monthly rollup (?month=YYYY-MM)

  Inventory:
    GET    /api/inventory           List items
    POST   /api/inventory           Add item
    PUT    /api/inventory/{id}      Update item
    DELETE /api/inventory/{id}      Remove item

  Staff / Patients: same CRUD shape under /api/staff and /api/patients.

ERROR HANDLING:
  Ledger errors map to HTTP status by taxonomy (400 validation, 404
  dangling reference, 409 insufficient stock or conflict, 500 storage),
  but the body of every failed write is always {success:false, message}
  so the legacy client can discriminate without inspecting status codes.

SECURITY NOTE:
  No authentication. The legacy login flow is out of scope here.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medtrack/clinic-stock/ledger"
	"github.com/medtrack/clinic-stock/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Ledger   *ledger.Ledger
	Reporter *ledger.Reporter
	Log      *zap.Logger
}

// NewHandler creates a handler wired to the given store.
func NewHandler(store *sqlite.Store, log *zap.Logger) *Handler {
	return &Handler{
		Store:    store,
		Ledger:   ledger.New(store),
		Reporter: ledger.NewReporter(store, store),
		Log:      log,
	}
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns the joined read view, newest-first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	views, err := h.Store.ListTransactionViews(r.Context())
	if err != nil {
		h.Log.Error("list transactions failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to load transactions")
		return
	}

	dtos := make([]TransactionViewDTO, len(views))
	for i, v := range views {
		dtos[i] = toTransactionViewDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordTransaction records a dispense/restock and applies the
// inventory delta in one unit of work.
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var occurredOn time.Time
	if req.Date != "" {
		parsed, err := time.Parse(wireDateFormat, req.Date)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)")
			return
		}
		occurredOn = parsed
	}

	ev, err := h.Ledger.Record(r.Context(), ledger.RecordRequest{
		StaffID:    req.StaffID,
		PatientID:  req.PatientID,
		ItemID:     req.ItemID,
		Type:       ledger.TransactionType(req.Type),
		Quantity:   req.Qty,
		OccurredOn: occurredOn,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, WriteResponse{
		Success: true,
		Message: "Transaction saved",
		ID:      ev.ID,
	})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// MonthlyReport returns the rollup for ?month=YYYY-MM.
func (h *Handler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	month, err := ledger.ParseMonthKey(r.URL.Query().Get("month"))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.Reporter.Monthly(r.Context(), month)
	if err != nil {
		h.Log.Error("monthly report failed", zap.String("month", month.String()), zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to generate report")
		return
	}

	writeJSON(w, http.StatusOK, toMonthlyReportDTO(report))
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

// ListItems returns all inventory items.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		h.Log.Error("list items failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to load inventory")
		return
	}
	writeJSON(w, http.StatusOK, toItemDTOs(items))
}

// CreateItem adds an inventory item.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	item, ok := h.decodeItem(w, r)
	if !ok {
		return
	}
	item.ID = uuid.NewString()

	if err := h.Store.SaveItem(r.Context(), item); err != nil {
		h.Log.Error("save item failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to add item")
		return
	}
	writeJSON(w, http.StatusCreated, WriteResponse{Success: true, Message: "Item Added", ID: item.ID})
}

// UpdateItem replaces an item's editable fields.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	item, ok := h.decodeItem(w, r)
	if !ok {
		return
	}
	item.ID = chi.URLParam(r, "id")

	if err := h.Store.UpdateItem(r.Context(), item); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Success: true, Message: "Item Updated"})
}

// DeleteItem removes an item.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.Log.Error("delete item failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to delete item")
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Success: true})
}

func (h *Handler) decodeItem(w http.ResponseWriter, r *http.Request) (ledger.InventoryItem, bool) {
	var req ItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return ledger.InventoryItem{}, false
	}
	if req.Name == "" {
		writeFailure(w, http.StatusBadRequest, "name is required")
		return ledger.InventoryItem{}, false
	}
	if req.Qty < 0 {
		writeFailure(w, http.StatusBadRequest, "qty must not be negative")
		return ledger.InventoryItem{}, false
	}

	item := ledger.InventoryItem{
		Name:     req.Name,
		Category: req.Category,
		Quantity: req.Qty,
		Unit:     req.Unit,
	}
	if req.Exp != "" {
		exp, err := time.Parse(wireDateFormat, req.Exp)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid exp format (use YYYY-MM-DD)")
			return ledger.InventoryItem{}, false
		}
		item.Expiration = &exp
	}
	return item, true
}

// =============================================================================
// STAFF HANDLERS
// =============================================================================

// ListStaff returns the staff directory.
func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListStaff(r.Context())
	if err != nil {
		h.Log.Error("list staff failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to load staff")
		return
	}

	dtos := make([]StaffDTO, len(members))
	for i, m := range members {
		dtos[i] = StaffDTO{ID: m.ID, FullName: m.DisplayName, Role: m.Role, Username: m.Username}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStaff adds a staff member. Duplicate usernames are rejected.
func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req StaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FullName == "" || req.Username == "" {
		writeFailure(w, http.StatusBadRequest, "full_name and username are required")
		return
	}

	member := ledger.StaffMember{
		ID:          uuid.NewString(),
		DisplayName: req.FullName,
		Role:        req.Role,
		Username:    req.Username,
	}
	if err := h.Store.SaveStaff(r.Context(), member); err != nil {
		if errors.Is(err, sqlite.ErrUsernameTaken) {
			writeFailure(w, http.StatusConflict, "Username taken")
			return
		}
		h.Log.Error("save staff failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to add staff member")
		return
	}
	writeJSON(w, http.StatusCreated, WriteResponse{Success: true, ID: member.ID})
}

// UpdateStaff replaces a staff member's fields.
func (h *Handler) UpdateStaff(w http.ResponseWriter, r *http.Request) {
	var req StaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	member := ledger.StaffMember{
		ID:          chi.URLParam(r, "id"),
		DisplayName: req.FullName,
		Role:        req.Role,
		Username:    req.Username,
	}
	if err := h.Store.UpdateStaff(r.Context(), member); err != nil {
		if errors.Is(err, sqlite.ErrUsernameTaken) {
			writeFailure(w, http.StatusConflict, "Username taken")
			return
		}
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Success: true})
}

// DeleteStaff removes a staff member.
func (h *Handler) DeleteStaff(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteStaff(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.Log.Error("delete staff failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to delete staff member")
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Success: true})
}

// =============================================================================
// PATIENT HANDLERS
// =============================================================================

// ListPatients returns the patient directory.
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.Store.ListPatients(r.Context())
	if err != nil {
		h.Log.Error("list patients failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to load patients")
		return
	}

	dtos := make([]PatientDTO, len(patients))
	for i, p := range patients {
		dtos[i] = PatientDTO{ID: p.ID, FullName: p.DisplayName, Role: p.Role, Reason: p.Reason}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePatient adds a patient record.
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req PatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		writeFailure(w, http.StatusBadRequest, "name is required")
		return
	}

	patient := ledger.PatientRecord{
		ID:          uuid.NewString(),
		DisplayName: req.Name,
		Role:        req.Role,
		Reason:      req.Reason,
	}
	if err := h.Store.SavePatient(r.Context(), patient); err != nil {
		h.Log.Error("save patient failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to add patient")
		return
	}
	writeJSON(w, http.StatusCreated, WriteResponse{Success: true, Message: "Patient Added", ID: patient.ID})
}

// UpdatePatient replaces a patient record's fields.
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	var req PatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	patient := ledger.PatientRecord{
		ID:          chi.URLParam(r, "id"),
		DisplayName: req.Name,
		Role:        req.Role,
		Reason:      req.Reason,
	}
	if err := h.Store.UpdatePatient(r.Context(), patient); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Success: true})
}

// DeletePatient removes a patient record.
func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeletePatient(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.Log.Error("delete patient failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to delete patient")
		return
	}
	writeJSON(w, http.StatusOK, WriteResponse{Success: true})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, WriteResponse{Success: false, Message: message})
}

// writeLedgerError maps the ledger error taxonomy onto HTTP statuses.
// The body stays in the {success, message} envelope in every case.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeFailure(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeFailure(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock):
		writeFailure(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrConcurrencyConflict):
		writeFailure(w, http.StatusConflict, "Concurrent update, please retry")
	default:
		h.Log.Error("unexpected ledger error", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Internal error")
	}
}
