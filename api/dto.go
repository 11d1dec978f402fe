/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the wire contract consumed by the
  clinic's mobile app. The field names are legacy and must not change:
  write requests use staffId / patId / itemId / qty / type / date, write
  responses are {success, message}, and transaction reads are the
  denormalized join carrying staff_name / patient_name / item_name.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

VALIDATION:
  DTOs are pure data carriers. Validation happens in the ledger (for
  transactions) and in handlers (for CRUD shape checks).
*/
package api

import (
	"github.com/medtrack/clinic-stock/ledger"
	"github.com/medtrack/clinic-stock/store/sqlite"
)

const wireDateFormat = "2006-01-02"

// =============================================================================
// WRITE RESPONSE - shared by every mutating endpoint
// =============================================================================

// WriteResponse is the legacy write-side envelope. Clients discriminate
// failure from success by the flag plus message, never payload shape.
type WriteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	ID      string `json:"id,omitempty"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionRequest is the legacy transaction submission body.
type TransactionRequest struct {
	StaffID   string `json:"staffId"`
	PatientID string `json:"patId"`
	ItemID    string `json:"itemId"`
	Qty       int64  `json:"qty"`
	Type      string `json:"type"`
	Date      string `json:"date"` // YYYY-MM-DD, optional
}

// TransactionViewDTO is one row of the denormalized read view.
type TransactionViewDTO struct {
	ID          string `json:"id"`
	StaffID     string `json:"staffId"`
	PatientID   string `json:"patId,omitempty"`
	ItemID      string `json:"itemId"`
	Type        string `json:"type"`
	Qty         int64  `json:"qty"`
	Date        string `json:"date"`
	StaffName   string `json:"staff_name"`
	PatientName string `json:"patient_name"`
	ItemName    string `json:"item_name"`
}

func toTransactionViewDTO(v sqlite.TransactionView) TransactionViewDTO {
	return TransactionViewDTO{
		ID:          v.ID,
		StaffID:     v.StaffID,
		PatientID:   v.PatientID,
		ItemID:      v.ItemID,
		Type:        string(v.Type),
		Qty:         v.Quantity,
		Date:        v.OccurredOn.Format(wireDateFormat),
		StaffName:   v.StaffName,
		PatientName: v.PatientName,
		ItemName:    v.ItemName,
	}
}

// =============================================================================
// MONTHLY REPORT
// =============================================================================

// MonthlyReportDTO is the response for GET /api/reports/monthly.
type MonthlyReportDTO struct {
	Month                string           `json:"month"`
	DispensedTotal       int64            `json:"dispensedTotal"`
	RestockCount         int              `json:"restockCount"`
	UniquePatientsServed int              `json:"uniquePatientsServed"`
	Transactions         []TransactionDTO `json:"transactions"`
	LowStockItems        []ItemDTO        `json:"lowStockItems"`
}

// TransactionDTO is a bare ledger event (no join), used inside reports.
type TransactionDTO struct {
	ID        string `json:"id"`
	StaffID   string `json:"staffId"`
	PatientID string `json:"patId,omitempty"`
	ItemID    string `json:"itemId"`
	Type      string `json:"type"`
	Qty       int64  `json:"qty"`
	Date      string `json:"date"`
}

func toTransactionDTO(ev ledger.TransactionEvent) TransactionDTO {
	return TransactionDTO{
		ID:        ev.ID,
		StaffID:   ev.StaffID,
		PatientID: ev.PatientID,
		ItemID:    ev.ItemID,
		Type:      string(ev.Type),
		Qty:       ev.Quantity,
		Date:      ev.OccurredOn.Format(wireDateFormat),
	}
}

func toMonthlyReportDTO(r ledger.MonthlyReport) MonthlyReportDTO {
	dto := MonthlyReportDTO{
		Month:                r.Month.String(),
		DispensedTotal:       r.DispensedTotal,
		RestockCount:         r.RestockCount,
		UniquePatientsServed: r.UniquePatients,
		Transactions:         make([]TransactionDTO, len(r.MatchingEvents)),
		LowStockItems:        make([]ItemDTO, len(r.LowStockItems)),
	}
	for i, ev := range r.MatchingEvents {
		dto.Transactions[i] = toTransactionDTO(ev)
	}
	for i, item := range r.LowStockItems {
		dto.LowStockItems[i] = toItemDTO(item)
	}
	return dto
}

// =============================================================================
// INVENTORY
// =============================================================================

// ItemDTO uses the legacy column-style keys the mobile app normalizes.
type ItemDTO struct {
	ID             string `json:"id"`
	ItemName       string `json:"item_name"`
	Category       string `json:"category"`
	Quantity       int64  `json:"quantity"`
	Unit           string `json:"unit"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

// ItemRequest is the legacy item create/update body.
type ItemRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Qty      int64  `json:"qty"`
	Unit     string `json:"unit"`
	Exp      string `json:"exp"` // YYYY-MM-DD, optional
}

func toItemDTO(item ledger.InventoryItem) ItemDTO {
	dto := ItemDTO{
		ID:       item.ID,
		ItemName: item.Name,
		Category: item.Category,
		Quantity: item.Quantity,
		Unit:     item.Unit,
	}
	if item.Expiration != nil {
		dto.ExpirationDate = item.Expiration.Format(wireDateFormat)
	}
	return dto
}

func toItemDTOs(items []ledger.InventoryItem) []ItemDTO {
	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toItemDTO(item)
	}
	return dtos
}

// =============================================================================
// STAFF / PATIENTS
// =============================================================================

// StaffDTO mirrors the legacy staff listing row.
type StaffDTO struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Username string `json:"username"`
}

// StaffRequest is the legacy staff create/update body.
type StaffRequest struct {
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Username string `json:"username"`
}

// PatientDTO mirrors the legacy patient listing row.
type PatientDTO struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Reason   string `json:"reason"`
}

// PatientRequest is the legacy patient create/update body.
type PatientRequest struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Reason string `json:"reason"`
}
