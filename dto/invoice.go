package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	StatusDraft           InvoiceStatus = "draft"
	StatusPendingApproval InvoiceStatus = "pending_approval"
	StatusApproved        InvoiceStatus = "approved"
	StatusRejected        InvoiceStatus = "rejected"
	StatusPaid            InvoiceStatus = "paid"
	StatusOverdue         InvoiceStatus = "overdue"
	StatusCancelled       InvoiceStatus = "cancelled"
)

// ProcessingStatus tracks the automated processing of an invoice.
type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingRunning   ProcessingStatus = "processing"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
)

// DefaultPaymentTermsDays is used to derive a due date from the issue date.
const DefaultPaymentTermsDays = 30

// Invoice is the persisted invoice entity.
type Invoice struct {
	ID               int64           `json:"id"`
	Number           string          `json:"invoice_number"`
	VendorName       string          `json:"vendor_name"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Currency         string          `json:"currency"`
	InvoiceDate      *Date           `json:"invoice_date"`
	DueDate          *Date           `json:"due_date"`
	PaymentTermsDays int             `json:"payment_terms_days"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	VendorIBAN       string          `json:"vendor_iban,omitempty"`
	ServiceID        string          `json:"service_id"`
	Priority         PriorityLevel   `json:"priority"`
	Status           InvoiceStatus   `json:"status"`
	CreatedBy        *int64          `json:"created_by,omitempty"`
	AssignedTo       *int64          `json:"assigned_to,omitempty"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	FilePath         string          `json:"file_path,omitempty"`

	OCRRawText         string           `json:"ocr_raw_text,omitempty"`
	OCRConfidence      float64          `json:"ocr_confidence"`
	OCRTemplateID      *int64           `json:"ocr_template_id,omitempty"`
	AIProcessingStatus ProcessingStatus `json:"ai_processing_status"`
	AIRiskScore        int              `json:"ai_risk_score"`
	AIPriorityScore    int              `json:"ai_priority_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Data returns the scoring projection of the invoice.
func (inv Invoice) Data() InvoiceData {
	return InvoiceData{
		ID:              inv.ID,
		Number:          inv.Number,
		VendorName:      inv.VendorName,
		TotalAmount:     inv.TotalAmount,
		Currency:        inv.Currency,
		InvoiceDate:     FormatDate(inv.InvoiceDate),
		DueDate:         FormatDate(inv.DueDate),
		CurrentService:  inv.ServiceID,
		Priority:        inv.Priority,
		Status:          inv.Status,
		AIRiskScore:     inv.AIRiskScore,
		AIPriorityScore: inv.AIPriorityScore,
		CreatedAt:       inv.CreatedAt,
	}
}

// InvoiceData is the plain projection consumed by scoring and routing.
// Dates are YYYY-MM-DD strings; an empty string means the date is unknown.
type InvoiceData struct {
	ID              int64           `json:"id"`
	Number          string          `json:"number"`
	VendorName      string          `json:"vendor_name"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	InvoiceDate     string          `json:"invoice_date"`
	DueDate         string          `json:"due_date"`
	CurrentService  string          `json:"current_service"`
	Priority        PriorityLevel   `json:"priority"`
	Status          InvoiceStatus   `json:"status"`
	AIRiskScore     int             `json:"ai_risk_score"`
	AIPriorityScore int             `json:"ai_priority_score"`
	CreatedAt       time.Time       `json:"created_at"`
}

// InvoiceFilter selects invoices from a store. Zero fields do not filter.
type InvoiceFilter struct {
	Statuses  []InvoiceStatus
	DueOn     *Date
	DueBefore *Date
}

// SimilarInvoiceQuery describes a near-duplicate search.
type SimilarInvoiceQuery struct {
	Vendor    string
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	Since     Date
	ExcludeID int64
}
