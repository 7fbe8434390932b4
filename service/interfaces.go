package service

import (
	"context"
	"image"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aashish23092/invoice-flow/dto"
)

// Recognizer is the external text recognition primitive.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (dto.Recognition, error)
}

// InvoiceStore persists invoices. UpdateInvoice runs fn on a copy of the
// invoice inside a per-invoice critical section and commits the mutated
// invoice together with the returned history records, or nothing when fn fails.
type InvoiceStore interface {
	GetInvoice(ctx context.Context, id int64) (dto.Invoice, error)
	UpdateInvoice(ctx context.Context, id int64, fn func(inv *dto.Invoice) ([]dto.HistoryRecord, error)) (dto.Invoice, error)
	ListInvoices(ctx context.Context, filter dto.InvoiceFilter) ([]dto.Invoice, error)
}

// HistoryReader answers questions about past invoices. Vendor names match by
// case-insensitive containment and excludeID removes the invoice being scored.
type HistoryReader interface {
	VendorAverage(ctx context.Context, vendor string, excludeID int64) (decimal.Decimal, bool, error)
	VendorExists(ctx context.Context, vendor string, excludeID int64) (bool, error)
	CountSimilar(ctx context.Context, q dto.SimilarInvoiceQuery) (int, error)
	// VendorReliability is the share of the vendor's paid invoices paid by their due date.
	VendorReliability(ctx context.Context, vendor string) (float64, bool, error)
}

// UserDirectory looks up users. Results are ordered by most recent login first.
type UserDirectory interface {
	FindApprovers(ctx context.Context, serviceID string, roles []dto.Role) ([]dto.User, error)
	UsersByRole(ctx context.Context, roles []dto.Role) ([]dto.User, error)
}

// ServiceDirectory resolves a service's approval policy.
type ServiceDirectory interface {
	GetService(ctx context.Context, id string) (dto.Service, error)
}

// RuleSource provides the configured workflow rules.
type RuleSource interface {
	ActiveRules(ctx context.Context) ([]dto.WorkflowRule, error)
}

// TemplateCatalog provides the known invoice layouts in catalog order.
type TemplateCatalog interface {
	ListTemplates(ctx context.Context) ([]dto.TemplateHint, error)
}

// Dispatcher delivers a notification. Delivery is best-effort.
type Dispatcher interface {
	Dispatch(ctx context.Context, n dto.Notification) error
}

// Locker provides a mutual exclusion keyed by string.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ReminderLedger remembers which reminders were already sent.
// MarkSent returns true only for the first call per key within ttl.
type ReminderLedger interface {
	MarkSent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
