package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/dto"
)

var reviewerRoles = []dto.Role{dto.RoleManager, dto.RoleAdmin}

// NotificationService builds notifications and hands them to a Dispatcher.
// Every send is best-effort: failures are logged and never returned.
type NotificationService struct {
	dispatcher Dispatcher
	users      UserDirectory
	now        func() time.Time
	logger     *zap.Logger
}

func NewNotificationService(dispatcher Dispatcher, users UserDirectory, now func() time.Time, logger *zap.Logger) *NotificationService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{dispatcher: dispatcher, users: users, now: now, logger: logger}
}

// SendAnomalyAlert notifies every manager and admin. It returns the number of notifications sent.
func (s *NotificationService) SendAnomalyAlert(ctx context.Context, inv dto.Invoice, anomaly dto.AnomalyResult) int {
	recipients, err := s.users.UsersByRole(ctx, reviewerRoles)
	if err != nil {
		s.logger.Error("anomaly alert: recipient lookup failed", zap.Int64("invoice_id", inv.ID), zap.Error(err))
		return 0
	}
	msg := fmt.Sprintf("Invoice %s from %s has risk score %d with %d high severity finding(s).",
		displayNumber(inv), inv.VendorName, anomaly.RiskScore, anomaly.HighSeverityCount())
	sent := 0
	for _, u := range recipients {
		if s.send(ctx, u.ID, dto.NotificationAnomalyAlert, "High Risk Invoice Detected", msg, inv.ID, dto.NotificationHigh) {
			sent++
		}
	}
	return sent
}

// SendApprovalRequest asks an approver to review an invoice.
func (s *NotificationService) SendApprovalRequest(ctx context.Context, inv dto.Invoice, approverID int64) bool {
	msg := fmt.Sprintf("Invoice %s from %s for %s %s requires your approval.",
		displayNumber(inv), inv.VendorName, inv.TotalAmount.StringFixed(2), inv.Currency)
	priority := dto.NotificationMedium
	if inv.Priority == dto.PriorityHigh || inv.Priority == dto.PriorityCritical {
		priority = dto.NotificationHigh
	}
	return s.send(ctx, approverID, dto.NotificationApprovalRequest, "Invoice Approval Required", msg, inv.ID, priority)
}

// SendDueDateReminder reminds recipients that an invoice is due in daysBefore days.
func (s *NotificationService) SendDueDateReminder(ctx context.Context, inv dto.Invoice, daysBefore int, recipients []int64) int {
	priority := dto.NotificationMedium
	if daysBefore <= 1 {
		priority = dto.NotificationHigh
	}
	title := fmt.Sprintf("Invoice due in %d day(s)", daysBefore)
	msg := fmt.Sprintf("Invoice %s from %s is due on %s.", displayNumber(inv), inv.VendorName, dto.FormatDate(inv.DueDate))
	return s.sendAll(ctx, recipients, dto.NotificationDueDateReminder, title, msg, inv.ID, priority)
}

// SendOverdueEscalation tells recipients an invoice is daysOverdue days past due.
func (s *NotificationService) SendOverdueEscalation(ctx context.Context, inv dto.Invoice, daysOverdue int, recipients []int64) int {
	title := fmt.Sprintf("Invoice overdue by %d day(s)", daysOverdue)
	msg := fmt.Sprintf("Invoice %s from %s was due on %s and is still unpaid.", displayNumber(inv), inv.VendorName, dto.FormatDate(inv.DueDate))
	return s.sendAll(ctx, recipients, dto.NotificationOverdueEscalation, title, msg, inv.ID, dto.NotificationHigh)
}

// SendWorkflowNotification notifies every user holding role.
func (s *NotificationService) SendWorkflowNotification(ctx context.Context, inv dto.Invoice, role dto.Role, title, message string) int {
	users, err := s.users.UsersByRole(ctx, []dto.Role{role})
	if err != nil {
		s.logger.Error("workflow notification: recipient lookup failed", zap.Int64("invoice_id", inv.ID), zap.Error(err))
		return 0
	}
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return s.sendAll(ctx, ids, dto.NotificationWorkflow, title, message, inv.ID, dto.NotificationMedium)
}

func (s *NotificationService) sendAll(ctx context.Context, recipients []int64, typ dto.NotificationType, title, msg string, invoiceID int64, priority dto.NotificationPriority) int {
	sent := 0
	for _, id := range recipients {
		if s.send(ctx, id, typ, title, msg, invoiceID, priority) {
			sent++
		}
	}
	return sent
}

func (s *NotificationService) send(ctx context.Context, recipient int64, typ dto.NotificationType, title, msg string, invoiceID int64, priority dto.NotificationPriority) bool {
	id := invoiceID
	n := dto.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipient,
		Type:        typ,
		Title:       title,
		Message:     msg,
		InvoiceID:   &id,
		Priority:    priority,
		CreatedAt:   s.now(),
	}
	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		s.logger.Warn("notification dispatch failed",
			zap.String("type", string(typ)),
			zap.Int64("recipient_id", recipient),
			zap.Int64("invoice_id", invoiceID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func displayNumber(inv dto.Invoice) string {
	if inv.Number != "" {
		return inv.Number
	}
	return fmt.Sprintf("#%d", inv.ID)
}
