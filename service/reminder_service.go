package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/dto"
)

// Default reminder schedules, in days.
var (
	DefaultReminderDays   = []int{7, 3, 1}
	DefaultEscalationDays = []int{1, 3, 7, 14, 30}
)

const reminderTTL = 24 * time.Hour

var remindableStatuses = []dto.InvoiceStatus{dto.StatusPendingApproval, dto.StatusApproved}

// ReminderService sends due-date reminders and escalates overdue invoices.
// A ledger keeps retried passes from sending the same reminder twice.
type ReminderService struct {
	store          InvoiceStore
	users          UserDirectory
	notifier       *NotificationService
	ledger         ReminderLedger
	reminderDays   []int
	escalationDays []int
	now            func() time.Time
	logger         *zap.Logger
}

func NewReminderService(store InvoiceStore, users UserDirectory, notifier *NotificationService, ledger ReminderLedger, reminderDays, escalationDays []int, now func() time.Time, logger *zap.Logger) *ReminderService {
	if len(reminderDays) == 0 {
		reminderDays = DefaultReminderDays
	}
	if len(escalationDays) == 0 {
		escalationDays = DefaultEscalationDays
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderService{
		store:          store,
		users:          users,
		notifier:       notifier,
		ledger:         ledger,
		reminderDays:   reminderDays,
		escalationDays: escalationDays,
		now:            now,
		logger:         logger,
	}
}

// Run performs a due-date reminder pass followed by an overdue pass.
func (s *ReminderService) Run(ctx context.Context) (dto.ReminderSummary, error) {
	var summary dto.ReminderSummary
	sent, err := s.SendDueReminders(ctx)
	summary.RemindersSent = sent
	if err != nil {
		return summary, err
	}
	summary.MarkedOverdue, summary.EscalationsSent, err = s.EscalateOverdue(ctx)
	return summary, err
}

// SendDueReminders notifies stakeholders of invoices due in exactly one of the configured day counts.
func (s *ReminderService) SendDueReminders(ctx context.Context) (int, error) {
	today := dto.DateOf(s.now())
	sent := 0
	for _, days := range s.reminderDays {
		due := today.AddDays(days)
		invoices, err := s.store.ListInvoices(ctx, dto.InvoiceFilter{Statuses: remindableStatuses, DueOn: &due})
		if err != nil {
			return sent, eris.Wrapf(err, "reminders: list invoices due %s", due)
		}
		for _, inv := range invoices {
			if !s.firstSend(ctx, fmt.Sprintf("reminder_sent:%d:%d", inv.ID, days)) {
				continue
			}
			sent += s.notifier.SendDueDateReminder(ctx, inv, days, s.recipients(ctx, inv))
		}
	}
	return sent, nil
}

// EscalateOverdue marks past-due invoices overdue and escalates on the configured days.
func (s *ReminderService) EscalateOverdue(ctx context.Context) (marked, escalated int, err error) {
	today := dto.DateOf(s.now())
	statuses := append(append([]dto.InvoiceStatus{}, remindableStatuses...), dto.StatusOverdue)
	invoices, err := s.store.ListInvoices(ctx, dto.InvoiceFilter{Statuses: statuses, DueBefore: &today})
	if err != nil {
		return 0, 0, eris.Wrap(err, "reminders: list overdue invoices")
	}

	for _, inv := range invoices {
		if inv.Status != dto.StatusOverdue {
			updated, err := s.markOverdue(ctx, inv.ID)
			if err != nil {
				s.logger.Error("reminders: could not mark overdue", zap.Int64("invoice_id", inv.ID), zap.Error(err))
			} else {
				inv = updated
				marked++
			}
		}

		if inv.DueDate == nil {
			continue
		}
		daysOverdue := inv.DueDate.DaysUntil(today)
		if !slices.Contains(s.escalationDays, daysOverdue) {
			continue
		}
		if !s.firstSend(ctx, fmt.Sprintf("overdue_sent:%d:%d", inv.ID, daysOverdue)) {
			continue
		}
		escalated += s.notifier.SendOverdueEscalation(ctx, inv, daysOverdue, s.recipients(ctx, inv))
	}
	return marked, escalated, nil
}

func (s *ReminderService) markOverdue(ctx context.Context, id int64) (dto.Invoice, error) {
	return s.store.UpdateInvoice(ctx, id, func(inv *dto.Invoice) ([]dto.HistoryRecord, error) {
		if inv.Status == dto.StatusOverdue || inv.Status == dto.StatusPaid || inv.Status == dto.StatusCancelled {
			return nil, nil
		}
		old := inv.Status
		inv.Status = dto.StatusOverdue
		return []dto.HistoryRecord{newHistory(inv.ID, dto.HistoryStatusChanged, dto.SystemActor, "Past due date", s.now(),
			map[string]string{"status": string(old)}, map[string]string{"status": string(dto.StatusOverdue)})}, nil
	})
}

// firstSend claims a ledger key. A ledger error lets the send go through.
func (s *ReminderService) firstSend(ctx context.Context, key string) bool {
	if s.ledger == nil {
		return true
	}
	first, err := s.ledger.MarkSent(ctx, key, reminderTTL)
	if err != nil {
		s.logger.Warn("reminders: ledger unavailable", zap.String("key", key), zap.Error(err))
		return true
	}
	return first
}

// recipients are the creator, the assignee and the service's managers and admins, without repeats.
func (s *ReminderService) recipients(ctx context.Context, inv dto.Invoice) []int64 {
	seen := map[int64]bool{}
	var ids []int64
	add := func(id int64) {
		if id > 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if inv.CreatedBy != nil {
		add(*inv.CreatedBy)
	}
	if inv.AssignedTo != nil {
		add(*inv.AssignedTo)
	}
	managers, err := s.users.FindApprovers(ctx, inv.ServiceID, seniorApproverRoles)
	if err != nil {
		s.logger.Warn("reminders: manager lookup failed", zap.Int64("invoice_id", inv.ID), zap.Error(err))
	}
	for _, m := range managers {
		add(m.ID)
	}
	return ids
}
