package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aashish23092/invoice-flow/dto"
	"github.com/Aashish23092/invoice-flow/store"
)

type failingLedger struct{}

func (failingLedger) MarkSent(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func newTestReminders(s *store.MemoryStore, d *captureDispatcher, ledger ReminderLedger) *ReminderService {
	return NewReminderService(s, s, NewNotificationService(d, s, testClock, nil), ledger, nil, nil, testClock, nil)
}

func ptr(v int64) *int64 { return &v }

func TestReminderService_DueReminders(t *testing.T) {
	s := newTestStore()
	seedDirectory(s)
	d := &captureDispatcher{}
	// creator 10 is also a finance approver, assignee 12 is a manager
	s.AddInvoice(dto.Invoice{Status: dto.StatusApproved, ServiceID: "finance", DueDate: day(3), CreatedBy: ptr(10), AssignedTo: ptr(12)})
	s.AddInvoice(dto.Invoice{Status: dto.StatusPendingApproval, ServiceID: "accounting", DueDate: day(1), CreatedBy: ptr(20)})
	s.AddInvoice(dto.Invoice{Status: dto.StatusPaid, ServiceID: "finance", DueDate: day(3), CreatedBy: ptr(10)})
	s.AddInvoice(dto.Invoice{Status: dto.StatusApproved, ServiceID: "finance", DueDate: day(4), CreatedBy: ptr(10)})

	ledger := store.NewMemoryLedger(testClock)
	reminders := newTestReminders(s, d, ledger)
	sent, err := reminders.SendDueReminders(context.Background())
	require.NoError(t, err)

	// invoice 1: 10, 12, 11; invoice 2: 20
	assert.Equal(t, 4, sent)
	got := d.byType(dto.NotificationDueDateReminder)
	require.Len(t, got, 4)
	recipients := []int64{}
	for _, n := range got {
		recipients = append(recipients, n.RecipientID)
	}
	assert.ElementsMatch(t, []int64{10, 12, 11, 20}, recipients)
	for _, n := range got {
		if *n.InvoiceID == 2 {
			assert.Equal(t, dto.NotificationHigh, n.Priority)
		}
	}

	again, err := reminders.SendDueReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestReminderService_LedgerFailureFailsOpen(t *testing.T) {
	s := newTestStore()
	d := &captureDispatcher{}
	s.AddInvoice(dto.Invoice{Status: dto.StatusApproved, DueDate: day(7), CreatedBy: ptr(1)})

	sent, err := newTestReminders(s, d, failingLedger{}).SendDueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestReminderService_EscalateOverdue(t *testing.T) {
	s := newTestStore()
	seedDirectory(s)
	d := &captureDispatcher{}
	three := s.AddInvoice(dto.Invoice{Status: dto.StatusApproved, ServiceID: "accounting", DueDate: day(-3), CreatedBy: ptr(20)})
	two := s.AddInvoice(dto.Invoice{Status: dto.StatusPendingApproval, ServiceID: "accounting", DueDate: day(-2), CreatedBy: ptr(20)})
	already := s.AddInvoice(dto.Invoice{Status: dto.StatusOverdue, ServiceID: "accounting", DueDate: day(-7), CreatedBy: ptr(20)})
	s.AddInvoice(dto.Invoice{Status: dto.StatusPaid, DueDate: day(-3), CreatedBy: ptr(20)})
	s.AddInvoice(dto.Invoice{Status: dto.StatusApproved, DueDate: day(0), CreatedBy: ptr(20)})

	reminders := newTestReminders(s, d, store.NewMemoryLedger(testClock))
	marked, escalated, err := reminders.EscalateOverdue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, marked)
	// day 3 and day 7 are escalation days, day 2 is not
	assert.Equal(t, 2, escalated)

	for _, id := range []int64{three.ID, two.ID, already.ID} {
		got, _ := s.GetInvoice(context.Background(), id)
		assert.Equal(t, dto.StatusOverdue, got.Status, "invoice %d", id)
	}
	require.Len(t, s.History(three.ID), 1)
	assert.Equal(t, "Past due date", s.History(three.ID)[0].Comment)
	assert.Empty(t, s.History(already.ID))

	_, escalated, err = reminders.EscalateOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, escalated)
}

func TestReminderService_Run(t *testing.T) {
	s := newTestStore()
	d := &captureDispatcher{}
	s.AddInvoice(dto.Invoice{Status: dto.StatusApproved, DueDate: day(1), CreatedBy: ptr(1)})
	s.AddInvoice(dto.Invoice{Status: dto.StatusApproved, DueDate: day(-1), CreatedBy: ptr(1)})

	summary, err := newTestReminders(s, d, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dto.ReminderSummary{RemindersSent: 1, EscalationsSent: 1, MarkedOverdue: 1}, summary)
}
