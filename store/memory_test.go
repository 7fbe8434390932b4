package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aashish23092/invoice-flow/dto"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func datep(y int, m time.Month, d int) *dto.Date {
	return dto.DatePtr(dto.NewDate(y, m, d))
}

func TestMemoryStore_AddAndGet(t *testing.T) {
	s := NewMemoryStore(clock)
	inv := s.AddInvoice(dto.Invoice{VendorName: "Acme", TotalAmount: decimal.NewFromInt(100)})
	assert.Equal(t, int64(1), inv.ID)
	assert.Equal(t, dto.StatusDraft, inv.Status)
	assert.Equal(t, dto.ProcessingPending, inv.AIProcessingStatus)

	got, err := s.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.VendorName)

	_, err = s.GetInvoice(context.Background(), 99)
	assert.ErrorIs(t, err, dto.ErrNotFound)
}

func TestMemoryStore_UpdateCommitsHistory(t *testing.T) {
	s := NewMemoryStore(clock)
	inv := s.AddInvoice(dto.Invoice{VendorName: "Acme"})

	got, err := s.UpdateInvoice(context.Background(), inv.ID, func(cur *dto.Invoice) ([]dto.HistoryRecord, error) {
		cur.Status = dto.StatusApproved
		return []dto.HistoryRecord{{ID: "h1", Action: dto.HistoryApproved, Actor: dto.SystemActor}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, dto.StatusApproved, got.Status)

	hist := s.History(inv.ID)
	require.Len(t, hist, 1)
	assert.Equal(t, inv.ID, hist[0].InvoiceID)
	assert.Equal(t, fixedNow, hist[0].CreatedAt)
}

func TestMemoryStore_UpdateRollsBackOnError(t *testing.T) {
	s := NewMemoryStore(clock)
	inv := s.AddInvoice(dto.Invoice{VendorName: "Acme", DueDate: datep(2025, 3, 10)})

	boom := errors.New("boom")
	_, err := s.UpdateInvoice(context.Background(), inv.ID, func(cur *dto.Invoice) ([]dto.HistoryRecord, error) {
		cur.Status = dto.StatusPaid
		*cur.DueDate = dto.NewDate(2030, 1, 1)
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, dto.StatusDraft, got.Status)
	assert.Equal(t, "2025-03-10", dto.FormatDate(got.DueDate))
	assert.Empty(t, s.History(inv.ID))
}

func TestMemoryStore_UpdateIsAtomicPerInvoice(t *testing.T) {
	s := NewMemoryStore(clock)
	inv := s.AddInvoice(dto.Invoice{VendorName: "Acme"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateInvoice(context.Background(), inv.ID, func(cur *dto.Invoice) ([]dto.HistoryRecord, error) {
				// reads inside the callback must not deadlock
				_, _ = s.VendorExists(context.Background(), "acme", cur.ID)
				cur.AIRiskScore++
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.AIRiskScore)
}

func TestMemoryStore_ListInvoicesFilter(t *testing.T) {
	s := NewMemoryStore(clock)
	s.AddInvoice(dto.Invoice{Status: dto.StatusApproved, DueDate: datep(2025, 3, 8)})
	s.AddInvoice(dto.Invoice{Status: dto.StatusPendingApproval, DueDate: datep(2025, 2, 20)})
	s.AddInvoice(dto.Invoice{Status: dto.StatusPaid, DueDate: datep(2025, 2, 20)})
	s.AddInvoice(dto.Invoice{Status: dto.StatusDraft})

	due, err := s.ListInvoices(context.Background(), dto.InvoiceFilter{DueOn: datep(2025, 3, 8)})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, int64(1), due[0].ID)

	overdue, err := s.ListInvoices(context.Background(), dto.InvoiceFilter{
		Statuses:  []dto.InvoiceStatus{dto.StatusApproved, dto.StatusPendingApproval},
		DueBefore: datep(2025, 3, 1),
	})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, int64(2), overdue[0].ID)

	all, err := s.ListInvoices(context.Background(), dto.InvoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestMemoryStore_VendorHistory(t *testing.T) {
	s := NewMemoryStore(clock)
	s.AddInvoice(dto.Invoice{VendorName: "Acme Corp", TotalAmount: decimal.NewFromInt(1000), InvoiceDate: datep(2025, 2, 20)})
	s.AddInvoice(dto.Invoice{VendorName: "ACME corp", TotalAmount: decimal.NewFromInt(1200), InvoiceDate: datep(2024, 12, 1)})
	current := s.AddInvoice(dto.Invoice{VendorName: "Acme Corp", TotalAmount: decimal.NewFromInt(5000)})
	ctx := context.Background()

	avg, ok, err := s.VendorAverage(ctx, "acme", current.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, avg.Equal(decimal.NewFromInt(1100)), avg.String())

	_, ok, err = s.VendorAverage(ctx, "Globex", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := s.VendorExists(ctx, "Acme", current.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := s.CountSimilar(ctx, dto.SimilarInvoiceQuery{
		Vendor:    "Acme",
		MinAmount: decimal.NewFromInt(950),
		MaxAmount: decimal.NewFromInt(1050),
		Since:     dto.NewDate(2025, 1, 30),
		ExcludeID: current.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_VendorReliability(t *testing.T) {
	s := NewMemoryStore(clock)
	onTime := time.Date(2025, 1, 10, 15, 0, 0, 0, time.UTC)
	late := time.Date(2025, 1, 20, 8, 0, 0, 0, time.UTC)
	s.AddInvoice(dto.Invoice{VendorName: "Acme", Status: dto.StatusPaid, DueDate: datep(2025, 1, 10), PaidAt: &onTime})
	s.AddInvoice(dto.Invoice{VendorName: "Acme", Status: dto.StatusPaid, DueDate: datep(2025, 1, 10), PaidAt: &late})
	s.AddInvoice(dto.Invoice{VendorName: "Acme", Status: dto.StatusApproved, DueDate: datep(2025, 1, 10)})

	r, ok, err := s.VendorReliability(context.Background(), "acme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.5, r, 1e-9)

	_, ok, err = s.VendorReliability(context.Background(), "Globex")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_FindApproversOrder(t *testing.T) {
	s := NewMemoryStore(clock)
	older := fixedNow.Add(-48 * time.Hour)
	newer := fixedNow.Add(-time.Hour)
	s.AddUser(dto.User{ID: 1, Role: dto.RoleApprover, ServiceID: "finance", IsActive: true})
	s.AddUser(dto.User{ID: 2, Role: dto.RoleManager, ServiceID: "finance", IsActive: true, LastLogin: &older})
	s.AddUser(dto.User{ID: 3, Role: dto.RoleApprover, ServiceID: "finance", IsActive: true, LastLogin: &newer})
	s.AddUser(dto.User{ID: 4, Role: dto.RoleApprover, ServiceID: "finance", IsActive: false, LastLogin: &newer})
	s.AddUser(dto.User{ID: 5, Role: dto.RoleApprover, ServiceID: "hr", IsActive: true, LastLogin: &newer})

	users, err := s.FindApprovers(context.Background(), "finance", []dto.Role{dto.RoleApprover, dto.RoleManager})
	require.NoError(t, err)
	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	assert.Equal(t, []int64{3, 2, 1}, ids)

	managers, err := s.UsersByRole(context.Background(), []dto.Role{dto.RoleManager})
	require.NoError(t, err)
	require.Len(t, managers, 1)
	assert.Equal(t, int64(2), managers[0].ID)
}

func TestMemoryStore_ServicesRulesTemplates(t *testing.T) {
	s := NewMemoryStore(clock)
	s.AddService(dto.Service{ID: "finance", CanApproveInvoices: true})
	s.AddRule(dto.WorkflowRule{ID: 1, Name: "on", IsActive: true})
	s.AddRule(dto.WorkflowRule{ID: 2, Name: "off"})
	s.AddTemplate(dto.TemplateHint{ID: 1, Name: "acme"})
	ctx := context.Background()

	svc, err := s.GetService(ctx, "finance")
	require.NoError(t, err)
	assert.True(t, svc.CanApproveInvoices)
	_, err = s.GetService(ctx, "legal")
	assert.ErrorIs(t, err, dto.ErrNotFound)

	rules, err := s.ActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "on", rules[0].Name)

	tmpls, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, tmpls, 1)
}

func TestMemoryLedger_MarkSent(t *testing.T) {
	now := fixedNow
	l := NewMemoryLedger(func() time.Time { return now })
	ctx := context.Background()

	first, err := l.MarkSent(ctx, "reminder_sent:1:3", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := l.MarkSent(ctx, "reminder_sent:1:3", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	now = now.Add(25 * time.Hour)
	expired, err := l.MarkSent(ctx, "reminder_sent:1:3", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, expired)
}
