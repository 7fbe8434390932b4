package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aashish23092/invoice-flow/dto"
)

// flakyStore fails updates for selected invoices.
type flakyStore struct {
	InvoiceStore
	failIDs map[int64]bool
}

func (f flakyStore) UpdateInvoice(ctx context.Context, id int64, fn func(*dto.Invoice) ([]dto.HistoryRecord, error)) (dto.Invoice, error) {
	if f.failIDs[id] {
		return dto.Invoice{}, errors.New("database is read-only")
	}
	return f.InvoiceStore.UpdateInvoice(ctx, id, fn)
}

type staticRules []dto.WorkflowRule

func (r staticRules) ActiveRules(context.Context) ([]dto.WorkflowRule, error) { return r, nil }

func TestAutomationService_RunPass(t *testing.T) {
	s := newTestStore()
	s.AddRule(rule(1, "small", 1, dto.TriggerAmountThreshold, `{"operator":"lte","threshold":1000}`, dto.ActionAutoApprove, `{}`))
	for i := 0; i < 20; i++ {
		s.AddInvoice(dto.Invoice{VendorName: fmt.Sprintf("Vendor %d", i), TotalAmount: amount(fmt.Sprintf("%d", 500+i*100))})
	}
	s.AddInvoice(dto.Invoice{TotalAmount: amount("10"), Status: dto.StatusPaid})

	engine := newTestEngine(s, &captureDispatcher{})
	summary, err := NewAutomationService(s, s, engine, 4, nil).RunPass(context.Background())
	require.NoError(t, err)

	// 500..1000 match: 6 invoices
	assert.Equal(t, dto.AutomationSummary{Evaluated: 20, Matched: 6, Applied: 6}, summary)

	approved, err := s.ListInvoices(context.Background(), dto.InvoiceFilter{Statuses: []dto.InvoiceStatus{dto.StatusApproved}})
	require.NoError(t, err)
	assert.Len(t, approved, 6)

	again, err := NewAutomationService(s, s, engine, 4, nil).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 14, again.Evaluated)
	assert.Zero(t, again.Applied)
}

func TestAutomationService_FailuresDoNotStopThePass(t *testing.T) {
	s := newTestStore()
	for i := 0; i < 5; i++ {
		s.AddInvoice(dto.Invoice{TotalAmount: amount("100")})
	}
	fs := flakyStore{InvoiceStore: s, failIDs: map[int64]bool{2: true, 4: true}}
	rules := staticRules{rule(1, "small", 1, dto.TriggerAmountThreshold, `{"operator":"lte","threshold":1000}`, dto.ActionAutoApprove, `{}`)}
	engine := NewRuleEngine(fs, s, s, NewNotificationService(&captureDispatcher{}, s, testClock, nil), testClock, nil)

	summary, err := NewAutomationService(fs, rules, engine, 2, nil).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Evaluated)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 3, summary.Applied)
}

func TestAutomationService_CancelledContext(t *testing.T) {
	s := newTestStore()
	s.AddInvoice(dto.Invoice{TotalAmount: amount("100")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAutomationService(s, s, newTestEngine(s, &captureDispatcher{}), 1, nil).RunPass(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
