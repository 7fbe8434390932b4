package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aashish23092/invoice-flow/dto"
)

var invoiceCols = []string{
	"id", "invoice_number", "vendor_name", "total_amount", "currency",
	"invoice_date", "due_date", "payment_terms_days", "payment_reference", "vendor_iban",
	"service_id", "priority", "status", "created_by", "assigned_to", "approved_at", "paid_at",
	"file_path", "ocr_raw_text", "ocr_confidence", "ocr_template_id", "ai_processing_status",
	"ai_risk_score", "ai_priority_score", "created_at", "updated_at",
}

func invoiceRow(id int64, vendor, amount string, status string) []any {
	invDate := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	dueDate := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	creator := int64(9)
	return []any{
		id, "INV-" + vendor, vendor, amount, "EUR",
		&invDate, &dueDate, 30, "", "",
		"finance", "medium", status, &creator, (*int64)(nil), (*time.Time)(nil), (*time.Time)(nil),
		"", "", 0.0, (*int64)(nil), "pending",
		0, 0, fixedNow, fixedNow,
	}
}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresStore(mock, clock)
}

func TestPostgresStore_GetInvoice(t *testing.T) {
	mock, s := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM invoices WHERE id = \\$1").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(invoiceCols).AddRow(invoiceRow(7, "Acme", "1250.50", "draft")...))

	inv, err := s.GetInvoice(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), inv.ID)
	assert.True(t, inv.TotalAmount.Equal(decimal.RequireFromString("1250.50")))
	assert.Equal(t, "2025-02-01", dto.FormatDate(inv.InvoiceDate))
	assert.Equal(t, "2025-03-03", dto.FormatDate(inv.DueDate))
	assert.Equal(t, dto.StatusDraft, inv.Status)
	assert.Nil(t, inv.AssignedTo)
	require.NotNil(t, inv.CreatedBy)
	assert.Equal(t, int64(9), *inv.CreatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetInvoiceNotFound(t *testing.T) {
	mock, s := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM invoices").
		WithArgs(int64(8)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetInvoice(context.Background(), 8)
	assert.ErrorIs(t, err, dto.ErrNotFound)
}

func TestPostgresStore_UpdateInvoiceCommits(t *testing.T) {
	mock, s := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM invoices WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(invoiceCols).AddRow(invoiceRow(7, "Acme", "100.00", "draft")...))
	mock.ExpectExec("UPDATE invoices SET").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO invoice_history").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	inv, err := s.UpdateInvoice(context.Background(), 7, func(cur *dto.Invoice) ([]dto.HistoryRecord, error) {
		cur.Status = dto.StatusApproved
		return []dto.HistoryRecord{{ID: "0b8f5a52-6c1e-4a0e-9a4e-2f0e7b1c9d11", Action: dto.HistoryApproved, Actor: dto.SystemActor}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, dto.StatusApproved, inv.Status)
	assert.Equal(t, fixedNow, inv.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateInvoiceRollsBack(t *testing.T) {
	mock, s := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(invoiceCols).AddRow(invoiceRow(7, "Acme", "100.00", "draft")...))
	mock.ExpectRollback()

	boom := errors.New("boom")
	_, err := s.UpdateInvoice(context.Background(), 7, func(*dto.Invoice) ([]dto.HistoryRecord, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListInvoicesBuildsFilter(t *testing.T) {
	mock, s := newMockStore(t)
	due := dto.NewDate(2025, 3, 3)
	mock.ExpectQuery("WHERE status = ANY\\(\\$1\\) AND due_date = \\$2 ORDER BY id").
		WithArgs([]string{"approved"}, due.Time()).
		WillReturnRows(pgxmock.NewRows(invoiceCols).
			AddRow(invoiceRow(1, "Acme", "10.00", "approved")...).
			AddRow(invoiceRow(2, "Globex", "20.00", "approved")...))

	invs, err := s.ListInvoices(context.Background(), dto.InvoiceFilter{
		Statuses: []dto.InvoiceStatus{dto.StatusApproved},
		DueOn:    &due,
	})
	require.NoError(t, err)
	require.Len(t, invs, 2)
	assert.Equal(t, "Globex", invs[1].VendorName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_VendorAverage(t *testing.T) {
	mock, s := newMockStore(t)
	avg := "1100.00"
	mock.ExpectQuery("SELECT AVG\\(total_amount\\)").
		WithArgs("%Acme%", int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"avg"}).AddRow(&avg))
	mock.ExpectQuery("SELECT AVG\\(total_amount\\)").
		WithArgs("%Globex%", int64(0)).
		WillReturnRows(pgxmock.NewRows([]string{"avg"}).AddRow((*string)(nil)))

	got, ok, err := s.VendorAverage(context.Background(), "Acme", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(decimal.NewFromInt(1100)))

	_, ok, err = s.VendorAverage(context.Background(), "Globex", 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_VendorReliability(t *testing.T) {
	mock, s := newMockStore(t)
	mock.ExpectQuery("FILTER \\(WHERE paid_at::date <= due_date\\)").
		WithArgs("%Acme%").
		WillReturnRows(pgxmock.NewRows([]string{"paid", "on_time"}).AddRow(int64(4), int64(3)))

	r, ok, err := s.VendorReliability(context.Background(), "Acme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.75, r, 1e-9)
}

func TestPostgresStore_FindApprovers(t *testing.T) {
	mock, s := newMockStore(t)
	login := fixedNow.Add(-time.Hour)
	mock.ExpectQuery("ORDER BY last_login DESC NULLS LAST").
		WithArgs("finance", []string{"manager", "admin"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "email", "role", "service_id", "is_active", "last_login"}).
			AddRow(int64(2), "marie", "marie@example.com", "manager", "finance", true, &login).
			AddRow(int64(5), "root", "root@example.com", "admin", "finance", true, (*time.Time)(nil)))

	users, err := s.FindApprovers(context.Background(), "finance", []dto.Role{dto.RoleManager, dto.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, dto.RoleManager, users[0].Role)
	assert.Nil(t, users[1].LastLogin)
}

func TestPostgresStore_GetServiceNotFound(t *testing.T) {
	mock, s := newMockStore(t)
	mock.ExpectQuery("FROM services WHERE id = \\$1").
		WithArgs("legal").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetService(context.Background(), "legal")
	assert.ErrorIs(t, err, dto.ErrNotFound)
}

func TestPostgresStore_ActiveRules(t *testing.T) {
	mock, s := newMockStore(t)
	mock.ExpectQuery("FROM workflow_rules WHERE is_active").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "description", "trigger_type", "trigger_conditions",
			"action_type", "action_parameters", "priority", "is_active",
		}).AddRow(int64(1), "small", "", "amount_threshold", []byte(`{"operator":"lte","threshold":1000}`),
			"auto_approve", []byte(`{}`), 1, true))

	rules, err := s.ActiveRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, dto.TriggerAmountThreshold, rules[0].TriggerType)
	assert.JSONEq(t, `{"operator":"lte","threshold":1000}`, string(rules[0].TriggerConditions))
}

func TestLikePatternEscapes(t *testing.T) {
	assert.Equal(t, `%100\% Co\_op%`, likePattern("100% Co_op"))
	assert.Equal(t, `%a\\b%`, likePattern(`a\b`))
}
