package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/Aashish23092/invoice-flow/dto"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock pools satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Schema creates the tables used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS services (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	can_approve_invoices BOOLEAN NOT NULL DEFAULT FALSE,
	approval_threshold   NUMERIC(12,2) NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS users (
	id         BIGSERIAL PRIMARY KEY,
	username   TEXT NOT NULL UNIQUE,
	email      TEXT NOT NULL DEFAULT '',
	role       TEXT NOT NULL,
	service_id TEXT REFERENCES services(id),
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	last_login TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS invoices (
	id                   BIGSERIAL PRIMARY KEY,
	invoice_number       TEXT NOT NULL DEFAULT '',
	vendor_name          TEXT NOT NULL DEFAULT '',
	total_amount         NUMERIC(12,2) NOT NULL DEFAULT 0,
	currency             TEXT NOT NULL DEFAULT 'EUR',
	invoice_date         DATE,
	due_date             DATE,
	payment_terms_days   INT NOT NULL DEFAULT 30,
	payment_reference    TEXT NOT NULL DEFAULT '',
	vendor_iban          TEXT NOT NULL DEFAULT '',
	service_id           TEXT NOT NULL DEFAULT '',
	priority             TEXT NOT NULL DEFAULT 'medium',
	status               TEXT NOT NULL DEFAULT 'draft',
	created_by           BIGINT,
	assigned_to          BIGINT,
	approved_at          TIMESTAMPTZ,
	paid_at              TIMESTAMPTZ,
	file_path            TEXT NOT NULL DEFAULT '',
	ocr_raw_text         TEXT NOT NULL DEFAULT '',
	ocr_confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	ocr_template_id      BIGINT,
	ai_processing_status TEXT NOT NULL DEFAULT 'pending',
	ai_risk_score        INT NOT NULL DEFAULT 0,
	ai_priority_score    INT NOT NULL DEFAULT 0,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS invoices_status_due_idx ON invoices (status, due_date);
CREATE TABLE IF NOT EXISTS invoice_history (
	id         UUID PRIMARY KEY,
	invoice_id BIGINT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	action     TEXT NOT NULL,
	actor      TEXT NOT NULL,
	comment    TEXT NOT NULL DEFAULT '',
	old_values JSONB,
	new_values JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS workflow_rules (
	id                 BIGSERIAL PRIMARY KEY,
	name               TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	trigger_type       TEXT NOT NULL,
	trigger_conditions JSONB NOT NULL DEFAULT '{}',
	action_type        TEXT NOT NULL,
	action_parameters  JSONB NOT NULL DEFAULT '{}',
	priority           INT NOT NULL DEFAULT 1,
	is_active          BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS ocr_templates (
	id                 BIGSERIAL PRIMARY KEY,
	name               TEXT NOT NULL,
	vendor             TEXT NOT NULL DEFAULT '',
	detection_keywords TEXT[] NOT NULL DEFAULT '{}',
	regions            JSONB NOT NULL DEFAULT '{}',
	is_active          BOOLEAN NOT NULL DEFAULT TRUE
);
`

const invoiceColumns = `id, invoice_number, vendor_name, total_amount::text, currency,
	invoice_date, due_date, payment_terms_days, payment_reference, vendor_iban,
	service_id, priority, status, created_by, assigned_to, approved_at, paid_at,
	file_path, ocr_raw_text, ocr_confidence, ocr_template_id, ai_processing_status,
	ai_risk_score, ai_priority_score, created_at, updated_at`

// PostgresStore implements the service storage interfaces on PostgreSQL.
type PostgresStore struct {
	pool Pool
	now  func() time.Time
}

func NewPostgresStore(pool Pool, now func() time.Time) *PostgresStore {
	if now == nil {
		now = time.Now
	}
	return &PostgresStore{pool: pool, now: now}
}

// ConnectPostgres opens a pool and verifies the connection.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: open postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	return pool, nil
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return eris.Wrap(err, "store: migrate")
	}
	return nil
}

func scanInvoice(row pgx.Row) (dto.Invoice, error) {
	var (
		inv                      dto.Invoice
		amount                   string
		invoiceDate, dueDate     *time.Time
		priority, status, procSt string
	)
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.VendorName, &amount, &inv.Currency,
		&invoiceDate, &dueDate, &inv.PaymentTermsDays, &inv.PaymentReference, &inv.VendorIBAN,
		&inv.ServiceID, &priority, &status, &inv.CreatedBy, &inv.AssignedTo, &inv.ApprovedAt, &inv.PaidAt,
		&inv.FilePath, &inv.OCRRawText, &inv.OCRConfidence, &inv.OCRTemplateID, &procSt,
		&inv.AIRiskScore, &inv.AIPriorityScore, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return dto.Invoice{}, err
	}
	inv.TotalAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return dto.Invoice{}, eris.Wrapf(err, "store: invoice %d amount %q", inv.ID, amount)
	}
	inv.InvoiceDate = datePtr(invoiceDate)
	inv.DueDate = datePtr(dueDate)
	inv.Priority = dto.PriorityLevel(priority)
	inv.Status = dto.InvoiceStatus(status)
	inv.AIProcessingStatus = dto.ProcessingStatus(procSt)
	return inv, nil
}

func datePtr(t *time.Time) *dto.Date {
	if t == nil {
		return nil
	}
	return dto.DatePtr(dto.DateOf(*t))
}

func dateArg(d *dto.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}

func (s *PostgresStore) GetInvoice(ctx context.Context, id int64) (dto.Invoice, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return dto.Invoice{}, eris.Wrapf(dto.ErrNotFound, "store: invoice %d", id)
	}
	if err != nil {
		return dto.Invoice{}, eris.Wrapf(err, "store: get invoice %d", id)
	}
	return inv, nil
}

// UpdateInvoice locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *PostgresStore) UpdateInvoice(ctx context.Context, id int64, fn func(inv *dto.Invoice) ([]dto.HistoryRecord, error)) (dto.Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return dto.Invoice{}, eris.Wrap(err, "store: begin update")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inv, err := scanInvoice(tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return dto.Invoice{}, eris.Wrapf(dto.ErrNotFound, "store: invoice %d", id)
	}
	if err != nil {
		return dto.Invoice{}, eris.Wrapf(err, "store: lock invoice %d", id)
	}

	records, err := fn(&inv)
	if err != nil {
		return dto.Invoice{}, err
	}
	inv.ID = id
	inv.UpdatedAt = s.now()

	_, err = tx.Exec(ctx, `UPDATE invoices SET
		invoice_number = $2, vendor_name = $3, total_amount = $4::numeric, currency = $5,
		invoice_date = $6, due_date = $7, payment_terms_days = $8, payment_reference = $9,
		vendor_iban = $10, service_id = $11, priority = $12, status = $13, assigned_to = $14,
		approved_at = $15, paid_at = $16, ocr_raw_text = $17, ocr_confidence = $18,
		ocr_template_id = $19, ai_processing_status = $20, ai_risk_score = $21,
		ai_priority_score = $22, updated_at = $23
		WHERE id = $1`,
		id, inv.Number, inv.VendorName, inv.TotalAmount.String(), inv.Currency,
		dateArg(inv.InvoiceDate), dateArg(inv.DueDate), inv.PaymentTermsDays, inv.PaymentReference,
		inv.VendorIBAN, inv.ServiceID, string(inv.Priority), string(inv.Status), inv.AssignedTo,
		inv.ApprovedAt, inv.PaidAt, inv.OCRRawText, inv.OCRConfidence,
		inv.OCRTemplateID, string(inv.AIProcessingStatus), inv.AIRiskScore,
		inv.AIPriorityScore, inv.UpdatedAt,
	)
	if err != nil {
		return dto.Invoice{}, eris.Wrapf(err, "store: update invoice %d", id)
	}

	for _, r := range records {
		if err := insertHistory(ctx, tx, id, r, inv.UpdatedAt); err != nil {
			return dto.Invoice{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return dto.Invoice{}, eris.Wrapf(err, "store: commit invoice %d", id)
	}
	return inv, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, id int64, r dto.HistoryRecord, at time.Time) error {
	oldJSON, err := json.Marshal(r.OldValues)
	if err != nil {
		return eris.Wrap(err, "store: marshal old values")
	}
	newJSON, err := json.Marshal(r.NewValues)
	if err != nil {
		return eris.Wrap(err, "store: marshal new values")
	}
	if !r.CreatedAt.IsZero() {
		at = r.CreatedAt
	}
	_, err = tx.Exec(ctx, `INSERT INTO invoice_history
		(id, invoice_id, action, actor, comment, old_values, new_values, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, id, string(r.Action), r.Actor, r.Comment, oldJSON, newJSON, at,
	)
	if err != nil {
		return eris.Wrapf(err, "store: insert history for invoice %d", id)
	}
	return nil
}

func (s *PostgresStore) ListInvoices(ctx context.Context, filter dto.InvoiceFilter) ([]dto.Invoice, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.DueOn != nil {
		args = append(args, filter.DueOn.Time())
		where = append(where, fmt.Sprintf("due_date = $%d", len(args)))
	}
	if filter.DueBefore != nil {
		args = append(args, filter.DueBefore.Time())
		where = append(where, fmt.Sprintf("due_date < $%d", len(args)))
	}
	q := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list invoices")
	}
	defer rows.Close()
	var out []dto.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan invoice")
		}
		out = append(out, inv)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate invoices")
}

// likePattern builds a case-insensitive containment pattern for ILIKE.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func (s *PostgresStore) VendorAverage(ctx context.Context, vendor string, excludeID int64) (decimal.Decimal, bool, error) {
	var avg *string
	err := s.pool.QueryRow(ctx,
		`SELECT AVG(total_amount)::text FROM invoices
		 WHERE vendor_name ILIKE $1 AND id <> $2`,
		likePattern(vendor), excludeID,
	).Scan(&avg)
	if err != nil {
		return decimal.Zero, false, eris.Wrapf(err, "store: vendor average for %q", vendor)
	}
	if avg == nil {
		return decimal.Zero, false, nil
	}
	d, err := decimal.NewFromString(*avg)
	if err != nil {
		return decimal.Zero, false, eris.Wrapf(err, "store: parse average %q", *avg)
	}
	return d, true, nil
}

func (s *PostgresStore) VendorExists(ctx context.Context, vendor string, excludeID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE vendor_name ILIKE $1 AND id <> $2)`,
		likePattern(vendor), excludeID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "store: vendor exists for %q", vendor)
	}
	return exists, nil
}

func (s *PostgresStore) CountSimilar(ctx context.Context, q dto.SimilarInvoiceQuery) (int, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM invoices
		 WHERE vendor_name ILIKE $1
		   AND total_amount BETWEEN $2::numeric AND $3::numeric
		   AND invoice_date >= $4
		   AND id <> $5`,
		likePattern(q.Vendor), q.MinAmount.String(), q.MaxAmount.String(), q.Since.Time(), q.ExcludeID,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "store: count similar for %q", q.Vendor)
	}
	return int(n), nil
}

func (s *PostgresStore) VendorReliability(ctx context.Context, vendor string) (float64, bool, error) {
	var paid, onTime int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE paid_at::date <= due_date)
		 FROM invoices
		 WHERE status = 'paid' AND paid_at IS NOT NULL AND due_date IS NOT NULL
		   AND vendor_name ILIKE $1`,
		likePattern(vendor),
	).Scan(&paid, &onTime)
	if err != nil {
		return 0, false, eris.Wrapf(err, "store: vendor reliability for %q", vendor)
	}
	if paid == 0 {
		return 0, false, nil
	}
	return float64(onTime) / float64(paid), true, nil
}

const userColumns = `id, username, email, role, COALESCE(service_id, ''), is_active, last_login`

func (s *PostgresStore) FindApprovers(ctx context.Context, serviceID string, roles []dto.Role) ([]dto.User, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE is_active AND service_id = $1 AND role = ANY($2)
		 ORDER BY last_login DESC NULLS LAST, id`,
		serviceID, roleStrings(roles),
	)
}

func (s *PostgresStore) UsersByRole(ctx context.Context, roles []dto.Role) ([]dto.User, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE is_active AND role = ANY($1)
		 ORDER BY last_login DESC NULLS LAST, id`,
		roleStrings(roles),
	)
}

func roleStrings(roles []dto.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func (s *PostgresStore) queryUsers(ctx context.Context, sql string, args ...any) ([]dto.User, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: query users")
	}
	defer rows.Close()
	var out []dto.User
	for rows.Next() {
		var (
			u    dto.User
			role string
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &role, &u.ServiceID, &u.IsActive, &u.LastLogin); err != nil {
			return nil, eris.Wrap(err, "store: scan user")
		}
		u.Role = dto.Role(role)
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate users")
}

func (s *PostgresStore) GetService(ctx context.Context, id string) (dto.Service, error) {
	var (
		svc       dto.Service
		threshold string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, can_approve_invoices, approval_threshold::text FROM services WHERE id = $1`, id,
	).Scan(&svc.ID, &svc.Name, &svc.CanApproveInvoices, &threshold)
	if errors.Is(err, pgx.ErrNoRows) {
		return dto.Service{}, eris.Wrapf(dto.ErrNotFound, "store: service %q", id)
	}
	if err != nil {
		return dto.Service{}, eris.Wrapf(err, "store: get service %q", id)
	}
	svc.ApprovalThreshold, err = decimal.NewFromString(threshold)
	if err != nil {
		return dto.Service{}, eris.Wrapf(err, "store: service %q threshold %q", id, threshold)
	}
	return svc, nil
}

func (s *PostgresStore) ActiveRules(ctx context.Context) ([]dto.WorkflowRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, trigger_type, trigger_conditions, action_type,
		        action_parameters, priority, is_active
		 FROM workflow_rules WHERE is_active ORDER BY priority, id`)
	if err != nil {
		return nil, eris.Wrap(err, "store: query rules")
	}
	defer rows.Close()
	var out []dto.WorkflowRule
	for rows.Next() {
		var (
			r                       dto.WorkflowRule
			trigger, action         string
			conditions, parameters []byte
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &trigger, &conditions, &action,
			&parameters, &r.Priority, &r.IsActive); err != nil {
			return nil, eris.Wrap(err, "store: scan rule")
		}
		r.TriggerType = dto.TriggerType(trigger)
		r.ActionType = dto.ActionType(action)
		r.TriggerConditions = json.RawMessage(conditions)
		r.ActionParameters = json.RawMessage(parameters)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate rules")
}

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]dto.TemplateHint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, vendor, detection_keywords, regions
		 FROM ocr_templates WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "store: query templates")
	}
	defer rows.Close()
	var out []dto.TemplateHint
	for rows.Next() {
		var (
			t       dto.TemplateHint
			regions []byte
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Vendor, &t.DetectionKeywords, &regions); err != nil {
			return nil, eris.Wrap(err, "store: scan template")
		}
		if len(regions) > 0 {
			if err := json.Unmarshal(regions, &t.Regions); err != nil {
				return nil, eris.Wrapf(err, "store: template %d regions", t.ID)
			}
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate templates")
}
