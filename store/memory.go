package store

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/Aashish23092/invoice-flow/dto"
)

// MemoryStore keeps invoices, users, services, rules and templates in
// process memory. It is used for local runs and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	invoices  map[int64]dto.Invoice
	history   map[int64][]dto.HistoryRecord
	users     []dto.User
	services  map[string]dto.Service
	rules     []dto.WorkflowRule
	templates []dto.TemplateHint
	nextID    int64

	locks *KeyedMutex
	now   func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		invoices: make(map[int64]dto.Invoice),
		history:  make(map[int64][]dto.HistoryRecord),
		services: make(map[string]dto.Service),
		locks:    NewKeyedMutex(),
		now:      now,
	}
}

// AddInvoice stores inv, assigning an ID when it has none.
func (s *MemoryStore) AddInvoice(inv dto.Invoice) dto.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == 0 {
		s.nextID++
		inv.ID = s.nextID
	} else if inv.ID > s.nextID {
		s.nextID = inv.ID
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = inv.CreatedAt
	}
	if inv.Status == "" {
		inv.Status = dto.StatusDraft
	}
	if inv.AIProcessingStatus == "" {
		inv.AIProcessingStatus = dto.ProcessingPending
	}
	s.invoices[inv.ID] = cloneInvoice(inv)
	return cloneInvoice(inv)
}

func (s *MemoryStore) AddUser(u dto.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, u)
}

func (s *MemoryStore) AddService(svc dto.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

func (s *MemoryStore) AddRule(r dto.WorkflowRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, r)
}

func (s *MemoryStore) AddTemplate(t dto.TemplateHint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, t)
}

// History returns the audit trail of an invoice in insertion order.
func (s *MemoryStore) History(id int64) []dto.HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.history[id])
}

func (s *MemoryStore) GetInvoice(_ context.Context, id int64) (dto.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return dto.Invoice{}, eris.Wrapf(dto.ErrNotFound, "store: invoice %d", id)
	}
	return cloneInvoice(inv), nil
}

// UpdateInvoice holds the invoice's key for the whole callback. The data
// lock is only taken around reads and the final commit, so fn may call
// back into the store's read methods.
func (s *MemoryStore) UpdateInvoice(ctx context.Context, id int64, fn func(inv *dto.Invoice) ([]dto.HistoryRecord, error)) (dto.Invoice, error) {
	unlock, err := s.locks.Lock(ctx, "invoice:"+strconv.FormatInt(id, 10))
	if err != nil {
		return dto.Invoice{}, eris.Wrapf(err, "store: lock invoice %d", id)
	}
	defer unlock()

	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return dto.Invoice{}, err
	}
	records, err := fn(&inv)
	if err != nil {
		return dto.Invoice{}, err
	}
	inv.ID = id
	inv.UpdatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[id] = cloneInvoice(inv)
	for _, r := range records {
		r.InvoiceID = id
		if r.CreatedAt.IsZero() {
			r.CreatedAt = inv.UpdatedAt
		}
		s.history[id] = append(s.history[id], r)
	}
	return cloneInvoice(inv), nil
}

func (s *MemoryStore) ListInvoices(_ context.Context, filter dto.InvoiceFilter) ([]dto.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]dto.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if matchesFilter(inv, filter) {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matchesFilter(inv dto.Invoice, f dto.InvoiceFilter) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, inv.Status) {
		return false
	}
	if f.DueOn != nil && (inv.DueDate == nil || !inv.DueDate.Equal(*f.DueOn)) {
		return false
	}
	if f.DueBefore != nil && (inv.DueDate == nil || !inv.DueDate.Before(*f.DueBefore)) {
		return false
	}
	return true
}

func vendorMatches(name, pattern string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(pattern))
}

func (s *MemoryStore) VendorAverage(_ context.Context, vendor string, excludeID int64) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	n := 0
	for id, inv := range s.invoices {
		if id == excludeID || !vendorMatches(inv.VendorName, vendor) {
			continue
		}
		sum = sum.Add(inv.TotalAmount)
		n++
	}
	if n == 0 {
		return decimal.Zero, false, nil
	}
	return sum.Div(decimal.NewFromInt(int64(n))), true, nil
}

func (s *MemoryStore) VendorExists(_ context.Context, vendor string, excludeID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, inv := range s.invoices {
		if id != excludeID && vendorMatches(inv.VendorName, vendor) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CountSimilar(_ context.Context, q dto.SimilarInvoiceQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for id, inv := range s.invoices {
		if id == q.ExcludeID || !vendorMatches(inv.VendorName, q.Vendor) {
			continue
		}
		if inv.TotalAmount.LessThan(q.MinAmount) || inv.TotalAmount.GreaterThan(q.MaxAmount) {
			continue
		}
		if inv.InvoiceDate == nil || inv.InvoiceDate.Before(q.Since) {
			continue
		}
		n++
	}
	return n, nil
}

func (s *MemoryStore) VendorReliability(_ context.Context, vendor string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paid, onTime := 0, 0
	for _, inv := range s.invoices {
		if inv.Status != dto.StatusPaid || inv.PaidAt == nil || inv.DueDate == nil {
			continue
		}
		if !vendorMatches(inv.VendorName, vendor) {
			continue
		}
		paid++
		if !dto.DateOf(*inv.PaidAt).After(*inv.DueDate) {
			onTime++
		}
	}
	if paid == 0 {
		return 0, false, nil
	}
	return float64(onTime) / float64(paid), true, nil
}

func (s *MemoryStore) FindApprovers(_ context.Context, serviceID string, roles []dto.Role) ([]dto.User, error) {
	return s.selectUsers(func(u dto.User) bool {
		return u.ServiceID == serviceID && slices.Contains(roles, u.Role)
	}), nil
}

func (s *MemoryStore) UsersByRole(_ context.Context, roles []dto.Role) ([]dto.User, error) {
	return s.selectUsers(func(u dto.User) bool {
		return slices.Contains(roles, u.Role)
	}), nil
}

func (s *MemoryStore) selectUsers(keep func(dto.User) bool) []dto.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []dto.User
	for _, u := range s.users {
		if u.IsActive && keep(u) {
			out = append(out, u)
		}
	}
	sortByLastLogin(out)
	return out
}

// sortByLastLogin orders users by most recent login; users who never logged
// in come last.
func sortByLastLogin(users []dto.User) {
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i].LastLogin, users[j].LastLogin
		switch {
		case a == nil && b == nil:
			return users[i].ID < users[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return users[i].ID < users[j].ID
		default:
			return a.After(*b)
		}
	})
}

func (s *MemoryStore) GetService(_ context.Context, id string) (dto.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return dto.Service{}, eris.Wrapf(dto.ErrNotFound, "store: service %q", id)
	}
	return svc, nil
}

func (s *MemoryStore) ActiveRules(_ context.Context) ([]dto.WorkflowRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []dto.WorkflowRule
	for _, r := range s.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListTemplates(_ context.Context) ([]dto.TemplateHint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.templates), nil
}

func cloneInvoice(inv dto.Invoice) dto.Invoice {
	if inv.InvoiceDate != nil {
		d := *inv.InvoiceDate
		inv.InvoiceDate = &d
	}
	if inv.DueDate != nil {
		d := *inv.DueDate
		inv.DueDate = &d
	}
	inv.CreatedBy = clonePtr(inv.CreatedBy)
	inv.AssignedTo = clonePtr(inv.AssignedTo)
	inv.OCRTemplateID = clonePtr(inv.OCRTemplateID)
	inv.ApprovedAt = clonePtr(inv.ApprovedAt)
	inv.PaidAt = clonePtr(inv.PaidAt)
	return inv
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// MemoryLedger is a ReminderLedger with per-key expiry.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryLedger(now func() time.Time) *MemoryLedger {
	if now == nil {
		now = time.Now
	}
	return &MemoryLedger{entries: make(map[string]time.Time), now: now}
}

func (l *MemoryLedger) MarkSent(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.entries[key] = now.Add(ttl)
	return true, nil
}
