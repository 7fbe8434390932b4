package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/dto"
)

// AutoApproveMaxRisk is the exclusive anomaly score limit for auto-approval.
const AutoApproveMaxRisk = 30

var seniorApprovalAmount = decimal.NewFromInt(5000)

// Routing reasons.
const (
	ReasonAutoApproved    = "Low risk, within service threshold"
	ReasonAlreadyApproved = "Invoice already approved"
	ReasonManualApproval  = "Manual approval required"
	ReasonNoApprover      = "No suitable approver found"
)

var (
	seniorApproverRoles = []dto.Role{dto.RoleManager, dto.RoleAdmin}
	anyApproverRoles    = []dto.Role{dto.RoleManager, dto.RoleAdmin, dto.RoleApprover}
)

// WorkflowRouter decides whether an invoice is auto-approved or assigned to an approver.
type WorkflowRouter struct {
	store    InvoiceStore
	services ServiceDirectory
	users    UserDirectory
	notifier *NotificationService
	now      func() time.Time
	logger   *zap.Logger
}

func NewWorkflowRouter(store InvoiceStore, services ServiceDirectory, users UserDirectory, notifier *NotificationService, now func() time.Time, logger *zap.Logger) *WorkflowRouter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowRouter{store: store, services: services, users: users, notifier: notifier, now: now, logger: logger}
}

// Route applies the routing decision to the invoice atomically, then sends
// the anomaly alert and approval request notifications.
func (r *WorkflowRouter) Route(ctx context.Context, invoiceID int64, priority dto.PriorityResult, anomaly dto.AnomalyResult) (dto.RoutingDecision, error) {
	var decision dto.RoutingDecision
	updated, err := r.store.UpdateInvoice(ctx, invoiceID, func(inv *dto.Invoice) ([]dto.HistoryRecord, error) {
		decision = dto.RoutingDecision{}
		return r.decide(ctx, inv, priority, anomaly, &decision), nil
	})
	if err != nil {
		return dto.RoutingDecision{}, eris.Wrapf(err, "router: route invoice %d", invoiceID)
	}

	if anomaly.RequiresReview {
		r.notifier.SendAnomalyAlert(ctx, updated, anomaly)
	}
	if decision.AssignedTo != nil {
		r.notifier.SendApprovalRequest(ctx, updated, *decision.AssignedTo)
	}

	r.logger.Info("invoice routed",
		zap.Int64("invoice_id", invoiceID),
		zap.Bool("auto_approved", decision.AutoApproved),
		zap.Bool("approval_required", decision.ApprovalRequired),
		zap.String("reasoning", decision.Reasoning),
	)
	return decision, nil
}

func (r *WorkflowRouter) decide(ctx context.Context, inv *dto.Invoice, priority dto.PriorityResult, anomaly dto.AnomalyResult, decision *dto.RoutingDecision) []dto.HistoryRecord {
	if inv.Status == dto.StatusApproved || inv.Status == dto.StatusPaid {
		decision.AutoApproved = inv.Status == dto.StatusApproved
		decision.Reasoning = ReasonAlreadyApproved
		return nil
	}

	if r.canAutoApprove(ctx, inv, priority, anomaly) {
		old := inv.Status
		approvedAt := r.now()
		inv.Status = dto.StatusApproved
		inv.ApprovedAt = &approvedAt
		decision.AutoApproved = true
		decision.Reasoning = ReasonAutoApproved
		return []dto.HistoryRecord{newHistory(inv.ID, dto.HistoryApproved, dto.SystemActor, ReasonAutoApproved, approvedAt,
			map[string]string{"status": string(old)}, map[string]string{"status": string(inv.Status)})}
	}

	decision.ApprovalRequired = true
	var records []dto.HistoryRecord
	if inv.Status != dto.StatusPendingApproval {
		records = append(records, newHistory(inv.ID, dto.HistoryStatusChanged, dto.SystemActor, ReasonManualApproval, r.now(),
			map[string]string{"status": string(inv.Status)}, map[string]string{"status": string(dto.StatusPendingApproval)}))
		inv.Status = dto.StatusPendingApproval
	}

	approver, ok := r.findApprover(ctx, inv, priority)
	if !ok {
		decision.Reasoning = ReasonNoApprover
		return records
	}

	id := approver.ID
	decision.AssignedTo = &id
	decision.Reasoning = ReasonManualApproval
	if inv.AssignedTo == nil || *inv.AssignedTo != id {
		records = append(records, newHistory(inv.ID, dto.HistoryAssigned, dto.SystemActor, "Assigned to "+approver.Username, r.now(),
			map[string]string{"assigned_to": formatOptionalID(inv.AssignedTo)}, map[string]string{"assigned_to": strconv.FormatInt(id, 10)}))
		inv.AssignedTo = &id
	}
	return records
}

func (r *WorkflowRouter) canAutoApprove(ctx context.Context, inv *dto.Invoice, priority dto.PriorityResult, anomaly dto.AnomalyResult) bool {
	svc, err := r.services.GetService(ctx, inv.ServiceID)
	if err != nil {
		if !errors.Is(err, dto.ErrNotFound) {
			r.logger.Warn("router: service lookup failed", zap.String("service", inv.ServiceID), zap.Error(err))
		}
		return false
	}
	return svc.CanApproveInvoices &&
		inv.TotalAmount.LessThanOrEqual(svc.ApprovalThreshold) &&
		anomaly.RiskScore < AutoApproveMaxRisk &&
		(priority.PriorityLevel == dto.PriorityLow || priority.PriorityLevel == dto.PriorityMedium)
}

// findApprover picks the most recently active approver of the invoice's service.
// High priority or large invoices need a manager or admin.
func (r *WorkflowRouter) findApprover(ctx context.Context, inv *dto.Invoice, priority dto.PriorityResult) (dto.User, bool) {
	roles := anyApproverRoles
	if priority.PriorityLevel == dto.PriorityHigh || priority.PriorityLevel == dto.PriorityCritical ||
		inv.TotalAmount.GreaterThan(seniorApprovalAmount) {
		roles = seniorApproverRoles
	}
	users, err := r.users.FindApprovers(ctx, inv.ServiceID, roles)
	if err != nil {
		r.logger.Warn("router: approver lookup failed", zap.Int64("invoice_id", inv.ID), zap.Error(err))
		return dto.User{}, false
	}
	if len(users) == 0 {
		return dto.User{}, false
	}
	return users[0], true
}

func newHistory(invoiceID int64, action dto.HistoryAction, actor, comment string, at time.Time, oldValues, newValues map[string]string) dto.HistoryRecord {
	return dto.HistoryRecord{
		ID:        uuid.NewString(),
		InvoiceID: invoiceID,
		Action:    action,
		Actor:     actor,
		Comment:   comment,
		OldValues: oldValues,
		NewValues: newValues,
		CreatedAt: at,
	}
}

func formatOptionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
