package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/dto"
)

var (
	ErrUnknownTrigger    = eris.New("unknown trigger type")
	ErrUnknownAction     = eris.New("unknown action type")
	ErrInvalidConditions = eris.New("invalid trigger conditions")
	ErrInvalidParameters = eris.New("invalid action parameters")
)

var amountEpsilon = decimal.NewFromFloat(0.01)

type amountConditions struct {
	Operator  string           `json:"operator"`
	Threshold *decimal.Decimal `json:"threshold"`
}

type vendorConditions struct {
	Patterns []string `json:"patterns"`
}

type priorityConditions struct {
	Priorities []dto.PriorityLevel `json:"priorities"`
}

type anomalyConditions struct {
	RiskThreshold *float64 `json:"risk_threshold"`
}

type autoApproveParams struct {
	RequireKnownVendor bool `json:"require_known_vendor"`
}

type assignUserParams struct {
	UserID int64 `json:"user_id"`
}

type setPriorityParams struct {
	Priority dto.PriorityLevel `json:"priority"`
}

type requireApprovalParams struct {
	ApprovalLevel dto.Role `json:"approval_level"`
}

type notificationParams struct {
	Role    dto.Role `json:"role"`
	Title   string   `json:"title"`
	Message string   `json:"message"`
}

// RuleEngine applies the first matching workflow rule to an invoice.
type RuleEngine struct {
	store    InvoiceStore
	history  HistoryReader
	users    UserDirectory
	notifier *NotificationService
	now      func() time.Time
	logger   *zap.Logger
}

func NewRuleEngine(store InvoiceStore, history HistoryReader, users UserDirectory, notifier *NotificationService, now func() time.Time, logger *zap.Logger) *RuleEngine {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleEngine{store: store, history: history, users: users, notifier: notifier, now: now, logger: logger}
}

// SortRules returns the active rules ordered by priority, then id.
func SortRules(rules []dto.WorkflowRule) []dto.WorkflowRule {
	active := make([]dto.WorkflowRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority < active[j].Priority
		}
		return active[i].ID < active[j].ID
	})
	return active
}

// Evaluate reports whether rule's trigger matches the invoice.
func (e *RuleEngine) Evaluate(rule dto.WorkflowRule, inv dto.InvoiceData) (bool, error) {
	switch rule.TriggerType {
	case dto.TriggerAmountThreshold:
		var c amountConditions
		if err := decodeConditions(rule.TriggerConditions, &c); err != nil {
			return false, err
		}
		if c.Threshold == nil {
			return false, eris.Wrap(ErrInvalidConditions, "threshold is required")
		}
		switch c.Operator {
		case "gte":
			return inv.TotalAmount.GreaterThanOrEqual(*c.Threshold), nil
		case "lte":
			return inv.TotalAmount.LessThanOrEqual(*c.Threshold), nil
		case "eq":
			return inv.TotalAmount.Sub(*c.Threshold).Abs().LessThan(amountEpsilon), nil
		default:
			return false, eris.Wrapf(ErrInvalidConditions, "operator %q", c.Operator)
		}

	case dto.TriggerVendorType:
		var c vendorConditions
		if err := decodeConditions(rule.TriggerConditions, &c); err != nil {
			return false, err
		}
		vendor := strings.ToLower(inv.VendorName)
		for _, p := range c.Patterns {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" && strings.Contains(vendor, p) {
				return true, nil
			}
		}
		return false, nil

	case dto.TriggerPriorityLevel:
		var c priorityConditions
		if err := decodeConditions(rule.TriggerConditions, &c); err != nil {
			return false, err
		}
		for _, p := range c.Priorities {
			if p == inv.Priority {
				return true, nil
			}
		}
		return false, nil

	case dto.TriggerAnomalyDetected:
		var c anomalyConditions
		if err := decodeConditions(rule.TriggerConditions, &c); err != nil {
			return false, err
		}
		if c.RiskThreshold == nil {
			return false, eris.Wrap(ErrInvalidConditions, "risk_threshold is required")
		}
		return float64(inv.AIRiskScore) >= *c.RiskThreshold, nil
	}
	return false, eris.Wrapf(ErrUnknownTrigger, "%q", rule.TriggerType)
}

// EvaluateAndApply evaluates rules in order inside the invoice's critical
// section and applies the first match only. A rule that fails to evaluate
// counts as not matching.
func (e *RuleEngine) EvaluateAndApply(ctx context.Context, invoiceID int64, rules []dto.WorkflowRule) (dto.RuleApplication, error) {
	ordered := SortRules(rules)

	var app dto.RuleApplication
	var effects []func()
	_, err := e.store.UpdateInvoice(ctx, invoiceID, func(inv *dto.Invoice) ([]dto.HistoryRecord, error) {
		app = dto.RuleApplication{InvoiceID: invoiceID}
		effects = nil
		data := inv.Data()

		for _, rule := range ordered {
			matched, err := e.Evaluate(rule, data)
			if err != nil {
				e.logger.Warn("rule evaluation failed",
					zap.String("rule", rule.Name),
					zap.Int64("invoice_id", invoiceID),
					zap.Error(err),
				)
				continue
			}
			if !matched {
				continue
			}

			ruleID := rule.ID
			app.RuleID, app.RuleName, app.Action = &ruleID, rule.Name, rule.ActionType
			out, err := e.apply(ctx, inv, rule)
			if err != nil {
				e.logger.Warn("rule action failed",
					zap.String("rule", rule.Name),
					zap.Int64("invoice_id", invoiceID),
					zap.Error(err),
				)
				app.Detail = err.Error()
				return nil, nil
			}
			app.Applied, app.Detail = out.applied, out.detail
			if out.effect != nil {
				effects = append(effects, out.effect)
			}
			return out.records, nil
		}
		return nil, nil
	})
	if err != nil {
		return dto.RuleApplication{}, eris.Wrapf(err, "rules: apply to invoice %d", invoiceID)
	}

	for _, effect := range effects {
		effect()
	}
	return app, nil
}

type actionOutcome struct {
	records []dto.HistoryRecord
	applied bool
	detail  string
	// effect runs after the invoice change is committed.
	effect func()
}

// apply validates the action parameters before touching inv, so a failed
// action leaves the invoice unchanged.
func (e *RuleEngine) apply(ctx context.Context, inv *dto.Invoice, rule dto.WorkflowRule) (actionOutcome, error) {
	now := e.now()
	comment := "Rule: " + rule.Name

	switch rule.ActionType {
	case dto.ActionAutoApprove:
		var p autoApproveParams
		if err := decodeParams(rule.ActionParameters, &p); err != nil {
			return actionOutcome{}, err
		}
		if inv.Status == dto.StatusApproved || inv.Status == dto.StatusPaid {
			return actionOutcome{detail: "already approved"}, nil
		}
		if p.RequireKnownVendor {
			known, err := e.history.VendorExists(ctx, inv.VendorName, inv.ID)
			if err != nil {
				return actionOutcome{}, eris.Wrap(err, "rules: vendor lookup")
			}
			if strings.TrimSpace(inv.VendorName) == "" || !known {
				return actionOutcome{detail: "vendor is not known"}, nil
			}
		}
		old := inv.Status
		inv.Status = dto.StatusApproved
		inv.ApprovedAt = &now
		return actionOutcome{
			applied: true,
			detail:  "auto-approved",
			records: []dto.HistoryRecord{newHistory(inv.ID, dto.HistoryApproved, dto.SystemActor, comment, now,
				map[string]string{"status": string(old)},
				map[string]string{"status": string(inv.Status), "rule": rule.Name})},
		}, nil

	case dto.ActionAssignUser:
		var p assignUserParams
		if err := decodeParams(rule.ActionParameters, &p); err != nil {
			return actionOutcome{}, err
		}
		if p.UserID <= 0 {
			return actionOutcome{}, eris.Wrap(ErrInvalidParameters, "user_id is required")
		}
		if inv.AssignedTo != nil && *inv.AssignedTo == p.UserID {
			return actionOutcome{detail: "already assigned"}, nil
		}
		old := formatOptionalID(inv.AssignedTo)
		id := p.UserID
		inv.AssignedTo = &id
		return actionOutcome{
			applied: true,
			detail:  fmt.Sprintf("assigned to user %d", id),
			records: []dto.HistoryRecord{newHistory(inv.ID, dto.HistoryAssigned, dto.SystemActor, comment, now,
				map[string]string{"assigned_to": old},
				map[string]string{"assigned_to": strconv.FormatInt(id, 10), "rule": rule.Name})},
		}, nil

	case dto.ActionSetPriority:
		var p setPriorityParams
		if err := decodeParams(rule.ActionParameters, &p); err != nil {
			return actionOutcome{}, err
		}
		if !p.Priority.Valid() {
			return actionOutcome{}, eris.Wrapf(ErrInvalidParameters, "priority %q", p.Priority)
		}
		if inv.Priority == p.Priority {
			return actionOutcome{detail: "priority unchanged"}, nil
		}
		old := inv.Priority
		inv.Priority = p.Priority
		return actionOutcome{
			applied: true,
			detail:  "priority set to " + string(p.Priority),
			records: []dto.HistoryRecord{newHistory(inv.ID, dto.HistoryPriorityChanged, dto.SystemActor, comment, now,
				map[string]string{"priority": string(old)},
				map[string]string{"priority": string(p.Priority), "rule": rule.Name})},
		}, nil

	case dto.ActionRequireApproval:
		var p requireApprovalParams
		if err := decodeParams(rule.ActionParameters, &p); err != nil {
			return actionOutcome{}, err
		}
		if inv.Status == dto.StatusApproved || inv.Status == dto.StatusPaid {
			return actionOutcome{detail: "already approved"}, nil
		}
		return e.requireApproval(ctx, inv, rule, p, comment, now)

	case dto.ActionSendNotification:
		var p notificationParams
		if err := decodeParams(rule.ActionParameters, &p); err != nil {
			return actionOutcome{}, err
		}
		if p.Role == "" {
			p.Role = dto.RoleManager
		}
		if p.Title == "" {
			p.Title = "Workflow rule triggered: " + rule.Name
		}
		if p.Message == "" {
			p.Message = fmt.Sprintf("Invoice %s from %s matched rule %q.", displayNumber(*inv), inv.VendorName, rule.Name)
		}
		snapshot := *inv
		return actionOutcome{
			applied: true,
			detail:  "notified role " + string(p.Role),
			effect: func() {
				e.notifier.SendWorkflowNotification(ctx, snapshot, p.Role, p.Title, p.Message)
			},
		}, nil
	}
	return actionOutcome{}, eris.Wrapf(ErrUnknownAction, "%q", rule.ActionType)
}

func (e *RuleEngine) requireApproval(ctx context.Context, inv *dto.Invoice, rule dto.WorkflowRule, p requireApprovalParams, comment string, now time.Time) (actionOutcome, error) {
	var approver *dto.User
	if p.ApprovalLevel != "" && inv.AssignedTo == nil {
		users, err := e.users.FindApprovers(ctx, inv.ServiceID, []dto.Role{p.ApprovalLevel})
		if err != nil {
			return actionOutcome{}, eris.Wrap(err, "rules: approver lookup")
		}
		if len(users) > 0 {
			approver = &users[0]
		}
	}

	var out actionOutcome
	if inv.Status != dto.StatusPendingApproval {
		out.records = append(out.records, newHistory(inv.ID, dto.HistoryStatusChanged, dto.SystemActor, comment, now,
			map[string]string{"status": string(inv.Status)},
			map[string]string{"status": string(dto.StatusPendingApproval), "rule": rule.Name}))
		inv.Status = dto.StatusPendingApproval
	}
	if approver != nil {
		id := approver.ID
		inv.AssignedTo = &id
		out.records = append(out.records, newHistory(inv.ID, dto.HistoryAssigned, dto.SystemActor, comment, now,
			map[string]string{"assigned_to": ""},
			map[string]string{"assigned_to": strconv.FormatInt(id, 10), "rule": rule.Name}))
	}
	out.applied = len(out.records) > 0
	out.detail = "approval required"
	if p.ApprovalLevel != "" {
		out.detail += " at level " + string(p.ApprovalLevel)
	}
	return out, nil
}

func decodeConditions(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return eris.Wrap(ErrInvalidConditions, "missing")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return eris.Wrap(ErrInvalidConditions, err.Error())
	}
	return nil
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return eris.Wrap(ErrInvalidParameters, err.Error())
	}
	return nil
}
