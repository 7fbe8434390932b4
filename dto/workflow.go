package dto

import (
	"encoding/json"
	"time"
)

// TriggerType selects how a workflow rule is evaluated.
type TriggerType string

const (
	TriggerAmountThreshold TriggerType = "amount_threshold"
	TriggerVendorType      TriggerType = "vendor_type"
	TriggerPriorityLevel   TriggerType = "priority_level"
	TriggerAnomalyDetected TriggerType = "anomaly_detected"
)

// ActionType selects what a matching workflow rule does.
type ActionType string

const (
	ActionAutoApprove      ActionType = "auto_approve"
	ActionAssignUser       ActionType = "assign_user"
	ActionSetPriority      ActionType = "set_priority"
	ActionRequireApproval  ActionType = "require_approval"
	ActionSendNotification ActionType = "send_notification"
)

// WorkflowRule is the configured trigger/action pair, in its wire format.
// Lower Priority values are evaluated first.
type WorkflowRule struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	TriggerType       TriggerType     `json:"trigger_type"`
	TriggerConditions json.RawMessage `json:"trigger_conditions"`
	ActionType        ActionType      `json:"action_type"`
	ActionParameters  json.RawMessage `json:"action_parameters"`
	Priority          int             `json:"priority"`
	IsActive          bool            `json:"is_active"`
}

// RoutingDecision is the outcome of routing one invoice.
type RoutingDecision struct {
	AutoApproved     bool   `json:"auto_approved"`
	ApprovalRequired bool   `json:"approval_required"`
	AssignedTo       *int64 `json:"assigned_to"`
	Reasoning        string `json:"reasoning"`
}

// RuleApplication reports what the rule engine did for one invoice.
type RuleApplication struct {
	InvoiceID int64      `json:"invoice_id"`
	RuleID    *int64     `json:"rule_id,omitempty"`
	RuleName  string     `json:"rule_name,omitempty"`
	Action    ActionType `json:"action,omitempty"`
	Applied   bool       `json:"applied"`
	Detail    string     `json:"detail,omitempty"`
}

// AutomationSummary aggregates a rule engine pass over many invoices.
type AutomationSummary struct {
	Evaluated int `json:"evaluated"`
	Matched   int `json:"matched"`
	Applied   int `json:"applied"`
	Failed    int `json:"failed"`
}

// HistoryAction names the kind of change a history record describes.
type HistoryAction string

const (
	HistoryCreated         HistoryAction = "created"
	HistoryUpdated         HistoryAction = "updated"
	HistoryApproved        HistoryAction = "approved"
	HistoryAssigned        HistoryAction = "assigned"
	HistoryStatusChanged   HistoryAction = "status_changed"
	HistoryPriorityChanged HistoryAction = "priority_changed"
	HistoryOCRProcessed    HistoryAction = "ocr_processed"
	HistoryScored          HistoryAction = "scored"
)

// SystemActor is the actor recorded for automated changes.
const SystemActor = "System"

// HistoryRecord is an immutable audit entry for an invoice.
type HistoryRecord struct {
	ID        string            `json:"id"`
	InvoiceID int64             `json:"invoice_id"`
	Action    HistoryAction     `json:"action"`
	Actor     string            `json:"actor"`
	Comment   string            `json:"comment,omitempty"`
	OldValues map[string]string `json:"old_values,omitempty"`
	NewValues map[string]string `json:"new_values,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
