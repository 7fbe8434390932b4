package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aashish23092/invoice-flow/dto"
	"github.com/Aashish23092/invoice-flow/store"
)

func rule(id int64, name string, prio int, trigger dto.TriggerType, cond string, action dto.ActionType, params string) dto.WorkflowRule {
	return dto.WorkflowRule{
		ID:                id,
		Name:              name,
		TriggerType:       trigger,
		TriggerConditions: json.RawMessage(cond),
		ActionType:        action,
		ActionParameters:  json.RawMessage(params),
		Priority:          prio,
		IsActive:          true,
	}
}

func newTestEngine(s *store.MemoryStore, d *captureDispatcher) *RuleEngine {
	return NewRuleEngine(s, s, s, NewNotificationService(d, s, testClock, nil), testClock, nil)
}

func TestRuleEngine_FirstMatchOnly(t *testing.T) {
	s := newTestStore()
	inv := s.AddInvoice(dto.Invoice{VendorName: "Acme", TotalAmount: amount("800"), Priority: dto.PriorityMedium})
	rules := []dto.WorkflowRule{
		rule(2, "large", 2, dto.TriggerAmountThreshold, `{"operator":"gte","threshold":5000}`, dto.ActionSetPriority, `{"priority":"high"}`),
		rule(1, "small", 1, dto.TriggerAmountThreshold, `{"operator":"lte","threshold":1000}`, dto.ActionAutoApprove, `{}`),
		rule(3, "any", 3, dto.TriggerAmountThreshold, `{"operator":"gte","threshold":0}`, dto.ActionSetPriority, `{"priority":"low"}`),
	}

	app, err := newTestEngine(s, &captureDispatcher{}).EvaluateAndApply(context.Background(), inv.ID, rules)
	require.NoError(t, err)

	require.NotNil(t, app.RuleID)
	assert.Equal(t, int64(1), *app.RuleID)
	assert.Equal(t, dto.ActionAutoApprove, app.Action)
	assert.True(t, app.Applied)

	got, _ := s.GetInvoice(context.Background(), inv.ID)
	assert.Equal(t, dto.StatusApproved, got.Status)
	assert.Equal(t, dto.PriorityMedium, got.Priority)

	hist := s.History(inv.ID)
	require.Len(t, hist, 1)
	assert.Equal(t, dto.SystemActor, hist[0].Actor)
	assert.Equal(t, "Rule: small", hist[0].Comment)
	assert.Equal(t, "small", hist[0].NewValues["rule"])
}

func TestRuleEngine_AutoApproveIsIdempotent(t *testing.T) {
	s := newTestStore()
	inv := s.AddInvoice(dto.Invoice{VendorName: "Acme", TotalAmount: amount("100")})
	rules := []dto.WorkflowRule{
		rule(1, "small", 1, dto.TriggerAmountThreshold, `{"operator":"lte","threshold":1000}`, dto.ActionAutoApprove, `{}`),
	}
	engine := newTestEngine(s, &captureDispatcher{})

	_, err := engine.EvaluateAndApply(context.Background(), inv.ID, rules)
	require.NoError(t, err)
	app, err := engine.EvaluateAndApply(context.Background(), inv.ID, rules)
	require.NoError(t, err)

	assert.False(t, app.Applied)
	assert.Equal(t, "already approved", app.Detail)
	assert.Len(t, s.History(inv.ID), 1)
}

func TestRuleEngine_BrokenRulesAreSkipped(t *testing.T) {
	s := newTestStore()
	inv := s.AddInvoice(dto.Invoice{VendorName: "Acme Supplies", TotalAmount: amount("100")})
	rules := []dto.WorkflowRule{
		rule(1, "unknown trigger", 1, "weather", `{}`, dto.ActionAutoApprove, `{}`),
		rule(2, "malformed", 2, dto.TriggerAmountThreshold, `{"operator":`, dto.ActionAutoApprove, `{}`),
		rule(3, "no threshold", 3, dto.TriggerAmountThreshold, `{"operator":"lte"}`, dto.ActionAutoApprove, `{}`),
		rule(4, "bad operator", 4, dto.TriggerAmountThreshold, `{"operator":"lt","threshold":5}`, dto.ActionAutoApprove, `{}`),
		rule(5, "vendor", 5, dto.TriggerVendorType, `{"patterns":["supplies"]}`, dto.ActionSetPriority, `{"priority":"high"}`),
	}

	app, err := newTestEngine(s, &captureDispatcher{}).EvaluateAndApply(context.Background(), inv.ID, rules)
	require.NoError(t, err)
	assert.Equal(t, "vendor", app.RuleName)
	assert.True(t, app.Applied)

	got, _ := s.GetInvoice(context.Background(), inv.ID)
	assert.Equal(t, dto.PriorityHigh, got.Priority)
}

func TestRuleEngine_FailedActionChangesNothing(t *testing.T) {
	s := newTestStore()
	inv := s.AddInvoice(dto.Invoice{TotalAmount: amount("100"), Priority: dto.PriorityLow})
	rules := []dto.WorkflowRule{
		rule(1, "bad priority", 1, dto.TriggerAmountThreshold, `{"operator":"gte","threshold":0}`, dto.ActionSetPriority, `{"priority":"urgent"}`),
		rule(2, "never reached", 2, dto.TriggerAmountThreshold, `{"operator":"gte","threshold":0}`, dto.ActionAutoApprove, `{}`),
	}

	app, err := newTestEngine(s, &captureDispatcher{}).EvaluateAndApply(context.Background(), inv.ID, rules)
	require.NoError(t, err)
	assert.False(t, app.Applied)
	assert.Equal(t, "bad priority", app.RuleName)
	assert.Contains(t, app.Detail, "invalid action parameters")

	got, _ := s.GetInvoice(context.Background(), inv.ID)
	assert.Equal(t, dto.PriorityLow, got.Priority)
	assert.Equal(t, dto.StatusDraft, got.Status)
	assert.Empty(t, s.History(inv.ID))
}

func TestRuleEngine_RequireKnownVendor(t *testing.T) {
	s := newTestStore()
	inv := s.AddInvoice(dto.Invoice{VendorName: "Brand New Co", TotalAmount: amount("100")})
	rules := []dto.WorkflowRule{
		rule(1, "small known", 1, dto.TriggerAmountThreshold, `{"operator":"lte","threshold":1000}`,
			dto.ActionAutoApprove, `{"require_known_vendor":true}`),
	}

	app, err := newTestEngine(s, &captureDispatcher{}).EvaluateAndApply(context.Background(), inv.ID, rules)
	require.NoError(t, err)
	assert.False(t, app.Applied)
	assert.Equal(t, "vendor is not known", app.Detail)

	s.AddInvoice(dto.Invoice{VendorName: "Brand New Co", TotalAmount: amount("50")})
	app, err = newTestEngine(s, &captureDispatcher{}).EvaluateAndApply(context.Background(), inv.ID, rules)
	require.NoError(t, err)
	assert.True(t, app.Applied)
}

func TestRuleEngine_RequireApprovalAssignsLevel(t *testing.T) {
	s := newTestStore()
	seedDirectory(s)
	inv := s.AddInvoice(dto.Invoice{TotalAmount: amount("100"), ServiceID: "finance", AIRiskScore: 60})
	rules := []dto.WorkflowRule{
		rule(1, "risky", 1, dto.TriggerAnomalyDetected, `{"risk_threshold":50}`,
			dto.ActionRequireApproval, `{"approval_level":"manager"}`),
	}

	app, err := newTestEngine(s, &captureDispatcher{}).EvaluateAndApply(context.Background(), inv.ID, rules)
	require.NoError(t, err)
	assert.True(t, app.Applied)
	assert.Equal(t, "approval required at level manager", app.Detail)

	got, _ := s.GetInvoice(context.Background(), inv.ID)
	assert.Equal(t, dto.StatusPendingApproval, got.Status)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, int64(12), *got.AssignedTo)
	assert.Len(t, s.History(inv.ID), 2)
}

func TestRuleEngine_AssignUser(t *testing.T) {
	s := newTestStore()
	inv := s.AddInvoice(dto.Invoice{TotalAmount: amount("100"), Priority: dto.PriorityCritical})
	rules := []dto.WorkflowRule{
		rule(1, "critical to boss", 1, dto.TriggerPriorityLevel, `{"priorities":["high","critical"]}`,
			dto.ActionAssignUser, `{"user_id":42}`),
	}

	app, err := newTestEngine(s, &captureDispatcher{}).EvaluateAndApply(context.Background(), inv.ID, rules)
	require.NoError(t, err)
	assert.True(t, app.Applied)
	got, _ := s.GetInvoice(context.Background(), inv.ID)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, int64(42), *got.AssignedTo)
}

func TestRuleEngine_SendNotificationWritesNoHistory(t *testing.T) {
	s := newTestStore()
	s.AddUser(dto.User{ID: 7, Role: dto.RoleAccountant, IsActive: true})
	d := &captureDispatcher{}
	inv := s.AddInvoice(dto.Invoice{VendorName: "Acme", TotalAmount: amount("100")})
	rules := []dto.WorkflowRule{
		rule(1, "tell accounting", 1, dto.TriggerVendorType, `{"patterns":["acme"]}`,
			dto.ActionSendNotification, `{"role":"accountant"}`),
	}

	app, err := newTestEngine(s, d).EvaluateAndApply(context.Background(), inv.ID, rules)
	require.NoError(t, err)
	assert.True(t, app.Applied)
	assert.Empty(t, s.History(inv.ID))

	sent := d.byType(dto.NotificationWorkflow)
	require.Len(t, sent, 1)
	assert.Equal(t, int64(7), sent[0].RecipientID)
	assert.Equal(t, "Workflow rule triggered: tell accounting", sent[0].Title)
}

func TestRuleEngine_NoMatch(t *testing.T) {
	s := newTestStore()
	inv := s.AddInvoice(dto.Invoice{TotalAmount: amount("3000")})
	rules := []dto.WorkflowRule{
		rule(1, "small", 1, dto.TriggerAmountThreshold, `{"operator":"lte","threshold":1000}`, dto.ActionAutoApprove, `{}`),
	}
	app, err := newTestEngine(s, &captureDispatcher{}).EvaluateAndApply(context.Background(), inv.ID, rules)
	require.NoError(t, err)
	assert.Nil(t, app.RuleID)
	assert.False(t, app.Applied)
	assert.Equal(t, inv.ID, app.InvoiceID)
}

func TestRuleEngine_Evaluate(t *testing.T) {
	engine := newTestEngine(newTestStore(), &captureDispatcher{})
	inv := dto.InvoiceData{VendorName: "ACME Industrial", TotalAmount: amount("999.995"), Priority: dto.PriorityHigh, AIRiskScore: 50}

	tests := []struct {
		name    string
		trigger dto.TriggerType
		cond    string
		want    bool
		errIs   error
	}{
		{"eq within a cent", dto.TriggerAmountThreshold, `{"operator":"eq","threshold":1000}`, true, nil},
		{"eq outside a cent", dto.TriggerAmountThreshold, `{"operator":"eq","threshold":1000.02}`, false, nil},
		{"vendor case-insensitive", dto.TriggerVendorType, `{"patterns":["industrial"]}`, true, nil},
		{"vendor no match", dto.TriggerVendorType, `{"patterns":["globex"," "]}`, false, nil},
		{"priority listed", dto.TriggerPriorityLevel, `{"priorities":["high"]}`, true, nil},
		{"risk at threshold", dto.TriggerAnomalyDetected, `{"risk_threshold":50}`, true, nil},
		{"risk missing", dto.TriggerAnomalyDetected, `{}`, false, ErrInvalidConditions},
		{"empty conditions", dto.TriggerVendorType, ``, false, ErrInvalidConditions},
		{"unknown trigger", "calendar", `{}`, false, ErrUnknownTrigger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Evaluate(rule(1, tt.name, 1, tt.trigger, tt.cond, dto.ActionAutoApprove, `{}`), inv)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSortRules(t *testing.T) {
	inactive := rule(1, "off", 0, dto.TriggerVendorType, `{}`, dto.ActionAutoApprove, `{}`)
	inactive.IsActive = false
	sorted := SortRules([]dto.WorkflowRule{
		rule(5, "b", 2, dto.TriggerVendorType, `{}`, dto.ActionAutoApprove, `{}`),
		rule(3, "a", 2, dto.TriggerVendorType, `{}`, dto.ActionAutoApprove, `{}`),
		inactive,
		rule(9, "first", 1, dto.TriggerVendorType, `{}`, dto.ActionAutoApprove, `{}`),
	})
	names := make([]string, len(sorted))
	for i, r := range sorted {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"first", "a", "b"}, names)
}
