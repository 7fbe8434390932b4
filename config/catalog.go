package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Aashish23092/invoice-flow/dto"
)

// Catalog is the reference data seeded into the memory store: invoice
// templates, services with their approval policy, users and workflow rules.
type Catalog struct {
	Templates []TemplateEntry `yaml:"templates"`
	Services  []ServiceEntry  `yaml:"services"`
	Users     []UserEntry     `yaml:"users"`
	Rules     []RuleEntry     `yaml:"rules"`
}

type TemplateEntry struct {
	ID       int64                 `yaml:"id"`
	Name     string                `yaml:"name"`
	Vendor   string                `yaml:"vendor"`
	Keywords []string              `yaml:"keywords"`
	Regions  map[string]dto.Region `yaml:"regions"`
	Disabled bool                  `yaml:"disabled"`
}

type ServiceEntry struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	CanApprove        bool   `yaml:"can_approve_invoices"`
	ApprovalThreshold string `yaml:"approval_threshold"`
}

type UserEntry struct {
	ID        int64  `yaml:"id"`
	Username  string `yaml:"username"`
	Email     string `yaml:"email"`
	Role      string `yaml:"role"`
	Service   string `yaml:"service"`
	Inactive  bool   `yaml:"inactive"`
	LastLogin string `yaml:"last_login"`
}

// RuleEntry carries conditions and parameters in the same shape as the
// JSON wire format.
type RuleEntry struct {
	ID          int64          `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Trigger     string         `yaml:"trigger_type"`
	Conditions  map[string]any `yaml:"trigger_conditions"`
	Action      string         `yaml:"action_type"`
	Parameters  map[string]any `yaml:"action_parameters"`
	Priority    int            `yaml:"priority"`
	Inactive    bool           `yaml:"inactive"`
}

// CatalogTarget receives the converted catalog entries.
type CatalogTarget interface {
	AddTemplate(t dto.TemplateHint)
	AddService(s dto.Service)
	AddUser(u dto.User)
	AddRule(r dto.WorkflowRule)
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read catalog %s", path)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "config: parse catalog")
	}
	return &c, nil
}

// Apply converts every entry and hands it to target. Disabled templates are
// skipped.
func (c *Catalog) Apply(target CatalogTarget) error {
	for _, t := range c.Templates {
		if t.Disabled {
			continue
		}
		target.AddTemplate(dto.TemplateHint{
			ID:                t.ID,
			Name:              t.Name,
			Vendor:            t.Vendor,
			DetectionKeywords: t.Keywords,
			Regions:           t.Regions,
		})
	}
	for _, s := range c.Services {
		threshold := decimal.Zero
		if s.ApprovalThreshold != "" {
			var err error
			threshold, err = decimal.NewFromString(s.ApprovalThreshold)
			if err != nil {
				return eris.Wrapf(err, "config: service %s approval threshold", s.ID)
			}
		}
		target.AddService(dto.Service{
			ID:                 s.ID,
			Name:               s.Name,
			CanApproveInvoices: s.CanApprove,
			ApprovalThreshold:  threshold,
		})
	}
	for _, u := range c.Users {
		user := dto.User{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.Email,
			Role:      dto.Role(u.Role),
			ServiceID: u.Service,
			IsActive:  !u.Inactive,
		}
		if u.LastLogin != "" {
			t, err := time.Parse(time.RFC3339, u.LastLogin)
			if err != nil {
				return eris.Wrapf(err, "config: user %s last_login", u.Username)
			}
			user.LastLogin = &t
		}
		target.AddUser(user)
	}
	for _, r := range c.Rules {
		conditions, err := rawObject(r.Conditions)
		if err != nil {
			return eris.Wrapf(err, "config: rule %s conditions", r.Name)
		}
		params, err := rawObject(r.Parameters)
		if err != nil {
			return eris.Wrapf(err, "config: rule %s parameters", r.Name)
		}
		target.AddRule(dto.WorkflowRule{
			ID:                r.ID,
			Name:              r.Name,
			Description:       r.Description,
			TriggerType:       dto.TriggerType(r.Trigger),
			TriggerConditions: conditions,
			ActionType:        dto.ActionType(r.Action),
			ActionParameters:  params,
			Priority:          r.Priority,
			IsActive:          !r.Inactive,
		})
	}
	return nil
}

func rawObject(m map[string]any) (json.RawMessage, error) {
	if m == nil {
		return json.RawMessage(`{}`), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Templates: []TemplateEntry{
			{ID: 1, Name: "Generic invoice", Keywords: []string{"invoice", "total amount", "due date", "bill to"}},
			{ID: 2, Name: "Facture", Keywords: []string{"facture", "montant ttc", "date d'échéance", "tva"}},
		},
		Services: []ServiceEntry{
			{ID: "accounting", Name: "Accounting", CanApprove: true, ApprovalThreshold: "5000"},
			{ID: "purchasing", Name: "Purchasing", CanApprove: false, ApprovalThreshold: "1000"},
			{ID: "finance", Name: "Finance", CanApprove: true, ApprovalThreshold: "10000"},
		},
		Users: []UserEntry{
			{ID: 1, Username: "admin", Role: string(dto.RoleAdmin), Service: "finance"},
			{ID: 2, Username: "finance.manager", Role: string(dto.RoleManager), Service: "finance"},
			{ID: 3, Username: "accounting.approver", Role: string(dto.RoleApprover), Service: "accounting"},
			{ID: 4, Username: "accounting.manager", Role: string(dto.RoleManager), Service: "accounting"},
			{ID: 5, Username: "purchasing.clerk", Role: string(dto.RoleEmployee), Service: "purchasing"},
		},
		Rules: []RuleEntry{
			{
				ID:         1,
				Name:       "Auto-approve small invoices from known vendors",
				Trigger:    string(dto.TriggerAmountThreshold),
				Conditions: map[string]any{"operator": "lte", "threshold": 1000},
				Action:     string(dto.ActionAutoApprove),
				Parameters: map[string]any{"require_known_vendor": true},
				Priority:   1,
			},
			{
				ID:         2,
				Name:       "Raise priority of large invoices",
				Trigger:    string(dto.TriggerAmountThreshold),
				Conditions: map[string]any{"operator": "gte", "threshold": 5000},
				Action:     string(dto.ActionSetPriority),
				Parameters: map[string]any{"priority": string(dto.PriorityHigh)},
				Priority:   2,
			},
			{
				ID:         3,
				Name:       "Manager approval for risky invoices",
				Trigger:    string(dto.TriggerAnomalyDetected),
				Conditions: map[string]any{"risk_threshold": 50},
				Action:     string(dto.ActionRequireApproval),
				Parameters: map[string]any{"approval_level": string(dto.RoleManager)},
				Priority:   3,
			},
		},
	}
}
