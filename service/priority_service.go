package service

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/dto"
)

var (
	highAmountTier   = decimal.NewFromInt(10000)
	mediumAmountTier = decimal.NewFromInt(5000)
)

// DefaultStrategicVendors are vendors whose invoices get a priority bonus.
var DefaultStrategicVendors = []string{"Microsoft", "Google", "Amazon", "Oracle"}

// serviceCriticality is the bonus per lower-cased service identifier.
var serviceCriticality = map[string]int{
	"finance":    15,
	"accounting": 15,
	"management": 20,
	"purchasing": 10,
	"hr":         5,
}

var priorityRecommendations = map[dto.PriorityLevel][]string{
	dto.PriorityCritical: {"Process immediately", "Escalate to a finance manager"},
	dto.PriorityHigh:     {"Process within 24 hours", "Confirm approver availability"},
	dto.PriorityMedium:   {"Process within 3 days"},
	dto.PriorityLow:      {"Process in the normal queue"},
}

// PriorityScorer computes a deterministic priority from amount, urgency, vendor and service.
type PriorityScorer struct {
	strategicVendors []string
	now              func() time.Time
	logger           *zap.Logger
}

func NewPriorityScorer(strategicVendors []string, now func() time.Time, logger *zap.Logger) *PriorityScorer {
	if strategicVendors == nil {
		strategicVendors = DefaultStrategicVendors
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriorityScorer{strategicVendors: strategicVendors, now: now, logger: logger}
}

func (s *PriorityScorer) Score(inv dto.InvoiceData) dto.PriorityResult {
	var factors []dto.PriorityFactor
	add := func(factor string, impact int) {
		factors = append(factors, dto.PriorityFactor{Factor: factor, Impact: impact})
	}

	switch {
	case inv.TotalAmount.GreaterThan(highAmountTier):
		add("High amount", 30)
	case inv.TotalAmount.GreaterThan(mediumAmountTier):
		add("Medium amount", 20)
	}

	if days, ok := s.daysUntilDue(inv); ok {
		switch {
		case days <= 3:
			add("Due within 3 days", 40)
		case days <= 7:
			add("Due within a week", 25)
		}
	}

	if s.isStrategicVendor(inv.VendorName) {
		add("Strategic vendor", 20)
	}

	if bonus := serviceCriticality[strings.ToLower(strings.TrimSpace(inv.CurrentService))]; bonus > 0 {
		add("Critical service", bonus)
	}

	score := 0
	for _, f := range factors {
		score += f.Impact
	}
	if score > 100 {
		score = 100
	}

	level := PriorityLevelFor(score)
	if factors == nil {
		factors = []dto.PriorityFactor{}
	}
	return dto.PriorityResult{
		PriorityScore:   score,
		PriorityLevel:   level,
		Factors:         factors,
		Recommendations: append([]string(nil), priorityRecommendations[level]...),
	}
}

// PriorityLevelFor maps a score: >=80 critical, >=60 high, >=40 medium.
func PriorityLevelFor(score int) dto.PriorityLevel {
	switch {
	case score >= 80:
		return dto.PriorityCritical
	case score >= 60:
		return dto.PriorityHigh
	case score >= 40:
		return dto.PriorityMedium
	default:
		return dto.PriorityLow
	}
}

func (s *PriorityScorer) daysUntilDue(inv dto.InvoiceData) (int, bool) {
	if strings.TrimSpace(inv.DueDate) == "" {
		return 0, false
	}
	due, err := dto.ParseDate(inv.DueDate)
	if err != nil {
		s.logger.Warn("priority: due date ignored", zap.Int64("invoice_id", inv.ID), zap.Error(err))
		return 0, false
	}
	return dto.DateOf(s.now()).DaysUntil(due), true
}

func (s *PriorityScorer) isStrategicVendor(vendor string) bool {
	vendor = strings.ToLower(vendor)
	if vendor == "" {
		return false
	}
	for _, v := range s.strategicVendors {
		if v != "" && strings.Contains(vendor, strings.ToLower(v)) {
			return true
		}
	}
	return false
}
