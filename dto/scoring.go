package dto

import "github.com/shopspring/decimal"

// AnomalyType identifies a single anomaly heuristic.
type AnomalyType string

const (
	AnomalyAmountSpike        AnomalyType = "amount_spike"
	AnomalyNewVendor          AnomalyType = "new_vendor"
	AnomalyFutureDate         AnomalyType = "future_date"
	AnomalyOldInvoice         AnomalyType = "old_invoice"
	AnomalyPotentialDuplicate AnomalyType = "potential_duplicate"
)

// Severity grades an anomaly finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RiskLevel grades a probability or bounded score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AnomalyFinding is one triggered anomaly check. Only the fields relevant to
// the finding's type are set.
type AnomalyFinding struct {
	Type          AnomalyType      `json:"type"`
	Description   string           `json:"description"`
	Severity      Severity         `json:"severity"`
	Penalty       int              `json:"penalty"`
	CurrentAmount *decimal.Decimal `json:"current_amount,omitempty"`
	AverageAmount *decimal.Decimal `json:"average_amount,omitempty"`
	Vendor        string           `json:"vendor,omitempty"`
	InvoiceDate   string           `json:"invoice_date,omitempty"`
	DaysOld       int              `json:"days_old,omitempty"`
	SimilarCount  int              `json:"similar_count,omitempty"`
}

// AnomalyResult aggregates the findings of one detection run.
type AnomalyResult struct {
	Anomalies      []AnomalyFinding `json:"anomalies"`
	RiskScore      int              `json:"risk_score"`
	RiskLevel      RiskLevel        `json:"risk_level"`
	RequiresReview bool             `json:"requires_review"`
}

// HighSeverityCount returns the number of high severity findings.
func (r AnomalyResult) HighSeverityCount() int {
	n := 0
	for _, a := range r.Anomalies {
		if a.Severity == SeverityHigh {
			n++
		}
	}
	return n
}

// PriorityLevel is the urgency tier of an invoice.
type PriorityLevel string

const (
	PriorityLow      PriorityLevel = "low"
	PriorityMedium   PriorityLevel = "medium"
	PriorityHigh     PriorityLevel = "high"
	PriorityCritical PriorityLevel = "critical"
)

// Valid reports whether p is a known priority level.
func (p PriorityLevel) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// PriorityFactor records one contribution to a priority score.
type PriorityFactor struct {
	Factor string `json:"factor"`
	Impact int    `json:"impact"`
}

// PriorityResult is the output of the priority scorer.
type PriorityResult struct {
	PriorityScore   int              `json:"priority_score"`
	PriorityLevel   PriorityLevel    `json:"priority_level"`
	Factors         []PriorityFactor `json:"factors"`
	Recommendations []string         `json:"recommendations"`
}

// DelayPrediction is the advisory output of the payment-delay predictor.
type DelayPrediction struct {
	DelayProbability float64   `json:"delay_probability"`
	RiskLevel        RiskLevel `json:"risk_level"`
	RiskFactors      []string  `json:"risk_factors"`
	Recommendations  []string  `json:"recommendations"`
	Confidence       float64   `json:"confidence"`
}

// NeutralDelayPrediction is returned whenever a prediction cannot be made.
func NeutralDelayPrediction() DelayPrediction {
	return DelayPrediction{
		DelayProbability: 0.5,
		RiskLevel:        RiskMedium,
		RiskFactors:      []string{},
		Recommendations:  []string{"Manual review recommended"},
		Confidence:       0,
	}
}
