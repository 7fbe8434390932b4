package dto

import "time"

// StepStatus is the outcome of one processing step.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
)

// ProcessingStep records one stage of the per-invoice pipeline.
type ProcessingStep struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
}

// ProcessingReport summarizes a full processing run for one invoice.
type ProcessingReport struct {
	InvoiceID       int64            `json:"invoice_id"`
	Status          ProcessingStatus `json:"status"`
	Steps           []ProcessingStep `json:"steps"`
	OCR             *OcrResult       `json:"ocr,omitempty"`
	Anomaly         *AnomalyResult   `json:"anomaly,omitempty"`
	Priority        *PriorityResult  `json:"priority,omitempty"`
	Delay           *DelayPrediction `json:"delay,omitempty"`
	Routing         *RoutingDecision `json:"routing,omitempty"`
	Recommendations []string         `json:"recommendations"`
	NextActions     []string         `json:"next_actions"`
	ProcessedAt     time.Time        `json:"processed_at"`
}

// AddStep appends a step to the report.
func (r *ProcessingReport) AddStep(name string, status StepStatus, detail string) {
	r.Steps = append(r.Steps, ProcessingStep{Name: name, Status: status, Detail: detail})
}
