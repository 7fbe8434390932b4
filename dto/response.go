package dto

import "errors"

// Custom errors
var (
	ErrNotFound = errors.New("not found")
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ScoreResponse bundles the scoring outputs for one invoice projection.
type ScoreResponse struct {
	Anomaly  AnomalyResult   `json:"anomaly"`
	Priority PriorityResult  `json:"priority"`
	Delay    DelayPrediction `json:"delay"`
}

// ReminderSummary reports a reminder pass.
type ReminderSummary struct {
	RemindersSent   int `json:"reminders_sent"`
	EscalationsSent int `json:"escalations_sent"`
	MarkedOverdue   int `json:"marked_overdue"`
}
