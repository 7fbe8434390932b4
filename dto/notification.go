package dto

import "time"

// NotificationType classifies an outgoing notification.
type NotificationType string

const (
	NotificationDueDateReminder   NotificationType = "due_date_reminder"
	NotificationOverdueEscalation NotificationType = "overdue_escalation"
	NotificationAnomalyAlert      NotificationType = "anomaly_alert"
	NotificationApprovalRequest   NotificationType = "approval_request"
	NotificationWorkflow          NotificationType = "workflow_notification"
)

// NotificationPriority is the delivery urgency of a notification.
type NotificationPriority string

const (
	NotificationLow    NotificationPriority = "low"
	NotificationMedium NotificationPriority = "medium"
	NotificationHigh   NotificationPriority = "high"
)

// Notification is a message handed to the dispatcher.
type Notification struct {
	ID          string               `json:"id"`
	RecipientID int64                `json:"recipient_id"`
	Type        NotificationType     `json:"type"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	InvoiceID   *int64               `json:"invoice_id,omitempty"`
	Priority    NotificationPriority `json:"priority"`
	CreatedAt   time.Time            `json:"created_at"`
}
