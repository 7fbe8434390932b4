package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is a user's role within the organization.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleApprover   Role = "approver"
	RoleAccountant Role = "accountant"
	RoleEmployee   Role = "employee"
)

// User is an entry of the user directory.
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	ServiceID string     `json:"service_id"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Service is an organizational unit and its approval policy.
type Service struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	CanApproveInvoices bool            `json:"can_approve_invoices"`
	ApprovalThreshold  decimal.Decimal `json:"approval_threshold"`
}
