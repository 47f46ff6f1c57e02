package models

import "time"

type AuditAction string

const (
	AuditLogin                  AuditAction = "LOGIN"
	AuditLoginFailed            AuditAction = "LOGIN_FAILED"
	AuditLogout                 AuditAction = "LOGOUT"
	AuditCreate                 AuditAction = "CREATE"
	AuditUpdate                 AuditAction = "UPDATE"
	AuditDelete                 AuditAction = "DELETE"
	AuditSessionTerminated      AuditAction = "SESSION_TERMINATED"
	AuditPasswordResetRequested AuditAction = "PASSWORD_RESET_REQUESTED"
	AuditPasswordReset          AuditAction = "PASSWORD_RESET"
	AuditArchived               AuditAction = "AUDIT_ARCHIVED"
)

type AuditLog struct {
	ID        int64       `json:"id" db:"id"`
	UserID    string      `json:"userId" db:"user_id"`
	UserType  string      `json:"userType" db:"user_type"`
	Action    AuditAction `json:"action" db:"action"`
	Entity    string      `json:"entity" db:"entity"`
	EntityID  *string     `json:"entityId" db:"entity_id"`
	Changes   *string     `json:"changes" db:"changes"`
	IPAddress *string     `json:"ipAddress" db:"ip_address"`
	UserAgent *string     `json:"userAgent" db:"user_agent"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
}

type AuditFilter struct {
	UserID string
	Action AuditAction
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
