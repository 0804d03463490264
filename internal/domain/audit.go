package domain

import "time"

// Audit actions for entitlement mutations.
const (
	AuditActionEnabled  = "enabled"
	AuditActionDisabled = "disabled"
)

// AuditEntry 对应 master 库 admin_audit_log 表（append-only）
type AuditEntry struct {
	AuditID         string    `db:"audit_id"` // UUID
	DeveloperEmail  string    `db:"developer_email"`
	TargetUserEmail string    `db:"target_user_email"`
	FeatureKey      string    `db:"feature_key"`
	Action          string    `db:"action"` // enabled | disabled
	CreatedAt       time.Time `db:"created_at"`
}
