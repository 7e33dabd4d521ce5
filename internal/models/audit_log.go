package models

import (
	"time"

	"github.com/uptrace/bun"
)

// AuditLog is a generic append-only event record, used for marketing
// tag tracking and other operational audit trails.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs"`

	ID        int64             `bun:"id,pk,autoincrement" json:"id"`
	Timestamp time.Time         `bun:"timestamp,notnull" json:"timestamp"`
	Action    string            `bun:"action,notnull" json:"action"`
	Details   map[string]string `bun:"details,nullzero" json:"details,omitempty"`
}
