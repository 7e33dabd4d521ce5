package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ScanLog is one append-only check-in audit entry. Entries are never
// updated or deleted, including when the scanned user is removed.
type ScanLog struct {
	bun.BaseModel `bun:"table:scan_logs"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	OperatorID int64     `bun:"operator_id,notnull" json:"operator_id"`
	UserID     int64     `bun:"user_id,notnull" json:"user_id"`
	Season     string    `bun:"season,notnull" json:"season"`
	ScannedAt  time.Time `bun:"scanned_at,notnull" json:"scanned_at"`
}
