package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket is one user's ticket for one festival season. A ticket carries
// two identifiers: TicketID, the opaque random token embedded in the QR
// code, and Key, the short zero-padded number printed on the ticket.
// Both are unique within a season and are never reissued, even after the
// owning user record is deleted.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID string `bun:"ticket_id,pk" json:"ticket_id"`
	UserID   int64  `bun:"user_id,notnull,unique:user_season" json:"user_id"`
	Season   string `bun:"season,notnull,unique:user_season,unique:season_key" json:"season"`
	Key      string `bun:"ticket_key,notnull,unique:season_key" json:"key"`

	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	LastScannedAt *time.Time `bun:"last_scanned_at,nullzero" json:"last_scanned_at,omitempty"`

	// Questionnaire answers, free text.
	Country string `bun:"country,nullzero" json:"country,omitempty"`
	Source  string `bun:"source,nullzero" json:"source,omitempty"`

	// Day-attendance flags, e.g. "date_4_10" -> true.
	Days map[string]bool `bun:"days,nullzero" json:"days,omitempty"`
}

// Scanned reports whether the ticket has been validated at the door at
// least once. Re-scans are allowed and only move the timestamp.
func (t *Ticket) Scanned() bool {
	return t.LastScannedAt != nil
}
