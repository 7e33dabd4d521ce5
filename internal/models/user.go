package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is a festival attendee, keyed by the chat-transport identity.
// Records are created lazily on first contact and only removed by an
// explicit delete request.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        int64     `bun:"id,pk" json:"id"`
	Language  string    `bun:"language,nullzero" json:"language,omitempty"`
	FirstSeen time.Time `bun:"first_seen,notnull" json:"first_seen"`
	UTM       string    `bun:"utm,nullzero" json:"utm,omitempty"`

	Tickets []*Ticket `bun:"rel:has-many,join:id=user_id" json:"tickets,omitempty"`
}
