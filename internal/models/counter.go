package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SeasonCounter tracks the last issued sequential ticket value for a
// season. It is advanced with a compare-and-swap and never rolled back,
// so deleted tickets cannot cause a key to be handed out twice.
type SeasonCounter struct {
	bun.BaseModel `bun:"table:season_counters"`

	Season    string    `bun:"season,pk"`
	LastValue int64     `bun:"last_value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
