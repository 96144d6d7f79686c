package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageEvent is one admitted, billable request. Events are append-only.
// KeyHash is nil for anonymous callers.
type UsageEvent struct {
	ID        uuid.UUID `db:"id"          json:"id"`
	KeyHash   *string   `db:"key_hash"    json:"-"`
	IPAddress string    `db:"ip_address"  json:"ip_address"`
	Endpoint  string    `db:"endpoint"    json:"endpoint"`
	Timestamp time.Time `db:"occurred_at" json:"timestamp"`
	MonthKey  string    `db:"month_key"   json:"month_key"`
}
