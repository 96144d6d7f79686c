package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a persisted credential record. Raw keys are shown once at
// issuance; only the SHA-256 hash is stored.
type APIKey struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	KeyHash    string    `db:"key_hash"    json:"-"`
	KeyPrefix  string    `db:"key_prefix"  json:"key_prefix"`
	Plan       Plan      `db:"plan"        json:"plan"`
	Email      *string   `db:"email"       json:"email,omitempty"`
	ExternalID *string   `db:"external_id" json:"-"`
	Active     bool      `db:"active"      json:"active"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}
