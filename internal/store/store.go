package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface for API keys and the usage ledger.
// Usage events are append-only: nothing here updates or deletes them.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetActiveAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	GetActiveAPIKeyByExternalID(ctx context.Context, externalID string) (*models.APIKey, error)
	HasActiveAPIKeyForEmail(ctx context.Context, email string) (bool, error)
	LinkExternalIDByEmail(ctx context.Context, email, externalID string) (int64, error)
	UpdatePlanByEmail(ctx context.Context, email string, plan models.Plan) (int64, error)
	ReplaceAPIKey(ctx context.Context, oldID uuid.UUID, replacement *models.APIKey) error
	DeactivateAPIKeyByPrefix(ctx context.Context, prefix string) (int64, error)
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)

	RecordUsage(ctx context.Context, ev *models.UsageEvent) error
	CountUsage(ctx context.Context, p models.Principal, monthKey string) (int, error)
	RecordUsageIfUnder(ctx context.Context, p models.Principal, ev *models.UsageEvent, limit int) (int, bool, error)
}

// bucketKey names the counting namespace of p for one month. Keyed and
// anonymous namespaces never collide.
func bucketKey(p models.Principal, monthKey string) string {
	if p.Keyed() {
		return "key:" + p.Identity + ":" + monthKey
	}
	return "ip:" + p.Identity + ":" + monthKey
}
