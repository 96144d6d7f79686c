package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
)

const apiKeyColumns = `id, key_hash, key_prefix, plan, email, external_id, active, created_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- API Keys ---

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	return insertAPIKey(ctx, s.pool, key)
}

func (s *PostgresStore) GetActiveAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	k, err := scanAPIKey(s.pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1 AND active`, keyHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) GetActiveAPIKeyByExternalID(ctx context.Context, externalID string) (*models.APIKey, error) {
	k, err := scanAPIKey(s.pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys
		 WHERE external_id = $1 AND active ORDER BY created_at DESC LIMIT 1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key by external id: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) HasActiveAPIKeyForEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM api_keys WHERE email = $1 AND active)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check api key for email: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) LinkExternalIDByEmail(ctx context.Context, email, externalID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET external_id = $2
		 WHERE email = $1 AND active AND external_id IS NULL`, email, externalID)
	if err != nil {
		return 0, fmt.Errorf("link external id: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) UpdatePlanByEmail(ctx context.Context, email string, plan models.Plan) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET plan = $2 WHERE email = $1 AND active`, email, string(plan))
	if err != nil {
		return 0, fmt.Errorf("update plan by email: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ReplaceAPIKey(ctx context.Context, oldID uuid.UUID, replacement *models.APIKey) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace api key: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE api_keys SET active = FALSE WHERE id = $1 AND active`, oldID)
	if err != nil {
		return fmt.Errorf("deactivate api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := insertAPIKey(ctx, tx, replacement); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeactivateAPIKeyByPrefix(ctx context.Context, prefix string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET active = FALSE WHERE key_prefix = $1 AND active`, prefix)
	if err != nil {
		return 0, fmt.Errorf("deactivate api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Usage Ledger ---

func (s *PostgresStore) RecordUsage(ctx context.Context, ev *models.UsageEvent) error {
	return insertUsageEvent(ctx, s.pool, ev)
}

func (s *PostgresStore) CountUsage(ctx context.Context, p models.Principal, monthKey string) (int, error) {
	return countUsage(ctx, s.pool, p, monthKey)
}

// RecordUsageIfUnder serializes writers to one bucket with a transaction
// scoped advisory lock, then counts and inserts.
func (s *PostgresStore) RecordUsageIfUnder(ctx context.Context, p models.Principal, ev *models.UsageEvent, limit int) (int, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin reserve usage: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, bucketKey(p, ev.MonthKey)); err != nil {
		return 0, false, fmt.Errorf("lock usage bucket: %w", err)
	}
	used, err := countUsage(ctx, tx, p, ev.MonthKey)
	if err != nil {
		return 0, false, err
	}
	if used >= limit {
		return used, false, nil
	}
	if err := insertUsageEvent(ctx, tx, ev); err != nil {
		return 0, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit reserve usage: %w", err)
	}
	return used, true, nil
}

// --- helpers ---

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertAPIKey(ctx context.Context, q querier, key *models.APIKey) error {
	_, err := q.Exec(ctx,
		`INSERT INTO api_keys (id, key_hash, key_prefix, plan, email, external_id, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.KeyHash, key.KeyPrefix, string(key.Plan), key.Email, key.ExternalID, key.Active, key.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func insertUsageEvent(ctx context.Context, q querier, ev *models.UsageEvent) error {
	_, err := q.Exec(ctx,
		`INSERT INTO usage_events (id, key_hash, ip_address, endpoint, occurred_at, month_key)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.KeyHash, ev.IPAddress, ev.Endpoint, ev.Timestamp, ev.MonthKey)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

func countUsage(ctx context.Context, q querier, p models.Principal, monthKey string) (int, error) {
	var n int
	var err error
	if p.Keyed() {
		err = q.QueryRow(ctx,
			`SELECT COUNT(*) FROM usage_events WHERE key_hash = $1 AND month_key = $2`,
			p.Identity, monthKey).Scan(&n)
	} else {
		err = q.QueryRow(ctx,
			`SELECT COUNT(*) FROM usage_events WHERE ip_address = $1 AND key_hash IS NULL AND month_key = $2`,
			p.Identity, monthKey).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return n, nil
}

func scanAPIKey(row pgx.Row) (*models.APIKey, error) {
	var k models.APIKey
	var plan string
	if err := row.Scan(&k.ID, &k.KeyHash, &k.KeyPrefix, &plan, &k.Email, &k.ExternalID, &k.Active, &k.CreatedAt); err != nil {
		return nil, err
	}
	k.Plan = models.Plan(plan)
	return &k, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
