package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface on an embedded SQLite file.
// A single connection serializes every write.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the database at path. Pass "" or ":memory:" for an
// in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" || path == ":memory:" {
		dsn = ":memory:"
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			key_hash TEXT UNIQUE NOT NULL,
			key_prefix TEXT NOT NULL,
			plan TEXT NOT NULL DEFAULT 'free',
			email TEXT,
			external_id TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_email ON api_keys (email)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_external_id ON api_keys (external_id)`,
		`CREATE TABLE IF NOT EXISTS usage_events (
			id TEXT PRIMARY KEY,
			key_hash TEXT,
			ip_address TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			occurred_at DATETIME NOT NULL,
			month_key TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_key_month ON usage_events (key_hash, month_key)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_ip_month ON usage_events (ip_address, month_key)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- API Keys ---

func (s *SQLiteStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	return sqliteInsertAPIKey(ctx, s.db, key)
}

func (s *SQLiteStore) GetActiveAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	var key models.APIKey
	if err := s.db.GetContext(ctx, &key,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = ? AND active = 1`, keyHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return &key, nil
}

func (s *SQLiteStore) GetActiveAPIKeyByExternalID(ctx context.Context, externalID string) (*models.APIKey, error) {
	var key models.APIKey
	if err := s.db.GetContext(ctx, &key,
		`SELECT `+apiKeyColumns+` FROM api_keys
		 WHERE external_id = ? AND active = 1 ORDER BY created_at DESC LIMIT 1`, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by external id: %w", err)
	}
	return &key, nil
}

func (s *SQLiteStore) HasActiveAPIKeyForEmail(ctx context.Context, email string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM api_keys WHERE email = ? AND active = 1`, email); err != nil {
		return false, fmt.Errorf("check api key for email: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) LinkExternalIDByEmail(ctx context.Context, email, externalID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET external_id = ?
		 WHERE email = ? AND active = 1 AND external_id IS NULL`, externalID, email)
	if err != nil {
		return 0, fmt.Errorf("link external id: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) UpdatePlanByEmail(ctx context.Context, email string, plan models.Plan) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET plan = ? WHERE email = ? AND active = 1`, string(plan), email)
	if err != nil {
		return 0, fmt.Errorf("update plan by email: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) ReplaceAPIKey(ctx context.Context, oldID uuid.UUID, replacement *models.APIKey) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace api key: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE api_keys SET active = 0 WHERE id = ? AND active = 1`, oldID)
	if err != nil {
		return fmt.Errorf("deactivate api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := sqliteInsertAPIKey(ctx, tx, replacement); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace api key: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeactivateAPIKeyByPrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET active = 0 WHERE key_prefix = ? AND active = 1`, prefix)
	if err != nil {
		return 0, fmt.Errorf("deactivate api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate api key: %w", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	if err := s.db.SelectContext(ctx, &keys,
		`SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// --- Usage Ledger ---

func (s *SQLiteStore) RecordUsage(ctx context.Context, ev *models.UsageEvent) error {
	return sqliteInsertUsageEvent(ctx, s.db, ev)
}

func (s *SQLiteStore) CountUsage(ctx context.Context, p models.Principal, monthKey string) (int, error) {
	return sqliteCountUsage(ctx, s.db, p, monthKey)
}

// RecordUsageIfUnder counts and inserts inside one transaction. The single
// connection pool makes the transaction exclusive.
func (s *SQLiteStore) RecordUsageIfUnder(ctx context.Context, p models.Principal, ev *models.UsageEvent, limit int) (int, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin reserve usage: %w", err)
	}
	defer tx.Rollback()

	used, err := sqliteCountUsage(ctx, tx, p, ev.MonthKey)
	if err != nil {
		return 0, false, err
	}
	if used >= limit {
		return used, false, nil
	}
	if err := sqliteInsertUsageEvent(ctx, tx, ev); err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit reserve usage: %w", err)
	}
	return used, true, nil
}

// --- helpers ---

func sqliteInsertAPIKey(ctx context.Context, db sqlx.ExtContext, key *models.APIKey) error {
	_, err := sqlx.NamedExecContext(ctx, db,
		`INSERT INTO api_keys (id, key_hash, key_prefix, plan, email, external_id, active, created_at)
		 VALUES (:id, :key_hash, :key_prefix, :plan, :email, :external_id, :active, :created_at)`, key)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func sqliteInsertUsageEvent(ctx context.Context, db sqlx.ExtContext, ev *models.UsageEvent) error {
	_, err := sqlx.NamedExecContext(ctx, db,
		`INSERT INTO usage_events (id, key_hash, ip_address, endpoint, occurred_at, month_key)
		 VALUES (:id, :key_hash, :ip_address, :endpoint, :occurred_at, :month_key)`, ev)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

func sqliteCountUsage(ctx context.Context, db sqlx.QueryerContext, p models.Principal, monthKey string) (int, error) {
	var n int
	var err error
	if p.Keyed() {
		err = sqlx.GetContext(ctx, db, &n,
			`SELECT COUNT(*) FROM usage_events WHERE key_hash = ? AND month_key = ?`, p.Identity, monthKey)
	} else {
		err = sqlx.GetContext(ctx, db, &n,
			`SELECT COUNT(*) FROM usage_events WHERE ip_address = ? AND key_hash IS NULL AND month_key = ?`,
			p.Identity, monthKey)
	}
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return n, nil
}
