// Package account issues API keys and manages their lifecycle for
// dashboard users and billing events.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pdfgate/internal/auth"
	"github.com/kiranshivaraju/pdfgate/internal/identity"
	"github.com/kiranshivaraju/pdfgate/internal/plan"
	"github.com/kiranshivaraju/pdfgate/internal/quota"
	"github.com/kiranshivaraju/pdfgate/internal/store"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
)

// ErrNoKey is returned when an identity has no active key.
var ErrNoKey = errors.New("no api key registered")

// Registration outcomes.
const (
	StatusExisting = "existing"
	StatusLinked   = "linked"
	StatusCreated  = "created"
)

// KeyStore is the key persistence used by Service.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetActiveAPIKeyByExternalID(ctx context.Context, externalID string) (*models.APIKey, error)
	HasActiveAPIKeyForEmail(ctx context.Context, email string) (bool, error)
	LinkExternalIDByEmail(ctx context.Context, email, externalID string) (int64, error)
	UpdatePlanByEmail(ctx context.Context, email string, p models.Plan) (int64, error)
	ReplaceAPIKey(ctx context.Context, oldID uuid.UUID, replacement *models.APIKey) error
}

// UsageReader reports a principal's current month without billing it.
type UsageReader interface {
	Usage(ctx context.Context, p models.Principal) (*quota.Usage, error)
}

// IssuedKey carries a raw key that is shown exactly once.
type IssuedKey struct {
	APIKey       string      `json:"api_key"`
	KeyPrefix    string      `json:"key_prefix"`
	Plan         models.Plan `json:"plan"`
	MonthlyLimit int         `json:"monthly_limit"`
}

// Registration is the result of Register. APIKey is set only when a new
// key was created.
type Registration struct {
	Status string      `json:"status"`
	Plan   models.Plan `json:"plan"`
	APIKey string      `json:"api_key,omitempty"`
}

// Dashboard summarises an identity's key and usage.
type Dashboard struct {
	KeyPrefix string      `json:"api_key_prefix"`
	Plan      models.Plan `json:"plan"`
	Email     *string     `json:"email"`
	Used      int         `json:"used"`
	Limit     int         `json:"limit"`
	Remaining int         `json:"remaining"`
	ResetDate time.Time   `json:"reset_date"`
	CreatedAt time.Time   `json:"created_at"`
	Watermark bool        `json:"watermark"`
}

// Service implements key issuance, registration and plan changes.
type Service struct {
	keys   KeyStore
	usage  UsageReader
	plans  *plan.Registry
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates an account service.
func NewService(keys KeyStore, usage UsageReader, plans *plan.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{keys: keys, usage: usage, plans: plans, now: time.Now, logger: logger}
}

// IssueKey creates an active key on p. email and externalID may be empty.
func (s *Service) IssueKey(ctx context.Context, p models.Plan, email, externalID string) (*IssuedKey, error) {
	limits, err := s.plans.Lookup(p)
	if err != nil {
		return nil, err
	}

	key, gen, err := s.newRecord(p, optional(email), optional(externalID))
	if err != nil {
		return nil, err
	}
	if err := s.keys.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("storing api key: %w", err)
	}

	s.logger.Info("api key issued", "key_prefix", key.KeyPrefix, "plan", p)
	return &IssuedKey{
		APIKey:       gen.Raw,
		KeyPrefix:    key.KeyPrefix,
		Plan:         p,
		MonthlyLimit: limits.MonthlyLimit,
	}, nil
}

// Register returns the identity's existing key state, links it to a key
// bought with the same email, or creates a free key.
func (s *Service) Register(ctx context.Context, id identity.Identity) (*Registration, error) {
	existing, err := s.activeKey(ctx, id.UID)
	switch {
	case err == nil:
		return &Registration{Status: StatusExisting, Plan: existing.Plan}, nil
	case !errors.Is(err, ErrNoKey):
		return nil, err
	}

	if id.Email != "" {
		n, err := s.keys.LinkExternalIDByEmail(ctx, id.Email, id.UID)
		if err != nil {
			return nil, fmt.Errorf("linking identity: %w", err)
		}
		if n > 0 {
			linked, err := s.activeKey(ctx, id.UID)
			if err != nil {
				return nil, err
			}
			s.logger.Info("identity linked to existing key", "key_prefix", linked.KeyPrefix)
			return &Registration{Status: StatusLinked, Plan: linked.Plan}, nil
		}
	}

	issued, err := s.IssueKey(ctx, models.PlanFree, id.Email, id.UID)
	if err != nil {
		return nil, err
	}
	return &Registration{Status: StatusCreated, Plan: issued.Plan, APIKey: issued.APIKey}, nil
}

// Dashboard returns key details and current-month usage for uid.
func (s *Service) Dashboard(ctx context.Context, uid string) (*Dashboard, error) {
	key, err := s.activeKey(ctx, uid)
	if err != nil {
		return nil, err
	}
	limits, err := s.plans.Lookup(key.Plan)
	if err != nil {
		return nil, err
	}

	usage, err := s.usage.Usage(ctx, models.Principal{
		Kind:      models.PrincipalKeyed,
		Identity:  key.KeyHash,
		Plan:      key.Plan,
		KeyPrefix: key.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		KeyPrefix: key.KeyPrefix,
		Plan:      key.Plan,
		Email:     key.Email,
		Used:      usage.Used,
		Limit:     usage.Limit,
		Remaining: usage.Remaining,
		ResetDate: usage.ResetAt,
		CreatedAt: key.CreatedAt,
		Watermark: limits.WatermarkRequired,
	}, nil
}

// Regenerate replaces uid's active key with a fresh one on the same plan.
// The old raw key stops resolving immediately.
func (s *Service) Regenerate(ctx context.Context, uid string) (*IssuedKey, error) {
	old, err := s.activeKey(ctx, uid)
	if err != nil {
		return nil, err
	}
	limits, err := s.plans.Lookup(old.Plan)
	if err != nil {
		return nil, err
	}

	replacement, gen, err := s.newRecord(old.Plan, old.Email, old.ExternalID)
	if err != nil {
		return nil, err
	}
	if err := s.keys.ReplaceAPIKey(ctx, old.ID, replacement); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoKey
		}
		return nil, fmt.Errorf("replacing api key: %w", err)
	}

	s.logger.Info("api key regenerated", "old_prefix", old.KeyPrefix, "key_prefix", replacement.KeyPrefix)
	return &IssuedKey{
		APIKey:       gen.Raw,
		KeyPrefix:    replacement.KeyPrefix,
		Plan:         old.Plan,
		MonthlyLimit: limits.MonthlyLimit,
	}, nil
}

// ApplyPlan moves every active key for email to p. When email has no
// active key a new one is issued.
func (s *Service) ApplyPlan(ctx context.Context, email string, p models.Plan) error {
	if _, err := s.plans.Lookup(p); err != nil {
		return err
	}

	n, err := s.keys.UpdatePlanByEmail(ctx, email, p)
	if err != nil {
		return fmt.Errorf("updating plan: %w", err)
	}
	if n > 0 {
		s.logger.Info("plan applied", "plan", p, "keys", n)
		return nil
	}

	has, err := s.keys.HasActiveAPIKeyForEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("checking existing keys: %w", err)
	}
	if has {
		return nil
	}

	issued, err := s.IssueKey(ctx, p, email, "")
	if err != nil {
		return err
	}
	s.logger.Info("issued key for new subscriber", "plan", p, "key_prefix", issued.KeyPrefix)
	return nil
}

func (s *Service) activeKey(ctx context.Context, uid string) (*models.APIKey, error) {
	key, err := s.keys.GetActiveAPIKeyByExternalID(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoKey
		}
		return nil, fmt.Errorf("looking up api key: %w", err)
	}
	return key, nil
}

func (s *Service) newRecord(p models.Plan, email, externalID *string) (*models.APIKey, auth.GeneratedKey, error) {
	gen, err := auth.GenerateKey()
	if err != nil {
		return nil, auth.GeneratedKey{}, err
	}
	return &models.APIKey{
		ID:         uuid.New(),
		KeyHash:    gen.Hash,
		KeyPrefix:  gen.Display,
		Plan:       p,
		Email:      email,
		ExternalID: externalID,
		Active:     true,
		CreatedAt:  s.now().UTC(),
	}, gen, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
