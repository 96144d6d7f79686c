// Package quota admits or denies billable requests against a principal's
// monthly allowance.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pdfgate/internal/plan"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
)

const defaultRetryAfter = time.Hour

// Mode selects how the count-then-record sequence is performed.
type Mode string

const (
	// ModeSoft counts and records in two steps. Concurrent requests from one
	// principal may overshoot the limit by at most the number in flight.
	ModeSoft Mode = "soft"
	// ModeStrict checks and records in one atomic ledger operation.
	ModeStrict Mode = "strict"
)

// ParseMode converts s to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSoft, ModeStrict:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown quota mode %q: must be soft or strict", s)
}

// Ledger is the usage storage the enforcer needs.
type Ledger interface {
	CountUsage(ctx context.Context, p models.Principal, monthKey string) (int, error)
	RecordUsage(ctx context.Context, ev *models.UsageEvent) error
	RecordUsageIfUnder(ctx context.Context, p models.Principal, ev *models.UsageEvent, limit int) (used int, recorded bool, err error)
}

// Decision describes an admitted request.
type Decision struct {
	Principal models.Principal
	Limits    plan.Limits
	Used      int
	Remaining int
	ResetAt   time.Time
	// Degraded is set when the ledger failed and the enforcer is configured
	// to fail open. The request was not billed.
	Degraded bool
}

// Usage is a read-only snapshot of a principal's current month.
type Usage struct {
	Plan      models.Plan `json:"plan"`
	Used      int         `json:"used"`
	Remaining int         `json:"remaining"`
	Limit     int         `json:"monthly_limit"`
	ResetAt   time.Time   `json:"reset_date"`
}

// Enforcer applies plan limits using a Ledger.
type Enforcer struct {
	ledger     Ledger
	plans      *plan.Registry
	mode       Mode
	failOpen   bool
	retryAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures an Enforcer.
type Option func(*Enforcer)

func WithMode(m Mode) Option {
	return func(e *Enforcer) { e.mode = m }
}

// WithFailOpen admits requests unbilled when the ledger errors.
func WithFailOpen(open bool) Option {
	return func(e *Enforcer) { e.failOpen = open }
}

func WithRetryAfter(d time.Duration) Option {
	return func(e *Enforcer) {
		if d > 0 {
			e.retryAfter = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) { e.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Enforcer) { e.logger = l }
}

// NewEnforcer creates an Enforcer in soft, fail-closed mode unless options
// say otherwise.
func NewEnforcer(ledger Ledger, plans *plan.Registry, opts ...Option) *Enforcer {
	e := &Enforcer{
		ledger:     ledger,
		plans:      plans,
		mode:       ModeSoft,
		retryAfter: defaultRetryAfter,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mode reports the configured admission mode.
func (e *Enforcer) Mode() Mode {
	return e.mode
}

// Admit checks p's usage for the current month and, if under the limit,
// records one usage event for endpoint before returning. A denied request
// returns *ExceededError and records nothing.
func (e *Enforcer) Admit(ctx context.Context, p models.Principal, endpoint string) (*Decision, error) {
	limits, err := e.plans.Lookup(p.Plan)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	month := MonthKey(now)
	d := &Decision{
		Principal: p,
		Limits:    limits,
		ResetAt:   ResetAt(now),
	}
	ev := newUsageEvent(p, endpoint, now, month)

	var used int
	switch e.mode {
	case ModeStrict:
		var recorded bool
		used, recorded, err = e.ledger.RecordUsageIfUnder(ctx, p, ev, limits.MonthlyLimit)
		if err != nil {
			return e.storageFailure(d, 0, "reserve usage", err)
		}
		if !recorded {
			return nil, e.exceeded(used, limits, p.Plan, d.ResetAt)
		}
	default:
		used, err = e.ledger.CountUsage(ctx, p, month)
		if err != nil {
			return e.storageFailure(d, 0, "count usage", err)
		}
		if used >= limits.MonthlyLimit {
			return nil, e.exceeded(used, limits, p.Plan, d.ResetAt)
		}
		if err := e.ledger.RecordUsage(ctx, ev); err != nil {
			return e.storageFailure(d, used, "record usage", err)
		}
	}

	d.Used = used
	d.Remaining = limits.MonthlyLimit - used - 1
	return d, nil
}

// Usage returns p's consumption for the current month without recording.
func (e *Enforcer) Usage(ctx context.Context, p models.Principal) (*Usage, error) {
	limits, err := e.plans.Lookup(p.Plan)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	used, err := e.ledger.CountUsage(ctx, p, MonthKey(now))
	if err != nil {
		return nil, fmt.Errorf("%w: count usage: %v", ErrStorage, err)
	}
	return &Usage{
		Plan:      p.Plan,
		Used:      used,
		Remaining: max(0, limits.MonthlyLimit-used),
		Limit:     limits.MonthlyLimit,
		ResetAt:   ResetAt(now),
	}, nil
}

func (e *Enforcer) exceeded(used int, limits plan.Limits, p models.Plan, reset time.Time) error {
	return &ExceededError{
		Used:       used,
		Limit:      limits.MonthlyLimit,
		Plan:       p,
		ResetAt:    reset,
		RetryAfter: e.retryAfter,
	}
}

func (e *Enforcer) storageFailure(d *Decision, used int, op string, err error) (*Decision, error) {
	if !e.failOpen {
		return nil, fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
	}
	e.logger.Warn("usage ledger failed, admitting unbilled request",
		"op", op,
		"plan", d.Principal.Plan,
		"kind", d.Principal.Kind,
		"error", err,
	)
	d.Degraded = true
	d.Used = used
	d.Remaining = max(0, d.Limits.MonthlyLimit-used-1)
	return d, nil
}

func newUsageEvent(p models.Principal, endpoint string, now time.Time, month string) *models.UsageEvent {
	ev := &models.UsageEvent{
		ID:        uuid.New(),
		IPAddress: p.ClientIP,
		Endpoint:  endpoint,
		Timestamp: now,
		MonthKey:  month,
	}
	if p.Keyed() {
		hash := p.Identity
		ev.KeyHash = &hash
	}
	return ev
}
